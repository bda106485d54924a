package state

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// BlobStore is a State persisted through gocloud.dev/blob, one blob
	// per (scope, key). Local directories use the fileblob driver; S3,
	// GCS, Azure, and S3-compatible buckets are reachable through their
	// URL schemes. Writes to the same scope serialize through striped
	// locks
	BlobStore struct {
		bucket *blob.Bucket
		clock  func() time.Time
		locks  [32]sync.Mutex
	}

	blobPayload struct {
		ExpiresAt *time.Time      `json:"expires_at,omitempty"`
		Value     json.RawMessage `json:"value"`
	}
)

const blobSuffix = ".json"

var _ api.State = (*BlobStore)(nil)

// NewFileStore creates a file-backed store rooted at the given directory
func NewFileStore(dir string) (*BlobStore, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}
	return newBlobStore(bucket), nil
}

// NewBlobStore creates a store backed by any bucket URL the blob drivers
// understand (file://, s3://, gs://, azblob://)
func NewBlobStore(ctx context.Context, bucketURL string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}
	return newBlobStore(bucket), nil
}

func newBlobStore(bucket *blob.Bucket) *BlobStore {
	return &BlobStore{
		bucket: bucket,
		clock:  time.Now,
	}
}

// Close releases the underlying bucket
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) Get(
	ctx context.Context, scope, key string,
) (json.RawMessage, error) {
	data, err := s.bucket.ReadAll(ctx, blobKey(scope, key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}

	var payload blobPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}
	if payload.ExpiresAt != nil && !s.clock().Before(*payload.ExpiresAt) {
		return nil, nil
	}
	return payload.Value, nil
}

func (s *BlobStore) Set(
	ctx context.Context, scope, key string, value any,
) error {
	return s.SetTTL(ctx, scope, key, value, 0)
}

func (s *BlobStore) SetTTL(
	ctx context.Context, scope, key string, value any, ttl time.Duration,
) error {
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	payload := blobPayload{Value: encoded}
	if ttl > 0 {
		expires := s.clock().Add(ttl)
		payload.ExpiresAt = &expires
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}

	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	if err := s.bucket.WriteAll(
		ctx, blobKey(scope, key), data, nil,
	); err != nil {
		return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}
	return nil
}

func (s *BlobStore) Delete(ctx context.Context, scope, key string) error {
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	err := s.bucket.Delete(ctx, blobKey(scope, key))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}
	return nil
}

func (s *BlobStore) Clear(ctx context.Context, scope string) error {
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	iter := s.bucket.List(&blob.ListOptions{Prefix: scopePrefix(scope)})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil &&
			gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
		}
	}
	return nil
}

// Cleanup sweeps expired blobs. Expiry metadata is extracted with gjson
// so unexpired values are not fully decoded
func (s *BlobStore) Cleanup(ctx context.Context) error {
	now := s.clock()

	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
		}

		data, err := s.bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}
			return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
		}

		expires := gjson.GetBytes(data, "expires_at")
		if !expires.Exists() {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, expires.String())
		if err != nil || now.Before(at) {
			continue
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil &&
			gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("%w: %w", api.ErrStateBackend, err)
		}
	}
}

func (s *BlobStore) scopeLock(scope string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

func blobKey(scope, key string) string {
	return scopePrefix(scope) + url.PathEscape(key) + blobSuffix
}

func scopePrefix(scope string) string {
	return url.PathEscape(scope) + "/"
}
