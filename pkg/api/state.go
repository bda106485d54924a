package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// State is scoped key-value persistence with interchangeable backends.
// Scope isolates unrelated invocations; by convention handlers use the
// trace identifier as the scope, but any string is accepted.
//
// Get returns (nil, nil) when a key is absent or expired; errors indicate
// backend failure, never absence. Set overwrites silently. Delete and
// Clear are idempotent. Implementations must serialize concurrent writes
// to the same scope and key, and operations on different scopes must
// never interfere.
type State interface {
	Get(ctx context.Context, scope, key string) (json.RawMessage, error)
	Set(ctx context.Context, scope, key string, value any) error
	SetTTL(
		ctx context.Context, scope, key string, value any,
		ttl time.Duration,
	) error
	Delete(ctx context.Context, scope, key string) error
	Clear(ctx context.Context, scope string) error
	Cleanup(ctx context.Context) error
}

// ErrStateBackend wraps I/O failures surfaced by a state backend
var ErrStateBackend = errors.New("state backend failure")
