// Package state provides the scoped key-value backends behind the
// runtime's State contract. The in-memory, file-backed, and Redis
// variants are interchangeable: nothing may depend on which backend is
// active beyond persistence across restarts and latency.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/pkg/api"
)

// encodeValue JSON-encodes a value for storage. Values already encoded as
// json.RawMessage pass through unchanged
func encodeValue(value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrStateBackend, err)
	}
	return data, nil
}
