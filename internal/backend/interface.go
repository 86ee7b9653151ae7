// Package backend abstracts the remote data store the local cache
// mirrors into. The rest of the application only sees this interface;
// whether rows live in a hosted REST table or an in-process map is a
// deployment choice.
package backend

import (
	"context"
	"encoding/json"
)

// Backend is the remote side of the sync pipeline.
type Backend interface {
	// Fetch reads one key of a family. The bool is false on a clean miss.
	Fetch(ctx context.Context, familyID, key string) (json.RawMessage, bool, error)
	// FetchAll pulls every key of a family.
	FetchAll(ctx context.Context, familyID string) (map[string]json.RawMessage, error)
	// Push upserts one key.
	Push(ctx context.Context, familyID, key string, value json.RawMessage) error
	// Remove deletes one key.
	Remove(ctx context.Context, familyID, key string) error
	// Ping probes backend availability with a minimal operation.
	Ping(ctx context.Context) error
}

// Type selects the backend implementation.
type Type string

const (
	// RESTBackend mirrors data to the hosted REST store.
	RESTBackend Type = "rest"
	// MemoryBackend keeps data in process, for tests and offline runs.
	MemoryBackend Type = "memory"
	// NoBackend disables mirroring entirely.
	NoBackend Type = "none"
)

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid.
func (t Type) IsValid() bool {
	switch t {
	case RESTBackend, MemoryBackend, NoBackend:
		return true
	default:
		return false
	}
}
