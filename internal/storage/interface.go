// Package storage holds the session storage drivers. A Store is a small set
// of string slots scoped to one host session, the equivalent of a browser
// tab's session storage. Drivers: in-memory, YAML file and redis.
package storage

import "context"

// Slot names used by the session.
const (
	KeyToken         = "token"
	KeyOriginalToken = "originalToken"
)

// Store defines the interface for session storage operations.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the
	// key is absent (not an error).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close closes the store and releases any resources.
	Close() error
}
