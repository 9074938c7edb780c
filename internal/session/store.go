// Package session provides the per-user session key-value store consumed by
// the search result cache.
package session

import "context"

// Entry is one cached search result. Corrupt stored payloads decode to the
// zero Entry, whose Expires of 0 makes the cache sweep discard them.
type Entry struct {
	IDs     []int64 `json:"ids"`
	Query   string  `json:"query"`
	URL     string  `json:"url"`
	Name    string  `json:"name"`
	Expires int64   `json:"expires"`
}

// Store is a mapping scoped to one user session. Entries are opaque to the
// store; eviction policy lives with the caller. Concurrent writers from the
// same session follow last-writer-wins.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (Entry, bool, error)
	Put(ctx context.Context, sessionID, key string, entry Entry) error
	Delete(ctx context.Context, sessionID, key string) error
	Keys(ctx context.Context, sessionID string) ([]string, error)
}
