package antrian

import (
	"context"
	"time"
)

// Entry is a cached value with its tags and absolute expiry in epoch
// milliseconds.
type Entry struct {
	Data      any      `json:"data"`
	Tags      []string `json:"tags,omitempty"`
	ExpiresAt int64    `json:"expiresAt"`
}

// ValidAt reports whether the entry is still fresh at now.
func (e Entry) ValidAt(now time.Time) bool {
	return now.UnixMilli() <= e.ExpiresAt
}

// HasAnyTag reports whether the entry carries at least one of tags.
func (e Entry) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// KeyedEntry pairs an Entry with its key, as returned by Storage.Entries.
type KeyedEntry struct {
	Key   string
	Entry Entry
}

// Storage is the key/value contract a cache tier must satisfy. Delete and
// Clear are idempotent. Implementations must be safe for concurrent use.
type Storage interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Entries(ctx context.Context) ([]KeyedEntry, error)
	Clear(ctx context.Context) error
}
