package antrian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefix for cache entries: entry:{key} -> JSON(Entry)
const prefixEntry = "entry:"

// BadgerStorage is a durable Storage backed by BadgerDB. Entries are JSON
// encoded, so Data read back from disk holds the generic JSON shapes
// (map[string]any, []any, float64, string, bool). Use As to decode them into
// a concrete type.
type BadgerStorage struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadgerStorage opens (or creates) a badger database at path.
func OpenBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", path, err)
	}
	return &BadgerStorage{db: db, ownsDB: true}, nil
}

// OpenInMemoryBadgerStorage opens a badger database that lives only in
// memory. Useful for tests.
func OpenInMemoryBadgerStorage() (*BadgerStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger store: %w", err)
	}
	return &BadgerStorage{db: db, ownsDB: true}, nil
}

// NewBadgerStorage wraps an already opened database. Close leaves it open.
func NewBadgerStorage(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db}
}

func entryKey(key string) []byte {
	return []byte(prefixEntry + key)
}

// Get reads the entry stored under key.
func (b *BadgerStorage) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read entry %q: %w", key, err)
	}
	return entry, true, nil
}

// Set writes entry under key.
func (b *BadgerStorage) Set(ctx context.Context, key string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %q: %w", key, err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(key), data)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (b *BadgerStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(entryKey(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// Entries returns every stored entry. Values that fail to decode are skipped.
func (b *BadgerStorage) Entries(ctx context.Context) ([]KeyedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []KeyedEntry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefixEntry):])

			err := item.Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return nil
				}
				result = append(result, KeyedEntry{Key: key, Entry: entry})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Clear drops every cache entry.
func (b *BadgerStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.DropPrefix([]byte(prefixEntry))
}

// Close closes the database if this storage opened it.
func (b *BadgerStorage) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}
