package antrian

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultShardCount is the number of shards of a MemoryStorage.
	DefaultShardCount = 16
	// DefaultMaxEntries bounds the number of entries a MemoryStorage holds.
	DefaultMaxEntries = 500
	// DefaultMaxAge is how long a MemoryStorage keeps an entry regardless of
	// its own expiry.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// MemoryStorageConfig configures a MemoryStorage.
type MemoryStorageConfig struct {
	ShardCount int
	MaxEntries int
	MaxAge     time.Duration
}

// DefaultMemoryStorageConfig returns the volatile tier defaults: 16 shards,
// 500 entries, 7 day maximum age.
func DefaultMemoryStorageConfig() MemoryStorageConfig {
	return MemoryStorageConfig{
		ShardCount: DefaultShardCount,
		MaxEntries: DefaultMaxEntries,
		MaxAge:     DefaultMaxAge,
	}
}

// MemoryStorage is a sharded in-process Storage. Each shard keeps its own
// LRU list and evicts the least recently used entry when it is full.
type MemoryStorage struct {
	shards    []*memoryShard
	shardMask uint64
	maxAge    time.Duration
	now       func() time.Time

	evictions int64
}

type memoryShard struct {
	mu         sync.Mutex
	store      map[string]*memoryRecord
	head, tail *memoryRecord
	maxSize    int
}

type memoryRecord struct {
	key      string
	entry    Entry
	storedAt time.Time

	prev, next *memoryRecord
}

// NewMemoryStorage creates a volatile tier. Zero config fields take the
// defaults.
func NewMemoryStorage(config MemoryStorageConfig) *MemoryStorage {
	if config.ShardCount <= 0 {
		config.ShardCount = DefaultShardCount
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}

	shardCount := nextPowerOf2(config.ShardCount)
	perShard := (config.MaxEntries + shardCount - 1) / shardCount

	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = &memoryShard{
			store:   make(map[string]*memoryRecord),
			maxSize: perShard,
		}
	}

	return &MemoryStorage{
		shards:    shards,
		shardMask: uint64(shardCount - 1),
		maxAge:    config.MaxAge,
		now:       time.Now,
	}
}

func (m *MemoryStorage) shard(key string) *memoryShard {
	hash := fnv.New64a()
	hash.Write([]byte(key))
	return m.shards[hash.Sum64()&m.shardMask]
}

// Get returns the entry under key and marks it most recently used.
func (m *MemoryStorage) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.store[key]
	if rec == nil {
		return Entry{}, false, nil
	}
	if m.now().Sub(rec.storedAt) > m.maxAge {
		s.remove(rec)
		return Entry{}, false, nil
	}

	s.unlink(rec)
	s.pushFront(rec)
	return rec.entry, true, nil
}

// Set stores entry under key, evicting the shard's oldest entry when full.
func (m *MemoryStorage) Set(ctx context.Context, key string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.store[key]; existing != nil {
		s.remove(existing)
	}
	for len(s.store) >= s.maxSize && s.tail != nil {
		s.remove(s.tail)
		atomic.AddInt64(&m.evictions, 1)
	}

	rec := &memoryRecord{key: key, entry: entry, storedAt: m.now()}
	s.store[key] = rec
	s.pushFront(rec)
	return nil
}

// Delete removes key if present.
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.store[key]; rec != nil {
		s.remove(rec)
	}
	return nil
}

// Entries returns a snapshot of every stored entry.
func (m *MemoryStorage) Entries(ctx context.Context) ([]KeyedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []KeyedEntry
	for _, s := range m.shards {
		s.mu.Lock()
		for key, rec := range s.store {
			out = append(out, KeyedEntry{Key: key, Entry: rec.entry})
		}
		s.mu.Unlock()
	}
	return out, nil
}

// Clear drops every entry.
func (m *MemoryStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, s := range m.shards {
		s.mu.Lock()
		s.store = make(map[string]*memoryRecord)
		s.head = nil
		s.tail = nil
		s.mu.Unlock()
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStorage) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.store)
		s.mu.Unlock()
	}
	return n
}

// Evictions returns how many entries were pushed out by the size bound.
func (m *MemoryStorage) Evictions() int64 {
	return atomic.LoadInt64(&m.evictions)
}

func (s *memoryShard) pushFront(rec *memoryRecord) {
	rec.prev = nil
	rec.next = s.head
	if s.head != nil {
		s.head.prev = rec
	}
	s.head = rec
	if s.tail == nil {
		s.tail = rec
	}
}

func (s *memoryShard) unlink(rec *memoryRecord) {
	if rec.prev != nil {
		rec.prev.next = rec.next
	} else {
		s.head = rec.next
	}
	if rec.next != nil {
		rec.next.prev = rec.prev
	} else {
		s.tail = rec.prev
	}
	rec.prev = nil
	rec.next = nil
}

func (s *memoryShard) remove(rec *memoryRecord) {
	delete(s.store, rec.key)
	s.unlink(rec)
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}
