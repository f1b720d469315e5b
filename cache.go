package antrian

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ambiyansyah-risyal/antrian/internal/singleflight"
)

const (
	tierDurable  = "durable"
	tierVolatile = "volatile"

	// sweepConcurrency bounds the parallel deletions of one Clean pass.
	sweepConcurrency = 16
)

// Generator produces the value for a missing or expired key.
type Generator func(ctx context.Context) (any, error)

// GetOptions describes one Cache.Get lookup.
type GetOptions struct {
	Key       string
	Generator Generator
	Tags      []string
	// TTL of the entry written from the generator result. Zero means
	// DefaultTTL.
	TTL time.Duration
	// Durable also writes the generated entry to the durable tier.
	Durable bool
}

// SetOptions describes one Cache.Set write.
type SetOptions struct {
	Key     string
	Data    any
	Tags    []string
	TTL     time.Duration
	Durable bool
}

// CleanOptions selects the tags a Clean sweep removes. Expired entries are
// removed by every sweep.
type CleanOptions struct {
	Tag  string
	Tags []string
}

func (o CleanOptions) all() []string {
	tags := make([]string, 0, len(o.Tags)+1)
	if o.Tag != "" {
		tags = append(tags, o.Tag)
	}
	return append(tags, o.Tags...)
}

// Cache memoizes generator results in a volatile tier and, per entry, an
// optional durable tier. Entries expire by TTL and can be dropped in bulk by
// tag.
//
// Get does not deduplicate concurrent misses unless the cache was built with
// WithSingleFlight: two callers racing on one missing key both run the
// generator and both write the entry.
type Cache struct {
	name      string
	volatile  Storage
	durable   Storage
	activated atomic.Bool
	now       func() time.Time
	flight    *singleflight.Group[any]

	logger  Logger
	metrics *MetricsCollector
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithVolatile replaces the default in-memory tier.
func WithVolatile(s Storage) CacheOption {
	return func(c *Cache) {
		if s != nil {
			c.volatile = s
		}
	}
}

// WithDurable sets the durable tier.
func WithDurable(s Storage) CacheOption {
	return func(c *Cache) {
		c.durable = s
	}
}

// WithActivated sets the initial activation state. Caches start activated.
func WithActivated(on bool) CacheOption {
	return func(c *Cache) {
		c.activated.Store(on)
	}
}

// WithClock replaces time.Now for expiry computations.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSingleFlight lets only one generator call per key run at a time;
// concurrent misses wait for it and share its result.
func WithSingleFlight() CacheOption {
	return func(c *Cache) {
		c.flight = singleflight.New[any]()
	}
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(l Logger) CacheOption {
	return func(c *Cache) {
		c.logger = orNop(l)
	}
}

// WithCacheMetrics sets the metrics collector.
func WithCacheMetrics(m *MetricsCollector) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates an activated cache with a default MemoryStorage tier.
func NewCache(name string, opts ...CacheOption) *Cache {
	c := &Cache{
		name:   name,
		now:    time.Now,
		logger: nopLogger{},
	}
	c.activated.Store(true)

	for _, opt := range opts {
		opt(c)
	}
	if c.volatile == nil {
		c.volatile = NewMemoryStorage(DefaultMemoryStorageConfig())
	}
	return c
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Volatile returns the in-memory tier.
func (c *Cache) Volatile() Storage {
	return c.volatile
}

// Durable returns the durable tier, or nil.
func (c *Cache) Durable() Storage {
	return c.durable
}

// SetActivated turns the cache on or off. A deactivated cache never touches
// its tiers: Get always runs the generator and writes are dropped.
func (c *Cache) SetActivated(on bool) *Cache {
	c.activated.Store(on)
	c.logger.Info("Cache activation changed", "cache", c.name, "activated", on)
	return c
}

// Activated reports whether the cache is on.
func (c *Cache) Activated() bool {
	return c.activated.Load()
}

// Get returns the fresh value stored under opts.Key, consulting the durable
// tier before the volatile one. On a miss it runs opts.Generator, stores a
// non-empty result and returns it. A generator error is logged and reported
// as a miss; it is never returned.
func (c *Cache) Get(ctx context.Context, opts GetOptions) (any, bool) {
	if !c.Activated() {
		if opts.Generator == nil {
			return nil, false
		}
		data, err := c.generate(ctx, opts)
		if err != nil || isEmpty(data) {
			return nil, false
		}
		return data, true
	}

	if entry, tier, ok := c.lookup(ctx, opts.Key); ok {
		c.metrics.RecordCacheHit(c.name, tier)
		return entry.Data, true
	}
	c.metrics.RecordCacheMiss(c.name)

	if opts.Generator == nil {
		return nil, false
	}

	if c.flight == nil {
		return c.fill(ctx, opts)
	}

	data, _, _ := c.flight.Do(opts.Key, func() (any, error) {
		data, _ := c.fill(ctx, opts)
		return data, nil
	})
	return data, data != nil
}

// fill runs the generator and stores a non-empty result.
func (c *Cache) fill(ctx context.Context, opts GetOptions) (any, bool) {
	data, err := c.generate(ctx, opts)
	if err != nil || isEmpty(data) {
		return nil, false
	}

	err = c.Set(ctx, SetOptions{
		Key:     opts.Key,
		Data:    data,
		Tags:    opts.Tags,
		TTL:     opts.TTL,
		Durable: opts.Durable,
	})
	if err != nil {
		c.logger.Warn("Failed to store generated value", "cache", c.name, "key", opts.Key, "error", err)
	}
	return data, true
}

func (c *Cache) generate(ctx context.Context, opts GetOptions) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, errors.New("generator panicked")
		}
		if err != nil {
			c.metrics.RecordGeneratorFailure(c.name)
			c.logger.Warn("Generator failed, treating as miss", "cache", c.name, "key", opts.Key, "error", err)
		}
	}()
	return opts.Generator(ctx)
}

// lookup finds a valid entry, durable tier first.
func (c *Cache) lookup(ctx context.Context, key string) (Entry, string, bool) {
	now := c.now()

	if c.durable != nil {
		entry, ok, err := c.durable.Get(ctx, key)
		if err != nil {
			c.logger.Warn("Durable tier read failed", "cache", c.name, "key", key, "error", err)
		} else if ok && entry.ValidAt(now) {
			return entry, tierDurable, true
		}
	}

	entry, ok, err := c.volatile.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Volatile tier read failed", "cache", c.name, "key", key, "error", err)
		return Entry{}, "", false
	}
	if ok && entry.ValidAt(now) {
		return entry, tierVolatile, true
	}
	return Entry{}, "", false
}

// Set writes an entry unconditionally. The volatile tier is always written;
// the durable tier only when opts.Durable is set and a durable tier exists.
func (c *Cache) Set(ctx context.Context, opts SetOptions) error {
	if !c.Activated() {
		return nil
	}

	entry := Entry{
		Data:      opts.Data,
		Tags:      opts.Tags,
		ExpiresAt: c.now().Add(ttlOrDefault(opts.TTL, DefaultTTL)).UnixMilli(),
	}

	var errs []error
	if err := c.volatile.Set(ctx, opts.Key, entry); err != nil {
		errs = append(errs, err)
	}
	if opts.Durable && c.durable != nil {
		if err := c.durable.Set(ctx, opts.Key, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetMany writes every item with Set semantics.
func (c *Cache) SetMany(ctx context.Context, items []SetOptions) error {
	if !c.Activated() {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, item := range items {
		g.Go(func() error {
			return c.Set(gctx, item)
		})
	}
	return g.Wait()
}

// GetMany returns the fresh values for keys. Missing and expired keys are
// skipped, so the result does not line up with keys by position.
func (c *Cache) GetMany(ctx context.Context, keys []string) []any {
	if !c.Activated() {
		return nil
	}

	var out []any
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if entry, tier, ok := c.lookup(ctx, key); ok {
			c.metrics.RecordCacheHit(c.name, tier)
			out = append(out, entry.Data)
		} else {
			c.metrics.RecordCacheMiss(c.name)
		}
	}
	return out
}

// Clean sweeps both tiers and deletes every entry that has expired or
// carries one of the selected tags.
func (c *Cache) Clean(ctx context.Context, opts CleanOptions) error {
	if !c.Activated() {
		return nil
	}

	tags := opts.all()

	type target struct {
		tier    Storage
		key     string
		expired bool
	}
	var targets []target

	now := c.now()
	for _, tier := range c.tiers() {
		entries, err := tier.Entries(ctx)
		if err != nil {
			return err
		}
		for _, ke := range entries {
			switch {
			case !ke.Entry.ValidAt(now):
				targets = append(targets, target{tier: tier, key: ke.Key, expired: true})
			case ke.Entry.HasAnyTag(tags):
				targets = append(targets, target{tier: tier, key: ke.Key})
			}
		}
	}

	var expired, tagged int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, t := range targets {
		g.Go(func() error {
			if err := t.tier.Delete(gctx, t.key); err != nil {
				return err
			}
			if t.expired {
				atomic.AddInt64(&expired, 1)
			} else {
				atomic.AddInt64(&tagged, 1)
			}
			return nil
		})
	}

	err := g.Wait()
	c.metrics.RecordEviction(c.name, "expired", int(expired))
	c.metrics.RecordEviction(c.name, "tag", int(tagged))
	c.logger.Debug("Cache sweep finished", "cache", c.name, "tags", tags, "expired", expired, "tagged", tagged)
	return err
}

// ClearByTag removes entries tagged tag (and any expired entries).
func (c *Cache) ClearByTag(ctx context.Context, tag string) error {
	return c.Clean(ctx, CleanOptions{Tag: tag})
}

// ClearByTags removes entries carrying any of tags (and any expired entries).
func (c *Cache) ClearByTags(ctx context.Context, tags []string) error {
	return c.Clean(ctx, CleanOptions{Tags: tags})
}

// Clear drops every entry from both tiers. With single-flight enabled, Get
// calls after Clear run a fresh generator rather than joining one started
// before it.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.Activated() {
		return nil
	}

	var errs []error
	for _, tier := range c.tiers() {
		if err := tier.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	forgotten := 0
	if c.flight != nil {
		forgotten = c.flight.ForgetAll()
	}
	c.logger.Info("Cache cleared", "cache", c.name, "inFlight", forgotten)
	return errors.Join(errs...)
}

func (c *Cache) tiers() []Storage {
	if c.durable == nil {
		return []Storage{c.volatile}
	}
	return []Storage{c.volatile, c.durable}
}
