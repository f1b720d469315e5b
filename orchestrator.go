package antrian

import (
	"errors"
	"io"
)

const (
	// DefaultCacheName names the cache built by New.
	DefaultCacheName = "GlobalAPI"
	// DefaultQueueName names the queue built by New.
	DefaultQueueName = "GlobalAPIQueue"
)

// Orchestrator holds the shared Caller, Queue and Cache that every Request
// built from it routes through. It is safe for concurrent use; Requests are
// not.
type Orchestrator struct {
	caller *Caller
	queue  *Queue
	cache  *Cache
	logger Logger

	closers []io.Closer
}

type orchestratorConfig struct {
	caller *Caller
	queue  *Queue
	cache  *Cache

	maxProcessing  int
	limitPerSecond int
	logger         Logger
	metrics        *MetricsCollector

	callerOpts []CallerOption
	cacheOpts  []CacheOption
	queueOpts  []QueueOption
}

// Option configures an Orchestrator built by New.
type Option func(*orchestratorConfig)

// WithMaxProcessing sets the concurrency ceiling of the default queue.
func WithMaxProcessing(n int) Option {
	return func(c *orchestratorConfig) {
		c.maxProcessing = n
	}
}

// WithLimitPerSecond caps job starts per second on the default queue.
func WithLimitPerSecond(n int) Option {
	return func(c *orchestratorConfig) {
		c.limitPerSecond = n
	}
}

// WithLogger sets the logger shared by the default caller, queue and cache.
func WithLogger(l Logger) Option {
	return func(c *orchestratorConfig) {
		c.logger = l
	}
}

// WithMetrics sets the metrics collector shared by the default components.
func WithMetrics(m *MetricsCollector) Option {
	return func(c *orchestratorConfig) {
		c.metrics = m
	}
}

// WithCaller uses caller instead of building one.
func WithCaller(caller *Caller) Option {
	return func(c *orchestratorConfig) {
		c.caller = caller
	}
}

// WithQueue uses queue instead of building one.
func WithQueue(queue *Queue) Option {
	return func(c *orchestratorConfig) {
		c.queue = queue
	}
}

// WithCache uses cache instead of building one.
func WithCache(cache *Cache) Option {
	return func(c *orchestratorConfig) {
		c.cache = cache
	}
}

// WithCallerOptions passes extra options to the default caller.
func WithCallerOptions(opts ...CallerOption) Option {
	return func(c *orchestratorConfig) {
		c.callerOpts = append(c.callerOpts, opts...)
	}
}

// WithCacheOptions passes extra options to the default cache.
func WithCacheOptions(opts ...CacheOption) Option {
	return func(c *orchestratorConfig) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// WithQueueOptions passes extra options to the default queue.
func WithQueueOptions(opts ...QueueOption) Option {
	return func(c *orchestratorConfig) {
		c.queueOpts = append(c.queueOpts, opts...)
	}
}

// New builds an Orchestrator, creating any component not supplied through
// WithCaller, WithQueue or WithCache.
func New(opts ...Option) *Orchestrator {
	cfg := &orchestratorConfig{maxProcessing: DefaultMaxProcessing}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.caller == nil {
		callerOpts := append([]CallerOption{
			WithCallerLogger(cfg.logger),
			WithCallerMetrics(cfg.metrics),
		}, cfg.callerOpts...)
		cfg.caller = NewCaller(callerOpts...)
	}
	if cfg.queue == nil {
		queueOpts := append([]QueueOption{
			WithQueueMaxProcessing(cfg.maxProcessing),
			WithQueueLimitPerSecond(cfg.limitPerSecond),
			WithQueueLogger(cfg.logger),
			WithQueueMetrics(cfg.metrics),
		}, cfg.queueOpts...)
		cfg.queue = NewQueue(DefaultQueueName, queueOpts...)
	}
	if cfg.cache == nil {
		cacheOpts := append([]CacheOption{
			WithCacheLogger(cfg.logger),
			WithCacheMetrics(cfg.metrics),
		}, cfg.cacheOpts...)
		cfg.cache = NewCache(DefaultCacheName, cacheOpts...)
	}

	return &Orchestrator{
		caller: cfg.caller,
		queue:  cfg.queue,
		cache:  cfg.cache,
		logger: orNop(cfg.logger),
	}
}

// NewOrchestrator wires an Orchestrator from explicit components. A nil
// queue or cache gets a default instance.
func NewOrchestrator(caller *Caller, queue *Queue, cache *Cache) *Orchestrator {
	return New(WithCaller(caller), WithQueue(queue), WithCache(cache))
}

// CreateInstance derives an Orchestrator that sends through caller and
// shares the receiver's queue and cache unless replacements are given.
func (o *Orchestrator) CreateInstance(caller *Caller, queue *Queue, cache *Cache) *Orchestrator {
	if caller == nil {
		caller = o.caller
	}
	if queue == nil {
		queue = o.queue
	}
	if cache == nil {
		cache = o.cache
	}
	return &Orchestrator{caller: caller, queue: queue, cache: cache, logger: o.logger}
}

// SetHook installs hooks on the orchestrator's Caller. Every Orchestrator
// sharing that Caller sees them.
func (o *Orchestrator) SetHook(h Hooks) *Orchestrator {
	o.caller.SetHooks(h)
	return o
}

// Caller returns the shared transport.
func (o *Orchestrator) Caller() *Caller {
	return o.caller
}

// Queue returns the shared queue.
func (o *Orchestrator) Queue() *Queue {
	return o.queue
}

// Cache returns the shared cache.
func (o *Orchestrator) Cache() *Cache {
	return o.cache
}

// Close stops the queue's budget ticker and releases storage opened by
// NewFromConfig. Derived instances share the queue, so close only the root.
func (o *Orchestrator) Close() error {
	o.queue.Close()

	var errs []error
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Request starts building a request to target.
func (o *Orchestrator) Request(target string) *Request {
	return &Request{
		target: target,
		caller: o.caller,
		queue:  o.queue,
		cache:  o.cache,
		logger: o.logger,
	}
}
