package antrian

import (
	"context"
	"net/http"
	"time"
)

// Mode is how a Request is scheduled.
type Mode int

const (
	// ModeLow queues the call behind every pending high priority job.
	ModeLow Mode = iota
	// ModeHigh queues the call ahead of pending low priority jobs.
	ModeHigh
	// ModeNow bypasses the queue.
	ModeNow
)

func (m Mode) String() string {
	switch m {
	case ModeHigh:
		return "high"
	case ModeNow:
		return "now"
	default:
		return "low"
	}
}

// CachePolicy attaches caching to a Request. Tags label the cached GET
// result; Deps are invalidated before the call is sent.
type CachePolicy struct {
	Tags []string
	Deps []string
	// TTL defaults to DefaultRequestTTL.
	TTL time.Duration
}

// CallOption adjusts the CallConfig of a single terminal call.
type CallOption func(*CallConfig)

// WithCallHeader sets a request header.
func WithCallHeader(key, value string) CallOption {
	return func(cfg *CallConfig) {
		if cfg.Header == nil {
			cfg.Header = make(http.Header)
		}
		cfg.Header.Set(key, value)
	}
}

// WithCallTimeout bounds the call. Exceeding it yields an error matching
// ErrTimeout.
func WithCallTimeout(d time.Duration) CallOption {
	return func(cfg *CallConfig) {
		cfg.Timeout = d
	}
}

// Request is a single-use builder binding a target to scheduling, caching
// and parsing policy. Build it with Orchestrator.Request and finish it with
// one terminal verb.
type Request struct {
	target  string
	mode    Mode
	policy  *CachePolicy
	durable bool
	parse   ParseFunc

	caller *Caller
	queue  *Queue
	cache  *Cache
	logger Logger
}

// High schedules the call with high priority.
func (r *Request) High() *Request {
	r.mode = ModeHigh
	return r
}

// Now sends the call immediately, bypassing the queue.
func (r *Request) Now() *Request {
	r.mode = ModeNow
	return r
}

// Cache attaches a cache policy.
func (r *Request) Cache(policy CachePolicy) *Request {
	policy.TTL = ttlOrDefault(policy.TTL, DefaultRequestTTL)
	r.policy = &policy
	return r
}

// Storage also writes the cached result to the durable tier.
func (r *Request) Storage() *Request {
	r.durable = true
	return r
}

// JSON decodes the response as JSON regardless of the OnParse hook.
func (r *Request) JSON() *Request {
	r.parse = ParseJSON
	return r
}

// Text returns the response body as a string regardless of the OnParse hook.
func (r *Request) Text() *Request {
	r.parse = ParseText
	return r
}

// SetCaller sends this request through caller.
func (r *Request) SetCaller(caller *Caller) *Request {
	if caller != nil {
		r.caller = caller
	}
	return r
}

// Mode returns the scheduling mode.
func (r *Request) Mode() Mode {
	return r.mode
}

// Queuer returns the queue this request is scheduled on.
func (r *Request) Queuer() *Queue {
	return r.queue
}

// Cacher returns the cache this request reads and invalidates.
func (r *Request) Cacher() *Cache {
	return r.cache
}

// Caller returns the transport this request is sent through.
func (r *Request) Caller() *Caller {
	return r.caller
}

// Get fetches the target. Without a cache policy transport errors are
// returned. With one, the result is served from and stored in the cache, and
// a failed or empty fetch yields (nil, nil).
func (r *Request) Get(ctx context.Context, opts ...CallOption) (any, error) {
	cfg := r.config(http.MethodGet, nil, opts)

	generate := func(ctx context.Context) (any, error) {
		r.invalidateDeps(ctx)
		return r.send(ctx, cfg)
	}

	if r.policy == nil {
		return generate(ctx)
	}

	data, ok := r.cache.Get(ctx, GetOptions{
		Key:       r.target,
		Generator: generate,
		Tags:      r.policy.Tags,
		TTL:       r.policy.TTL,
		Durable:   r.durable,
	})
	if !ok {
		return nil, nil
	}
	return data, nil
}

// Post sends body to the target.
func (r *Request) Post(ctx context.Context, body any, opts ...CallOption) (any, error) {
	return r.mutate(ctx, http.MethodPost, body, opts)
}

// Put sends body to the target.
func (r *Request) Put(ctx context.Context, body any, opts ...CallOption) (any, error) {
	return r.mutate(ctx, http.MethodPut, body, opts)
}

// Patch sends body to the target.
func (r *Request) Patch(ctx context.Context, body any, opts ...CallOption) (any, error) {
	return r.mutate(ctx, http.MethodPatch, body, opts)
}

// Delete deletes the target.
func (r *Request) Delete(ctx context.Context, opts ...CallOption) (any, error) {
	return r.mutate(ctx, http.MethodDelete, nil, opts)
}

func (r *Request) mutate(ctx context.Context, method string, body any, opts []CallOption) (any, error) {
	r.invalidateDeps(ctx)
	return r.send(ctx, r.config(method, body, opts))
}

func (r *Request) config(method string, body any, opts []CallOption) CallConfig {
	cfg := CallConfig{Method: method, Body: body}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// send calls the transport directly in ModeNow, otherwise through the queue.
func (r *Request) send(ctx context.Context, cfg CallConfig) (any, error) {
	call := func(ctx context.Context) (any, error) {
		return r.caller.Call(ctx, r.target, cfg, r.parse)
	}

	if r.mode == ModeNow {
		return call(ctx)
	}
	return Wait(ctx, r.queue, call, r.mode == ModeHigh)
}

// invalidateDeps clears the dependency tags without waiting for the sweep.
func (r *Request) invalidateDeps(ctx context.Context) {
	if r.policy == nil || len(r.policy.Deps) == 0 {
		return
	}

	deps := r.policy.Deps
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := r.cache.ClearByTags(ctx, deps); err != nil {
			r.logger.Warn("Failed to invalidate dependency tags", "tags", deps, "error", err)
		}
	}()
}
