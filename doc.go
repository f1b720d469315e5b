// Package antrian provides client-side request orchestration built from three
// composable primitives:
//
//   - Queue: a priority-aware job scheduler with a hard concurrency ceiling and
//     an optional per-second start budget
//   - Cache: a TTL + tag indexed memoization layer over a volatile tier and an
//     optional durable tier (badger)
//   - Orchestrator: a fluent per-request builder that routes transport calls
//     through the Queue and Cache according to per-request policy
//
// The transport itself is a Caller wrapping net/http with global hooks
// (BeforeCall, OnParse, BeforeReturn, OnError), middleware, optional retries,
// circuit breaking, tracing and Prometheus metrics.
//
// Typical usage:
//
//	orc := antrian.New(
//	    antrian.WithMaxProcessing(4),
//	    antrian.WithLogger(antrian.NewSimpleLogger()),
//	)
//	todo, err := orc.Request("https://api.example.com/todos/1").
//	    Cache(antrian.CachePolicy{Tags: []string{"todos"}, TTL: antrian.TTL1Min}).
//	    Get(ctx)
//
//	// A mutation invalidates every entry tagged "todos" before it is sent.
//	_, err = orc.Request("https://api.example.com/todos").
//	    Cache(antrian.CachePolicy{Deps: []string{"todos"}}).
//	    High().
//	    Post(ctx, newTodo)
//
// Error visibility is asymmetric: a Get without a cache policy
// returns transport errors to the caller, while a Get with a cache policy
// degrades a failed fetch to a nil result because Cache.Get swallows
// generator errors. Cache.Get also performs no in-flight deduplication unless
// WithSingleFlight is configured, so concurrent misses on one key each call
// the origin.
package antrian
