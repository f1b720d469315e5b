package antrian

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultMaxProcessing is the concurrency ceiling of a queue built without
	// WithMaxProcessing.
	DefaultMaxProcessing = 4

	budgetWindow = time.Second
	throttleStep = 10 * time.Millisecond
)

// Job is a unit of work submitted to a Queue. Jobs are identified by
// reference; the scheduler only cares about their position.
type Job func(ctx context.Context) error

type pendingJob struct {
	ctx context.Context
	job Job
	// discarded runs when Clear drops the job before it starts.
	discarded func()
}

// Queue runs submitted jobs with at most maxProcessing of them in flight.
// Pending high priority jobs always start before pending low priority jobs;
// each class is FIFO. A running job is never preempted.
type Queue struct {
	name string

	mu            sync.Mutex
	high          []pendingJob
	low           []pendingJob
	processing    int
	maxProcessing int
	generation    uint64
	closed        bool

	budget    startBudget
	stop      chan struct{}
	closeOnce sync.Once

	logger  Logger
	metrics *MetricsCollector
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueMaxProcessing sets the concurrency ceiling (minimum 1).
func WithQueueMaxProcessing(n int) QueueOption {
	return func(q *Queue) {
		if n < 1 {
			n = 1
		}
		q.maxProcessing = n
	}
}

// WithQueueLimitPerSecond caps how many jobs may start per second.
func WithQueueLimitPerSecond(n int) QueueOption {
	return func(q *Queue) {
		q.budget.setLimit(n)
	}
}

// WithQueueLogger sets the queue logger.
func WithQueueLogger(l Logger) QueueOption {
	return func(q *Queue) {
		q.logger = orNop(l)
	}
}

// WithQueueMetrics sets the metrics collector.
func WithQueueMetrics(m *MetricsCollector) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates a queue and starts its one-second budget ticker. Call
// Close to stop the ticker when the queue is no longer needed.
func NewQueue(name string, opts ...QueueOption) *Queue {
	q := &Queue{
		name:          name,
		maxProcessing: DefaultMaxProcessing,
		stop:          make(chan struct{}),
		logger:        nopLogger{},
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.resetBudget()
	return q
}

func (q *Queue) resetBudget() {
	ticker := time.NewTicker(budgetWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.budget.reset()
		case <-q.stop:
			return
		}
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Add submits a job and returns immediately. High priority jobs go behind
// other pending high priority jobs but ahead of every pending low priority
// job. Errors returned by the job are logged and otherwise dropped.
func (q *Queue) Add(ctx context.Context, job Job, high bool) *Queue {
	q.submit(ctx, job, high, nil)
	return q
}

func (q *Queue) submit(ctx context.Context, job Job, high bool, discarded func()) bool {
	if job == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("Dropping job submitted to closed queue", "queue", q.name)
		return false
	}

	item := pendingJob{ctx: ctx, job: job, discarded: discarded}
	if high {
		q.high = append(q.high, item)
	} else {
		q.low = append(q.low, item)
	}

	q.dispatchLocked()
	return true
}

// Wait submits fn through Add and blocks until it settles, returning its
// value or error. If ctx ends first Wait returns ctx.Err(); the job itself
// is not cancelled and still occupies its slot until it returns. If Clear
// drops the job before it starts, Wait returns ErrJobDiscarded.
func Wait[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error), high bool) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	accepted := q.submit(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("antrian: job panicked: %v", r)
				done <- result{err: err}
			}
		}()

		val, err := fn(ctx)
		done <- result{val: val, err: err}
		return err
	}, high, func() {
		done <- result{err: ErrJobDiscarded}
	})
	if !accepted {
		return zero, ErrQueueClosed
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Clear discards every pending job and resets the processing count to zero.
// Running jobs are not cancelled; when they finish they no longer count
// against the ceiling. Callers blocked in Wait on a discarded job get
// ErrJobDiscarded.
func (q *Queue) Clear() *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.high) + len(q.low)
	for _, pending := range [][]pendingJob{q.high, q.low} {
		for _, item := range pending {
			if item.discarded != nil {
				item.discarded()
			}
		}
	}
	q.high = nil
	q.low = nil
	q.processing = 0
	q.generation++

	if dropped > 0 {
		q.logger.Info("Cleared pending jobs", "queue", q.name, "dropped", dropped)
	}
	q.metrics.RecordQueueDepth(q.name, 0, 0)
	return q
}

// SetLimitPerSecond caps how many jobs may start per second; n <= 0
// removes the cap.
func (q *Queue) SetLimitPerSecond(n int) *Queue {
	q.budget.setLimit(n)
	return q
}

// SetMaxProcessing changes the concurrency ceiling (minimum 1). Raising it
// starts pending jobs immediately.
func (q *Queue) SetMaxProcessing(n int) *Queue {
	if n < 1 {
		n = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.maxProcessing = n
	q.dispatchLocked()
	return q
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.low)
}

// Processing returns the number of jobs counted against the ceiling.
func (q *Queue) Processing() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// MaxProcessing returns the concurrency ceiling.
func (q *Queue) MaxProcessing() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxProcessing
}

// Close stops the budget ticker and rejects further submissions. Pending
// jobs still drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		close(q.stop)
		q.budget.setLimit(0)
	})
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// dispatchLocked starts jobs while there is both work and a free slot.
func (q *Queue) dispatchLocked() {
	for q.processing < q.maxProcessing {
		item, ok := q.popLocked()
		if !ok {
			break
		}

		q.processing++
		q.logger.Debug("Found job available, working on it",
			"queue", q.name,
			"availableSlots", q.maxProcessing-q.processing,
			"pending", len(q.high)+len(q.low))

		go q.run(item, q.generation)
	}

	q.metrics.RecordQueueDepth(q.name, len(q.high)+len(q.low), q.processing)
}

func (q *Queue) popLocked() (pendingJob, bool) {
	if len(q.high) > 0 {
		item := q.high[0]
		q.high[0] = pendingJob{}
		q.high = q.high[1:]
		return item, true
	}
	if len(q.low) > 0 {
		item := q.low[0]
		q.low[0] = pendingJob{}
		q.low = q.low[1:]
		return item, true
	}
	return pendingJob{}, false
}

func (q *Queue) run(item pendingJob, generation uint64) {
	q.awaitBudget()

	start := time.Now()
	err := q.execute(item)
	q.metrics.RecordJob(q.name, err, time.Since(start))
	if err != nil {
		q.logger.Warn("Failed on processing job", "queue", q.name, "error", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if generation == q.generation && q.processing > 0 {
		q.processing--
	}
	q.dispatchLocked()
}

// awaitBudget blocks a dequeued job in small steps until the current
// one-second window has room for it.
func (q *Queue) awaitBudget() {
	throttled := false
	for !q.budget.take() {
		if !throttled {
			throttled = true
			q.metrics.RecordThrottled(q.name)
			q.logger.Debug("Per-second budget exhausted, delaying job", "queue", q.name, "started", q.budget.usedInWindow())
		}
		time.Sleep(throttleStep)
	}
}

func (q *Queue) execute(item pendingJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("antrian: job panicked: %v", r)
		}
	}()
	return item.job(item.ctx)
}
