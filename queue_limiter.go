package antrian

import (
	"sync/atomic"
)

// startBudget counts job starts inside the current one-second window.
// A limit <= 0 disables it. The owning Queue resets the window on a ticker.
type startBudget struct {
	limit int64
	used  int64
}

func (b *startBudget) setLimit(n int) {
	if n < 0 {
		n = 0
	}
	atomic.StoreInt64(&b.limit, int64(n))
}

// take consumes one start from the window, reporting false when the window
// is exhausted.
func (b *startBudget) take() bool {
	for {
		limit := atomic.LoadInt64(&b.limit)
		if limit <= 0 {
			return true
		}

		used := atomic.LoadInt64(&b.used)
		if used >= limit {
			return false
		}

		if atomic.CompareAndSwapInt64(&b.used, used, used+1) {
			return true
		}
	}
}

func (b *startBudget) reset() {
	atomic.StoreInt64(&b.used, 0)
}

func (b *startBudget) usedInWindow() int64 {
	return atomic.LoadInt64(&b.used)
}
