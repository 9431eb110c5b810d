package threatintel

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// budget is a non-blocking per-provider request allowance. External quotas
// are per-minute, so the limiter refills at rpm/60 with a small burst.
type budget struct {
	limiter  *rate.Limiter
	rejected atomic.Uint64
}

func newBudget(rpm int) *budget {
	if rpm <= 0 {
		rpm = 60
	}
	return &budget{
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 5),
	}
}

// allow consumes one token if available. It never waits: a miss that also
// fails the budget must not stall the pipeline.
func (b *budget) allow() bool {
	if b.limiter.Allow() {
		return true
	}
	b.rejected.Add(1)
	return false
}

func (b *budget) rejectedCount() uint64 {
	return b.rejected.Load()
}
