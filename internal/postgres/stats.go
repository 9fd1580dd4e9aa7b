package postgres

import (
	"context"
	"sync"
	"time"
)

type statsKey struct{}

// QueryStats accumulates database query statistics for one unit of work:
// an API request or a batch run.
type QueryStats struct {
	mu       sync.Mutex
	count    int
	errors   int
	duration time.Duration
}

// Add records a single query execution.
func (s *QueryStats) Add(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.duration += dur
	if err != nil {
		s.errors++
	}
}

// Snapshot returns the query count, error count and summed duration.
func (s *QueryStats) Snapshot() (count, failed int, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.errors, s.duration
}

// WithQueryStats returns ctx carrying a fresh QueryStats.
func WithQueryStats(ctx context.Context) (context.Context, *QueryStats) {
	s := &QueryStats{}
	return context.WithValue(ctx, statsKey{}, s), s
}

// QueryStatsFromContext extracts the QueryStats from ctx, if present.
func QueryStatsFromContext(ctx context.Context) (*QueryStats, bool) {
	s, ok := ctx.Value(statsKey{}).(*QueryStats)
	return s, ok
}
