package dfvo

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Timer accumulates wall-clock duration per named pipeline stage
// (data_loading, kp_sel, E-tracker, scale_recovery, PnP, ...). Accumulate
// may be called from parallel RANSAC workers, so updates are mutex
// protected.
type Timer struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer {
	return &Timer{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Accumulate adds d to the running total for stage.
func (t *Timer) Accumulate(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals[stage] += d
	t.counts[stage]++
}

// Track times fn and accumulates its duration under stage.
func (t *Timer) Track(stage string, fn func()) {
	start := time.Now()
	fn()
	t.Accumulate(stage, time.Since(start))
}

// Report returns the accumulated totals and call counts per stage, in
// descending total-duration order.
func (t *Timer) Report() []StageStat {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make([]StageStat, 0, len(t.totals))
	for stage, total := range t.totals {
		stats = append(stats, StageStat{Stage: stage, Total: total, Calls: t.counts[stage]})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Total > stats[j].Total })
	return stats
}

// StageStat is one row of a timing report.
type StageStat struct {
	Stage string
	Total time.Duration
	Calls int
}

func (s StageStat) String() string {
	return fmt.Sprintf("%-16s %10s  (%d calls)", s.Stage, s.Total.Round(time.Microsecond), s.Calls)
}
