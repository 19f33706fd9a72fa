package orchestrator

import "sync/atomic"

// counters are the hot-path metrics. Lanes and senders bump them lock-free.
type counters struct {
	processed       atomic.Uint64
	ignored         atomic.Uint64
	failed          atomic.Uint64
	guardErrors     atomic.Uint64
	actionErrors    atomic.Uint64
	rejected        atomic.Uint64
	dropped         atomic.Uint64
	deferredFlushed atomic.Uint64
	deferredDropped atomic.Uint64
	timeouts        atomic.Uint64
	breakerOpens    atomic.Uint64
}

// MetricsSnapshot is a point-in-time view of orchestrator activity.
type MetricsSnapshot struct {
	Processed       uint64 `json:"processed"`
	Ignored         uint64 `json:"ignored"`
	Failed          uint64 `json:"failed"`
	GuardErrors     uint64 `json:"guardErrors"`
	ActionErrors    uint64 `json:"actionErrors"`
	Rejected        uint64 `json:"rejected"`
	Dropped         uint64 `json:"dropped"`
	DeferredFlushed uint64 `json:"deferredFlushed"`
	DeferredDropped uint64 `json:"deferredDropped"`
	Timeouts        uint64 `json:"timeouts"`
	BreakerOpens    uint64 `json:"breakerOpens"`

	Machines      int                     `json:"machines"`
	LaneDepths    []int                   `json:"laneDepths"`
	LaneCapacity  int                     `json:"laneCapacity"`
	OpenBreakers  map[string]BreakerState `json:"openBreakers"`
}

func (c *counters) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Processed:       c.processed.Load(),
		Ignored:         c.ignored.Load(),
		Failed:          c.failed.Load(),
		GuardErrors:     c.guardErrors.Load(),
		ActionErrors:    c.actionErrors.Load(),
		Rejected:        c.rejected.Load(),
		Dropped:         c.dropped.Load(),
		DeferredFlushed: c.deferredFlushed.Load(),
		DeferredDropped: c.deferredDropped.Load(),
		Timeouts:        c.timeouts.Load(),
		BreakerOpens:    c.breakerOpens.Load(),
	}
}
