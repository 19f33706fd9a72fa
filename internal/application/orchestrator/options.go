package orchestrator

import "time"

// Policy selects the backpressure behavior applied when a lane queue is full.
type Policy string

const (
	// PolicyBlock blocks the sender until queue space frees up or its context
	// is cancelled. Only external senders block; deferred flushes never do.
	PolicyBlock Policy = "BLOCK"
	// PolicyDropNewest silently discards the new event and counts it.
	PolicyDropNewest Policy = "DROP_NEWEST"
	// PolicyReject fails the send immediately with ErrQueueFull.
	PolicyReject Policy = "REJECT"
)

const (
	DefaultLanes            = 4
	DefaultMaxQueueDepth    = 256
	DefaultFailureThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
)

// Options configures an Orchestrator. The zero value is usable; every field
// falls back to its default.
type Options struct {
	// Lanes is the number of worker goroutines. Each machine is pinned to one
	// lane by a hash of its id.
	Lanes int
	// MaxQueueDepth bounds each lane's queue.
	MaxQueueDepth int
	// Policy is applied when a lane queue is full.
	Policy Policy
	// FailureThreshold is the number of consecutive processing failures after
	// which a machine's circuit breaker opens.
	FailureThreshold int
	// BreakerCooldown is how long an open breaker waits before admitting a probe.
	BreakerCooldown time.Duration
	// RequestTimeout bounds SendEvent waits when the caller passes no timeout.
	RequestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Lanes <= 0 {
		o.Lanes = DefaultLanes
	}
	if o.MaxQueueDepth <= 0 {
		o.MaxQueueDepth = DefaultMaxQueueDepth
	}
	switch o.Policy {
	case PolicyBlock, PolicyDropNewest, PolicyReject:
	default:
		o.Policy = PolicyBlock
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = DefaultBreakerCooldown
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	return o
}
