package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/state-hub/state-hub/internal/domain/journal"
	"github.com/state-hub/state-hub/internal/domain/machine"
)

type envelopeKind int

const (
	kindEvent envelopeKind = iota
	kindStart
	kindStop
)

// envelope is one unit of lane work. result is buffered with capacity 1 so
// the lane never blocks on a caller that gave up; nil means fire-and-forget.
type envelope struct {
	kind   envelopeKind
	target string
	event  machine.Event
	result chan result
}

type result struct {
	cfg machine.Configuration
	err error
}

// lane owns a bounded queue and every machine hashed onto it. All interpreter
// calls for those machines happen on the lane goroutine, which is what lets
// the interpreter run lock-free.
type lane struct {
	idx    int
	queue  chan envelope
	orch   *Orchestrator
	logger zerolog.Logger

	// depth asserts the single-owner invariant; it must never exceed 1.
	depth atomic.Int32

	// ignoredMark and errorMark are set by the reporter while ProcessEvent
	// runs on this goroutine. Lane-confined, no synchronization.
	ignoredMark bool
	errorMark   bool
}

func (l *lane) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			l.drain()
			return
		case env := <-l.queue:
			l.handle(env)
		}
	}
}

// drain fails whatever is still queued at shutdown so synchronous callers are
// released instead of waiting out their timeout.
func (l *lane) drain() {
	for {
		select {
		case env := <-l.queue:
			l.respond(env, machine.NewConfiguration(), ErrClosed)
		default:
			return
		}
	}
}

func (l *lane) handle(env envelope) {
	if d := l.depth.Add(1); d != 1 {
		l.logger.Error().Int32("depth", d).Msg("lane processed concurrently; single-owner invariant violated")
	}
	defer l.depth.Add(-1)

	reg := l.orch.lookup(env.target)
	if reg == nil {
		l.respond(env, machine.NewConfiguration(), ErrMachineNotFound)
		return
	}

	switch env.kind {
	case kindStart:
		l.handleStart(env, reg)
	case kindStop:
		l.handleStop(env, reg)
	default:
		l.handleEvent(env, reg)
	}
}

func (l *lane) handleStart(env envelope, reg *registration) {
	cfg, sends, err := reg.m.Start(context.Background())
	reg.update(err == nil, cfg)
	if err != nil {
		l.logger.Error().Err(err).Str("machine_id", env.target).Msg("machine failed to start")
	}
	l.orch.flushDeferred(sends)
	l.respond(env, cfg, err)
}

func (l *lane) handleStop(env envelope, reg *registration) {
	reg.m.Stop()
	reg.update(false, machine.NewConfiguration())
	l.respond(env, machine.NewConfiguration(), nil)
}

func (l *lane) handleEvent(env envelope, reg *registration) {
	if running, _ := reg.view(); !running {
		l.orch.counters.failed.Add(1)
		l.recordBreakerFailure(env.target)
		l.recordJournal(env, nil, 0, journal.OutcomeFailed, machine.ErrNotRunning, 0)
		l.respond(env, machine.NewConfiguration(), machine.ErrNotRunning)
		return
	}

	started := time.Now()
	l.ignoredMark = false
	l.errorMark = false
	cfg, sends, err := reg.m.ProcessEvent(context.Background(), env.event)
	elapsed := time.Since(started)

	outcome := journal.OutcomeProcessed
	if err != nil {
		// Fatal processing errors stop the machine; the interpreter has
		// already torn itself down.
		reg.update(false, cfg)
		l.orch.counters.failed.Add(1)
		l.recordBreakerFailure(env.target)
		outcome = journal.OutcomeFailed
	} else {
		reg.update(true, cfg)
		if l.errorMark {
			// Guard or action errors count toward the breaker even though
			// the event itself completed.
			l.recordBreakerFailure(env.target)
		} else {
			l.orch.breakers.recordSuccess(env.target)
		}
		l.orch.counters.processed.Add(1)
		if l.ignoredMark {
			outcome = journal.OutcomeIgnored
		}
	}

	l.orch.flushDeferred(sends)
	l.recordJournal(env, cfg.Leaves(), len(sends), outcome, err, elapsed)
	l.respond(env, cfg, err)
}

func (l *lane) recordBreakerFailure(target string) {
	if l.orch.breakers.recordFailure(target) {
		l.orch.counters.breakerOpens.Add(1)
		l.logger.Warn().Str("machine_id", target).Msg("circuit breaker opened")
	}
}

func (l *lane) recordJournal(env envelope, leaves []string, deferred int, outcome journal.Outcome, err error, elapsed time.Duration) {
	if l.orch.recorder == nil {
		return
	}
	rec := journal.NewRecord(env.target, env.event.Name)
	rec.CorrelationID = env.event.CorrelationID
	rec.Lane = l.idx
	rec.Outcome = outcome
	rec.Configuration = leaves
	rec.DeferredCount = deferred
	rec.DurationMs = elapsed.Milliseconds()
	if err != nil {
		rec.Error = err.Error()
	}
	l.orch.recorder.Record(rec)
}

func (l *lane) respond(env envelope, cfg machine.Configuration, err error) {
	if env.result == nil {
		if err != nil {
			l.logger.Debug().Err(err).
				Str("machine_id", env.target).
				Str("event", env.event.Name).
				Msg("fire-and-forget event failed")
		}
		return
	}
	env.result <- result{cfg: cfg, err: err}
}
