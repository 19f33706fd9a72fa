package orchestrator

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/state-hub/state-hub/internal/application/interpreter"
	"github.com/state-hub/state-hub/internal/domain/journal"
	"github.com/state-hub/state-hub/internal/domain/machine"
)

// Machine is what the orchestrator drives. *interpreter.Interpreter satisfies
// it; the orchestrator guarantees all calls for one machine happen on one lane
// goroutine.
type Machine interface {
	ID() string
	Start(ctx context.Context) (machine.Configuration, []machine.DeferredSend, error)
	ProcessEvent(ctx context.Context, event machine.Event) (machine.Configuration, []machine.DeferredSend, error)
	Stop()
}

var _ Machine = (*interpreter.Interpreter)(nil)

// Recorder receives one journal record per handled event. Implementations
// must not block; lanes call this on the hot path.
type Recorder interface {
	Record(rec *journal.Record)
}

// registration pairs a machine with the state the orchestrator tracks about
// it. running and lastConfig are read from HTTP handlers and flush paths, so
// they sit behind their own lock; the machine itself is only ever touched by
// its lane.
type registration struct {
	m Machine

	mu         sync.RWMutex
	running    bool
	lastConfig []string
}

func (r *registration) update(running bool, cfg machine.Configuration) {
	leaves := cfg.Leaves()
	r.mu.Lock()
	r.running = running
	r.lastConfig = leaves
	r.mu.Unlock()
}

func (r *registration) view() (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running, r.lastConfig
}

// MachineStatus is the externally visible state of one registered machine.
type MachineStatus struct {
	MachineID     string   `json:"machineId"`
	Running       bool     `json:"running"`
	Lane          int      `json:"lane"`
	Configuration []string `json:"configuration"`
}

// Orchestrator routes events to machines over a fixed pool of lanes. Each
// machine id hashes to exactly one lane, which gives per-machine FIFO order
// and single-goroutine ownership without any locking inside the interpreter.
type Orchestrator struct {
	opts     Options
	logger   zerolog.Logger
	counters counters
	breakers *breakerSet
	recorder Recorder
	reporter *interpreter.LogReporter

	lanes     []*lane
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	mu       sync.RWMutex
	machines map[string]*registration
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithRecorder attaches a journal recorder.
func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) { o.recorder = rec }
}

// New creates an orchestrator and starts its lane goroutines.
func New(opts Options, logger zerolog.Logger, extra ...Option) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		opts:     opts,
		logger:   logger.With().Str("service", "orchestrator").Logger(),
		breakers: newBreakerSet(opts.FailureThreshold, opts.BreakerCooldown),
		done:     make(chan struct{}),
		machines: make(map[string]*registration),
	}
	o.reporter = interpreter.NewLogReporter(logger)
	for _, opt := range extra {
		opt(o)
	}

	o.lanes = make([]*lane, opts.Lanes)
	for i := range o.lanes {
		ln := &lane{
			idx:    i,
			queue:  make(chan envelope, opts.MaxQueueDepth),
			orch:   o,
			logger: o.logger.With().Int("lane", i).Logger(),
		}
		o.lanes[i] = ln
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			ln.run(o.done)
		}()
	}
	return o
}

// Register adds a machine. It does not start it; use StartMachine.
func (o *Orchestrator) Register(m Machine) error {
	if o.closed.Load() {
		return ErrClosed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.machines[m.ID()]; ok {
		return ErrAlreadyRegistered
	}
	o.machines[m.ID()] = &registration{m: m}
	o.logger.Info().Str("machine_id", m.ID()).Int("lane", o.laneIndex(m.ID())).Msg("machine registered")
	return nil
}

// Unregister stops the machine on its lane and removes it. Its breaker state
// is forgotten with it.
func (o *Orchestrator) Unregister(ctx context.Context, id string) error {
	if err := o.StopMachine(ctx, id); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.machines, id)
	o.mu.Unlock()
	o.breakers.remove(id)
	o.logger.Info().Str("machine_id", id).Msg("machine unregistered")
	return nil
}

// StartMachine enters the machine's initial configuration. The call is routed
// through the machine's lane so it serializes with in-flight events.
func (o *Orchestrator) StartMachine(ctx context.Context, id string) (machine.Configuration, error) {
	return o.control(ctx, id, kindStart)
}

// StopMachine halts the machine, running exit actions bottom-up. Idempotent.
func (o *Orchestrator) StopMachine(ctx context.Context, id string) error {
	_, err := o.control(ctx, id, kindStop)
	return err
}

func (o *Orchestrator) control(ctx context.Context, id string, kind envelopeKind) (machine.Configuration, error) {
	env := envelope{kind: kind, target: id, result: make(chan result, 1)}
	if err := o.submit(ctx, env, true); err != nil {
		return machine.NewConfiguration(), err
	}
	return o.await(ctx, env, 0)
}

// SendEvent delivers one event and waits for the resulting configuration. A
// missing CorrelationID is filled with a fresh uuid. The wait is bounded by
// timeout, or RequestTimeout when timeout is zero; on ErrTimeout the event may
// still be processed afterwards.
func (o *Orchestrator) SendEvent(ctx context.Context, machineID string, event machine.Event, timeout time.Duration) (machine.Configuration, error) {
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}
	env := envelope{kind: kindEvent, target: machineID, event: event, result: make(chan result, 1)}
	if err := o.submit(ctx, env, false); err != nil {
		return machine.NewConfiguration(), err
	}
	return o.await(ctx, env, timeout)
}

// SendEventFireAndForget enqueues without waiting for the outcome. Processing
// failures surface only in logs, metrics and the journal.
func (o *Orchestrator) SendEventFireAndForget(ctx context.Context, machineID string, event machine.Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}
	env := envelope{kind: kindEvent, target: machineID, event: event}
	return o.submit(ctx, env, false)
}

func (o *Orchestrator) await(ctx context.Context, env envelope, timeout time.Duration) (machine.Configuration, error) {
	if timeout <= 0 {
		timeout = o.opts.RequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-env.result:
		return res.cfg, res.err
	case <-timer.C:
		o.counters.timeouts.Add(1)
		return machine.NewConfiguration(), ErrTimeout
	case <-ctx.Done():
		return machine.NewConfiguration(), ctx.Err()
	}
}

// submit enqueues onto the target's lane. Control envelopes bypass the
// breaker and always block: start and stop must not be shed by backpressure.
func (o *Orchestrator) submit(ctx context.Context, env envelope, control bool) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if o.lookup(env.target) == nil {
		return ErrMachineNotFound
	}
	probe := false
	if !control {
		var err error
		if probe, err = o.breakers.allow(env.target); err != nil {
			return err
		}
	}

	ln := o.lanes[o.laneIndex(env.target)]
	if control || o.opts.Policy == PolicyBlock {
		select {
		case ln.queue <- env:
			return nil
		case <-ctx.Done():
			if probe {
				o.breakers.releaseProbe(env.target)
			}
			return ctx.Err()
		case <-o.done:
			if probe {
				o.breakers.releaseProbe(env.target)
			}
			return ErrClosed
		}
	}

	select {
	case ln.queue <- env:
		return nil
	default:
	}
	// The envelope never reached a lane; a probe admission must not be left
	// holding the half-open slot.
	if probe {
		o.breakers.releaseProbe(env.target)
	}
	if o.opts.Policy == PolicyReject {
		o.counters.rejected.Add(1)
		return ErrQueueFull
	}
	// DROP_NEWEST: counted, silent for fire-and-forget. A synchronous caller
	// still gets the error so it does not sit out the request timeout.
	o.counters.dropped.Add(1)
	if env.result != nil {
		return ErrQueueFull
	}
	return nil
}

// flushDeferred enqueues the sends recorded during one processing pass, in
// recording order. This runs on a lane goroutine, so it must never block: a
// full target queue drops the send regardless of policy. Sends whose origin
// has stopped (a fatal error mid-pass) are discarded.
func (o *Orchestrator) flushDeferred(sends []machine.DeferredSend) {
	for _, ds := range sends {
		if origin := o.lookup(ds.OriginMachineID); origin != nil {
			if running, _ := origin.view(); !running {
				o.counters.deferredDropped.Add(1)
				continue
			}
		}
		target := o.lookup(ds.TargetMachineID)
		if target == nil {
			o.counters.deferredDropped.Add(1)
			o.logger.Warn().
				Str("origin", ds.OriginMachineID).
				Str("target", ds.TargetMachineID).
				Str("event", ds.Event.Name).
				Msg("deferred send to unknown machine dropped")
			continue
		}
		probe, err := o.breakers.allow(ds.TargetMachineID)
		if err != nil {
			o.counters.deferredDropped.Add(1)
			continue
		}
		env := envelope{kind: kindEvent, target: ds.TargetMachineID, event: ds.Event}
		select {
		case o.lanes[o.laneIndex(ds.TargetMachineID)].queue <- env:
			o.counters.deferredFlushed.Add(1)
		default:
			if probe {
				o.breakers.releaseProbe(ds.TargetMachineID)
			}
			o.counters.deferredDropped.Add(1)
			o.logger.Warn().
				Str("origin", ds.OriginMachineID).
				Str("target", ds.TargetMachineID).
				Str("event", ds.Event.Name).
				Msg("deferred send dropped; target lane full")
		}
	}
}

// Deliver implements interpreter.EventSink for after-timers and invoked
// services. It never blocks; a saturated lane drops the event.
func (o *Orchestrator) Deliver(targetMachineID string, event machine.Event) {
	if o.closed.Load() {
		return
	}
	if o.lookup(targetMachineID) == nil {
		o.counters.dropped.Add(1)
		return
	}
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.NewString()
	}
	env := envelope{kind: kindEvent, target: targetMachineID, event: event}
	select {
	case o.lanes[o.laneIndex(targetMachineID)].queue <- env:
	default:
		o.counters.dropped.Add(1)
		o.logger.Warn().
			Str("machine_id", targetMachineID).
			Str("event", event.Name).
			Msg("internal delivery dropped; lane full")
	}
}

// ReportGuardError implements interpreter.Reporter.
func (o *Orchestrator) ReportGuardError(err *machine.GuardEvaluationError) {
	o.counters.guardErrors.Add(1)
	o.lanes[o.laneIndex(err.MachineID)].errorMark = true
	o.reporter.ReportGuardError(err)
}

// ReportActionError implements interpreter.Reporter.
func (o *Orchestrator) ReportActionError(err *machine.ActionExecutionError) {
	o.counters.actionErrors.Add(1)
	o.lanes[o.laneIndex(err.MachineID)].errorMark = true
	o.reporter.ReportActionError(err)
}

// ReportIgnoredEvent implements interpreter.Reporter. Called on the owning
// lane goroutine while ProcessEvent runs, which is what makes the mark safe.
func (o *Orchestrator) ReportIgnoredEvent(machineID, eventName string) {
	o.counters.ignored.Add(1)
	o.lanes[o.laneIndex(machineID)].ignoredMark = true
	o.reporter.ReportIgnoredEvent(machineID, eventName)
}

var (
	_ interpreter.EventSink = (*Orchestrator)(nil)
	_ interpreter.Reporter  = (*Orchestrator)(nil)
)

// MachineStatus reports the last known state of one machine.
func (o *Orchestrator) MachineStatus(id string) (MachineStatus, error) {
	reg := o.lookup(id)
	if reg == nil {
		return MachineStatus{}, ErrMachineNotFound
	}
	running, cfg := reg.view()
	return MachineStatus{
		MachineID:     id,
		Running:       running,
		Lane:          o.laneIndex(id),
		Configuration: cfg,
	}, nil
}

// ListMachines returns the status of every registered machine.
func (o *Orchestrator) ListMachines() []MachineStatus {
	o.mu.RLock()
	ids := make([]string, 0, len(o.machines))
	for id := range o.machines {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	out := make([]MachineStatus, 0, len(ids))
	for _, id := range ids {
		if st, err := o.MachineStatus(id); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// GetMetrics snapshots the counters plus live lane depths and breaker states.
func (o *Orchestrator) GetMetrics() MetricsSnapshot {
	snap := o.counters.snapshot()
	snap.LaneDepths = o.laneDepths()
	snap.LaneCapacity = o.opts.MaxQueueDepth
	snap.OpenBreakers = o.breakers.states()
	o.mu.RLock()
	snap.Machines = len(o.machines)
	o.mu.RUnlock()
	return snap
}

// GetHealthStatus derives health from lane saturation and open breakers.
func (o *Orchestrator) GetHealthStatus() HealthStatus {
	return computeHealth(o.laneDepths(), o.opts.MaxQueueDepth, o.breakers.states(), o.closed.Load())
}

func (o *Orchestrator) laneDepths() []int {
	depths := make([]int, len(o.lanes))
	for i, ln := range o.lanes {
		depths[i] = len(ln.queue)
	}
	return depths
}

// Close rejects new work, stops the lanes and halts every machine. Queued
// envelopes are failed with ErrClosed, not processed.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.done)
		o.wg.Wait()
		// Lanes are quiesced; stopping machines inline is now safe.
		o.mu.Lock()
		for _, reg := range o.machines {
			reg.m.Stop()
			reg.update(false, machine.NewConfiguration())
		}
		o.mu.Unlock()
		o.logger.Info().Msg("orchestrator closed")
	})
}

func (o *Orchestrator) lookup(id string) *registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.machines[id]
}

func (o *Orchestrator) laneIndex(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(o.lanes)))
}
