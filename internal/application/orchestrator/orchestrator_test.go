package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/state-hub/state-hub/internal/application/interpreter"
	"github.com/state-hub/state-hub/internal/domain/journal"
	"github.com/state-hub/state-hub/internal/domain/machine"
)

// stubMachine is a controllable Machine for exercising routing, backpressure
// and failure paths without a real interpreter.
type stubMachine struct {
	id      string
	process func(event machine.Event) (machine.Configuration, []machine.DeferredSend, error)
	block   chan struct{} // when non-nil, ProcessEvent waits on it
	entered chan struct{} // when non-nil, signaled as ProcessEvent begins

	mu     sync.Mutex
	events []string

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (s *stubMachine) ID() string { return s.id }

func (s *stubMachine) Start(context.Context) (machine.Configuration, []machine.DeferredSend, error) {
	return machine.NewConfiguration(), nil, nil
}

func (s *stubMachine) ProcessEvent(_ context.Context, event machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
	if n := s.inflight.Add(1); n > s.maxInflight.Load() {
		s.maxInflight.Store(n)
	}
	defer s.inflight.Add(-1)

	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	s.events = append(s.events, event.Name)
	s.mu.Unlock()

	if s.process != nil {
		return s.process(event)
	}
	return machine.NewConfiguration(), nil, nil
}

func (s *stubMachine) Stop() {}

func (s *stubMachine) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func newTestOrchestrator(t *testing.T, opts Options, extra ...Option) *Orchestrator {
	t.Helper()
	o := New(opts, zerolog.Nop(), extra...)
	t.Cleanup(o.Close)
	return o
}

func registerAndStart(t *testing.T, o *Orchestrator, m Machine) {
	t.Helper()
	require.NoError(t, o.Register(m))
	_, err := o.StartMachine(context.Background(), m.ID())
	require.NoError(t, err)
}

func TestSendEvent_PerMachineFIFO(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, MaxQueueDepth: 128})
	m := &stubMachine{id: "order-1"}
	registerAndStart(t, o, m)

	ctx := context.Background()
	want := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("e%02d", i)
		want = append(want, name)
		require.NoError(t, o.SendEventFireAndForget(ctx, "order-1", machine.Event{Name: name}))
	}
	// Synchronous send fences the queue: it is ordered after everything above.
	_, err := o.SendEvent(ctx, "order-1", machine.Event{Name: "fence"}, 0)
	require.NoError(t, err)

	assert.Equal(t, append(want, "fence"), m.seen())
	assert.Equal(t, uint64(41), o.GetMetrics().Processed)
}

func TestProcessing_SingleOwner(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 4, MaxQueueDepth: 512})
	m := &stubMachine{id: "hot"}
	registerAndStart(t, o, m)

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = o.SendEventFireAndForget(ctx, "hot", machine.Event{Name: fmt.Sprintf("g%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()
	_, err := o.SendEvent(ctx, "hot", machine.Event{Name: "fence"}, 0)
	require.NoError(t, err)

	assert.Equal(t, int32(1), m.maxInflight.Load(), "events for one machine must never process concurrently")
	assert.Len(t, m.seen(), 201)
}

func TestBackpressure_Reject(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, MaxQueueDepth: 1, Policy: PolicyReject})
	m := &stubMachine{id: "slow", block: make(chan struct{}), entered: make(chan struct{}, 8)}
	registerAndStart(t, o, m)

	ctx := context.Background()
	// First event occupies the lane, second fills the queue.
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "busy"}))
	<-m.entered
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "queued"}))

	err := o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "overflow"})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), o.GetMetrics().Rejected)

	close(m.block)
}

func TestBackpressure_DropNewest(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, MaxQueueDepth: 1, Policy: PolicyDropNewest})
	m := &stubMachine{id: "slow", block: make(chan struct{}), entered: make(chan struct{}, 8)}
	registerAndStart(t, o, m)

	ctx := context.Background()
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "busy"}))
	<-m.entered
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "queued"}))

	// Fire-and-forget drops are silent; a synchronous caller is told.
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "dropped"}))
	_, err := o.SendEvent(ctx, "slow", machine.Event{Name: "dropped-sync"}, 0)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(2), o.GetMetrics().Dropped)

	close(m.block)
	_, err = o.SendEvent(ctx, "slow", machine.Event{Name: "fence"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"busy", "queued", "fence"}, m.seen())
}

func TestBackpressure_Block(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, MaxQueueDepth: 1, Policy: PolicyBlock})
	m := &stubMachine{id: "slow", block: make(chan struct{}), entered: make(chan struct{}, 8)}
	registerAndStart(t, o, m)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "busy"}))
	<-m.entered
	require.NoError(t, o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "queued"}))

	// Queue full: the blocking send is released by context cancellation.
	err := o.SendEventFireAndForget(ctx, "slow", machine.Event{Name: "blocked"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(m.block)
}

func TestCircuitBreaker(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, FailureThreshold: 2, BreakerCooldown: time.Hour})
	boom := errors.New("boom")
	failing := atomic.Bool{}
	failing.Store(true)
	m := &stubMachine{id: "flaky"}
	m.process = func(machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
		if failing.Load() {
			return machine.NewConfiguration(), nil, boom
		}
		return machine.NewConfiguration(), nil, nil
	}
	require.NoError(t, o.Register(m))
	ctx := context.Background()

	// Each fatal failure halts the machine; restart between attempts.
	for i := 0; i < 2; i++ {
		_, err := o.StartMachine(ctx, "flaky")
		require.NoError(t, err)
		_, err = o.SendEvent(ctx, "flaky", machine.Event{Name: "hit"}, 0)
		require.ErrorIs(t, err, boom)
	}

	t.Run("open breaker fails fast", func(t *testing.T) {
		_, err := o.StartMachine(ctx, "flaky")
		require.NoError(t, err)
		_, err = o.SendEvent(ctx, "flaky", machine.Event{Name: "hit"}, 0)
		require.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, uint64(1), o.GetMetrics().BreakerOpens)
		assert.Equal(t, BreakerOpen, o.GetMetrics().OpenBreakers["flaky"])
	})

	t.Run("half-open probe closes on success", func(t *testing.T) {
		failing.Store(false)
		o.breakers.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, err := o.SendEvent(ctx, "flaky", machine.Event{Name: "probe"}, 0)
		require.NoError(t, err)
		assert.Empty(t, o.GetMetrics().OpenBreakers)

		_, err = o.SendEvent(ctx, "flaky", machine.Event{Name: "steady"}, 0)
		require.NoError(t, err)
	})
}

func TestCircuitBreaker_StoppedTarget(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, FailureThreshold: 2, BreakerCooldown: time.Hour})
	m := &stubMachine{id: "halted"}
	require.NoError(t, o.Register(m))
	ctx := context.Background()

	// Deliveries to a machine that was never started are failures too.
	for i := 0; i < 2; i++ {
		_, err := o.SendEvent(ctx, "halted", machine.Event{Name: "hit"}, 0)
		require.ErrorIs(t, err, machine.ErrNotRunning)
	}

	_, err := o.SendEvent(ctx, "halted", machine.Event{Name: "hit"}, 0)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, uint64(1), o.GetMetrics().BreakerOpens)
	assert.Equal(t, BreakerOpen, o.GetMetrics().OpenBreakers["halted"])
}

func TestCircuitBreaker_GuardErrors(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, FailureThreshold: 2, BreakerCooldown: time.Hour})
	def, err := machine.NewDefinition("g", "a",
		&machine.StateNode{ID: "a", Kind: machine.KindAtomic, Transitions: []machine.Transition{{
			EventName: "GO",
			Guard: &machine.Guard{Name: "broken", Fn: func(machine.ReadContext, machine.Event) (bool, error) {
				return false, errors.New("bad lookup")
			}},
			Targets: []string{"b"},
		}}},
		&machine.StateNode{ID: "b", Kind: machine.KindAtomic},
	)
	require.NoError(t, err)
	inst := interpreter.New(def, "g", zerolog.Nop(), interpreter.WithSink(o), interpreter.WithReporter(o))
	registerAndStart(t, o, inst)
	ctx := context.Background()

	// Each event completes (ignored), but the reported guard error counts
	// toward the breaker.
	for i := 0; i < 2; i++ {
		_, err := o.SendEvent(ctx, "g", machine.Event{Name: "GO"}, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), o.GetMetrics().GuardErrors)

	_, err = o.SendEvent(ctx, "g", machine.Event{Name: "GO"}, 0)
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ProbeLostToFullQueue(t *testing.T) {
	o := newTestOrchestrator(t, Options{
		Lanes:            1,
		MaxQueueDepth:    1,
		Policy:           PolicyReject,
		FailureThreshold: 1,
		BreakerCooldown:  time.Minute,
	})
	ctx := context.Background()

	victim := &stubMachine{id: "victim"}
	require.NoError(t, o.Register(victim))
	_, err := o.SendEvent(ctx, "victim", machine.Event{Name: "hit"}, 0)
	require.ErrorIs(t, err, machine.ErrNotRunning)
	_, err = o.SendEvent(ctx, "victim", machine.Event{Name: "hit"}, 0)
	require.ErrorIs(t, err, ErrCircuitOpen)

	// Saturate the lane: one event in flight, one queued.
	blocker := &stubMachine{id: "blocker", block: make(chan struct{}), entered: make(chan struct{}, 4)}
	registerAndStart(t, o, blocker)
	require.NoError(t, o.SendEventFireAndForget(ctx, "blocker", machine.Event{Name: "busy"}))
	<-blocker.entered
	require.NoError(t, o.SendEventFireAndForget(ctx, "blocker", machine.Event{Name: "queued"}))

	o.breakers.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	// The admitted probe never reaches the lane; the admission must be handed
	// back so the next send is refused by the queue, not by a stuck half-open
	// slot.
	_, err = o.SendEvent(ctx, "victim", machine.Event{Name: "probe"}, 0)
	require.ErrorIs(t, err, ErrQueueFull)
	_, err = o.SendEvent(ctx, "victim", machine.Event{Name: "probe"}, 0)
	require.ErrorIs(t, err, ErrQueueFull)

	close(blocker.block)
	require.Eventually(t, func() bool {
		return len(blocker.seen()) == 2
	}, time.Second, 5*time.Millisecond)

	// With the lane free the probe goes through, fails, and reopens.
	_, err = o.SendEvent(ctx, "victim", machine.Event{Name: "probe"}, 0)
	require.ErrorIs(t, err, machine.ErrNotRunning)
	assert.Equal(t, BreakerOpen, o.GetMetrics().OpenBreakers["victim"])
}

func TestSendEvent_StoppedMachine(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1})
	m := &stubMachine{id: "idle"}
	require.NoError(t, o.Register(m))

	_, err := o.SendEvent(context.Background(), "idle", machine.Event{Name: "hit"}, 0)
	require.ErrorIs(t, err, machine.ErrNotRunning)
	assert.Equal(t, uint64(1), o.GetMetrics().Failed)
}

func TestDeferredSendFlush(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 2, MaxQueueDepth: 16})
	b := &stubMachine{id: "b"}
	a := &stubMachine{id: "a"}
	a.process = func(ev machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
		if ev.Name != "kick" {
			return machine.NewConfiguration(), nil, nil
		}
		return machine.NewConfiguration(), []machine.DeferredSend{
			{TargetMachineID: "b", Event: machine.Event{Name: "first"}, OriginMachineID: "a", Sequence: 1},
			{TargetMachineID: "b", Event: machine.Event{Name: "second"}, OriginMachineID: "a", Sequence: 2},
		}, nil
	}
	registerAndStart(t, o, a)
	registerAndStart(t, o, b)

	ctx := context.Background()
	_, err := o.SendEvent(ctx, "a", machine.Event{Name: "kick"}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(b.seen()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, b.seen())
	assert.Equal(t, uint64(2), o.GetMetrics().DeferredFlushed)
}

func TestDeferredSendFlush_OriginHalted(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 2, MaxQueueDepth: 16})
	b := &stubMachine{id: "b"}
	a := &stubMachine{id: "a"}
	a.process = func(machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
		// Recorded sends plus a fatal error: the machine halts and its
		// pending sends must not be delivered.
		return machine.NewConfiguration(), []machine.DeferredSend{
			{TargetMachineID: "b", Event: machine.Event{Name: "ghost"}, OriginMachineID: "a", Sequence: 1},
		}, &machine.ConfigurationError{MachineID: "a", Reason: "microstep limit exceeded"}
	}
	registerAndStart(t, o, a)
	registerAndStart(t, o, b)

	ctx := context.Background()
	_, err := o.SendEvent(ctx, "a", machine.Event{Name: "kick"}, 0)
	require.Error(t, err)

	_, err = o.SendEvent(ctx, "b", machine.Event{Name: "fence"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"fence"}, b.seen())
	assert.Equal(t, uint64(1), o.GetMetrics().DeferredDropped)
}

func TestDeferredSendFlush_UnknownTarget(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1})
	a := &stubMachine{id: "a"}
	a.process = func(machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
		return machine.NewConfiguration(), []machine.DeferredSend{
			{TargetMachineID: "nobody", Event: machine.Event{Name: "hello"}, OriginMachineID: "a", Sequence: 1},
		}, nil
	}
	registerAndStart(t, o, a)

	_, err := o.SendEvent(context.Background(), "a", machine.Event{Name: "kick"}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), o.GetMetrics().DeferredDropped)
}

func TestSendEvent_Timeout(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 1, RequestTimeout: 50 * time.Millisecond})
	m := &stubMachine{id: "stuck", block: make(chan struct{}), entered: make(chan struct{}, 4)}
	registerAndStart(t, o, m)

	start := time.Now()
	_, err := o.SendEvent(context.Background(), "stuck", machine.Event{Name: "hit"}, 0)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), o.GetMetrics().Timeouts)

	close(m.block)
}

func TestLifecycle(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 2})
	ctx := context.Background()
	m := &stubMachine{id: "m1"}

	require.NoError(t, o.Register(m))
	require.ErrorIs(t, o.Register(&stubMachine{id: "m1"}), ErrAlreadyRegistered)

	_, err := o.SendEvent(ctx, "ghost", machine.Event{Name: "x"}, 0)
	require.ErrorIs(t, err, ErrMachineNotFound)

	cfg, err := o.StartMachine(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Len())

	st, err := o.MachineStatus("m1")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, "m1", st.MachineID)
	assert.Len(t, o.ListMachines(), 1)

	require.NoError(t, o.StopMachine(ctx, "m1"))
	st, err = o.MachineStatus("m1")
	require.NoError(t, err)
	assert.False(t, st.Running)

	require.NoError(t, o.Unregister(ctx, "m1"))
	_, err = o.MachineStatus("m1")
	require.ErrorIs(t, err, ErrMachineNotFound)
}

func TestClose(t *testing.T) {
	o := New(Options{Lanes: 1}, zerolog.Nop())
	m := &stubMachine{id: "m1"}
	require.NoError(t, o.Register(m))
	o.Close()
	o.Close() // idempotent

	require.ErrorIs(t, o.Register(&stubMachine{id: "m2"}), ErrClosed)
	_, err := o.SendEvent(context.Background(), "m1", machine.Event{Name: "x"}, 0)
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, HealthUnhealthy, o.GetHealthStatus().Level)
}

type captureRecorder struct {
	mu   sync.Mutex
	recs []*journal.Record
}

func (c *captureRecorder) Record(rec *journal.Record) {
	c.mu.Lock()
	c.recs = append(c.recs, rec)
	c.mu.Unlock()
}

func (c *captureRecorder) outcomes() []journal.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]journal.Outcome, len(c.recs))
	for i, r := range c.recs {
		out[i] = r.Outcome
	}
	return out
}

func TestJournalRecording(t *testing.T) {
	rec := &captureRecorder{}
	o := newTestOrchestrator(t, Options{Lanes: 1}, WithRecorder(rec))

	boom := errors.New("boom")
	m := &stubMachine{id: "m1"}
	m.process = func(ev machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
		if ev.Name == "explode" {
			return machine.NewConfiguration(), nil, boom
		}
		return machine.NewConfiguration(), nil, nil
	}
	registerAndStart(t, o, m)
	ctx := context.Background()

	_, err := o.SendEvent(ctx, "m1", machine.Event{Name: "ok", CorrelationID: "corr-1"}, 0)
	require.NoError(t, err)
	_, err = o.SendEvent(ctx, "m1", machine.Event{Name: "explode"}, 0)
	require.ErrorIs(t, err, boom)

	require.Equal(t, []journal.Outcome{journal.OutcomeProcessed, journal.OutcomeFailed}, rec.outcomes())
	first := rec.recs[0]
	assert.Equal(t, "m1", first.MachineID)
	assert.Equal(t, "ok", first.EventName)
	assert.Equal(t, "corr-1", first.CorrelationID)
	assert.NotEqual(t, "", first.RecordID.String())
	assert.Equal(t, "boom", rec.recs[1].Error)
}

func TestComputeHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		st := computeHealth([]int{0, 1}, 100, nil, false)
		assert.Equal(t, HealthHealthy, st.Level)
		assert.Empty(t, st.Issues)
	})
	t.Run("degraded on saturated lane", func(t *testing.T) {
		st := computeHealth([]int{90, 0}, 100, nil, false)
		assert.Equal(t, HealthDegraded, st.Level)
		assert.Len(t, st.Issues, 1)
	})
	t.Run("degraded on open breaker", func(t *testing.T) {
		st := computeHealth([]int{0}, 100, map[string]BreakerState{"m1": BreakerOpen}, false)
		assert.Equal(t, HealthDegraded, st.Level)
	})
	t.Run("unhealthy when every lane saturated", func(t *testing.T) {
		st := computeHealth([]int{95, 100}, 100, nil, false)
		assert.Equal(t, HealthUnhealthy, st.Level)
	})
}

// TestMachineExchange runs two real interpreters through the orchestrator: an
// order machine asks a worker machine for processing and settles when the
// worker answers back.
func TestMachineExchange(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 2, MaxQueueDepth: 32})
	logger := zerolog.Nop()

	orderDef, err := machine.NewDefinition("order", "pending",
		&machine.StateNode{ID: "pending", Kind: machine.KindAtomic, Transitions: []machine.Transition{
			{EventName: "PLACE", Targets: []string{"waiting"}},
		}},
		&machine.StateNode{ID: "waiting", Kind: machine.KindAtomic,
			EntryActions: []machine.Action{{Name: "requestWork", Fn: func(ac machine.ActionContext, _ machine.Event) error {
				ac.Send("worker", machine.Event{Name: "WORK", Payload: map[string]any{"order": ac.MachineID()}})
				return nil
			}}},
			Transitions: []machine.Transition{
				{EventName: "DONE", Targets: []string{"fulfilled"}},
			}},
		&machine.StateNode{ID: "fulfilled", Kind: machine.KindFinal},
	)
	require.NoError(t, err)

	workerDef, err := machine.NewDefinition("worker", "idle",
		&machine.StateNode{ID: "idle", Kind: machine.KindAtomic, Transitions: []machine.Transition{
			{EventName: "WORK", Targets: []string{"busy"}},
		}},
		&machine.StateNode{ID: "busy", Kind: machine.KindAtomic,
			EntryActions: []machine.Action{{Name: "reply", Fn: func(ac machine.ActionContext, _ machine.Event) error {
				ac.Send("order", machine.Event{Name: "DONE"})
				return nil
			}}},
			Transitions: []machine.Transition{
				{EventName: "", Targets: []string{"idle"}},
			}},
	)
	require.NoError(t, err)

	order := interpreter.New(orderDef, "order", logger, interpreter.WithSink(o), interpreter.WithReporter(o))
	worker := interpreter.New(workerDef, "worker", logger, interpreter.WithSink(o), interpreter.WithReporter(o))
	registerAndStart(t, o, order)
	registerAndStart(t, o, worker)

	_, err = o.SendEvent(context.Background(), "order", machine.Event{Name: "PLACE"}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := o.MachineStatus("order")
		return err == nil && len(st.Configuration) == 1 && st.Configuration[0] == "fulfilled"
	}, time.Second, 5*time.Millisecond)

	st, err := o.MachineStatus("worker")
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, st.Configuration)
	assert.GreaterOrEqual(t, o.GetMetrics().DeferredFlushed, uint64(2))
}

func TestAutoTransitionRoundTrip(t *testing.T) {
	o := newTestOrchestrator(t, Options{Lanes: 2, MaxQueueDepth: 16})

	def, err := machine.NewDefinition("robot", "idle",
		&machine.StateNode{ID: "idle", Kind: machine.KindAtomic, Transitions: []machine.Transition{
			{EventName: "PLACE", Targets: []string{"processing"}},
		}},
		&machine.StateNode{ID: "processing", Kind: machine.KindAtomic,
			After: []machine.AfterEntry{{Delay: 100 * time.Millisecond, EventName: "after.100ms.processing"}},
			Transitions: []machine.Transition{
				{EventName: "after.100ms.processing", Targets: []string{"done"}},
			}},
		&machine.StateNode{ID: "done", Kind: machine.KindAtomic, Transitions: []machine.Transition{
			{EventName: "PICK", Targets: []string{"idle"}},
		}},
	)
	require.NoError(t, err)
	inst := interpreter.New(def, "robot", zerolog.Nop(), interpreter.WithSink(o), interpreter.WithReporter(o))
	registerAndStart(t, o, inst)
	ctx := context.Background()

	cfg, err := o.SendEvent(ctx, "robot", machine.Event{Name: "PLACE"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"processing"}, cfg.Leaves())

	// An early PICK has no enabled transition in processing.
	cfg, err = o.SendEvent(ctx, "robot", machine.Event{Name: "PICK"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"processing"}, cfg.Leaves())
	assert.GreaterOrEqual(t, o.GetMetrics().Ignored, uint64(1))

	// The timer event re-enters through the lane and lands in done.
	require.Eventually(t, func() bool {
		st, err := o.MachineStatus("robot")
		return err == nil && len(st.Configuration) == 1 && st.Configuration[0] == "done"
	}, 2*time.Second, 10*time.Millisecond)

	cfg, err = o.SendEvent(ctx, "robot", machine.Event{Name: "PICK"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, cfg.Leaves())
}
