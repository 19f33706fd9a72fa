package interpreter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// DefaultMaxMicrosteps bounds the eventless-transition drain loop. Hitting
// the bound means the definition loops, which is a modeling bug and is
// surfaced as a fatal ConfigurationError rather than masked.
const DefaultMaxMicrosteps = 100

// Interpreter processes events for one machine instance. It is strictly
// single-threaded per instance: the orchestrator guarantees Start,
// ProcessEvent and Stop are never invoked concurrently for the same
// interpreter, so no locking happens on the hot path.
type Interpreter struct {
	id       string
	def      *machine.Definition
	store    *machine.ContextStore
	config   machine.Configuration
	status   machine.Status
	sink     EventSink
	reporter Reporter
	logger   zerolog.Logger

	sendSeq       uint64
	maxMicrosteps int

	baseCtx context.Context
	cancel  context.CancelFunc
	timers  map[string][]*time.Timer
	invokes map[string]context.CancelFunc
}

// Option configures an interpreter.
type Option func(*Interpreter)

// WithSink sets the sink for timer and invoked-service events.
func WithSink(sink EventSink) Option {
	return func(i *Interpreter) { i.sink = sink }
}

// WithReporter sets the error-reporting side channel.
func WithReporter(r Reporter) Option {
	return func(i *Interpreter) { i.reporter = r }
}

// WithInitialContext seeds the instance's context store.
func WithInitialContext(seed map[string]any) Option {
	return func(i *Interpreter) { i.store = machine.NewContextStore(seed) }
}

// WithMaxMicrosteps overrides the eventless-drain bound.
func WithMaxMicrosteps(n int) Option {
	return func(i *Interpreter) { i.maxMicrosteps = n }
}

// New creates an interpreter for one instance of the given definition.
func New(def *machine.Definition, instanceID string, logger zerolog.Logger, opts ...Option) *Interpreter {
	i := &Interpreter{
		id:            instanceID,
		def:           def,
		store:         machine.NewContextStore(nil),
		config:        machine.NewConfiguration(),
		status:        machine.StatusNotStarted,
		maxMicrosteps: DefaultMaxMicrosteps,
		logger:        logger.With().Str("service", "interpreter").Str("machine_id", instanceID).Logger(),
		timers:        make(map[string][]*time.Timer),
		invokes:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.sink == nil {
		i.sink = SinkFunc(func(string, machine.Event) {})
	}
	if i.reporter == nil {
		i.reporter = NewLogReporter(logger)
	}
	return i
}

// ID returns the instance id.
func (i *Interpreter) ID() string { return i.id }

// Status returns the lifecycle status. Owned by the instance's lane.
func (i *Interpreter) Status() machine.Status { return i.status }

// Configuration returns a copy of the active configuration.
func (i *Interpreter) Configuration() machine.Configuration { return i.config.Clone() }

// Context returns the instance's context store.
func (i *Interpreter) Context() *machine.ContextStore { return i.store }

// Start enters the initial configuration, running entry actions top-down,
// and drains eventless transitions. Deferred sends requested by entry
// actions are returned for the caller to flush. Starting a running instance
// is a no-op returning the current configuration.
func (i *Interpreter) Start(ctx context.Context) (machine.Configuration, []machine.DeferredSend, error) {
	if i.status == machine.StatusRunning {
		return i.config.Clone(), nil, nil
	}
	i.baseCtx, i.cancel = context.WithCancel(context.Background())
	i.status = machine.StatusRunning
	i.config = machine.NewConfiguration()

	ec := newExecContext(i)
	event := machine.Event{}
	entered, leaves := defaultCompletion(i.def, machine.RootID)
	for _, id := range entered {
		i.enterNode(ec, id, event)
	}
	for _, leaf := range leaves {
		i.config.Add(leaf)
	}
	if err := i.drainEventless(ec); err != nil {
		i.Stop()
		return machine.NewConfiguration(), nil, err
	}
	i.logger.Debug().Strs("configuration", i.config.Leaves()).Msg("machine started")
	return i.config.Clone(), ec.sends, nil
}

// ProcessEvent resolves and applies the transitions enabled by event,
// returning the new configuration and the deferred sends requested during
// the call. An event with no enabled transition is ignored by design and
// leaves configuration and context untouched. The only returned error is a
// fatal ConfigurationError (eventless loop), which stops the instance; guard
// and action failures go to the reporter instead.
func (i *Interpreter) ProcessEvent(ctx context.Context, event machine.Event) (machine.Configuration, []machine.DeferredSend, error) {
	if i.status != machine.StatusRunning {
		return machine.NewConfiguration(), nil, machine.ErrNotRunning
	}
	ec := newExecContext(i)
	if !i.step(ec, event) {
		i.reporter.ReportIgnoredEvent(i.id, event.Name)
		return i.config.Clone(), ec.sends, nil
	}
	if err := i.drainEventless(ec); err != nil {
		i.Stop()
		return machine.NewConfiguration(), nil, err
	}
	return i.config.Clone(), ec.sends, nil
}

// Stop exits every active state bottom-up, cancels timers and invoked work,
// and discards deferred sends requested by exit actions.
func (i *Interpreter) Stop() {
	if i.status != machine.StatusRunning {
		return
	}
	ec := newExecContext(i)
	for _, id := range exitSet(i.def, i.config, machine.RootID) {
		i.exitNode(ec, id, machine.Event{})
	}
	if i.cancel != nil {
		i.cancel()
	}
	i.timers = make(map[string][]*time.Timer)
	i.invokes = make(map[string]context.CancelFunc)
	i.config = machine.NewConfiguration()
	i.status = machine.StatusStopped
	i.logger.Debug().Msg("machine stopped")
}

func (i *Interpreter) drainEventless(ec *execContext) error {
	for n := 0; ; n++ {
		if n >= i.maxMicrosteps {
			return &machine.ConfigurationError{
				MachineID: i.id,
				Reason:    fmt.Sprintf("eventless transitions did not settle after %d microsteps", i.maxMicrosteps),
			}
		}
		if !i.step(ec, machine.Event{}) {
			return nil
		}
	}
}

type candidate struct {
	source string
	index  int
	tr     *machine.Transition
}

// selectCandidates picks, per active leaf, the first declared enabled
// transition walking leaf to root (inner states override outer ones), then
// orders the deduplicated set by document order. Guards are pure, so the
// result is independent of evaluation order.
func (i *Interpreter) selectCandidates(event machine.Event) []candidate {
	leaves := i.config.Leaves()
	sort.Slice(leaves, func(a, b int) bool {
		return i.def.DocumentOrder(leaves[a]) < i.def.DocumentOrder(leaves[b])
	})

	seen := make(map[string]struct{})
	var candidates []candidate
	for _, leaf := range leaves {
		for id := leaf; id != ""; id = i.def.Parent(id) {
			node := i.def.Node(id)
			if node == nil {
				break
			}
			found := false
			for idx := range node.Transitions {
				tr := &node.Transitions[idx]
				if tr.EventName != event.Name {
					continue
				}
				if !i.guardPasses(tr, id, event) {
					continue
				}
				key := fmt.Sprintf("%s#%d", id, idx)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					candidates = append(candidates, candidate{source: id, index: idx, tr: tr})
				}
				found = true
				break
			}
			if found {
				break
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		oa, ob := i.def.DocumentOrder(candidates[a].source), i.def.DocumentOrder(candidates[b].source)
		if oa != ob {
			return oa < ob
		}
		return candidates[a].index < candidates[b].index
	})
	return candidates
}

// step applies one microstep for event. Conflicting candidates (overlapping
// exit sets) lose to the earliest declared one. Returns false when nothing
// was enabled.
func (i *Interpreter) step(ec *execContext, event machine.Event) bool {
	candidates := i.selectCandidates(event)
	if len(candidates) == 0 {
		return false
	}
	taken := make(map[string]struct{})
	applied := false
	for _, c := range candidates {
		if len(c.tr.Targets) == 0 {
			// internal transition: actions only, configuration untouched
			i.runActions(ec, c.source, event, c.tr.Actions)
			applied = true
			continue
		}
		domain := i.def.LCCA(append([]string{c.source}, c.tr.Targets...)...)
		ex := exitSet(i.def, i.config, domain)
		if overlaps(ex, taken) {
			continue
		}
		for _, id := range ex {
			taken[id] = struct{}{}
		}
		i.applyTransition(ec, c, domain, ex, event)
		applied = true
	}
	return applied
}

func (i *Interpreter) applyTransition(ec *execContext, c candidate, domain string, ex []string, event machine.Event) {
	for _, id := range ex {
		i.exitNode(ec, id, event)
		i.config.Remove(id)
	}
	i.runActions(ec, c.source, event, c.tr.Actions)

	enteredSet := make(map[string]struct{})
	for _, target := range c.tr.Targets {
		ordered, leaves := i.computeEntry(domain, target)
		for _, id := range ordered {
			if _, dup := enteredSet[id]; dup {
				continue
			}
			enteredSet[id] = struct{}{}
			i.enterNode(ec, id, event)
		}
		for _, leaf := range leaves {
			i.config.Add(leaf)
		}
	}
}

// computeEntry lists the nodes entered on the way from domain (exclusive)
// down to target plus target's default completion, outermost first. Crossing
// a parallel node on the way enters its sibling regions as well.
func (i *Interpreter) computeEntry(domain, target string) (ordered []string, leaves []string) {
	path := entryPath(i.def, domain, target)
	for idx, id := range path {
		ordered = append(ordered, id)
		node := i.def.Node(id)
		if node.Kind != machine.KindParallel {
			continue
		}
		next := ""
		if idx+1 < len(path) {
			next = path[idx+1]
		}
		for _, region := range node.Children {
			if region.ID == next {
				continue
			}
			ordered = append(ordered, region.ID)
			below, regionLeaves := defaultCompletion(i.def, region.ID)
			ordered = append(ordered, below...)
			leaves = append(leaves, regionLeaves...)
		}
	}
	below, targetLeaves := defaultCompletion(i.def, target)
	ordered = append(ordered, below...)
	leaves = append(leaves, targetLeaves...)
	return ordered, leaves
}

func (i *Interpreter) guardPasses(tr *machine.Transition, stateID string, event machine.Event) bool {
	g := tr.Guard
	if g == nil || g.Fn == nil {
		return true
	}
	ok, err := runGuard(g.Fn, i.store, event)
	if err != nil {
		i.reporter.ReportGuardError(&machine.GuardEvaluationError{
			MachineID: i.id,
			StateID:   stateID,
			EventName: event.Name,
			Guard:     g.Name,
			Err:       err,
		})
		return false
	}
	return ok
}

func runGuard(fn machine.GuardFunc, rc machine.ReadContext, event machine.Event) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()
	return fn(rc, event)
}

func (i *Interpreter) runActions(ec *execContext, stateID string, event machine.Event, actions []machine.Action) {
	for _, a := range actions {
		if a.Fn == nil {
			continue
		}
		if err := runAction(a.Fn, ec, event); err != nil {
			// intentionally no rollback: already-applied exit/entry stands
			i.reporter.ReportActionError(&machine.ActionExecutionError{
				MachineID: i.id,
				StateID:   stateID,
				Action:    a.Name,
				EventName: event.Name,
				Err:       err,
			})
		}
	}
}

func runAction(fn machine.ActionFunc, ec *execContext, event machine.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()
	return fn(ec, event)
}

func (i *Interpreter) enterNode(ec *execContext, id string, event machine.Event) {
	node := i.def.Node(id)
	if node == nil {
		return
	}
	i.runActions(ec, id, event, node.EntryActions)
	i.armTimers(id, node)
	i.startInvoke(id, node, event)
}

func (i *Interpreter) exitNode(ec *execContext, id string, event machine.Event) {
	node := i.def.Node(id)
	if node == nil {
		return
	}
	i.disarmTimers(id)
	i.cancelInvoke(id)
	i.runActions(ec, id, event, node.ExitActions)
}
