package machine

import (
	"context"
	"time"
)

// Kind classifies a state node.
type Kind string

const (
	KindAtomic   Kind = "ATOMIC"
	KindCompound Kind = "COMPOUND"
	KindParallel Kind = "PARALLEL"
	KindFinal    Kind = "FINAL"
)

// Status represents a machine instance lifecycle status.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusRunning    Status = "RUNNING"
	StatusStopped    Status = "STOPPED"
)

// ReadContext is the read-only view of a machine's context handed to guards
// and invoked services. Guards must not mutate context; the interface makes
// that structural.
type ReadContext interface {
	Get(key string) (any, bool)
	GetString(key string) (string, error)
	GetInt(key string) (int64, error)
	GetFloat(key string) (float64, error)
	GetBool(key string) (bool, error)
	Params() map[string]any
}

// ActionContext is the surface actions receive. Send only records a deferred
// send; it never enqueues directly, so an action can never block on or
// re-enter the dispatch loop that invoked it.
type ActionContext interface {
	ReadContext
	Set(key string, value any)
	Delete(key string)
	Send(targetMachineID string, event Event)
	MachineID() string
}

// GuardFunc is a pure predicate over context and event.
type GuardFunc func(rc ReadContext, event Event) (bool, error)

// ActionFunc runs during entry, exit or transition processing.
type ActionFunc func(ac ActionContext, event Event) error

// ServiceFunc is long-running work started on state entry. It receives a
// snapshot of the machine context, never the live store, and its result
// re-enters the machine as a normal inbound event. ctx is cancelled when the
// owning state is exited or the instance is stopped.
type ServiceFunc func(ctx context.Context, input map[string]any, event Event) (any, error)

// Guard pairs a predicate with its definition name for error reporting.
type Guard struct {
	Name string
	Fn   GuardFunc
}

// Action pairs an action with its definition name for error reporting.
type Action struct {
	Name string
	Fn   ActionFunc
}

// Transition describes one outgoing transition of a state node.
// EventName "" marks an eventless ("always") transition. An empty target
// list makes the transition internal: actions run, configuration is kept.
type Transition struct {
	EventName string
	Guard     *Guard
	Targets   []string
	Actions   []Action
}

// AfterEntry arms a delayed auto-transition when its owning state is entered.
// The generated event name is matched by a transition appended to the node.
type AfterEntry struct {
	Delay     time.Duration
	EventName string
}

// InvokeSpec starts a service when the owning state is entered and cancels it
// on exit. Completion is delivered as OnDone (payload = result) or OnError
// (payload = error string) through the machine's event sink.
type InvokeSpec struct {
	ID      string
	Service ServiceFunc
	OnDone  string
	OnError string
}

// StateNode is one node of the immutable state tree. Nodes are shared
// read-only across every instance of the same definition and must not be
// mutated after the definition is built.
type StateNode struct {
	ID           string
	Kind         Kind
	Children     []*StateNode
	InitialChild string
	EntryActions []Action
	ExitActions  []Action
	Transitions  []Transition
	After        []AfterEntry
	Invoke       *InvokeSpec
}

// IsLeaf reports whether the node can appear in a configuration.
func (n *StateNode) IsLeaf() bool {
	return n.Kind == KindAtomic || n.Kind == KindFinal
}
