package machine

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned when an event reaches an instance that has not
// been started or has been stopped.
var ErrNotRunning = errors.New("machine is not running")

// TypeMismatchError reports a typed context accessor hitting a value of the
// wrong type (or a missing key).
type TypeMismatchError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("context key %q: want %s, got %s", e.Key, e.Want, e.Got)
}

// GuardEvaluationError reports a guard that returned or raised an error. The
// transition is treated as not enabled; processing continues.
type GuardEvaluationError struct {
	MachineID string
	StateID   string
	EventName string
	Guard     string
	Err       error
}

func (e *GuardEvaluationError) Error() string {
	return fmt.Sprintf("machine %s state %s: guard %s failed for event %s: %v",
		e.MachineID, e.StateID, e.Guard, e.EventName, e.Err)
}

func (e *GuardEvaluationError) Unwrap() error { return e.Err }

// ActionExecutionError reports an action failure. Configuration changes
// already applied before the failure are intentionally not rolled back.
type ActionExecutionError struct {
	MachineID string
	StateID   string
	Action    string
	EventName string
	Err       error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("machine %s state %s: action %s failed for event %s: %v",
		e.MachineID, e.StateID, e.Action, e.EventName, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// ConfigurationError is fatal: the definition produced an unbounded
// eventless-transition loop or an otherwise inconsistent configuration.
type ConfigurationError struct {
	MachineID string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("machine %s: configuration error: %s", e.MachineID, e.Reason)
}
