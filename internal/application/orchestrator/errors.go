package orchestrator

import "errors"

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrMachineNotFound is returned when the target machine id is not registered.
	ErrMachineNotFound = errors.New("machine is not registered")

	// ErrAlreadyRegistered is returned by Register for a duplicate machine id.
	ErrAlreadyRegistered = errors.New("machine id is already registered")

	// ErrQueueFull is returned under the REJECT and DROP_NEWEST policies when
	// the target lane queue is at capacity.
	ErrQueueFull = errors.New("lane queue is full")

	// ErrCircuitOpen is returned when the target machine's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTimeout is returned by SendEvent when no result arrives within the
	// request timeout. The event itself may still be processed later.
	ErrTimeout = errors.New("timed out waiting for event result")
)
