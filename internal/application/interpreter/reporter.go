package interpreter

import (
	"github.com/rs/zerolog"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// EventSink receives events produced outside the synchronous processing path:
// after-timer expirations and invoked-service completions. Implementations
// must be safe for concurrent use; the orchestrator routes deliveries back
// through the owning lane.
type EventSink interface {
	Deliver(targetMachineID string, event machine.Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(targetMachineID string, event machine.Event)

func (f SinkFunc) Deliver(targetMachineID string, event machine.Event) {
	f(targetMachineID, event)
}

// Reporter is the error-reporting side channel. Guard and action failures
// never propagate to the caller of ProcessEvent; they are reported here.
type Reporter interface {
	ReportGuardError(err *machine.GuardEvaluationError)
	ReportActionError(err *machine.ActionExecutionError)
	ReportIgnoredEvent(machineID, eventName string)
}

// LogReporter reports through zerolog.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter writing to the given logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("service", "interpreter").Logger()}
}

func (r *LogReporter) ReportGuardError(err *machine.GuardEvaluationError) {
	r.logger.Warn().Err(err.Err).
		Str("machine_id", err.MachineID).
		Str("state", err.StateID).
		Str("event", err.EventName).
		Str("guard", err.Guard).
		Msg("guard evaluation failed; transition skipped")
}

func (r *LogReporter) ReportActionError(err *machine.ActionExecutionError) {
	r.logger.Error().Err(err.Err).
		Str("machine_id", err.MachineID).
		Str("state", err.StateID).
		Str("event", err.EventName).
		Str("action", err.Action).
		Msg("action execution failed; configuration kept")
}

func (r *LogReporter) ReportIgnoredEvent(machineID, eventName string) {
	r.logger.Debug().
		Str("machine_id", machineID).
		Str("event", eventName).
		Msg("no enabled transition for event")
}
