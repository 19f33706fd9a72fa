package machine

// Event is one inbound or outbound machine event.
type Event struct {
	Name          string
	Payload       any
	CorrelationID string
}

// DeferredSend is an outbound event recorded during one ProcessEvent call.
// Sequence preserves causal order when the orchestrator flushes the batch.
type DeferredSend struct {
	TargetMachineID string
	Event           Event
	OriginMachineID string
	Sequence        uint64
}
