package interpreter

import (
	"context"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// startInvoke launches the state's invoked service. The service gets a
// context-store snapshot, never the live store or the execution context, so
// it cannot write machine state or block a lane; completion comes back as a
// normal inbound event through the sink.
func (i *Interpreter) startInvoke(stateID string, node *machine.StateNode, event machine.Event) {
	spec := node.Invoke
	if spec == nil || spec.Service == nil {
		return
	}
	ctx, cancel := context.WithCancel(i.baseCtx)
	i.invokes[stateID] = cancel

	onDone := spec.OnDone
	if onDone == "" {
		onDone = "done.invoke." + spec.ID
	}
	onError := spec.OnError
	if onError == "" {
		onError = "error.invoke." + spec.ID
	}
	input := i.store.Snapshot()

	go func() {
		result, err := spec.Service(ctx, input, event)
		if ctx.Err() != nil {
			// state exited or instance stopped; completion is dropped
			return
		}
		if err != nil {
			i.sink.Deliver(i.id, machine.Event{Name: onError, Payload: err.Error()})
			return
		}
		i.sink.Deliver(i.id, machine.Event{Name: onDone, Payload: result})
	}()
}

func (i *Interpreter) cancelInvoke(stateID string) {
	if cancel, ok := i.invokes[stateID]; ok {
		cancel()
		delete(i.invokes, stateID)
	}
}
