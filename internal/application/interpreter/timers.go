package interpreter

import (
	"time"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// armTimers schedules the state's delayed auto-transitions. Expiry re-enters
// the system through the sink as a normal inbound event; a timer firing after
// its state was exited is disarmed here, and a late delivery simply finds no
// enabled transition.
func (i *Interpreter) armTimers(stateID string, node *machine.StateNode) {
	for _, after := range node.After {
		eventName := after.EventName
		timer := time.AfterFunc(after.Delay, func() {
			i.sink.Deliver(i.id, machine.Event{Name: eventName})
		})
		i.timers[stateID] = append(i.timers[stateID], timer)
	}
}

func (i *Interpreter) disarmTimers(stateID string) {
	for _, timer := range i.timers[stateID] {
		timer.Stop()
	}
	delete(i.timers, stateID)
}
