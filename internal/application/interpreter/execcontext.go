package interpreter

import "github.com/state-hub/state-hub/internal/domain/machine"

// execContext is the per-event scratch object handed to actions. It exposes
// the instance's context store and collects deferred sends; it is discarded
// after the triggering ProcessEvent call flushes. There is deliberately no
// way to reach the orchestrator or block from here.
type execContext struct {
	interp *Interpreter
	sends  []machine.DeferredSend
}

var _ machine.ActionContext = (*execContext)(nil)

func newExecContext(interp *Interpreter) *execContext {
	return &execContext{interp: interp}
}

func (c *execContext) MachineID() string { return c.interp.id }

func (c *execContext) Get(key string) (any, bool)           { return c.interp.store.Get(key) }
func (c *execContext) GetString(key string) (string, error) { return c.interp.store.GetString(key) }
func (c *execContext) GetInt(key string) (int64, error)     { return c.interp.store.GetInt(key) }
func (c *execContext) GetFloat(key string) (float64, error) { return c.interp.store.GetFloat(key) }
func (c *execContext) GetBool(key string) (bool, error)     { return c.interp.store.GetBool(key) }
func (c *execContext) Params() map[string]any               { return c.interp.store.Params() }

func (c *execContext) Set(key string, value any) { c.interp.store.Set(key, value) }
func (c *execContext) Delete(key string)         { c.interp.store.Delete(key) }

// Send records an outbound event. The orchestrator performs the actual
// enqueue after the current ProcessEvent call returns.
func (c *execContext) Send(targetMachineID string, event machine.Event) {
	c.interp.sendSeq++
	c.sends = append(c.sends, machine.DeferredSend{
		TargetMachineID: targetMachineID,
		Event:           event,
		OriginMachineID: c.interp.id,
		Sequence:        c.interp.sendSeq,
	})
}
