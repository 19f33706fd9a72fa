package definition

import (
	"fmt"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// Registry maps the names used in machine definition files to Go
// implementations of actions, guards and invoked services. Definitions are
// resolved against a registry at build time so unknown names fail before a
// machine ever runs.
type Registry struct {
	actions  map[string]machine.ActionFunc
	guards   map[string]machine.GuardFunc
	services map[string]machine.ServiceFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions:  make(map[string]machine.ActionFunc),
		guards:   make(map[string]machine.GuardFunc),
		services: make(map[string]machine.ServiceFunc),
	}
}

// RegisterAction binds an action name.
func (r *Registry) RegisterAction(name string, fn machine.ActionFunc) {
	r.actions[name] = fn
}

// RegisterGuard binds a guard name. Named guards take precedence over
// expression evaluation when a definition references the name.
func (r *Registry) RegisterGuard(name string, fn machine.GuardFunc) {
	r.guards[name] = fn
}

// RegisterService binds an invoked-service name.
func (r *Registry) RegisterService(name string, fn machine.ServiceFunc) {
	r.services[name] = fn
}

func (r *Registry) action(name string) (machine.Action, error) {
	fn, ok := r.actions[name]
	if !ok {
		return machine.Action{}, fmt.Errorf("unknown action: %s", name)
	}
	return machine.Action{Name: name, Fn: fn}, nil
}

func (r *Registry) guard(name string) (machine.GuardFunc, bool) {
	fn, ok := r.guards[name]
	return fn, ok
}

func (r *Registry) service(name string) (machine.ServiceFunc, error) {
	fn, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("unknown service: %s", name)
	}
	return fn, nil
}
