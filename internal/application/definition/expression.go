package definition

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// compileGuard turns a definition-file guard string into a GuardFunc. A name
// registered in the registry wins; anything else is compiled as a govaluate
// expression over the flattened context parameters plus the event. "true" and
// "false" literals short-circuit. Compilation errors surface at build time;
// evaluation errors at runtime make the transition not-enabled.
func compileGuard(raw string, reg *Registry) (*machine.Guard, error) {
	cond := strings.TrimSpace(raw)
	if cond == "" {
		return nil, nil
	}
	if fn, ok := reg.guard(cond); ok {
		return &machine.Guard{Name: cond, Fn: fn}, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return nil, nil
	case "false":
		return &machine.Guard{Name: cond, Fn: func(machine.ReadContext, machine.Event) (bool, error) {
			return false, nil
		}}, nil
	}

	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return nil, err
	}
	fn := func(rc machine.ReadContext, event machine.Event) (bool, error) {
		params := rc.Params()
		params["event.name"] = event.Name
		if payload, ok := event.Payload.(map[string]any); ok {
			for k, v := range payload {
				params["event."+k] = v
			}
		} else if event.Payload != nil {
			params["event.payload"] = event.Payload
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			return false, err
		}
		b, ok := result.(bool)
		if !ok {
			return false, errors.New("guard expression did not evaluate to boolean")
		}
		return b, nil
	}
	return &machine.Guard{Name: cond, Fn: fn}, nil
}
