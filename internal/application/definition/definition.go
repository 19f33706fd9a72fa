package definition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// Parse builds a machine.Definition from the declarative JSON machine format:
// per-state `initial`, nested `states`, `type` ("parallel" | "final"),
// `on: {EVENT: [{target, guard, actions}]}`, `always` for eventless
// transitions, `entry`/`exit` action lists, `invoke: {src, onDone, onError}`
// and delay-based auto-transitions `after: {ms: target}`. Names are resolved
// against reg; unresolvable names and malformed trees fail here, not at
// runtime.
func Parse(raw []byte, reg *Registry) (*machine.Definition, error) {
	if len(raw) == 0 {
		return nil, errors.New("machine definition is empty")
	}
	var doc documentJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid machine definition: %w", err)
	}
	if doc.ID == "" {
		return nil, errors.New("machine definition requires an id")
	}
	if len(doc.States) == 0 {
		return nil, errors.New("machine definition requires states")
	}

	named, err := orderedStates(doc.States)
	if err != nil {
		return nil, err
	}
	nodes := make([]*machine.StateNode, 0, len(named))
	for _, ns := range named {
		node, err := buildNode(ns.name, ns.body, reg)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return machine.NewDefinition(doc.ID, doc.Initial, nodes...)
}

// InitialContext extracts the definition's seed context, if any.
func InitialContext(raw []byte) (map[string]any, error) {
	var doc struct {
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.Context, nil
}

type documentJSON struct {
	ID      string          `json:"id"`
	Initial string          `json:"initial"`
	States  json.RawMessage `json:"states"`
}

type stateJSON struct {
	Type    string            `json:"type,omitempty"`
	Initial string            `json:"initial,omitempty"`
	States  json.RawMessage   `json:"states,omitempty"`
	Entry   []string          `json:"entry,omitempty"`
	Exit    []string          `json:"exit,omitempty"`
	On      json.RawMessage   `json:"on,omitempty"`
	Always  []transitionJSON  `json:"always,omitempty"`
	After   map[string]string `json:"after,omitempty"`
	Invoke  *invokeJSON       `json:"invoke,omitempty"`
}

type transitionJSON struct {
	Target  string   `json:"target,omitempty"`
	Targets []string `json:"targets,omitempty"`
	Guard   string   `json:"guard,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

type invokeJSON struct {
	Src     string `json:"src"`
	OnDone  string `json:"onDone,omitempty"`
	OnError string `json:"onError,omitempty"`
}

type namedState struct {
	name string
	body stateJSON
}

// orderedStates decodes a states object preserving declaration order, which
// the earliest-declared-wins conflict rule depends on.
func orderedStates(raw json.RawMessage) ([]namedState, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("states must be an object")
	}
	var out []namedState
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("state name must be a string")
		}
		var body stateJSON
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("state %s: %w", name, err)
		}
		out = append(out, namedState{name: name, body: body})
	}
	return out, nil
}

type eventTransitions struct {
	event string
	list  []transitionJSON
}

// orderedTransitions decodes an `on` object preserving declaration order, so
// transition indexes are stable between parses of the same definition.
func orderedTransitions(raw json.RawMessage) ([]eventTransitions, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("on must be an object")
	}
	var out []eventTransitions
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		event, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("event name must be a string")
		}
		var list []transitionJSON
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("event %s: %w", event, err)
		}
		out = append(out, eventTransitions{event: event, list: list})
	}
	return out, nil
}

func buildNode(name string, body stateJSON, reg *Registry) (*machine.StateNode, error) {
	node := &machine.StateNode{ID: name, InitialChild: body.Initial}

	var children []namedState
	if len(body.States) > 0 {
		var err error
		children, err = orderedStates(body.States)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", name, err)
		}
	}

	switch body.Type {
	case "parallel":
		node.Kind = machine.KindParallel
	case "final":
		node.Kind = machine.KindFinal
	case "":
		if len(children) > 0 {
			node.Kind = machine.KindCompound
			if node.InitialChild == "" && len(children) > 0 {
				node.InitialChild = children[0].name
			}
		} else {
			node.Kind = machine.KindAtomic
		}
	default:
		return nil, fmt.Errorf("state %s: unknown type %q", name, body.Type)
	}

	for _, child := range children {
		childNode, err := buildNode(child.name, child.body, reg)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}

	var err error
	if node.EntryActions, err = resolveActions(name, body.Entry, reg); err != nil {
		return nil, err
	}
	if node.ExitActions, err = resolveActions(name, body.Exit, reg); err != nil {
		return nil, err
	}

	if len(body.On) > 0 {
		events, err := orderedTransitions(body.On)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", name, err)
		}
		for _, et := range events {
			for _, tj := range et.list {
				tr, err := buildTransition(name, et.event, tj, reg)
				if err != nil {
					return nil, err
				}
				node.Transitions = append(node.Transitions, tr)
			}
		}
	}
	for _, tj := range body.Always {
		tr, err := buildTransition(name, "", tj, reg)
		if err != nil {
			return nil, err
		}
		node.Transitions = append(node.Transitions, tr)
	}

	for ms, target := range body.After {
		delayMs, err := strconv.Atoi(ms)
		if err != nil || delayMs <= 0 {
			return nil, fmt.Errorf("state %s: invalid after delay %q", name, ms)
		}
		eventName := fmt.Sprintf("after.%dms.%s", delayMs, name)
		node.After = append(node.After, machine.AfterEntry{
			Delay:     time.Duration(delayMs) * time.Millisecond,
			EventName: eventName,
		})
		node.Transitions = append(node.Transitions, machine.Transition{
			EventName: eventName,
			Targets:   []string{target},
		})
	}

	if body.Invoke != nil {
		svc, err := reg.service(body.Invoke.Src)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", name, err)
		}
		node.Invoke = &machine.InvokeSpec{
			ID:      body.Invoke.Src,
			Service: svc,
			OnDone:  body.Invoke.OnDone,
			OnError: body.Invoke.OnError,
		}
	}

	return node, nil
}

func buildTransition(stateName, eventName string, tj transitionJSON, reg *Registry) (machine.Transition, error) {
	targets := tj.Targets
	if tj.Target != "" {
		targets = append([]string{tj.Target}, targets...)
	}
	guard, err := compileGuard(tj.Guard, reg)
	if err != nil {
		return machine.Transition{}, fmt.Errorf("state %s event %s: invalid guard: %w", stateName, eventName, err)
	}
	actions, err := resolveActions(stateName, tj.Actions, reg)
	if err != nil {
		return machine.Transition{}, err
	}
	return machine.Transition{
		EventName: eventName,
		Guard:     guard,
		Targets:   targets,
		Actions:   actions,
	}, nil
}

func resolveActions(stateName string, names []string, reg *Registry) ([]machine.Action, error) {
	if len(names) == 0 {
		return nil, nil
	}
	actions := make([]machine.Action, 0, len(names))
	for _, n := range names {
		a, err := reg.action(n)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", stateName, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
