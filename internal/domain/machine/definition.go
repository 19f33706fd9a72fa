package machine

import (
	"errors"
	"fmt"
)

// RootID is the synthetic compound node enclosing a definition's top-level
// states. It is never part of a configuration.
const RootID = "(root)"

// Definition is a built, validated state tree plus the lookup indexes the
// resolver needs. Immutable once built; shared across all instances.
type Definition struct {
	MachineID string
	Root      *StateNode

	nodes   map[string]*StateNode
	parents map[string]string
	order   map[string]int
}

// NewDefinition indexes and validates a state tree. The given top-level
// states are wrapped in a synthetic compound root; initial names the
// top-level initial state.
func NewDefinition(machineID, initial string, states ...*StateNode) (*Definition, error) {
	if machineID == "" {
		return nil, errors.New("machine id is required")
	}
	if len(states) == 0 {
		return nil, errors.New("at least one state is required")
	}
	if initial == "" {
		initial = states[0].ID
	}
	root := &StateNode{
		ID:           RootID,
		Kind:         KindCompound,
		Children:     states,
		InitialChild: initial,
	}
	def := &Definition{
		MachineID: machineID,
		Root:      root,
		nodes:     make(map[string]*StateNode),
		parents:   make(map[string]string),
		order:     make(map[string]int),
	}
	if err := def.index(root, ""); err != nil {
		return nil, err
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) index(n *StateNode, parent string) error {
	if n.ID == "" {
		return errors.New("state id is required")
	}
	if _, exists := d.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate state id: %s", n.ID)
	}
	d.nodes[n.ID] = n
	d.parents[n.ID] = parent
	d.order[n.ID] = len(d.order)
	for _, child := range n.Children {
		if err := d.index(child, n.ID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Definition) validate() error {
	for id, n := range d.nodes {
		switch n.Kind {
		case KindCompound:
			if len(n.Children) == 0 {
				return fmt.Errorf("compound state %s has no children", id)
			}
			if n.InitialChild == "" {
				return fmt.Errorf("compound state %s has no initial child", id)
			}
			if !d.isChild(id, n.InitialChild) {
				return fmt.Errorf("initial child %s of %s is not a direct child", n.InitialChild, id)
			}
		case KindParallel:
			if len(n.Children) < 2 {
				return fmt.Errorf("parallel state %s needs at least two regions", id)
			}
		case KindAtomic, KindFinal:
			if len(n.Children) > 0 {
				return fmt.Errorf("%s state %s cannot have children", n.Kind, id)
			}
		default:
			return fmt.Errorf("state %s has unknown kind %q", id, n.Kind)
		}
		for i, t := range n.Transitions {
			for _, target := range t.Targets {
				if _, ok := d.nodes[target]; !ok {
					return fmt.Errorf("transition %d of state %s targets unknown state %s", i, id, target)
				}
			}
			if n.Kind == KindFinal && t.EventName == "" {
				return fmt.Errorf("final state %s cannot have eventless transitions", id)
			}
		}
	}
	return nil
}

func (d *Definition) isChild(parentID, childID string) bool {
	return d.parents[childID] == parentID
}

// Node returns the node for id, or nil.
func (d *Definition) Node(id string) *StateNode {
	return d.nodes[id]
}

// Parent returns the parent id of a node; "" for the root.
func (d *Definition) Parent(id string) string {
	return d.parents[id]
}

// DocumentOrder returns the pre-order position of a node, used for the
// earliest-declared-wins conflict rule.
func (d *Definition) DocumentOrder(id string) int {
	return d.order[id]
}

// AncestorChain returns the proper ancestors of id, innermost first, ending
// at the root.
func (d *Definition) AncestorChain(id string) []string {
	var chain []string
	for p := d.parents[id]; p != ""; p = d.parents[p] {
		chain = append(chain, p)
	}
	return chain
}

// IsAncestor reports whether ancestor properly contains id.
func (d *Definition) IsAncestor(ancestor, id string) bool {
	if ancestor == id {
		return false
	}
	for p := d.parents[id]; p != ""; p = d.parents[p] {
		if p == ancestor {
			return true
		}
	}
	return false
}

// LCCA computes the least common compound ancestor of the given states: the
// deepest Compound or Parallel node that properly contains every one of them.
func (d *Definition) LCCA(ids ...string) string {
	if len(ids) == 0 {
		return RootID
	}
	for anchor := d.parents[ids[0]]; anchor != ""; anchor = d.parents[anchor] {
		node := d.nodes[anchor]
		if node.Kind != KindCompound && node.Kind != KindParallel {
			continue
		}
		containsAll := true
		for _, id := range ids {
			if !d.IsAncestor(anchor, id) {
				containsAll = false
				break
			}
		}
		if containsAll {
			return anchor
		}
	}
	return RootID
}
