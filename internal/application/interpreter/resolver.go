package interpreter

import (
	"sort"

	"github.com/state-hub/state-hub/internal/domain/machine"
)

// The resolver computes exit and entry sets around the least common compound
// ancestor of a transition's source and targets. Exit is applied innermost to
// outermost, entry outermost to innermost; entering a compound state descends
// into its initial child and entering a parallel state enters every region.

func depth(def *machine.Definition, id string) int {
	return len(def.AncestorChain(id))
}

// exitSet returns the active nodes below domain, innermost first. Leaves come
// from the configuration; their ancestors up to (excluding) domain are
// included so compound exit actions run.
func exitSet(def *machine.Definition, cfg machine.Configuration, domain string) []string {
	seen := make(map[string]struct{})
	var nodes []string
	for _, leaf := range cfg.Leaves() {
		if !def.IsAncestor(domain, leaf) {
			continue
		}
		for id := leaf; id != domain && id != ""; id = def.Parent(id) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			nodes = append(nodes, id)
		}
	}
	sort.SliceStable(nodes, func(a, b int) bool {
		da, db := depth(def, nodes[a]), depth(def, nodes[b])
		if da != db {
			return da > db
		}
		return def.DocumentOrder(nodes[a]) > def.DocumentOrder(nodes[b])
	})
	return nodes
}

// entryPath returns the chain from just below domain down to target,
// outermost first, target included.
func entryPath(def *machine.Definition, domain, target string) []string {
	var path []string
	for id := target; id != domain && id != ""; id = def.Parent(id) {
		path = append([]string{id}, path...)
	}
	return path
}

// defaultCompletion returns the nodes entered below node when completing its
// default configuration (node itself excluded), outermost first, plus the
// resulting active leaves.
func defaultCompletion(def *machine.Definition, nodeID string) (entered []string, leaves []string) {
	node := def.Node(nodeID)
	switch node.Kind {
	case machine.KindAtomic, machine.KindFinal:
		return nil, []string{nodeID}
	case machine.KindCompound:
		child := node.InitialChild
		entered = append(entered, child)
		below, childLeaves := defaultCompletion(def, child)
		entered = append(entered, below...)
		return entered, childLeaves
	case machine.KindParallel:
		for _, region := range node.Children {
			entered = append(entered, region.ID)
			below, regionLeaves := defaultCompletion(def, region.ID)
			entered = append(entered, below...)
			leaves = append(leaves, regionLeaves...)
		}
		return entered, leaves
	}
	return nil, nil
}

// overlaps reports whether two node-id sets intersect.
func overlaps(a []string, b map[string]struct{}) bool {
	for _, id := range a {
		if _, ok := b[id]; ok {
			return true
		}
	}
	return false
}
