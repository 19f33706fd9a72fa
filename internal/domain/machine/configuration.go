package machine

import "sort"

// Configuration is the set of active leaf state ids of one machine instance.
type Configuration struct {
	leaves map[string]struct{}
}

// NewConfiguration builds a configuration from leaf ids.
func NewConfiguration(ids ...string) Configuration {
	c := Configuration{leaves: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		c.leaves[id] = struct{}{}
	}
	return c
}

// Contains reports whether the leaf id is active.
func (c Configuration) Contains(id string) bool {
	_, ok := c.leaves[id]
	return ok
}

// Leaves returns the active leaf ids in sorted order.
func (c Configuration) Leaves() []string {
	out := make([]string, 0, len(c.leaves))
	for id := range c.leaves {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of active leaves.
func (c Configuration) Len() int {
	return len(c.leaves)
}

// Add marks a leaf active.
func (c Configuration) Add(id string) {
	c.leaves[id] = struct{}{}
}

// Remove marks a leaf inactive.
func (c Configuration) Remove(id string) {
	delete(c.leaves, id)
}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	out := Configuration{leaves: make(map[string]struct{}, len(c.leaves))}
	for id := range c.leaves {
		out.leaves[id] = struct{}{}
	}
	return out
}

// Equal reports whether two configurations hold the same leaves.
func (c Configuration) Equal(other Configuration) bool {
	if len(c.leaves) != len(other.leaves) {
		return false
	}
	for id := range c.leaves {
		if _, ok := other.leaves[id]; !ok {
			return false
		}
	}
	return true
}
