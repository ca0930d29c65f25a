package entity

import "sync"

// Cache is the fixed-slot mirror of the configured entities. Slots are
// bound to entity ids once, at construction, and writes go through Apply
// only, so the coordinator's poll loop is the single writer.
type Cache struct {
	mu    sync.Mutex
	ids   []string
	slots []State
}

func NewCache(ids []string) *Cache {
	bound := make([]string, len(ids))
	copy(bound, ids)
	return &Cache{
		ids:   bound,
		slots: make([]State, len(ids)),
	}
}

func (c *Cache) Len() int {
	return len(c.ids)
}

func (c *Cache) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Apply merges freshly parsed states into the bound slots. A slot only
// advances; a state older than what the slot holds is ignored, so
// LastUpdated is monotonic per slot. Returns the number of slots updated.
func (c *Cache) Apply(states []State) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated := 0
	for _, s := range states {
		if !s.Found() {
			continue
		}
		for i, id := range c.ids {
			if id != s.EntityID {
				continue
			}
			if c.slots[i].Found() && s.LastUpdated < c.slots[i].LastUpdated {
				break
			}
			c.slots[i] = s
			updated++
			break
		}
	}
	return updated
}

// Snapshot returns a copy of all slots in bound order.
func (c *Cache) Snapshot() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, len(c.slots))
	copy(out, c.slots)
	return out
}

// Slot returns the state at a fixed index.
func (c *Cache) Slot(i int) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.slots) {
		return State{}, false
	}
	return c.slots[i], true
}
