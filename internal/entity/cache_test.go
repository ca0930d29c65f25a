package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheApplyBindsSlots(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache([]string{"switch.a", "switch.b"})

	updated := cache.Apply([]State{
		{EntityID: "switch.b", State: StateOn, LastUpdated: 100},
		{EntityID: "switch.unknown", State: StateOn, LastUpdated: 100},
	})
	assert.Equal(1, updated)

	s, ok := cache.Slot(1)
	assert.True(ok)
	assert.True(s.IsOn())

	s, ok = cache.Slot(0)
	assert.True(ok)
	assert.False(s.Found())
}

func TestCacheApplyIsMonotonic(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache([]string{"switch.a"})

	cache.Apply([]State{{EntityID: "switch.a", State: StateOn, LastUpdated: 200}})
	updated := cache.Apply([]State{{EntityID: "switch.a", State: StateOff, LastUpdated: 100}})
	assert.Equal(0, updated)

	s, _ := cache.Slot(0)
	assert.True(s.IsOn(), "stale write must not regress the slot")
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache([]string{"switch.a"})
	cache.Apply([]State{{EntityID: "switch.a", State: StateOn, LastUpdated: 1}})

	snap := cache.Snapshot()
	snap[0].State = StateOff

	s, _ := cache.Slot(0)
	assert.True(s.IsOn())
}
