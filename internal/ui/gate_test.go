package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateLockUnlock(t *testing.T) {
	assert := assert.New(t)

	g := NewGate()
	assert.False(g.Held())

	assert.True(g.Lock(0))
	assert.True(g.Held())

	g.Unlock()
	assert.False(g.Held())
}

func TestGateTimedLockExpires(t *testing.T) {
	assert := assert.New(t)

	g := NewGate()
	assert.True(g.Lock(0))

	start := time.Now()
	assert.False(g.Lock(50*time.Millisecond), "second acquisition must time out")
	assert.GreaterOrEqual(time.Since(start), 50*time.Millisecond)

	g.Unlock()
	assert.True(g.Lock(50*time.Millisecond))
	g.Unlock()
}

func TestGateUnlockPanicsWhenNotHeld(t *testing.T) {
	g := NewGate()
	assert.Panics(t, func() { g.Unlock() })
}

func TestGateAssertHeld(t *testing.T) {
	g := NewGate()
	assert.Panics(t, func() { g.AssertHeld() })

	g.Lock(0)
	assert.NotPanics(t, func() { g.AssertHeld() })
	g.Unlock()
}

func TestGateHandoffAcrossGoroutines(t *testing.T) {
	g := NewGate()
	g.Lock(0)

	acquired := make(chan struct{})
	go func() {
		g.Lock(0)
		close(acquired)
		g.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("gate acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	g.Unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("gate never handed off")
	}
}
