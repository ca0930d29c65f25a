package ui

import (
	"sync/atomic"
	"time"
)

// Gate is the sole serialization point for mutations of the retained-mode
// widget tree. It is a timed mutex built over a one-slot channel so
// producers that must not stall can bound their wait and drop the update.
type Gate struct {
	slot chan struct{}
	held atomic.Bool
}

func NewGate() *Gate {
	g := &Gate{slot: make(chan struct{}, 1)}
	g.slot <- struct{}{}
	return g
}

// Lock acquires the gate. A timeout <= 0 blocks indefinitely; otherwise
// Lock returns false once the deadline passes.
func (g *Gate) Lock(timeout time.Duration) bool {
	if timeout <= 0 {
		<-g.slot
		g.held.Store(true)
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-g.slot:
		g.held.Store(true)
		return true
	case <-t.C:
		return false
	}
}

func (g *Gate) Unlock() {
	g.held.Store(false)
	select {
	case g.slot <- struct{}{}:
	default:
		panic("ui gate: unlock of unlocked gate")
	}
}

// Held reports whether the gate is currently acquired.
func (g *Gate) Held() bool {
	return g.held.Load()
}

// AssertHeld panics when a widget mutation runs outside the gate. Every
// public setter goes through this.
//
// The check is occupancy, not ownership: Go has no goroutine identity, so
// a mutator racing against another holder is not caught. It still turns
// every forgot-to-lock call into an immediate panic.
func (g *Gate) AssertHeld() {
	if !g.held.Load() {
		panic("ui mutation outside the gate")
	}
}
