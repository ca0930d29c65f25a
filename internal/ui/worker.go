package ui

import (
	"sync"
	"time"
)

// Display is the retained-mode library handle. Tick runs its internal
// timers and returns a hint for the next invocation delay.
type Display interface {
	Tick() time.Duration
}

const minTickDelay = 10 * time.Millisecond

// Worker drives the display tick under the gate. It is the only caller
// that blocks indefinitely on acquisition.
type Worker struct {
	gate    *Gate
	display Display

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewWorker(gate *Gate, display Display) *Worker {
	return &Worker{
		gate:    gate,
		display: display,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.loop()
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		w.gate.Lock(0)
		delay := w.display.Tick()
		w.gate.Unlock()
		if delay < minTickDelay {
			delay = minTickDelay
		}
		select {
		case <-w.stop:
			return
		case <-time.After(delay):
		}
	}
}

// NopDisplay satisfies Display for builds without a panel attached.
type NopDisplay struct {
	Delay time.Duration
}

func (d NopDisplay) Tick() time.Duration {
	if d.Delay > 0 {
		return d.Delay
	}
	return 50 * time.Millisecond
}
