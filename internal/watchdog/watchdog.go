package watchdog

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Keepalive is the capability handed to components that perform long
// blocking steps. Feeding it marks the owning task as alive.
type Keepalive func()

// TripHandler is invoked once per trip with the name of the starved task.
type TripHandler func(task string)

// Watchdog tracks long-lived tasks and trips when one stops feeding
// within its timeout. Each task subscribes once and feeds its own
// subscription.
type Watchdog struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	onTrip  TripHandler
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped bool
}

// Task is a single watchdog subscription.
type Task struct {
	name     string
	timeout  time.Duration
	mu       sync.Mutex
	lastFeed time.Time
	tripped  bool
}

func New(logger *zap.Logger, onTrip TripHandler) *Watchdog {
	return &Watchdog{
		tasks:  make(map[string]*Task),
		onTrip: onTrip,
		logger: logger.With(zap.String("component", "watchdog")),
		stopCh: make(chan struct{}),
	}
}

// Register subscribes a task. Registering the same name twice returns the
// existing subscription, matching the "already subscribed by caller" case.
func (w *Watchdog) Register(name string, timeout time.Duration) *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tasks[name]; ok {
		w.logger.Info("task already subscribed", zap.String("task", name))
		return t
	}
	t := &Task{name: name, timeout: timeout, lastFeed: time.Now()}
	w.tasks[name] = t
	return t
}

// Unregister removes a task subscription, typically at shutdown-by-deletion.
func (w *Watchdog) Unregister(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tasks, name)
}

// Start runs the monitor loop until Stop is called.
func (w *Watchdog) Start(checkInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.check()
			}
		}
	}()
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

func (w *Watchdog) check() {
	w.mu.Lock()
	tasks := make([]*Task, 0, len(w.tasks))
	for _, t := range w.tasks {
		tasks = append(tasks, t)
	}
	onTrip := w.onTrip
	w.mu.Unlock()

	for _, t := range tasks {
		t.mu.Lock()
		starved := !t.tripped && time.Since(t.lastFeed) > t.timeout
		if starved {
			t.tripped = true
		}
		name := t.name
		t.mu.Unlock()

		if starved {
			w.logger.Error("task watchdog trip", zap.String("task", name))
			if onTrip != nil {
				onTrip(name)
			}
		}
	}
}

// Feed marks the task as alive and rearms it after a trip.
func (t *Task) Feed() {
	t.mu.Lock()
	t.lastFeed = time.Now()
	t.tripped = false
	t.mu.Unlock()
}

// Keepalive returns the feed capability for injection into workers.
func (t *Task) Keepalive() Keepalive {
	return t.Feed
}

// Name returns the subscription name.
func (t *Task) Name() string { return t.name }
