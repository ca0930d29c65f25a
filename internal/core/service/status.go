package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Coordinator status states.
const (
	StatusOffline      = "offline"
	StatusSyncing      = "syncing"
	StatusReady        = "ready"
	StatusStatesSynced = "states_synced"
	StatusPartialSync  = "partial_sync"
	StatusSyncFailed   = "sync_failed"
)

const (
	eventGoSyncing = "go_syncing"
	eventSynced    = "synced"
	eventPartial   = "partial"
	eventFailed    = "failed"
	eventReady     = "ready"
	eventGoOffline = "go_offline"
)

var statusText = map[string]string{
	StatusOffline:      "Offline",
	StatusSyncing:      "Syncing...",
	StatusReady:        "Ready",
	StatusStatesSynced: "States Synced",
	StatusPartialSync:  "Partial Sync",
	StatusSyncFailed:   "Sync Failed",
}

// StatusCallback receives every distinct transition, in order, with the
// tracker lock released.
type StatusCallback func(ready, syncing bool, text string)

// intermediateEmitGap throttles Syncing emissions at the producer.
// Terminal states always emit.
const intermediateEmitGap = 200 * time.Millisecond

// StatusTracker is the coordinator's status state machine. Transitions
// are serialized; the callback is copied under the lock and invoked
// after release so a re-entrant caller cannot deadlock.
type StatusTracker struct {
	mu       sync.Mutex
	machine  *fsm.FSM
	cb       StatusCallback
	lastEmit time.Time
	logger   *zap.Logger
}

func NewStatusTracker(logger *zap.Logger) *StatusTracker {
	t := &StatusTracker{
		logger: logger.With(zap.String("component", "ha_status")),
	}
	terminalSrcs := []string{StatusOffline, StatusReady, StatusStatesSynced, StatusPartialSync, StatusSyncFailed}
	allSrcs := append([]string{StatusSyncing}, terminalSrcs...)
	t.machine = fsm.NewFSM(
		StatusOffline,
		fsm.Events{
			// Syncing is a legal source of itself so per-retry pushes
			// collapse into no-transitions instead of errors.
			{Name: eventGoSyncing, Src: allSrcs, Dst: StatusSyncing},
			{Name: eventSynced, Src: []string{StatusSyncing}, Dst: StatusStatesSynced},
			{Name: eventPartial, Src: []string{StatusSyncing}, Dst: StatusPartialSync},
			{Name: eventFailed, Src: []string{StatusSyncing}, Dst: StatusSyncFailed},
			{Name: eventReady, Src: []string{StatusOffline, StatusSyncing}, Dst: StatusReady},
			{Name: eventGoOffline, Src: allSrcs, Dst: StatusOffline},
		},
		fsm.Callbacks{},
	)
	return t
}

// RegisterCallback sets the transition consumer. Unregistered drops.
func (t *StatusTracker) RegisterCallback(f StatusCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb = f
}

func (t *StatusTracker) MarkSyncing() { t.fire(eventGoSyncing) }

func (t *StatusTracker) MarkSynced() { t.fire(eventSynced) }

func (t *StatusTracker) MarkPartial() { t.fire(eventPartial) }

func (t *StatusTracker) MarkFailed() { t.fire(eventFailed) }

func (t *StatusTracker) MarkReady() { t.fire(eventReady) }

func (t *StatusTracker) MarkOffline() { t.fire(eventGoOffline) }

func (t *StatusTracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.Current()
}

func (t *StatusTracker) Text() string {
	return statusText[t.Current()]
}

func (t *StatusTracker) IsReady() bool {
	s := t.Current()
	return s == StatusReady || s == StatusStatesSynced
}

func (t *StatusTracker) IsSyncing() bool {
	return t.Current() == StatusSyncing
}

// fire attempts the transition. A same-state event is not a distinct
// transition and emits nothing; an invalid one is logged and ignored
// (transitions are total at the call sites).
func (t *StatusTracker) fire(event string) {
	t.mu.Lock()
	err := t.machine.Event(context.Background(), event)
	if err != nil {
		t.mu.Unlock()
		var nt fsm.NoTransitionError
		if !errors.As(err, &nt) {
			t.logger.Warn("status transition rejected", zap.String("event", event), zap.Error(err))
		}
		return
	}
	state := t.machine.Current()
	if state == StatusSyncing && time.Since(t.lastEmit) < intermediateEmitGap {
		t.mu.Unlock()
		return
	}
	t.lastEmit = time.Now()
	cb := t.cb
	ready := state == StatusReady || state == StatusStatesSynced
	syncing := state == StatusSyncing
	text := statusText[state]
	t.mu.Unlock()

	t.logger.Debug("status transition", zap.String("state", state))
	if cb != nil {
		cb(ready, syncing, text)
	}
}
