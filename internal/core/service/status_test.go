package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestTracker() *StatusTracker {
	return NewStatusTracker(zap.Must(zap.NewDevelopment()))
}

func TestStatusTrackerStartsOffline(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	assert.Equal(StatusOffline, tr.Current())
	assert.Equal("Offline", tr.Text())
	assert.False(tr.IsReady())
}

func TestStatusTrackerSyncCycle(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()

	tr.MarkReady()
	assert.Equal(StatusReady, tr.Current())
	assert.True(tr.IsReady())

	tr.MarkSyncing()
	assert.Equal(StatusSyncing, tr.Current())
	assert.True(tr.IsSyncing())
	assert.Equal("Syncing...", tr.Text())

	tr.MarkSynced()
	assert.Equal(StatusStatesSynced, tr.Current())
	assert.True(tr.IsReady())
	assert.Equal("States Synced", tr.Text())
}

func TestStatusTrackerPartialAndFailed(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.MarkSyncing()
	tr.MarkPartial()
	assert.Equal(StatusPartialSync, tr.Current())
	assert.False(tr.IsReady())

	tr.MarkSyncing()
	tr.MarkFailed()
	assert.Equal(StatusSyncFailed, tr.Current())
	assert.Equal("Sync Failed", tr.Text())
}

func TestStatusTrackerTerminalWithoutSyncingIsIgnored(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.MarkSynced()
	assert.Equal(StatusOffline, tr.Current(), "synced is only legal out of syncing")
}

func TestStatusTrackerRepeatedSyncingIsHarmless(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.MarkSyncing()
	tr.MarkSyncing()
	tr.MarkSyncing()
	assert.Equal(StatusSyncing, tr.Current())
}

func TestStatusTrackerCallbackOrder(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()

	var texts []string
	tr.RegisterCallback(func(ready, syncing bool, text string) {
		texts = append(texts, text)
	})

	tr.MarkSyncing()
	tr.MarkSynced()
	tr.MarkOffline()

	assert.Equal([]string{"Syncing...", "States Synced", "Offline"}, texts)
}

func TestStatusTrackerThrottlesSyncingEmits(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()

	emits := 0
	tr.RegisterCallback(func(ready, syncing bool, text string) {
		if syncing {
			emits++
		}
	})

	// rapid flapping between syncing and a terminal state
	for i := 0; i < 5; i++ {
		tr.MarkSyncing()
		tr.MarkFailed()
	}
	assert.Equal(1, emits, "intermediate emissions are rate limited")

	time.Sleep(intermediateEmitGap + 50*time.Millisecond)
	tr.MarkSyncing()
	assert.Equal(2, emits)
}

func TestStatusTrackerReentrantCallback(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.RegisterCallback(func(ready, syncing bool, text string) {
		// a consumer may read the tracker from inside the callback
		_ = tr.Current()
	})

	assert.NotPanics(func() {
		tr.MarkSyncing()
		tr.MarkSynced()
	})
}
