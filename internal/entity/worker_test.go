package entity

import (
	"testing"
	"time"

	"paneldash/internal/mem"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerSubmitAndWait(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	w := NewWorker(mem.NewExternal(0), nil, logger)
	w.Start()
	defer w.Stop()

	ids := []string{"switch.desk_lamp", "switch.fan"}
	out := make([]State, len(ids))

	handle, err := w.Submit([]byte(bulkPayload), ids, out)
	assert.NoError(err)

	found, err := handle.Wait(2*time.Second, nil)
	assert.NoError(err)
	assert.Equal(2, found)
	assert.Equal("switch.desk_lamp", out[0].EntityID)

	stats := w.Stats()
	assert.Equal(uint64(1), stats.JobsProcessed)
	assert.Equal(uint64(2), stats.EntitiesFound)
}

func TestWorkerQueueFull(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	// never started, so the queue only drains on Stop
	w := NewWorker(mem.NewExternal(0), nil, logger)

	ids := []string{"switch.desk_lamp"}

	_, err := w.Submit([]byte(`[]`), ids, make([]State, 1))
	assert.NoError(err)
	_, err = w.Submit([]byte(`[]`), ids, make([]State, 1))
	assert.NoError(err)

	_, err = w.Submit([]byte(`[]`), ids, make([]State, 1))
	assert.ErrorIs(err, ErrQueueFull)
}

func TestWorkerWaitExpires(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	w := NewWorker(mem.NewExternal(0), nil, logger)

	handle, err := w.Submit([]byte(`[]`), []string{"switch.a"}, make([]State, 1))
	assert.NoError(err)

	feeds := 0
	_, err = handle.Wait(10*time.Millisecond, func() { feeds++ })
	assert.ErrorIs(err, ErrWaitExpired)
	assert.Greater(feeds, 0, "waiting must feed the watchdog")
}

func TestWorkerSubmitAllocatorExhausted(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	w := NewWorker(mem.NewExternal(8), nil, logger)

	payload := []byte(`[{"entity_id": "switch.a", "state": "on"}]`)
	_, err := w.Submit(payload, []string{"switch.a"}, make([]State, 1))
	assert.Error(err)
}
