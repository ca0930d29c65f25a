package entity

import (
	"errors"
	"time"

	"paneldash/internal/mem"
	"paneldash/internal/metrics"
	"paneldash/internal/watchdog"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("parse queue full")
	ErrWaitExpired = errors.New("parse wait expired")
)

const parseQueueDepth = 2

// waitSlice is the granularity of Handle.Wait. Waiting in slices lets the
// caller feed its watchdog while a large payload is being parsed.
const waitSlice = 2 * time.Second

type parseJob struct {
	payload []byte
	ids     []string
	out     []State
	done    chan parseResult
}

type parseResult struct {
	found int
	err   error
}

// Handle tracks one submitted parse job until completion.
type Handle struct {
	done chan parseResult
}

// Worker parses bulk payloads off the caller's goroutine. Jobs queue up to
// parseQueueDepth deep but are processed one at a time.
type Worker struct {
	jobs      chan parseJob
	stop      chan struct{}
	alloc     mem.Allocator
	keepalive watchdog.Keepalive
	stats     *Stats
	logger    *zap.Logger
}

func NewWorker(alloc mem.Allocator, keepalive watchdog.Keepalive, logger *zap.Logger) *Worker {
	return &Worker{
		jobs:      make(chan parseJob, parseQueueDepth),
		stop:      make(chan struct{}),
		alloc:     alloc,
		keepalive: keepalive,
		stats:     &Stats{},
		logger:    logger.With(zap.String("component", "parse_worker")),
	}
}

func (w *Worker) Start() {
	go w.loop()
}

func (w *Worker) Stop() {
	close(w.stop)
}

func (w *Worker) Stats() StatsSnapshot {
	return w.stats.Snapshot()
}

// Submit copies payload into worker-owned memory and enqueues a parse job.
// Fails with ErrQueueFull when both queue slots are taken; the caller is
// expected to fall back to a synchronous parse.
func (w *Worker) Submit(payload []byte, ids []string, out []State) (*Handle, error) {
	buf := w.alloc.Get(len(payload))
	if buf == nil {
		return nil, mem.ErrExhausted(w.alloc, len(payload))
	}
	copy(buf, payload)

	job := parseJob{
		payload: buf,
		ids:     ids,
		out:     out,
		done:    make(chan parseResult, 1),
	}
	select {
	case w.jobs <- job:
		metrics.ParseJobsTotal.Inc()
		return &Handle{done: job.done}, nil
	default:
		w.alloc.Put(buf)
		return nil, ErrQueueFull
	}
}

// Wait blocks until the job completes or timeout elapses, feeding keepalive
// between slices. Returns the number of ids found.
func (h *Handle) Wait(timeout time.Duration, keepalive watchdog.Keepalive) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		slice := waitSlice
		if remaining := time.Until(deadline); remaining < slice {
			slice = remaining
		}
		if slice <= 0 {
			return 0, ErrWaitExpired
		}
		t := time.NewTimer(slice)
		select {
		case res := <-h.done:
			t.Stop()
			return res.found, res.err
		case <-t.C:
			if keepalive != nil {
				keepalive()
			}
		}
	}
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.stop:
			return
		case job := <-w.jobs:
			start := time.Now()
			found, err := ParseBulk(job.payload, job.ids, job.out, w.keepalive)
			elapsed := time.Since(start)
			if err != nil {
				w.logger.Warn("bulk parse failed", zap.Error(err), zap.Int("payload_size", len(job.payload)))
			}
			w.stats.record(len(job.payload), found, len(job.ids)-found, elapsed)
			w.alloc.Put(job.payload)
			job.done <- parseResult{found: found, err: err}
		}
	}
}
