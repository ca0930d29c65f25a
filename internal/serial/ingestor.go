package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"paneldash/internal/config"
	"paneldash/internal/mem"
	"paneldash/internal/metrics"

	goserial "github.com/goburrow/serial"
	"go.uber.org/zap"
)

const (
	defaultMaxFrameSize = 4096
	defaultGrace        = 5 * time.Second
	graceMultiplier     = 5
	readChunkSize       = 512
	reopenDelay         = 2 * time.Second
)

type ConnectionCallback func(connected bool)

type DataCallback func(rec Record)

// Ingestor consumes newline-delimited JSON frames from a serial port and
// publishes one Record per decoded frame, plus an edge-triggered
// connection indicator driven by frame freshness.
type Ingestor struct {
	cfg    config.SerialConfig
	open   func() (io.ReadCloser, error)
	alloc  mem.Allocator
	logger *zap.Logger

	mu           sync.Mutex
	onConnection ConnectionCallback
	onData       DataCallback
	connected    bool
	lastFrame    time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewIngestor(cfg config.SerialConfig, logger *zap.Logger) *Ingestor {
	ing := &Ingestor{
		cfg:    cfg,
		alloc:  mem.NewInternal(),
		logger: logger.With(zap.String("component", "serial")),
		stop:   make(chan struct{}),
	}
	ing.open = func() (io.ReadCloser, error) {
		return goserial.Open(&goserial.Config{
			Address:  cfg.Device,
			BaudRate: cfg.BaudRate,
			Timeout:  500 * time.Millisecond,
		})
	}
	return ing
}

// NewIngestorFromReader builds an Ingestor over an arbitrary byte stream.
func NewIngestorFromReader(cfg config.SerialConfig, open func() (io.ReadCloser, error), logger *zap.Logger) *Ingestor {
	ing := NewIngestor(cfg, logger)
	ing.open = open
	return ing
}

// RegisterConnectionCallback sets the edge-triggered liveness callback.
// An unregistered callback drops the event.
func (ing *Ingestor) RegisterConnectionCallback(f ConnectionCallback) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.onConnection = f
}

// RegisterDataCallback sets the per-frame callback.
func (ing *Ingestor) RegisterDataCallback(f DataCallback) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.onData = f
}

// Start spawns the reader and the freshness watcher.
func (ing *Ingestor) Start() {
	ing.wg.Add(2)
	go ing.readLoop()
	go ing.freshnessLoop()
}

func (ing *Ingestor) Stop() {
	ing.stopOnce.Do(func() {
		close(ing.stop)
	})
	ing.wg.Wait()
}

func (ing *Ingestor) maxFrameSize() int {
	if ing.cfg.MaxFrameSize > 0 {
		return ing.cfg.MaxFrameSize
	}
	return defaultMaxFrameSize
}

func (ing *Ingestor) grace() time.Duration {
	if ing.cfg.FrameIntervalMillis > 0 {
		return time.Duration(ing.cfg.FrameIntervalMillis) * time.Millisecond * graceMultiplier
	}
	return defaultGrace
}

func (ing *Ingestor) readLoop() {
	defer ing.wg.Done()
	for {
		select {
		case <-ing.stop:
			return
		default:
		}
		port, err := ing.open()
		if err != nil {
			ing.logger.Warn("serial open failed", zap.String("device", ing.cfg.Device), zap.Error(err))
			select {
			case <-ing.stop:
				return
			case <-time.After(reopenDelay):
			}
			continue
		}
		ing.consume(port)
		_ = port.Close()
	}
}

// consume reads from an open port until the port fails or the ingestor
// stops. Partial frames accumulate in a bounded buffer; an overlong frame
// is discarded up to the next delimiter.
func (ing *Ingestor) consume(port io.ReadCloser) {
	// frame accumulation runs off the fast tier; maxFrameSize keeps the
	// backing array within a single pooled buffer
	backing := ing.alloc.Get(ing.maxFrameSize())
	defer ing.alloc.Put(backing)
	acc := backing[:0]
	overflowing := false
	chunk := make([]byte, readChunkSize)
	for {
		select {
		case <-ing.stop:
			return
		default:
		}
		n, err := port.Read(chunk)
		if n > 0 {
			acc, overflowing = ing.feed(acc, chunk[:n], overflowing)
		}
		if err != nil {
			if errors.Is(err, goserial.ErrTimeout) {
				continue
			}
			if errors.Is(err, io.EOF) {
				// reader drained; keep polling until the producer writes again
				select {
				case <-ing.stop:
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			ing.logger.Warn("serial read failed", zap.Error(err))
			return
		}
	}
}

func (ing *Ingestor) feed(acc, data []byte, overflowing bool) ([]byte, bool) {
	for _, b := range data {
		if b == '\n' {
			if overflowing {
				overflowing = false
				acc = acc[:0]
				continue
			}
			if frame := bytes.TrimSpace(acc); len(frame) > 0 {
				ing.handleFrame(frame)
			}
			acc = acc[:0]
			continue
		}
		if overflowing {
			continue
		}
		if len(acc) >= ing.maxFrameSize() {
			ing.logger.Warn("frame exceeds buffer, discarding", zap.Int("max", ing.maxFrameSize()))
			metrics.TelemetryFrameErrorsTotal.Inc()
			overflowing = true
			acc = acc[:0]
			continue
		}
		acc = append(acc, b)
	}
	return acc, overflowing
}

func (ing *Ingestor) handleFrame(frame []byte) {
	rec, err := DecodeFrame(frame)
	if err != nil {
		ing.logger.Warn("malformed telemetry frame", zap.Error(err))
		metrics.TelemetryFrameErrorsTotal.Inc()
		return
	}
	metrics.TelemetryFramesTotal.Inc()

	ing.mu.Lock()
	ing.lastFrame = time.Now()
	wasConnected := ing.connected
	ing.connected = true
	onConnection := ing.onConnection
	onData := ing.onData
	ing.mu.Unlock()

	if !wasConnected && onConnection != nil {
		onConnection(true)
	}
	if onData != nil {
		onData(rec)
	}
}

func (ing *Ingestor) freshnessLoop() {
	defer ing.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ing.stop:
			return
		case <-ticker.C:
			ing.mu.Lock()
			stale := ing.connected && time.Since(ing.lastFrame) > ing.grace()
			var onConnection ConnectionCallback
			if stale {
				ing.connected = false
				onConnection = ing.onConnection
			}
			ing.mu.Unlock()
			if stale {
				ing.logger.Warn("telemetry stale, marking disconnected", zap.Duration("grace", ing.grace()))
				if onConnection != nil {
					onConnection(false)
				}
			}
		}
	}
}
