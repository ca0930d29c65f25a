package wifi

import (
	"context"
	"errors"
	"sync"
	"time"

	"paneldash/internal/config"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateFailed       = "failed"

	EventConnect     = "connect"
	EventEstablished = "established"
	EventLost        = "lost"
	EventGiveUp      = "give_up"
)

const (
	maxInBandRetries = 5
	reconnectEvery   = 10 * time.Second
)

// Link is a snapshot of the station association.
type Link struct {
	Connected bool
	SSID      string
	RSSI      int
	IP        string
}

// Driver abstracts the radio. The real adapter lives outside this
// package; tests and host builds plug in their own.
type Driver interface {
	Connect(ctx context.Context, ssid, password string) error
	Disconnect() error
	Status() Link
}

type StatusCallback func(connected bool, text string)

// Manager runs the station lifecycle: bounded in-band retries on
// connect, then a background reconnector until the link comes back.
// The first successful association fires a one-shot callback.
type Manager struct {
	cfg    config.WifiConfig
	driver Driver
	logger *zap.Logger

	mu       sync.Mutex
	machine  *fsm.FSM
	onStatus StatusCallback
	onFirst  func()

	firstOnce sync.Once

	reconnectStop chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(cfg config.WifiConfig, driver Driver, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		driver: driver,
		logger: logger.With(zap.String("component", "wifi")),
		stop:   make(chan struct{}),
	}
	m.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: EventConnect, Src: []string{StateDisconnected, StateFailed}, Dst: StateConnecting},
			{Name: EventEstablished, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: EventLost, Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
			{Name: EventGiveUp, Src: []string{StateConnecting, StateDisconnected}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_" + StateConnected: func(ctx context.Context, e *fsm.Event) {
				m.enterConnected()
			},
			"enter_" + StateFailed: func(ctx context.Context, e *fsm.Event) {
				m.enterFailed()
			},
			"enter_" + StateDisconnected: func(ctx context.Context, e *fsm.Event) {
				m.emitStatus(false, "Disconnected")
			},
		},
	)
	return m
}

// RegisterStatusCallback sets the edge callback for UI indicators.
func (m *Manager) RegisterStatusCallback(f StatusCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = f
}

// RegisterConnectedOnce sets the one-shot first-association callback.
func (m *Manager) RegisterConnectedOnce(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFirst = f
}

// Connect attempts association with bounded in-band retries. On
// exhaustion the manager surfaces Failed and keeps retrying in the
// background every reconnectEvery.
func (m *Manager) Connect() error {
	ssid, password := m.credentials()
	if ssid == "" {
		_ = m.event(EventGiveUp)
		return errors.New("no wifi credentials configured")
	}
	if err := m.event(EventConnect); err != nil {
		return err
	}
	for attempt := 1; attempt <= maxInBandRetries; attempt++ {
		err := m.driver.Connect(context.Background(), ssid, password)
		if err == nil {
			return m.event(EventEstablished)
		}
		m.logger.Warn("association attempt failed",
			zap.String("ssid", ssid), zap.Int("attempt", attempt), zap.Error(err))
	}
	return m.event(EventGiveUp)
}

// NotifyLost feeds a link-drop event from the platform into the machine.
func (m *Manager) NotifyLost() {
	if err := m.event(EventLost); err != nil {
		return
	}
	_ = m.event(EventGiveUp)
}

func (m *Manager) State() string {
	return m.machine.Current()
}

// Associated reports whether the station currently holds an association.
// This is the REST client's precheck.
func (m *Manager) Associated() bool {
	return m.State() == StateConnected && m.driver.Status().Connected
}

func (m *Manager) Status() Link {
	return m.driver.Status()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.stopReconnector()
}

func (m *Manager) credentials() (string, string) {
	return m.cfg.SSID, m.cfg.Password
}

// event drives the machine. The fsm serializes transitions itself, so
// callbacks run without the manager lock held.
func (m *Manager) event(name string) error {
	err := m.machine.Event(context.Background(), name)
	if err != nil {
		var nt fsm.NoTransitionError
		if errors.As(err, &nt) {
			return nil
		}
	}
	return err
}

func (m *Manager) enterConnected() {
	m.stopReconnector()
	link := m.driver.Status()
	text := link.SSID
	if link.RSSI != 0 {
		text = link.SSID + " (" + SignalDescription(link.RSSI) + ")"
	}
	m.emitStatus(true, text)

	m.firstOnce.Do(func() {
		m.mu.Lock()
		onFirst := m.onFirst
		m.mu.Unlock()
		if onFirst != nil {
			onFirst()
		}
	})
}

func (m *Manager) enterFailed() {
	m.emitStatus(false, "Failed")
	m.startReconnector()
}

// startReconnector spawns the low-priority background loop that keeps
// trying every reconnectEvery until the link is back.
func (m *Manager) startReconnector() {
	m.mu.Lock()
	if m.reconnectStop != nil {
		m.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	m.reconnectStop = stopCh
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(reconnectEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-m.stop:
				return
			case <-ticker.C:
				ssid, password := m.credentials()
				m.logger.Info("background reconnect attempt", zap.String("ssid", ssid))
				if err := m.event(EventConnect); err != nil {
					continue
				}
				if err := m.driver.Connect(context.Background(), ssid, password); err != nil {
					m.logger.Warn("background reconnect failed", zap.Error(err))
					_ = m.event(EventGiveUp)
					continue
				}
				_ = m.event(EventEstablished)
				return
			}
		}
	}()
}

func (m *Manager) stopReconnector() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnectStop != nil {
		close(m.reconnectStop)
		m.reconnectStop = nil
	}
}

func (m *Manager) emitStatus(connected bool, text string) {
	m.mu.Lock()
	onStatus := m.onStatus
	m.mu.Unlock()
	if onStatus != nil {
		onStatus(connected, text)
	}
}

// SignalDescription maps an RSSI reading to a display word.
func SignalDescription(rssi int) string {
	switch {
	case rssi >= -50:
		return "excellent"
	case rssi >= -60:
		return "good"
	case rssi >= -70:
		return "fair"
	default:
		return "weak"
	}
}
