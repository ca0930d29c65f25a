package ui

import (
	"time"

	"paneldash/internal/core/domain"
	"paneldash/internal/metrics"

	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	telemetryLockTimeout = 100 * time.Millisecond
	defaultLockTimeout   = 300 * time.Millisecond
)

// Subscriber applies display update events to the dashboard under the
// gate. Each application uses a bounded acquisition and drops the event
// when the gate stays busy; that is the back-pressure mechanism.
type Subscriber struct {
	dashboard *Dashboard
	logger    *zap.Logger
	sub       *eventstream.Subscription
	stream    *eventstream.EventStream
}

func NewSubscriber(dashboard *Dashboard, stream *eventstream.EventStream, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		dashboard: dashboard,
		stream:    stream,
		logger:    logger.With(zap.String("component", "ui_subscriber")),
	}
}

func (s *Subscriber) Start() {
	s.sub = s.stream.Subscribe(s.handle)
}

func (s *Subscriber) Stop() {
	if s.sub != nil {
		s.stream.Unsubscribe(s.sub)
		s.sub = nil
	}
}

func (s *Subscriber) handle(evt any) {
	switch ev := evt.(type) {
	case domain.TelemetryUpdateEvent:
		s.withGate(telemetryLockTimeout, "telemetry", func() {
			s.dashboard.ApplyTelemetry(ev.Record)
		})
	case domain.TelemetryResetEvent:
		s.withGate(defaultLockTimeout, "telemetry_reset", func() {
			s.dashboard.ResetTelemetry()
		})
	case domain.SerialLinkUpdateEvent:
		s.withGate(defaultLockTimeout, "serial_link", func() {
			s.dashboard.ApplySerialStatus(ev.Connected)
		})
	case domain.WifiLinkUpdateEvent:
		s.withGate(defaultLockTimeout, "wifi_link", func() {
			s.dashboard.ApplyWifiStatus(ev.Connected, ev.Text)
		})
	case domain.SwitchStateUpdateEvent:
		s.withGate(defaultLockTimeout, "switch", func() {
			s.dashboard.ApplySwitch(ev.Slot, ev.Value)
		})
	case domain.CoordinatorStatusUpdateEvent:
		s.dashboard.UpdateHAStatus(ev.Ready, ev.Syncing, ev.Text)
	case domain.StatesSyncedEvent:
		s.withGate(defaultLockTimeout, "states_sync", func() {
			s.dashboard.ApplyStatesSync(ev.States, ev.Count)
		})
	case domain.UptimeUpdateEvent:
		s.withGate(defaultLockTimeout, "uptime", func() {
			s.dashboard.ApplyUptime(ev.Text)
		})
	}
}

func (s *Subscriber) withGate(timeout time.Duration, what string, apply func()) {
	if !s.dashboard.Gate().Lock(timeout) {
		s.logger.Warn("display update dropped, gate busy", zap.String("widget", what))
		metrics.UIGateDropsTotal.Inc()
		return
	}
	defer s.dashboard.Gate().Unlock()
	apply()
}
