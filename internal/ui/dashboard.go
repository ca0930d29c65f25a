package ui

import (
	"time"

	"paneldash/internal/config"
	"paneldash/internal/serial"

	"go.uber.org/zap"
)

// statusLockTimeout bounds how long a status publisher may wait for the
// gate before dropping the update.
const statusLockTimeout = 200 * time.Millisecond

// Snapshot is a consistent copy of everything the panels render.
type Snapshot struct {
	Telemetry       serial.Record
	TelemetryValid  bool
	SerialConnected bool
	WifiConnected   bool
	WifiText        string
	Switches        []bool
	StatusText      string
	StatusColor     int
	Uptime          string
}

// Dashboard owns the rendered model of the panels. Every mutation runs
// under the gate; producers that must not stall use the timed variants
// and drop on timeout.
type Dashboard struct {
	gate   *Gate
	reg    *Registry
	logger *zap.Logger

	labels  []string
	slotIDs []string

	// model, guarded by the gate
	telemetry       serial.Record
	telemetryValid  bool
	serialConnected bool
	wifiConnected   bool
	wifiText        string
	wifiOnceFired   bool
	switches        []bool
	statusText      string
	statusColor     int
	uptime          string
}

func NewDashboard(gate *Gate, reg *Registry, entities config.EntityConfig, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		gate:        gate,
		reg:         reg,
		logger:      logger.With(zap.String("component", "ui")),
		labels:      entities.SwitchLabels(),
		slotIDs:     entities.SwitchIDs(),
		switches:    make([]bool, config.SwitchCount),
		statusText:  FormatHAStatus("Offline"),
		statusColor: ColorFailed,
		wifiText:    "Disconnected",
	}
}

func (d *Dashboard) Gate() *Gate {
	return d.gate
}

// ApplyTelemetry renders one telemetry record. Called with the gate held.
func (d *Dashboard) ApplyTelemetry(rec serial.Record) {
	d.gate.AssertHeld()
	d.telemetry = rec
	d.telemetryValid = true
	d.reg.mu.Lock()
	f := d.reg.telemetry
	d.reg.mu.Unlock()
	if f != nil {
		f(rec)
	}
}

// ResetTelemetry restores default values after the serial link goes stale.
func (d *Dashboard) ResetTelemetry() {
	d.gate.AssertHeld()
	d.telemetry = serial.Record{}
	d.telemetryValid = false
	d.reg.mu.Lock()
	f := d.reg.telemetryRst
	d.reg.mu.Unlock()
	if f != nil {
		f()
	}
}

func (d *Dashboard) ApplySerialStatus(connected bool) {
	d.gate.AssertHeld()
	d.serialConnected = connected
	d.reg.mu.Lock()
	f := d.reg.serialStatus
	d.reg.mu.Unlock()
	if f != nil {
		f(connected)
	}
}

func (d *Dashboard) ApplyWifiStatus(connected bool, text string) {
	d.gate.AssertHeld()
	d.wifiConnected = connected
	d.wifiText = text
	d.reg.mu.Lock()
	f := d.reg.wifiStatus
	once := d.reg.wifiOnce
	d.reg.mu.Unlock()
	if f != nil {
		f(connected, text)
	}
	// the one-shot hook fires on the first connected render only
	if connected && !d.wifiOnceFired {
		d.wifiOnceFired = true
		if once != nil {
			once()
		}
	}
}

func (d *Dashboard) ApplySwitch(slot int, on bool) {
	d.gate.AssertHeld()
	if slot < 0 || slot >= len(d.switches) {
		d.logger.Warn("switch slot out of range", zap.Int("slot", slot))
		return
	}
	d.switches[slot] = on
	d.reg.mu.Lock()
	f := d.reg.switchDisplay
	d.reg.mu.Unlock()
	if f != nil {
		f(slot, on)
	}
}

func (d *Dashboard) ApplyHAStatus(ready, syncing bool, text string) {
	d.gate.AssertHeld()
	d.statusText = FormatHAStatus(text)
	d.statusColor = StatusColor(ready, syncing)
	d.reg.mu.Lock()
	f := d.reg.haStatus
	d.reg.mu.Unlock()
	if f != nil {
		f(ready, syncing, text)
	}
}

func (d *Dashboard) ApplyStatesSync(states []bool, count int) {
	d.gate.AssertHeld()
	for i, on := range states {
		if i < len(d.switches) {
			d.switches[i] = on
		}
	}
	d.reg.mu.Lock()
	f := d.reg.statesSync
	d.reg.mu.Unlock()
	if f != nil {
		f(states, count)
	}
}

func (d *Dashboard) ApplyUptime(text string) {
	d.gate.AssertHeld()
	d.uptime = text
	d.reg.mu.Lock()
	f := d.reg.uptime
	d.reg.mu.Unlock()
	if f != nil {
		f(text)
	}
}

// UpdateHAStatus is the bounded-wait path used by the status tracker.
// Dropped updates are logged; a later terminal transition repaints.
func (d *Dashboard) UpdateHAStatus(ready, syncing bool, text string) bool {
	if !d.gate.Lock(statusLockTimeout) {
		d.logger.Warn("status update dropped, gate busy", zap.String("text", text))
		return false
	}
	defer d.gate.Unlock()
	d.ApplyHAStatus(ready, syncing, text)
	return true
}

// TouchSwitch is the input driver's entry point for a switch toggle.
func (d *Dashboard) TouchSwitch(slot int, on bool) {
	if slot < 0 || slot >= len(d.labels) {
		return
	}
	cbs := d.reg.smartHomeCallbacks()
	if cbs.Switch == nil {
		return
	}
	cbs.Switch(d.slotIDs[slot], on)
}

// TouchScene is the input driver's entry point for the scene button.
func (d *Dashboard) TouchScene() {
	cbs := d.reg.smartHomeCallbacks()
	if cbs.Scene != nil {
		cbs.Scene()
	}
}

// Snapshot copies the model under a bounded gate acquisition. The zero
// Snapshot and false are returned when the gate stays busy.
func (d *Dashboard) Snapshot() (Snapshot, bool) {
	if !d.gate.Lock(statusLockTimeout) {
		return Snapshot{}, false
	}
	defer d.gate.Unlock()
	snap := Snapshot{
		Telemetry:       d.telemetry,
		TelemetryValid:  d.telemetryValid,
		SerialConnected: d.serialConnected,
		WifiConnected:   d.wifiConnected,
		WifiText:        d.wifiText,
		Switches:        append([]bool(nil), d.switches...),
		StatusText:      d.statusText,
		StatusColor:     d.statusColor,
		Uptime:          d.uptime,
	}
	return snap, true
}
