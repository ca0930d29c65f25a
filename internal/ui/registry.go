package ui

import (
	"sync"

	"paneldash/internal/serial"
)

type TelemetryFn func(rec serial.Record)

type WifiStatusFn func(connected bool, text string)

type SerialStatusFn func(connected bool)

type HAStatusFn func(ready, syncing bool, text string)

type StatesSyncFn func(states []bool, count int)

// SmartHomeCallbacks carries the touch-to-app direction: the coordinator
// registers these so widget touches become service calls.
type SmartHomeCallbacks struct {
	Switch func(entityID string, on bool)
	Scene  func()
}

// Registry is the application-boundary registration surface. Display
// hooks are set once at startup; an unregistered hook drops the event.
type Registry struct {
	mu sync.Mutex

	telemetry     TelemetryFn
	telemetryRst  func()
	wifiStatus    WifiStatusFn
	wifiOnce      func()
	serialStatus  SerialStatusFn
	haStatus      HAStatusFn
	statesSync    StatesSyncFn
	smartHome     SmartHomeCallbacks
	uptime        func(text string)
	switchDisplay func(slot int, on bool)
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) RegisterTelemetry(f TelemetryFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = f
}

// RegisterTelemetryReset sets the hook used to restore default values
// when the serial link goes stale.
func (r *Registry) RegisterTelemetryReset(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetryRst = f
}

func (r *Registry) RegisterWifiStatus(f WifiStatusFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wifiStatus = f
}

func (r *Registry) RegisterWifiConnectedOnce(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wifiOnce = f
}

func (r *Registry) RegisterSerialStatus(f SerialStatusFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serialStatus = f
}

func (r *Registry) RegisterHAStatus(f HAStatusFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haStatus = f
}

func (r *Registry) RegisterStatesSync(f StatesSyncFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statesSync = f
}

func (r *Registry) RegisterSmartHomeCallbacks(cbs SmartHomeCallbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.smartHome = cbs
}

func (r *Registry) RegisterUptime(f func(text string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uptime = f
}

func (r *Registry) RegisterSwitchDisplay(f func(slot int, on bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switchDisplay = f
}

func (r *Registry) smartHomeCallbacks() SmartHomeCallbacks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.smartHome
}
