package domain

import (
	"fmt"

	"paneldash/internal/serial"
)

type DisplayUpdateEventMixIn struct {
	Id string
}

type DisplayUpdateEvent interface {
	DisplayUpdateEvent() string
	WidgetId() string
}

func (e DisplayUpdateEventMixIn) DisplayUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e DisplayUpdateEventMixIn) WidgetId() string {
	return e.Id
}

type TelemetryUpdateEvent struct {
	DisplayUpdateEventMixIn
	Record serial.Record
}

type TelemetryResetEvent struct {
	DisplayUpdateEventMixIn
}

type SerialLinkUpdateEvent struct {
	DisplayUpdateEventMixIn
	Connected bool
}

type WifiLinkUpdateEvent struct {
	DisplayUpdateEventMixIn
	Connected bool
	Text      string
}

type SwitchStateUpdateEvent struct {
	DisplayUpdateEventMixIn
	Slot  int
	Value bool
}

type CoordinatorStatusUpdateEvent struct {
	DisplayUpdateEventMixIn
	Ready   bool
	Syncing bool
	Text    string
}

type StatesSyncedEvent struct {
	DisplayUpdateEventMixIn
	States []bool
	Count  int
}

type UptimeUpdateEvent struct {
	DisplayUpdateEventMixIn
	Text string
}
