package events

import (
	"paneldash/internal/entity"
	"paneldash/internal/serial"

	. "paneldash/internal/core/domain"
)

const (
	WIDGET_ID_TELEMETRY   = "telemetry"
	WIDGET_ID_SERIAL_LINK = "serial_link"
	WIDGET_ID_WIFI_LINK   = "wifi_link"
	WIDGET_ID_SWITCH      = "switch"
	WIDGET_ID_HA_STATUS   = "ha_status"
	WIDGET_ID_STATES_SYNC = "states_sync"
	WIDGET_ID_UPTIME      = "uptime"
)

func TelemetryToUpdateEvent(rec serial.Record) any {
	return TelemetryUpdateEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_TELEMETRY,
		},
		Record: rec,
	}
}

func TelemetryResetToEvent() any {
	return TelemetryResetEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_TELEMETRY,
		},
	}
}

func SerialLinkToUpdateEvent(connected bool) any {
	return SerialLinkUpdateEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_SERIAL_LINK,
		},
		Connected: connected,
	}
}

func WifiLinkToUpdateEvent(connected bool, text string) any {
	return WifiLinkUpdateEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_WIFI_LINK,
		},
		Connected: connected,
		Text:      text,
	}
}

// SwitchStatesToUpdateEvents maps parsed slot states to per-slot switch
// events. Slots whose entity was not found produce no event, so the UI
// keeps its last known value.
func SwitchStatesToUpdateEvents(states []entity.State) []any {
	var evs []any
	for slot, s := range states {
		if !s.Found() {
			continue
		}
		evs = append(evs, SwitchStateUpdateEvent{
			DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
				Id: WIDGET_ID_SWITCH,
			},
			Slot:  slot,
			Value: s.IsOn(),
		})
	}
	return evs
}

func CoordinatorStatusToUpdateEvent(ready, syncing bool, text string) any {
	return CoordinatorStatusUpdateEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_HA_STATUS,
		},
		Ready:   ready,
		Syncing: syncing,
		Text:    text,
	}
}

func StatesSyncToEvent(states []entity.State) any {
	flags := make([]bool, len(states))
	count := 0
	for i, s := range states {
		flags[i] = s.IsOn()
		if s.Found() {
			count++
		}
	}
	return StatesSyncedEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_STATES_SYNC,
		},
		States: flags,
		Count:  count,
	}
}

func UptimeToUpdateEvent(text string) any {
	return UptimeUpdateEvent{
		DisplayUpdateEventMixIn: DisplayUpdateEventMixIn{
			Id: WIDGET_ID_UPTIME,
		},
		Text: text,
	}
}
