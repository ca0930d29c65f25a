package entity

// Field length caps match the fixed-size slots the dashboard renders into.
const (
	MaxEntityIDLen     = 63
	MaxStateLen        = 255
	MaxFriendlyNameLen = 63
)

const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
	StateUnknown     = "unknown"
)

// State is the local mirror of one remote entity. An empty EntityID means
// the slot has not been filled by any sync yet.
type State struct {
	EntityID     string
	State        string
	FriendlyName string
	LastUpdated  int64
}

func (s State) Found() bool {
	return s.EntityID != ""
}

func (s State) IsOn() bool {
	return s.State == StateOn
}

func (s State) Available() bool {
	return s.Found() && s.State != StateUnavailable && s.State != StateUnknown
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
