package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paneldash/internal/watchdog"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrTruncated    = errors.New("payload looks truncated")
)

// keepaliveStride is how many requested ids are matched between watchdog
// feeds during a bulk scan.
const keepaliveStride = 10

type wireEntity struct {
	EntityID   string `json:"entity_id"`
	State      string `json:"state"`
	Attributes struct {
		FriendlyName string `json:"friendly_name"`
	} `json:"attributes"`
	LastUpdated time.Time `json:"last_updated"`
}

func (w wireEntity) toState() State {
	s := State{
		EntityID:     truncate(w.EntityID, MaxEntityIDLen),
		State:        truncate(w.State, MaxStateLen),
		FriendlyName: truncate(w.Attributes.FriendlyName, MaxFriendlyNameLen),
	}
	if !w.LastUpdated.IsZero() {
		s.LastUpdated = w.LastUpdated.Unix()
	} else {
		s.LastUpdated = time.Now().Unix()
	}
	return s
}

// ParseSingle decodes one entity object, as returned by a targeted GET.
func ParseSingle(payload []byte) (State, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return State{}, ErrEmptyPayload
	}
	var w wireEntity
	if err := json.Unmarshal(payload, &w); err != nil {
		return State{}, fmt.Errorf("decode entity: %w", err)
	}
	if w.EntityID == "" {
		return State{}, errors.New("entity object has no entity_id")
	}
	return w.toState(), nil
}

// ParseBulk decodes an array of entity objects and fills out[i] for every
// requested id found in the array. Slots whose id is absent are left
// zeroed. Returns the number of ids found.
//
// Elements are streamed so a payload cut off by the capture cap still
// yields its complete prefix; ErrTruncated surfaces only when nothing
// could be salvaged. The scan feeds keepalive after every few elements so
// a starved watchdog never fires mid-parse.
func ParseBulk(payload []byte, ids []string, out []State, keepalive watchdog.Keepalive) (int, error) {
	if len(ids) != len(out) {
		return 0, errors.New("ids and out length mismatch")
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return 0, ErrEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("decode entity array: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, errors.New("payload is not an entity array")
	}

	var all []wireEntity
	for dec.More() {
		var w wireEntity
		if err := dec.Decode(&w); err != nil {
			if len(all) == 0 {
				return 0, fmt.Errorf("%w: %v", ErrTruncated, err)
			}
			// incomplete tail; keep the salvaged prefix
			break
		}
		all = append(all, w)
		if keepalive != nil && len(all)%keepaliveStride == 0 {
			keepalive()
		}
	}

	found := 0
	for i, id := range ids {
		out[i] = State{}
		for _, w := range all {
			if w.EntityID == id {
				out[i] = w.toState()
				found++
				break
			}
		}
		if keepalive != nil && (i+1)%keepaliveStride == 0 {
			keepalive()
		}
	}
	if keepalive != nil {
		keepalive()
	}
	return found, nil
}
