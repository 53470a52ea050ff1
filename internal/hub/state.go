package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Attribute and sensor codes used by the Rituals cloud.
const (
	AttrFanOn    = "fanc"
	AttrRoomName = "roomnamec"

	SensorBattery      = "battc"
	SensorPerfumeLevel = "fillc"
	SensorPerfumeName  = "rfidc"
	SensorWiFi         = "wific"
)

// ErrFieldAbsent is matched (errors.Is) by every FieldAbsentError.
var ErrFieldAbsent = errors.New("field absent")

// FieldAbsentError reports a lookup into a HubState that found nothing.
type FieldAbsentError struct {
	Hub  string
	Path string
}

func (e *FieldAbsentError) Error() string {
	return fmt.Sprintf("hub %q: %s: field absent", e.Hub, e.Path)
}

func (e *FieldAbsentError) Is(target error) bool { return target == ErrFieldAbsent }

// SensorReading is a single entry of a hub's "sensors" object.
type SensorReading struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Title    *string         `json:"title,omitempty"`
	Icon     string          `json:"icon,omitempty"`
	Image    string          `json:"image,omitempty"`
	Discover string          `json:"discover,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// HubState is the last known state of one Genie hub as reported by the cloud.
// The cloud dictates the shape; nothing here is validated or normalized.
type HubState struct {
	Name       string                     `json:"-"`
	Hash       string                     `json:"hash"`
	Attributes map[string]json.RawMessage `json:"attributes"`
	Sensors    map[string]SensorReading   `json:"sensors"`
}

// Hubs maps a hub name to its state.
type Hubs map[string]HubState

// Names returns the hub names in sorted order.
func (h Hubs) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named hub or a FieldAbsentError.
func (h Hubs) Get(name string) (HubState, error) {
	st, ok := h[name]
	if !ok {
		return HubState{}, &FieldAbsentError{Hub: name, Path: "hub"}
	}
	return st, nil
}

// Title returns sensors[code].title.
func (s HubState) Title(code string) (string, error) {
	r, ok := s.Sensors[code]
	if !ok {
		return "", &FieldAbsentError{Hub: s.Name, Path: "sensors." + code}
	}
	if r.Title == nil {
		return "", &FieldAbsentError{Hub: s.Name, Path: "sensors." + code + ".title"}
	}
	return *r.Title, nil
}

// Attribute returns the raw JSON of attributes[code].
func (s HubState) Attribute(code string) (json.RawMessage, error) {
	raw, ok := s.Attributes[code]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, &FieldAbsentError{Hub: s.Name, Path: "attributes." + code}
	}
	return raw, nil
}

// FanOn interprets attributes.fanc as a boolean. The cloud has been seen
// sending booleans, numbers and "0"/"1" strings.
func (s HubState) FanOn() (bool, error) {
	raw, err := s.Attribute(AttrFanOn)
	if err != nil {
		return false, err
	}
	on, err := parseBool(raw)
	if err != nil {
		return false, fmt.Errorf("hub %q: attributes.%s: %w", s.Name, AttrFanOn, err)
	}
	return on, nil
}

// RoomName returns attributes.roomnamec, or "" when absent or not a string.
func (s HubState) RoomName() string {
	raw, ok := s.Attributes[AttrRoomName]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}

func parseBool(raw json.RawMessage) (bool, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("invalid boolean %s: %w", string(raw), err)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no", "":
			return false, nil
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f != 0, nil
		}
	}
	return false, fmt.Errorf("invalid boolean %s", string(raw))
}
