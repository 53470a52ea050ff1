package sensors

import (
	"fmt"
	"strings"
)

// ParseKinds reads a comma separated list of sensor kinds, e.g.
// "battery_status,perfume_name". An empty list selects every kind.
// Duplicates are dropped; the result keeps the order of AllSensors so the
// entities always register in the same order.
func ParseKinds(raw string) ([]SensorKind, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AllKinds(), nil
	}

	wanted := make(map[SensorKind]bool)
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		kind := SensorKind(p)
		if err := kind.Validate(); err != nil {
			return nil, err
		}
		wanted[kind] = true
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("no sensor kinds in %q", raw)
	}

	kinds := make([]SensorKind, 0, len(wanted))
	for _, def := range AllSensors {
		if wanted[def.Kind] {
			kinds = append(kinds, def.Kind)
		}
	}
	return kinds, nil
}

// EntityID returns the Home Assistant style entity id of a field view,
// e.g. "ritualsgenie.living_battery_status".
func EntityID(hubName string, kind SensorKind) string {
	return "ritualsgenie." + strings.ToLower(hubName+"_"+string(kind))
}

// StatusEntityID returns the entity id of a hub's status view.
func StatusEntityID(hubName string) string {
	return "ritualsgenie." + strings.ToLower(hubName+"_status")
}

// ObjectID turns an entity id into something safe for MQTT topics and HA
// object ids.
func ObjectID(entityID string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "/", "_", "+", "plus", "#", "hash")
	return strings.ToLower(r.Replace(entityID))
}
