package sensors

import (
	"fmt"

	"github.com/jkaberg/genie-hass/internal/hub"
)

// SensorKind selects one display value of a Genie hub.
type SensorKind string

const (
	BatteryStatus SensorKind = "battery_status"
	PerfumeLevel  SensorKind = "perfume_level"
	PerfumeName   SensorKind = "perfume_name"
	WiFiSignal    SensorKind = "wifi_signal"
)

// SensorDefinition provides metadata for a sensor kind.
type SensorDefinition struct {
	Kind SensorKind
	Name string
	Icon string
	Code string // key into the hub's "sensors" object
}

// AllSensors defines every kind a hub is exposed with, in display order.
var AllSensors = []SensorDefinition{
	{BatteryStatus, "Battery status", "mdi:battery-70", hub.SensorBattery},
	{PerfumeLevel, "Perfume Level", "mdi:car-coolant-level", hub.SensorPerfumeLevel},
	{PerfumeName, "Perfume name", "mdi:card-text-outline", hub.SensorPerfumeName},
	{WiFiSignal, "WiFi Signal Strength", "mdi:wifi-strength-2", hub.SensorWiFi},
}

// Status view metadata.
const (
	StatusName        = "Status"
	StatusDeviceClass = "running"
	StatusIcon        = "mdi:scent"
)

// GetSensorByKind returns the definition for kind, or nil.
func GetSensorByKind(kind SensorKind) *SensorDefinition {
	for i := range AllSensors {
		if AllSensors[i].Kind == kind {
			return &AllSensors[i]
		}
	}
	return nil
}

// AllKinds returns every SensorKind in display order.
func AllKinds() []SensorKind {
	kinds := make([]SensorKind, 0, len(AllSensors))
	for _, def := range AllSensors {
		kinds = append(kinds, def.Kind)
	}
	return kinds
}

func (k SensorKind) String() string { return string(k) }

// Validate reports whether k is a known kind.
func (k SensorKind) Validate() error {
	if GetSensorByKind(k) == nil {
		return fmt.Errorf("unknown sensor kind %q", string(k))
	}
	return nil
}
