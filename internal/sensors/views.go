package sensors

import (
	"context"

	"github.com/jkaberg/genie-hass/internal/hub"
)

// Platform values, as understood by Home Assistant MQTT discovery.
const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"
)

// Binary states as published to Home Assistant.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// DataSource is the shared Data Fetcher as seen by a view.
type DataSource interface {
	Refresh(ctx context.Context)
	Hubs() hub.Hubs
}

// Entity is what the host loop drives: refresh, then read the value.
// A non-nil error from Refresh or Value fails this entity for the current
// cycle only.
type Entity interface {
	EntityID() string
	Hub() string
	Slug() string
	Name() string
	Icon() string
	Platform() string
	DeviceClass() string
	Refresh(ctx context.Context) error
	Value() (string, error)
}

// StatusView reports whether a hub's diffuser fan is running.
type StatusView struct {
	data    DataSource
	hubName string
	slug    string
}

// NewStatusView creates the on/off view for hubName.
func NewStatusView(data DataSource, hubName string) *StatusView {
	return &StatusView{data: data, hubName: hubName, slug: hubName}
}

func (v *StatusView) EntityID() string    { return StatusEntityID(v.slug) }
func (v *StatusView) Hub() string         { return v.hubName }
func (v *StatusView) Slug() string        { return v.slug }
func (v *StatusView) Name() string        { return StatusName }
func (v *StatusView) Icon() string        { return StatusIcon }
func (v *StatusView) Platform() string    { return PlatformBinarySensor }
func (v *StatusView) DeviceClass() string { return StatusDeviceClass }

// Refresh delegates to the shared fetcher and checks the flag is readable.
func (v *StatusView) Refresh(ctx context.Context) error {
	v.data.Refresh(ctx)
	_, err := v.IsOn()
	return err
}

// IsOn reads attributes.fanc from the cached hub state.
func (v *StatusView) IsOn() (bool, error) {
	st, err := v.data.Hubs().Get(v.hubName)
	if err != nil {
		return false, err
	}
	return st.FanOn()
}

// Value renders IsOn as ON/OFF.
func (v *StatusView) Value() (string, error) {
	on, err := v.IsOn()
	if err != nil {
		return "", err
	}
	if on {
		return StateOn, nil
	}
	return StateOff, nil
}

// FieldView exposes one sensor title of a hub.
type FieldView struct {
	data    DataSource
	hubName string
	slug    string
	def     SensorDefinition

	state string
	err   error
}

// NewFieldView creates the view for (hubName, kind). It panics on an unknown
// kind; kinds come from AllSensors or ParseKinds.
func NewFieldView(data DataSource, hubName string, kind SensorKind) *FieldView {
	def := GetSensorByKind(kind)
	if def == nil {
		panic("sensors: unknown kind " + string(kind))
	}
	return &FieldView{data: data, hubName: hubName, slug: hubName, def: *def}
}

func (v *FieldView) EntityID() string    { return EntityID(v.slug, v.def.Kind) }
func (v *FieldView) Hub() string         { return v.hubName }
func (v *FieldView) Slug() string        { return v.slug }
func (v *FieldView) Name() string        { return v.def.Name }
func (v *FieldView) Icon() string        { return v.def.Icon }
func (v *FieldView) Platform() string    { return PlatformSensor }
func (v *FieldView) DeviceClass() string { return "" }

// Refresh delegates to the shared fetcher then re-reads the sensor title.
// On a missing field the previous state is kept and the error returned.
func (v *FieldView) Refresh(ctx context.Context) error {
	v.data.Refresh(ctx)

	st, err := v.data.Hubs().Get(v.hubName)
	if err == nil {
		var title string
		title, err = st.Title(v.def.Code)
		if err == nil {
			v.state = title
		}
	}
	v.err = err
	return err
}

// State is the title read by the last Refresh. It is "" before the first
// successful read.
func (v *FieldView) State() string { return v.state }

// Value returns the last read title, or the error of the last Refresh.
func (v *FieldView) Value() (string, error) {
	if v.err != nil {
		return "", v.err
	}
	return v.state, nil
}
