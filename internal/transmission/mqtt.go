package transmission

import (
	"encoding/json"
	"fmt"

	"github.com/jkaberg/genie-hass/internal/domain"
	"github.com/jkaberg/genie-hass/internal/mqtt"
	"github.com/jkaberg/genie-hass/internal/sensors"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of *mqtt.Client the transmitter needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}

// MQTTTransmitter registers entities with Home Assistant through MQTT
// discovery and publishes their values.
type MQTTTransmitter struct {
	client           Publisher
	bridgeID         string
	discoveryPrefix  string
	swVersion        string
	logger           *logrus.Logger
	publishedConfigs map[string]bool // unique_id -> discovery config sent
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration.
type HADiscoveryConfig struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	ObjectID          string   `json:"object_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	Icon              string   `json:"icon,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Device            HADevice `json:"device"`
}

// HADevice groups a hub's entities in Home Assistant.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// NewMQTTTransmitter creates a new MQTT transmitter.
func NewMQTTTransmitter(client Publisher, bridgeID, discoveryPrefix, swVersion string, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		bridgeID:         bridgeID,
		discoveryPrefix:  discoveryPrefix,
		swVersion:        swVersion,
		logger:           logger,
		publishedConfigs: make(map[string]bool),
	}
}

func nodeID(prefix string) string {
	return mqtt.BuildCleanTopic("genie_" + prefix)
}

// slug is the hub part of e's topics and device id.
func slug(e domain.EntityState) string {
	if e.Slug != "" {
		return e.Slug
	}
	return e.Hub
}

func (t *MQTTTransmitter) device(e domain.EntityState) HADevice {
	return HADevice{
		Identifiers:  []string{nodeID(slug(e))},
		Name:         fmt.Sprintf("Rituals Genie %s", e.Hub),
		Model:        "Genie",
		Manufacturer: "Rituals",
		SWVersion:    t.swVersion,
	}
}

// discoveryConfig builds the discovery payload of one entity.
func (t *MQTTTransmitter) discoveryConfig(e domain.EntityState) HADiscoveryConfig {
	objectID := sensors.ObjectID(e.EntityID)
	cfg := HADiscoveryConfig{
		Name:              e.Name,
		UniqueID:          objectID,
		ObjectID:          objectID,
		StateTopic:        mqtt.StateTopic(slug(e), objectID),
		AvailabilityTopic: mqtt.AvailabilityTopic(t.bridgeID),
		Icon:              e.Icon,
		DeviceClass:       e.DeviceClass,
		Device:            t.device(e),
	}
	if e.Platform == sensors.PlatformBinarySensor {
		cfg.PayloadOn = sensors.StateOn
		cfg.PayloadOff = sensors.StateOff
	}
	return cfg
}

// publishDiscovery sends the discovery config of e unless already sent.
func (t *MQTTTransmitter) publishDiscovery(e domain.EntityState) error {
	cfg := t.discoveryConfig(e)
	if t.publishedConfigs[cfg.UniqueID] {
		return nil
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}
	topic := mqtt.DiscoveryTopic(t.discoveryPrefix, e.Platform, nodeID(slug(e)), cfg.ObjectID)
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish %s discovery config: %w", e.EntityID, err)
	}

	t.logger.WithFields(logrus.Fields{
		"entity_id": e.EntityID,
		"topic":     topic,
	}).Info("Published entity discovery config")

	t.publishedConfigs[cfg.UniqueID] = true
	return nil
}

// Transmit registers unseen entities and publishes every successfully
// updated value. Entities that failed this cycle keep their previous retained
// state.
func (t *MQTTTransmitter) Transmit(snap *domain.Snapshot) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if snap == nil {
		return nil
	}

	var published, skipped int
	for _, e := range snap.Entities {
		if err := t.publishDiscovery(e); err != nil {
			t.logger.WithError(err).WithField("entity_id", e.EntityID).Error("Failed to publish discovery config")
			continue
		}
		if !e.OK() {
			skipped++
			t.logger.WithFields(logrus.Fields{
				"entity_id": e.EntityID,
				"error":     e.Error,
			}).Debug("Entity update failed, state not published")
			continue
		}
		topic := mqtt.StateTopic(slug(e), sensors.ObjectID(e.EntityID))
		if err := t.client.Publish(topic, []byte(e.Value), true); err != nil {
			return fmt.Errorf("failed to publish state of %s: %w", e.EntityID, err)
		}
		published++
	}

	if err := t.publishAvailability(true); err != nil {
		return fmt.Errorf("failed to publish availability: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"published": published,
		"skipped":   skipped,
	}).Info("Published entity states")
	return nil
}

func (t *MQTTTransmitter) publishAvailability(online bool) error {
	payload := "online"
	if !online {
		payload = "offline"
	}
	return t.client.Publish(mqtt.AvailabilityTopic(t.bridgeID), []byte(payload), true)
}

// IsConnected checks if the MQTT client is connected.
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
