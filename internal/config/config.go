package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jkaberg/genie-hass/internal/rituals"
	"github.com/jkaberg/genie-hass/internal/sensors"
)

// Config holds all configuration options for genie-hass.
type Config struct {
	// Rituals account
	Username   string `json:"username"`
	Password   string `json:"password"`
	RitualsURL string `json:"rituals_url"`
	APITimeout int    `json:"api_timeout"` // seconds

	// MQTT Configuration
	MQTTUrl         string `json:"mqtt_url"`         // MQTT URL (ws, wss, mqtt, mqtts)
	DiscoveryPrefix string `json:"discovery_prefix"` // Home Assistant discovery prefix

	// Bridge
	BridgeID string `json:"bridge_id"`
	Sensors  string `json:"sensors"` // comma separated sensor kinds, empty = all
	Verbose  bool   `json:"verbose"`

	// Optional local state endpoint, e.g. ":8080"
	HTTPListen string `json:"http_listen"`

	FetchInterval       time.Duration `json:"fetch_interval"`
	UpdateInterval      time.Duration `json:"update_interval"`
	SetupRetryInterval  time.Duration `json:"setup_retry_interval"`
	ForceUpdateInterval time.Duration `json:"force_update_interval"` // 0 disables
}

// GetDefaultConfig returns a configuration with sensible defaults.
func GetDefaultConfig() *Config {
	return &Config{
		RitualsURL:          rituals.DefaultBaseURL,
		APITimeout:          int(RitualsTimeout / time.Second),
		DiscoveryPrefix:     "homeassistant",
		BridgeID:            "genie",
		FetchInterval:       MinTimeBetweenFetches,
		UpdateInterval:      UpdateInterval,
		SetupRetryInterval:  SetupRetryInterval,
		ForceUpdateInterval: DefaultForceUpdateInterval,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.BridgeID == "" {
		return fmt.Errorf("bridge ID is required")
	}
	if !strings.HasPrefix(c.RitualsURL, "http://") && !strings.HasPrefix(c.RitualsURL, "https://") {
		return fmt.Errorf("Rituals URL must be http:// or https://")
	}

	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if _, err := sensors.ParseKinds(c.Sensors); err != nil {
		return fmt.Errorf("invalid sensor selection: %w", err)
	}

	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive")
	}
	if c.SetupRetryInterval <= 0 {
		return fmt.Errorf("setup retry interval must be positive")
	}
	if c.ForceUpdateInterval < 0 {
		return fmt.Errorf("force update interval must not be negative")
	}

	if c.APITimeout <= 0 {
		c.APITimeout = int(RitualsTimeout / time.Second)
	}
	if c.FetchInterval < 0 {
		c.FetchInterval = MinTimeBetweenFetches
	}
	return nil
}

// HasMQTT returns true if MQTT is configured.
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// HasHTTP returns true if the local state endpoint is enabled.
func (c *Config) HasHTTP() bool {
	return c.HTTPListen != ""
}

// SensorKinds returns the selected kinds. Call Validate first.
func (c *Config) SensorKinds() []sensors.SensorKind {
	kinds, err := sensors.ParseKinds(c.Sensors)
	if err != nil {
		return sensors.AllKinds()
	}
	return kinds
}

// GetAPITimeout returns the API timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}
