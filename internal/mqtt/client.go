package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// TopicRoot is the prefix of every state and availability topic.
const TopicRoot = "ritualsgenie"

// DefaultPublishTimeout bounds a publish when NewClient gets no timeout.
const DefaultPublishTimeout = 5 * time.Second

// Client wraps the paho client for one bridge instance.
type Client struct {
	client     mqtt.Client
	bridgeID   string
	pubTimeout time.Duration
	logger     *logrus.Logger
}

// NewClient connects to the broker. mqtt://, mqtts://, ws:// and wss:// URLs
// are accepted; credentials are taken from the URL user info. The broker is
// told to publish "offline" on the availability topic if we vanish. Every
// publish waits at most publishTimeout for the broker's acknowledgement.
func NewClient(mqttURL, bridgeID string, publishTimeout time.Duration, logger *logrus.Logger) (*Client, error) {
	opts, err := clientOptions(mqttURL, bridgeID, logger)
	if err != nil {
		return nil, err
	}

	firstConnect := true
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if firstConnect {
			logger.Debug("MQTT connected")
			firstConnect = false
		} else {
			logger.Info("MQTT reconnected")
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(mqttURL),
		"client_id": opts.ClientID,
	}).Info("MQTT client connected")

	return newClient(client, bridgeID, publishTimeout, logger), nil
}

func newClient(client mqtt.Client, bridgeID string, publishTimeout time.Duration, logger *logrus.Logger) *Client {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Client{
		client:     client,
		bridgeID:   bridgeID,
		pubTimeout: publishTimeout,
		logger:     logger,
	}
}

func clientOptions(mqttURL, bridgeID string, logger *logrus.Logger) (*mqtt.ClientOptions, error) {
	parsedURL, err := url.Parse(mqttURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	opts := mqtt.NewClientOptions()

	var brokerURL string
	switch parsedURL.Scheme {
	case "ws":
		brokerURL = mqttURL
		logger.Debug("Using WebSocket MQTT connection")
	case "wss":
		brokerURL = mqttURL
		logger.Debug("Using secure WebSocket MQTT connection")
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	case "mqtt":
		brokerURL = strings.Replace(mqttURL, "mqtt://", "tcp://", 1)
		logger.Debug("Using standard MQTT connection (TCP)")
	case "mqtts":
		brokerURL = strings.Replace(mqttURL, "mqtts://", "ssl://", 1)
		logger.Debug("Using secure MQTT connection (SSL/TLS)")
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	default:
		return nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", parsedURL.Scheme)
	}

	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("genie-hass-%s", bridgeID))
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(AvailabilityTopic(bridgeID), "offline", 1, true)

	if parsedURL.User != nil {
		password, _ := parsedURL.User.Password()
		opts.SetUsername(parsedURL.User.Username())
		opts.SetPassword(password)
	}
	return opts, nil
}

// Publish publishes payload to topic with QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(c.pubTimeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, c.pubTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"retained": retained,
	}).Debug("Published MQTT message")
	return nil
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect marks the bridge offline and disconnects.
func (c *Client) Disconnect(quiesce uint) {
	if err := c.Publish(AvailabilityTopic(c.bridgeID), []byte("offline"), true); err != nil {
		c.logger.WithError(err).Debug("Failed to publish offline availability")
	}
	c.client.Disconnect(quiesce)
	c.logger.Debug("MQTT client disconnected")
}

// cleanURL removes credentials from URL for logging.
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}
	return parsed.String()
}

// AvailabilityTopic is shared by every entity of a bridge.
func AvailabilityTopic(bridgeID string) string {
	return BuildCleanTopic(TopicRoot, bridgeID, "availability")
}

// StateTopic returns the state topic of one entity.
func StateTopic(hubName, objectID string) string {
	return BuildCleanTopic(TopicRoot, hubName, objectID, "state")
}

// DiscoveryTopic returns the Home Assistant discovery config topic.
func DiscoveryTopic(prefix, platform, nodeID, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, platform, BuildCleanTopic(nodeID), BuildCleanTopic(objectID))
}

// BuildCleanTopic joins parts into a topic, replacing characters MQTT or
// Home Assistant reject.
func BuildCleanTopic(parts ...string) string {
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.ReplaceAll(part, " ", "_")
		clean = strings.ReplaceAll(clean, "/", "_")
		clean = strings.ReplaceAll(clean, "+", "plus")
		clean = strings.ReplaceAll(clean, "#", "hash")
		cleanParts = append(cleanParts, strings.ToLower(clean))
	}
	return strings.Join(cleanParts, "/")
}
