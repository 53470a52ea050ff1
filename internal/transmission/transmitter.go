package transmission

import "github.com/jkaberg/genie-hass/internal/domain"

// Transmitter defines the interface for sending snapshots to the host.
type Transmitter interface {
	Transmit(snap *domain.Snapshot) error
	IsConnected() bool
}

var _ Transmitter = (*MQTTTransmitter)(nil)
