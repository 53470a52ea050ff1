package netutil

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// NewTransport returns the transport used for Rituals cloud calls. Dial and
// TLS handshake are bounded so a stalled cloud cannot hang a refresh cycle
// beyond the client timeout.
func NewTransport(logger *logrus.Logger) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialContext(logger),
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
	}
}

func dialContext(logger *logrus.Logger) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := dialer.DialContext(ctx, network, addr)
		entry := logger.WithFields(logrus.Fields{
			"addr":    addr,
			"elapsed": time.Since(start).Round(time.Millisecond),
		})
		if err != nil {
			entry.WithError(err).Debug("Dial failed")
			return nil, err
		}
		entry.Debug("Connected")
		return conn, nil
	}
}

// NewHTTPClient creates an HTTP client with an overall request timeout.
func NewHTTPClient(timeout time.Duration, logger *logrus.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(logger),
	}
}
