package rituals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jkaberg/genie-hass/internal/hub"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the Rituals "sense" cloud.
const DefaultBaseURL = "https://rituals.sense-company.com"

// Client talks to the Rituals cloud on behalf of one account.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *logrus.Logger

	mu          sync.Mutex
	accountHash string
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccountHash string `json:"account_hash"`
}

type hubEnvelope struct {
	Hub hub.HubState `json:"hub"`
}

// NewClient creates a Rituals API client. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(baseURL, username, password string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Login exchanges the credentials for an account hash.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Email: c.username, Password: c.password})
	if err != nil {
		return newError(KindDecode, "login", err)
	}

	respBody, err := c.do(ctx, "login", http.MethodPost, c.baseURL+"/ocapi/login", body)
	if err != nil {
		return err
	}

	var resp loginResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return newError(KindDecode, "login", fmt.Errorf("failed to unmarshal login response: %w", err))
	}
	if resp.AccountHash == "" {
		return newError(KindAuth, "login", fmt.Errorf("no account hash in login response"))
	}

	c.mu.Lock()
	c.accountHash = resp.AccountHash
	c.mu.Unlock()

	c.logger.WithField("user", c.username).Debug("Logged in to Rituals cloud")
	return nil
}

// GetHubs lists the account's hubs keyed by room name (hub hash when the
// room is unnamed). It logs in first when no session is held.
func (c *Client) GetHubs(ctx context.Context) (hub.Hubs, error) {
	hash := c.session()
	if hash == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		hash = c.session()
	}

	endpoint := fmt.Sprintf("%s/api/account/hubs/%s", c.baseURL, url.PathEscape(hash))
	respBody, err := c.do(ctx, "get hubs", http.MethodGet, endpoint, nil)
	if err != nil {
		if KindOf(err) == KindAuth {
			c.mu.Lock()
			c.accountHash = ""
			c.mu.Unlock()
		}
		return nil, err
	}

	hubs, err := ParseHubs(respBody)
	if err != nil {
		return nil, newError(KindDecode, "get hubs", err)
	}

	c.logger.WithField("hubs", len(hubs)).Debug("Fetched hubs from Rituals cloud")
	return hubs, nil
}

// ParseHubs decodes the body of the hub listing endpoint.
func ParseHubs(body []byte) (hub.Hubs, error) {
	var envelopes []hubEnvelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hub list: %w", err)
	}

	hubs := make(hub.Hubs, len(envelopes))
	for _, env := range envelopes {
		st := env.Hub
		name := st.RoomName()
		if name == "" {
			name = st.Hash
		}
		if name == "" {
			continue
		}
		st.Name = name
		hubs[name] = st
	}
	return hubs, nil
}

func (c *Client) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountHash
}

// do performs a request and returns the body of a 2xx reply.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, newError(KindNetwork, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, op, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindNetwork, op, fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"op":            op,
		"status_code":   resp.StatusCode,
		"response_size": len(respBody),
	}).Debug("Received API response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, newError(KindAuth, op, fmt.Errorf("API returned status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newError(KindStatus, op, fmt.Errorf("API returned status %d: %s", resp.StatusCode, resp.Status))
	}
	return respBody, nil
}
