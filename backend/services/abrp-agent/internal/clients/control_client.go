package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ControlClient calls the agent's control API on behalf of the ctl subcommand.
type ControlClient struct {
	base  *baseClient
	token string
}

// NewControlClient returns client for the control API at baseURL.
func NewControlClient(baseURL string, httpClient HTTPDoer) *ControlClient {
	return &ControlClient{base: newBaseClient(baseURL, httpClient)}
}

// Login exchanges the operator password for a bearer token kept by the client.
func (c *ControlClient) Login(ctx context.Context, password string) error {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return err
	}
	status, resp, err := c.base.do(ctx, http.MethodPost, "/api/login", body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("login failed: status %d: %s", status, resp)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	c.token = out.Token
	return nil
}

func (c *ControlClient) authHeaders() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// Info fetches the current telemetry record.
func (c *ControlClient) Info(ctx context.Context) (int, []byte, error) {
	return c.base.do(ctx, http.MethodGet, "/api/telemetry", nil, c.authHeaders())
}

// Onetime triggers one transmission.
func (c *ControlClient) Onetime(ctx context.Context) (int, []byte, error) {
	return c.base.do(ctx, http.MethodPost, "/api/telemetry/onetime", []byte("{}"), c.authHeaders())
}

// Send enables or disables periodic sending.
func (c *ControlClient) Send(ctx context.Context, enabled bool) (int, []byte, error) {
	body, err := json.Marshal(map[string]bool{"enabled": enabled})
	if err != nil {
		return 0, nil, err
	}
	return c.base.do(ctx, http.MethodPost, "/api/agent/send", body, c.authHeaders())
}

// Status fetches the agent status.
func (c *ControlClient) Status(ctx context.Context) (int, []byte, error) {
	return c.base.do(ctx, http.MethodGet, "/api/agent/status", nil, c.authHeaders())
}

// ResetConfig clears the stored agent settings.
func (c *ControlClient) ResetConfig(ctx context.Context) (int, []byte, error) {
	return c.base.do(ctx, http.MethodPost, "/api/config/reset", []byte("{}"), c.authHeaders())
}

// SetToken stores the ABRP user token.
func (c *ControlClient) SetToken(ctx context.Context, token string) (int, []byte, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return 0, nil, err
	}
	return c.base.do(ctx, http.MethodPut, "/api/config/token", body, c.authHeaders())
}

// Event publishes a vehicle event such as vehicle.on.
func (c *ControlClient) Event(ctx context.Context, name string) (int, []byte, error) {
	return c.base.do(ctx, http.MethodPost, "/api/events/"+url.PathEscape(name), []byte("{}"), c.authHeaders())
}
