package player

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is an HTTP StatusClient against the sessions API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ StatusClient = (*Client)(nil)

// NewClient creates a status client. token is the platform bearer token of
// the viewer.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SessionStatus fetches GET /sessions/{id}/status and unwraps the response
// envelope.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*Status, error) {
	url := fmt.Sprintf("%s/sessions/%s/status", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool    `json:"success"`
		Data    *Status `json:"data"`
		Error   string  `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success || envelope.Data == nil {
		msg := envelope.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("status fetch failed: %s", msg)
	}
	return envelope.Data, nil
}
