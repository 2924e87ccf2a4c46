package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client calls a remote validator endpoint. The transport is deliberately
// plain: one POST, JSON in, JSON out. Timeouts belong to the http.Client
// the caller supplies, not to this layer.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient constructs a remote validator client.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

type validateRequest struct {
	Login      string `json:"login"`
	Credential string `json:"credential"`
}

// Validate posts the credentials and decodes the validator's verdict.
func (c *Client) Validate(ctx context.Context, login, credential string) (Result, error) {
	body, err := json.Marshal(validateRequest{Login: login, Credential: credential})
	if err != nil {
		return Result{}, fmt.Errorf("identity: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("identity: validate call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("identity: validator returned %d", resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("identity: decode response: %w", err)
	}
	return result, nil
}

var _ Validator = (*Client)(nil)
