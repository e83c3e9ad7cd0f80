// Package network holds the clients the CLI uses to drive a running instance.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"turbofire/internal/protocol"
)

// APIError is a non-2xx response from the control API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client calls the HTTP control API of a running instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for hostAddr (host:port).
func NewClient(hostAddr, token string) *Client {
	return &Client{
		baseURL: "http://" + hostAddr,
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Status returns the trigger, designation flag and bindings.
func (c *Client) Status(ctx context.Context) (protocol.SnapshotPayload, error) {
	var status protocol.SnapshotPayload
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

// Designate puts the instance into awaiting-designation mode.
func (c *Client) Designate(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/trigger/designate", nil, nil)
}

// SetInterval edits the interval of the binding for input.
func (c *Client) SetInterval(ctx context.Context, input string, intervalMs int) (protocol.BindingPayload, error) {
	var b protocol.BindingPayload
	body := map[string]int{"interval_ms": intervalMs}
	err := c.do(ctx, http.MethodPut, "/api/bindings/"+url.PathEscape(input)+"/interval", body, &b)
	return b, err
}

// Remove deletes the binding for input.
func (c *Client) Remove(ctx context.Context, input string) error {
	return c.do(ctx, http.MethodDelete, "/api/bindings/"+url.PathEscape(input), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
