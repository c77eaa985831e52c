// Package pathstore is a minimal client for the pathstore key-value HTTP API.
// Keys are slash-separated paths; values are arbitrary JSON.
package pathstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Source tags every value written by this client.
const Source = "postpack"

// Client talks to one pathstore instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Op         string
	Key        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pathstore %s %s: status %d: %s", e.Op, e.Key, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NotFound reports a 404.
func (e *StatusError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// Entry is one stored value.
type Entry struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

type putBody struct {
	Value  any    `json:"value"`
	Source string `json:"source,omitempty"`
}

// Put stores v as JSON at key, replacing any previous value.
func (c *Client) Put(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(putBody{Value: v, Source: Source})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	resp, err := c.do(ctx, "put", http.MethodPut, key, bytes.NewReader(body), http.StatusOK, http.StatusCreated)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Get returns the value at key. A missing key yields nil, nil.
func (c *Client) Get(ctx context.Context, key string) (json.RawMessage, error) {
	resp, err := c.do(ctx, "get", http.MethodGet, key, nil, http.StatusOK)
	if se, ok := err.(*StatusError); ok && se.NotFound() {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var e Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return e.Value, nil
}

// Delete removes key. A missing key is reported as a *StatusError with
// NotFound set.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.do(ctx, "delete", http.MethodDelete, key, nil, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Scan returns every entry stored directly under prefix.
func (c *Client) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	resp, err := c.do(ctx, "scan", http.MethodGet, prefix+"/*", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Nodes []Entry `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode scan %s: %w", prefix, err)
	}
	return result.Nodes, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// do sends one authenticated request and returns the response when its
// status is one of ok. Any other status is drained into a *StatusError.
func (c *Client) do(ctx context.Context, op, method, key string, body io.Reader, ok ...int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/kv/"+key, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pathstore %s %s: %w", op, key, err)
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, &StatusError{Op: op, Key: key, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}
