// Package remote is the client for the hosted row store (a PostgREST-style
// REST surface over the members, items, item_schedules, manager_whitelist and
// manager_lock_status collections). The remote store is ground truth for
// everything this agent mirrors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when a targeted row does not exist remotely.
var ErrNotFound = errors.New("remote: row not found")

// Config holds the remote store connection settings.
type Config struct {
	BaseURL string // e.g. https://xyz.supabase.co
	APIKey  string // anon key, sent as apikey + bearer token
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError carries the HTTP status of a failed remote call.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Body)
}

// do issues one REST request against /rest/v1/<path>. prefer sets the Prefer
// header when non-empty; body is JSON-encoded when non-nil; out is decoded
// from the response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, prefer string, body, out any) error {
	u := c.baseURL + "/rest/v1/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// rpc issues one stored-procedure call against /rest/v1/rpc/<name>.
func (c *Client) rpc(ctx context.Context, name string, args, out any) error {
	return c.do(ctx, http.MethodPost, "rpc/"+name, nil, "", args, out)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
