package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Default per-call deadlines.
const (
	DefaultCreateTimeout = 10 * time.Second
	DefaultListTimeout   = 15 * time.Second
)

const maxErrorBodySize = 4096

// Client talks to the archive HTTP API.
type Client struct {
	baseURL       string
	http          *http.Client
	createTimeout time.Duration
	listTimeout   time.Duration
	logger        *slog.Logger
	token         string
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithTimeouts overrides the write and read deadlines. Zero keeps the
// default.
func WithTimeouts(create, list time.Duration) ClientOption {
	return func(c *Client) {
		if create > 0 {
			c.createTimeout = create
		}
		if list > 0 {
			c.listTimeout = list
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient returns a client for the archive rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{},
		createTimeout: DefaultCreateTimeout,
		listTimeout:   DefaultListTimeout,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the archive root.
func (c *Client) BaseURL() string { return c.baseURL }

// Create archives a message and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, m Message) (Message, error) {
	var out Message
	err := c.do(ctx, c.createTimeout, http.MethodPost, "/messages/", m, &out)
	return out, err
}

// List returns messages matching q, newest first.
func (c *Client) List(ctx context.Context, q Query) ([]Message, error) {
	var out []Message
	path := "/messages/"
	if enc := q.Values().Encode(); enc != "" {
		path += "?" + enc
	}
	if err := c.do(ctx, c.listTimeout, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one message by id.
func (c *Client) Get(ctx context.Context, id int64) (Message, error) {
	var out Message
	err := c.do(ctx, c.listTimeout, http.MethodGet, "/messages/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// Delete removes one message by id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, c.createTimeout, http.MethodDelete, "/messages/"+strconv.FormatInt(id, 10), nil, nil)
}

// Stats returns archive totals.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.do(ctx, c.listTimeout, http.MethodGet, "/stats/", nil, &out)
	return out, err
}

// Ping checks that the archive answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, c.listTimeout, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("recall: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("recall: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("recall: request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/messages/") && path != "/messages/" {
			return ErrNotFound
		}
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
		return fmt.Errorf("recall: decode response: %w", err)
	}
	return nil
}
