package discord

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

const (
	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 1 << 20
	userAgent        = "DiscordBot (https://github.com/flemzord/sandy, 1.0)"
)

// Client is a thin HTTP wrapper around the Discord REST API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new REST client.
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do sends a JSON request and decodes the response into out (when non-nil).
// It retries 429 responses after the advertised retry_after, up to
// maxRetries attempts.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("discord: marshal %s %s: %w", method, path, err)
		}
	}

	backoff := initialBackoff
	for attempt := range maxRetries {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("discord: create %s %s request: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", userAgent)
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("discord: %s %s: %w", method, path, err)
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("discord: read %s %s response: %w", method, path, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("discord: decode %s %s response: %w", method, path, err)
			}
			return nil
		}

		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			if apiErr.Retry > 0 {
				backoff = time.Duration(apiErr.Retry * float64(time.Second))
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}
		return apiErr
	}

	return fmt.Errorf("discord: %s %s: max retries exceeded", method, path)
}

// CurrentUser returns the bot account, validating the token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/users/@me", nil, &u)
	return u, err
}

// CreateMessage posts content to a channel, optionally as a reply.
func (c *Client) CreateMessage(ctx context.Context, channelID Snowflake, content string, replyTo Snowflake) (Message, error) {
	req := createMessage{
		Content:         content,
		AllowedMentions: allowedMentions{Parse: []string{"users"}},
	}
	if replyTo != 0 {
		req.MessageReference = &messageReference{MessageID: replyTo}
	}
	var m Message
	err := c.do(ctx, http.MethodPost, "/channels/"+channelID.String()+"/messages", req, &m)
	return m, err
}

// TriggerTyping shows the typing indicator in a channel for about ten
// seconds.
func (c *Client) TriggerTyping(ctx context.Context, channelID Snowflake) error {
	return c.do(ctx, http.MethodPost, "/channels/"+channelID.String()+"/typing", nil, nil)
}
