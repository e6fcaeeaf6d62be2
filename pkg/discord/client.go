// Package discord provides a minimal client for the Discord REST API:
// posting messages and embeds to channels with a bot token.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/newswatch/internal/resilience"
)

// Embed colors used by the notifier.
const (
	ColorGrant = 0xFF23A7
	ColorError = 0xFF0000
)

// Client defines the chat transport operations.
type Client interface {
	// SendMessage posts a plain markdown message to a channel.
	SendMessage(ctx context.Context, channelID, content string) error
	// SendEmbed posts a rich embed to a channel.
	SendEmbed(ctx context.Context, channelID string, embed Embed) error
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// APIError is a non-2xx response from Discord.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord: status %d: %s", e.Status, e.Message)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Discord client. A conservative global rate limiter
// (worst-case bot message budget) keeps bursts of per-article notifications
// under the API's global limit.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://discord.com/api/v10",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messagePayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (c *httpClient) SendMessage(ctx context.Context, channelID, content string) error {
	return c.createMessage(ctx, channelID, messagePayload{Content: content})
}

func (c *httpClient) SendEmbed(ctx context.Context, channelID string, embed Embed) error {
	return c.createMessage(ctx, channelID, messagePayload{Embeds: []Embed{embed}})
}

func (c *httpClient) createMessage(ctx context.Context, channelID string, payload messagePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "discord: marshal message")
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.ShouldRetry = func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return resilience.IsTransientHTTPStatus(apiErr.Status)
		}
		return resilience.IsTransient(err)
	}

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "discord: create request")
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "discord: request failed")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "discord: read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: string(respBody)}
		}
		return nil
	})
}
