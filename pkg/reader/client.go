// Package reader provides a client for the reader rendering service, which
// renders a target page server-side and returns it as markdown text.
package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newswatch/internal/resilience"
)

// Client defines the reader rendering operations.
type Client interface {
	// Read fetches a URL through the rendering service and returns the
	// rendered page as markdown text.
	Read(ctx context.Context, targetURL string) (string, error)
}

// Option configures the reader client.
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new reader client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, targetURL)

	var text string
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "reader: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-Return-Format", "markdown")
		req.Header.Set("X-No-Cache", "true")

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "reader: request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "reader: read response body")
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("reader: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		text = string(body)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
