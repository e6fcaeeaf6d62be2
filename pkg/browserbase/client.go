// Package browserbase provides a client for the remote headless-browser
// session provider: session creation and extension upload/management.
package browserbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newswatch/internal/resilience"
)

// Client defines the browser-session provider operations.
type Client interface {
	// CreateSession provisions a new remote browser session and returns its
	// CDP connect endpoint.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ReleaseSession requests session termination. Completed sessions expire
	// on their own; this is a best-effort early release.
	ReleaseSession(ctx context.Context, sessionID string) error

	// CreateExtension uploads a packaged extension archive and returns a
	// reusable handle.
	CreateExtension(ctx context.Context, archive []byte) (*Extension, error)
	// GetExtension retrieves an extension handle by id.
	GetExtension(ctx context.Context, id string) (*Extension, error)
	// DeleteExtension removes an uploaded extension.
	DeleteExtension(ctx context.Context, id string) error
}

// SessionRequest configures a new browser session.
type SessionRequest struct {
	ProjectID   string `json:"projectId"`
	ExtensionID string `json:"extensionId,omitempty"`
	Proxies     bool   `json:"proxies,omitempty"`
}

// Session is a provisioned remote browser session.
type Session struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
	Status     string `json:"status"`
}

// Extension is an uploaded extension handle.
type Extension struct {
	ID string `json:"id"`
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("browserbase: status %d: %s", e.Status, e.Body)
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new browser-session provider client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.browserbase.com/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "browserbase: marshal session request")
	}

	var session Session
	err = c.doJSON(ctx, http.MethodPost, "/sessions", "application/json", bytes.NewReader(body), &session)
	if err != nil {
		return nil, err
	}
	if session.ConnectURL == "" {
		return nil, eris.New("browserbase: session response missing connect url")
	}
	return &session, nil
}

func (c *httpClient) ReleaseSession(ctx context.Context, sessionID string) error {
	body := []byte(`{"status":"REQUEST_RELEASE"}`)
	return c.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID, "application/json", bytes.NewReader(body), nil)
}

func (c *httpClient) CreateExtension(ctx context.Context, archive []byte) (*Extension, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "extension.zip")
	if err != nil {
		return nil, eris.Wrap(err, "browserbase: create multipart part")
	}
	if _, err := part.Write(archive); err != nil {
		return nil, eris.Wrap(err, "browserbase: write archive")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "browserbase: close multipart writer")
	}

	var ext Extension
	if err := c.doJSON(ctx, http.MethodPost, "/extensions", mw.FormDataContentType(), &buf, &ext); err != nil {
		return nil, err
	}
	if ext.ID == "" {
		return nil, eris.New("browserbase: extension response missing id")
	}
	return &ext, nil
}

func (c *httpClient) GetExtension(ctx context.Context, id string) (*Extension, error) {
	var ext Extension
	if err := c.doJSON(ctx, http.MethodGet, "/extensions/"+id, "", nil, &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

func (c *httpClient) DeleteExtension(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/extensions/"+id, "", nil, nil)
}

// doJSON issues a request with the API key header and decodes a JSON
// response into out (when out is non-nil). Transient statuses are retried.
func (c *httpClient) doJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	// Buffer the body so retries can replay it.
	var payload []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return eris.Wrap(err, "browserbase: read request body")
		}
		payload = b
	}

	return resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return eris.Wrap(err, "browserbase: create request")
		}
		req.Header.Set("X-BB-API-Key", c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "browserbase: request failed")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "browserbase: read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode, Body: string(respBody)}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(apiErr, resp.StatusCode)
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return eris.Wrap(err, "browserbase: decode response")
			}
		}
		return nil
	})
}
