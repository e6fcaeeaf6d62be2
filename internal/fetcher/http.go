// Package fetcher downloads the bulk grant catalog export and streams it as
// CSV rows.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/newswatch/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	RateLimiters map[string]*rate.Limiter
}

// DefaultRateLimiters returns the default per-host rate limiters. The grant
// portal throttles aggressively, so it gets a low budget.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"www.sbir.gov": rate.NewLimiter(2, 2),
		"api.sbir.gov": rate.NewLimiter(5, 5),
	}
}

// HTTPFetcher downloads export files with retry and per-host rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "newswatch/1.0"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(10, 10)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(10, 10)
}

// Download fetches the URL and returns the full response body. An export
// endpoint that takes form parameters gets them as a POST body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	var body []byte

	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limiter wait")
		}

		var req *http.Request
		var err error
		if form != nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
			if err == nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		} else {
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		}
		if err != nil {
			return eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "fetcher: request failed"), 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DownloadToFile fetches the URL into a staging file and returns the number
// of bytes written. The parent directory is created if missing.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, form url.Values, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL, form)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrapf(err, "fetcher: create staging dir for %s", path)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return 0, eris.Wrapf(err, "fetcher: write %s", path)
	}

	zap.L().Info("fetcher: export downloaded",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int("bytes", len(body)),
	)
	return int64(len(body)), nil
}
