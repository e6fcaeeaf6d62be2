// Package fetch retrieves raw page content for catalog sources, through
// either the reader rendering service or a remote headless-browser session.
package fetch

import (
	"context"
	"fmt"

	"github.com/sells-group/newswatch/internal/model"
)

// Fetcher retrieves the content of one source's page as text.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) (string, error)
}

// Error is a fetch failure for one source. It wraps the underlying cause so
// the orchestrator can report transport, session, and CAPTCHA failures under
// one taxonomy.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Router dispatches to the strategy-specific fetcher named by the source.
type Router struct {
	Reader  Fetcher
	Browser Fetcher
}

// Fetch selects the fetcher for the source's strategy.
func (r *Router) Fetch(ctx context.Context, src model.Source) (string, error) {
	switch src.Strategy {
	case model.StrategyBrowser:
		if r.Browser == nil {
			return "", &Error{URL: src.URL, Err: fmt.Errorf("browser fetcher not configured")}
		}
		return r.Browser.Fetch(ctx, src)
	case model.StrategyReader:
		if r.Reader == nil {
			return "", &Error{URL: src.URL, Err: fmt.Errorf("reader fetcher not configured")}
		}
		return r.Reader.Fetch(ctx, src)
	default:
		return "", &Error{URL: src.URL, Err: fmt.Errorf("unknown fetch strategy %q", src.Strategy)}
	}
}
