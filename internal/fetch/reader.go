package fetch

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/pkg/reader"
)

// ReaderFetcher fetches through the reader rendering service. The service
// renders the page remotely and returns markdown, so no local parsing is
// needed beyond returning the body.
type ReaderFetcher struct {
	client reader.Client
}

// NewReaderFetcher wraps a reader client as a Fetcher.
func NewReaderFetcher(client reader.Client) *ReaderFetcher {
	return &ReaderFetcher{client: client}
}

// Fetch returns the rendered page text for the source URL.
func (f *ReaderFetcher) Fetch(ctx context.Context, src model.Source) (string, error) {
	text, err := f.client.Read(ctx, src.URL)
	if err != nil {
		return "", &Error{URL: src.URL, Err: err}
	}
	zap.L().Debug("fetch: reader returned content",
		zap.String("url", src.URL),
		zap.Int("bytes", len(text)),
	)
	return text, nil
}
