// Package store persists articles and grants. The insert operations ignore
// duplicate URLs and report only the rows that are genuinely new, which is
// what drives downstream notification.
package store

import (
	"context"

	"github.com/sells-group/newswatch/internal/model"
)

// selectBatchLimit caps how many unsummarized grants one enrichment cycle
// picks up. Rows beyond the cap are caught by the next scheduled run.
const selectBatchLimit = 1000

// Store defines the persistence interface for the tracking pipelines.
type Store interface {
	// Articles
	InsertArticles(ctx context.Context, articles []model.Article) ([]model.Article, error)

	// Grants
	InsertGrants(ctx context.Context, grants []model.Grant) (int64, error)
	GrantsMissingSummary(ctx context.Context) ([]model.Grant, error)
	SetGrantSummary(ctx context.Context, id string, summary string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
