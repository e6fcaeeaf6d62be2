package model

import "time"

// Grant is a persisted grant topic from the bulk catalog export. The link
// column carries a unique constraint so re-ingesting the full catalog is
// idempotent. Summary starts null and is filled exactly once by the
// enrichment pool; a row with a non-null summary is never re-summarized.
type Grant struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Agency      string    `json:"agency,omitempty"`
	Program     string    `json:"program,omitempty"`
	CloseDate   string    `json:"close_date,omitempty"`
	Summary     *string   `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summarized reports whether the grant already carries a summary.
func (g Grant) Summarized() bool {
	return g.Summary != nil && *g.Summary != ""
}
