// Package model holds the domain types shared across the tracking pipelines.
package model

import "time"

// ExtractedRecord is one {headline, url} pair produced by the extractor.
// Transient: it only reaches the database as part of an Article row.
type ExtractedRecord struct {
	Headline string `json:"headline"`
	URL      string `json:"url"`
}

// Article is a persisted news/blog article. The url column carries a unique
// constraint; inserting a duplicate url is silently ignored.
type Article struct {
	ID        string    `json:"id"`
	Headline  string    `json:"headline"`
	URL       string    `json:"url"`
	Category  Category  `json:"category"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
