// Package extract turns fetched page text into structured article records by
// prompting the model with a fixed JSON schema.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/pkg/anthropic"
)

const systemPrompt = `You extract news article listings from scraped web pages.

Given page content, identify every distinct news article headline and its link.
Respond with ONLY a JSON object matching this schema, no prose:

{"articles": [{"headline": "<article headline>", "url": "<article link>"}]}

Rules:
- Include only actual news articles, not navigation, ads, or section labels.
- Use the exact headline text from the page.
- Use the article's own link, which may be relative to the page.
- If the page has no articles, respond with {"articles": []}.`

const maxPageChars = 150_000

// Extractor prompts the model to pull headline/url pairs out of page text.
type Extractor struct {
	client anthropic.Client
	model  string
}

// New creates an Extractor bound to a model id.
func New(client anthropic.Client, modelID string) *Extractor {
	return &Extractor{client: client, model: modelID}
}

// Extract returns the article records found in the page text. Records with a
// missing headline or an unparsable URL are dropped; relative URLs are
// resolved against the source page.
func (e *Extractor) Extract(ctx context.Context, src model.Source, pageText string) ([]model.ExtractedRecord, error) {
	if strings.TrimSpace(pageText) == "" {
		return nil, eris.Errorf("extract: empty page content for %s", src.URL)
	}
	if len(pageText) > maxPageChars {
		pageText = pageText[:maxPageChars]
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 8192,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Page URL: %s\n\nPage content:\n%s", src.URL, pageText)},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: model call for %s", src.URL)
	}
	resp.Usage.LogCost(e.model, "extract")

	records, err := parseRecords(resp.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse response for %s", src.URL)
	}

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse source url %s", src.URL)
	}

	out := make([]model.ExtractedRecord, 0, len(records))
	for _, rec := range records {
		headline := normalizeHeadline(rec.Headline)
		if headline == "" || rec.URL == "" {
			zap.L().Debug("extract: dropping incomplete record",
				zap.String("source", src.URL),
				zap.String("headline", rec.Headline),
				zap.String("url", rec.URL),
			)
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(rec.URL))
		if err != nil {
			zap.L().Debug("extract: dropping record with bad url",
				zap.String("source", src.URL),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
			continue
		}
		out = append(out, model.ExtractedRecord{
			Headline: headline,
			URL:      base.ResolveReference(ref).String(),
		})
	}

	zap.L().Info("extract: records extracted",
		zap.String("source", src.URL),
		zap.Int("raw", len(records)),
		zap.Int("kept", len(out)),
	)
	return out, nil
}

func parseRecords(text string) ([]model.ExtractedRecord, error) {
	cleaned := cleanJSON(text)

	var raw struct {
		Articles []model.ExtractedRecord `json:"articles"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "unmarshal articles")
	}
	return raw.Articles, nil
}

// normalizeHeadline collapses whitespace and applies NFC so the same headline
// scraped twice compares equal.
func normalizeHeadline(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
