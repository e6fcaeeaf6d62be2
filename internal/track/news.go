// Package track orchestrates the scheduled pipelines: per-source article
// tracking and bulk grant ingestion.
package track

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/catalog"
	"github.com/sells-group/newswatch/internal/extract"
	"github.com/sells-group/newswatch/internal/fetch"
	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/internal/notify"
	"github.com/sells-group/newswatch/internal/store"
)

// NewsTracker runs the fetch-extract-dedup-notify pipeline over the source
// catalog. Sources are processed sequentially in catalog order; one failing
// source is reported and skipped, never aborting the run.
type NewsTracker struct {
	sources   []model.Source
	fetcher   fetch.Fetcher
	extractor *extract.Extractor
	store     store.Store
	notifier  notify.Notifier
	errs      notify.ErrorSink

	sourceTimeout time.Duration
}

// NewNewsTracker wires the tracking pipeline.
func NewNewsTracker(
	sources []model.Source,
	fetcher fetch.Fetcher,
	extractor *extract.Extractor,
	st store.Store,
	notifier notify.Notifier,
	errs notify.ErrorSink,
	sourceTimeout time.Duration,
) *NewsTracker {
	if sourceTimeout <= 0 {
		sourceTimeout = 5 * time.Minute
	}
	return &NewsTracker{
		sources:       sources,
		fetcher:       fetcher,
		extractor:     extractor,
		store:         st,
		notifier:      notifier,
		errs:          errs,
		sourceTimeout: sourceTimeout,
	}
}

// NewsResult counts the outcome of one tracking run.
type NewsResult struct {
	Sources     int
	Failed      int
	NewArticles int
}

// Run processes every catalog source in the given categories. It returns
// aggregate counts; per-source failures have already been reported to the
// error sink by the time it returns.
func (t *NewsTracker) Run(ctx context.Context, categories ...model.Category) (NewsResult, error) {
	var sources []model.Source
	for _, cat := range categories {
		sources = append(sources, catalog.ForCategory(t.sources, cat)...)
	}
	if len(sources) == 0 {
		return NewsResult{}, eris.Errorf("track: no sources for categories %v", categories)
	}

	res := NewsResult{Sources: len(sources)}
	for _, src := range sources {
		n, err := t.trackSource(ctx, src)
		if err != nil {
			res.Failed++
			zap.L().Error("track: source failed",
				zap.String("source", src.Title),
				zap.String("url", src.URL),
				zap.Error(err),
			)
			t.errs.ReportError(ctx, fmt.Sprintf("source %s", src.Title), err)
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "track: run cancelled")
			}
			continue
		}
		res.NewArticles += n
	}

	zap.L().Info("track: run complete",
		zap.Any("categories", categories),
		zap.Int("sources", res.Sources),
		zap.Int("failed", res.Failed),
		zap.Int("new_articles", res.NewArticles),
	)
	return res, nil
}

// trackSource runs one source end to end and returns the number of articles
// that were new.
func (t *NewsTracker) trackSource(ctx context.Context, src model.Source) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.sourceTimeout)
	defer cancel()

	log := zap.L().With(zap.String("source", src.Title))
	log.Info("track: processing source", zap.String("strategy", string(src.Strategy)))

	content, err := t.fetcher.Fetch(ctx, src)
	if err != nil {
		return 0, err
	}

	// Browser fetches return raw HTML; boil it down before prompting.
	if src.Strategy == model.StrategyBrowser {
		content, err = fetch.Simplify(content, src.URL)
		if err != nil {
			return 0, err
		}
	}

	records, err := t.extractor.Extract(ctx, src, content)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		log.Info("track: no articles on page")
		return 0, nil
	}

	articles := make([]model.Article, 0, len(records))
	for _, rec := range records {
		articles = append(articles, model.Article{
			Headline: rec.Headline,
			URL:      rec.URL,
			Category: src.Category,
			Source:   src.Title,
		})
	}

	inserted, err := t.store.InsertArticles(ctx, articles)
	if err != nil {
		return 0, err
	}

	for _, article := range inserted {
		if err := t.notifier.ArticleFound(ctx, article); err != nil {
			// The row is already stored; a missed announcement is not worth
			// failing the source over.
			log.Warn("track: notify failed", zap.String("url", article.URL), zap.Error(err))
			t.errs.ReportError(ctx, fmt.Sprintf("notify %s", src.Title), err)
		}
	}

	log.Info("track: source complete",
		zap.Int("extracted", len(records)),
		zap.Int("new", len(inserted)),
	)
	return len(inserted), nil
}
