// Package enrich fills grant summaries with a bounded-concurrency model
// worker pool. Each summary is persisted and announced as it completes, so a
// single bad row never costs the rest of the batch.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/internal/notify"
	"github.com/sells-group/newswatch/internal/store"
	"github.com/sells-group/newswatch/pkg/anthropic"
)

const summarySystemPrompt = `You summarize government grant topics for a research team.

Write a 2-3 sentence plain-English summary of the grant topic below: what is
being funded, who should apply, and any notable constraint. No preamble, no
markdown, just the summary text.`

// Summarizer runs the enrichment pool.
type Summarizer struct {
	client      anthropic.Client
	store       store.Store
	notifier    notify.Notifier
	errs        notify.ErrorSink
	model       string
	concurrency int
}

// New creates a Summarizer. concurrency bounds the number of in-flight model
// calls.
func New(client anthropic.Client, st store.Store, notifier notify.Notifier, errs notify.ErrorSink, modelID string, concurrency int) *Summarizer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Summarizer{
		client:      client,
		store:       st,
		notifier:    notifier,
		errs:        errs,
		model:       modelID,
		concurrency: concurrency,
	}
}

// Result counts the outcome of one enrichment cycle.
type Result struct {
	Summarized int
	Failed     int
}

// SummarizeAll summarizes every grant in the batch through the worker pool.
// Per-grant failures are reported to the error sink and skipped; the row
// stays unsummarized and is retried by the next cycle.
func (s *Summarizer) SummarizeAll(ctx context.Context, grants []model.Grant) (Result, error) {
	if len(grants) == 0 {
		return Result{}, nil
	}

	zap.L().Info("enrich: summarizing grants",
		zap.Int("grants", len(grants)),
		zap.Int("concurrency", s.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var succeeded, failed atomic.Int64

	for _, grant := range grants {
		g.Go(func() error {
			log := zap.L().With(zap.String("grant", grant.Link))

			if err := s.summarizeOne(gctx, grant); err != nil {
				failed.Add(1)
				log.Error("enrich: grant failed", zap.Error(err))
				s.errs.ReportError(gctx, fmt.Sprintf("grant %s", grant.Link), err)
				return nil // don't abort the batch on individual failure
			}

			succeeded.Add(1)
			log.Debug("enrich: grant summarized")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, eris.Wrap(err, "enrich: pool wait")
	}

	res := Result{
		Summarized: int(succeeded.Load()),
		Failed:     int(failed.Load()),
	}
	zap.L().Info("enrich: cycle complete",
		zap.Int("summarized", res.Summarized),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// summarizeOne generates, persists, and announces one grant summary.
func (s *Summarizer) summarizeOne(ctx context.Context, grant model.Grant) error {
	summary, err := s.Summarize(ctx, grant)
	if err != nil {
		return err
	}

	if err := s.store.SetGrantSummary(ctx, grant.ID, summary); err != nil {
		return err
	}

	grant.Summary = &summary
	if err := s.notifier.GrantSummarized(ctx, grant); err != nil {
		return err
	}
	return nil
}

// Summarize generates a summary for one grant without persisting it.
func (s *Summarizer) Summarize(ctx context.Context, grant model.Grant) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", grant.Topic)
	if grant.Agency != "" {
		fmt.Fprintf(&b, "Agency: %s\n", grant.Agency)
	}
	if grant.Program != "" {
		fmt.Fprintf(&b, "Program: %s\n", grant.Program)
	}
	if grant.CloseDate != "" {
		fmt.Fprintf(&b, "Closes: %s\n", grant.CloseDate)
	}
	fmt.Fprintf(&b, "\n%s", grant.Description)

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 1024,
		System:    summarySystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "enrich: model call for %s", grant.Link)
	}
	resp.Usage.LogCost(s.model, "enrich")

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", eris.Errorf("enrich: empty summary for %s", grant.Link)
	}
	return summary, nil
}
