package track

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/enrich"
	"github.com/sells-group/newswatch/internal/fetcher"
	"github.com/sells-group/newswatch/internal/notify"
	"github.com/sells-group/newswatch/internal/store"
)

// GrantsTracker runs the bulk grant pipeline: download the catalog export to
// a staging file, ingest it ignoring known links, then summarize and
// announce whatever is still missing a summary.
type GrantsTracker struct {
	fetcher    *fetcher.HTTPFetcher
	exportURL  string
	exportForm url.Values
	tempDir    string
	store      store.Store
	summarizer *enrich.Summarizer
	errs       notify.ErrorSink
}

// NewGrantsTracker wires the grant pipeline. exportForm may be nil when the
// export endpoint takes a plain GET.
func NewGrantsTracker(
	f *fetcher.HTTPFetcher,
	exportURL string,
	exportForm url.Values,
	tempDir string,
	st store.Store,
	summarizer *enrich.Summarizer,
	errs notify.ErrorSink,
) *GrantsTracker {
	return &GrantsTracker{
		fetcher:    f,
		exportURL:  exportURL,
		exportForm: exportForm,
		tempDir:    tempDir,
		store:      st,
		summarizer: summarizer,
		errs:       errs,
	}
}

// GrantsResult counts the outcome of one grant run.
type GrantsResult struct {
	Parsed     int
	Inserted   int64
	Summarized int
	Failed     int
}

// Run executes the full grant cycle. Unlike the per-source news run, the
// whole cycle is one isolation boundary: any stage failing is reported once
// and aborts the run. Rows left unsummarized are picked up next cycle.
func (t *GrantsTracker) Run(ctx context.Context) (GrantsResult, error) {
	res, err := t.run(ctx)
	if err != nil {
		t.errs.ReportError(ctx, "grants", err)
	}
	return res, err
}

func (t *GrantsTracker) run(ctx context.Context) (GrantsResult, error) {
	var res GrantsResult

	stagingPath := filepath.Join(t.tempDir, "grants-export.csv")
	if _, err := t.fetcher.DownloadToFile(ctx, t.exportURL, t.exportForm, stagingPath); err != nil {
		return res, eris.Wrap(err, "track: download grant export")
	}
	defer os.Remove(stagingPath)

	f, err := os.Open(stagingPath)
	if err != nil {
		return res, eris.Wrap(err, "track: open grant export")
	}
	defer f.Close()

	grants, err := fetcher.DecodeGrants(ctx, f)
	if err != nil {
		return res, eris.Wrap(err, "track: decode grant export")
	}
	if len(grants) == 0 {
		// A header-only export means the download returned the wrong thing
		// (search page, truncated file); treat it as a failed run.
		return res, eris.Errorf("track: grant export %s contained no rows", t.exportURL)
	}
	res.Parsed = len(grants)

	res.Inserted, err = t.store.InsertGrants(ctx, grants)
	if err != nil {
		return res, eris.Wrap(err, "track: ingest grants")
	}

	// Summarize whatever lacks a summary, including leftovers from earlier
	// cycles that failed mid-enrichment.
	pending, err := t.store.GrantsMissingSummary(ctx)
	if err != nil {
		return res, eris.Wrap(err, "track: load pending grants")
	}

	enriched, err := t.summarizer.SummarizeAll(ctx, pending)
	if err != nil {
		return res, eris.Wrap(err, "track: summarize grants")
	}
	res.Summarized = enriched.Summarized
	res.Failed = enriched.Failed

	zap.L().Info("track: grant run complete",
		zap.Int("parsed", res.Parsed),
		zap.Int64("inserted", res.Inserted),
		zap.Int("summarized", res.Summarized),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
