package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newswatch/internal/catalog"
	"github.com/sells-group/newswatch/internal/config"
	"github.com/sells-group/newswatch/internal/enrich"
	"github.com/sells-group/newswatch/internal/extract"
	"github.com/sells-group/newswatch/internal/fetch"
	"github.com/sells-group/newswatch/internal/fetcher"
	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/internal/notify"
	"github.com/sells-group/newswatch/internal/store"
	"github.com/sells-group/newswatch/internal/track"
	"github.com/sells-group/newswatch/pkg/anthropic"
	"github.com/sells-group/newswatch/pkg/browserbase"
	"github.com/sells-group/newswatch/pkg/discord"
	"github.com/sells-group/newswatch/pkg/reader"
)

// env holds the wired pipelines and their shared resources.
type env struct {
	Store  store.Store
	News   *track.NewsTracker
	Grants *track.GrantsTracker
}

// initEnv builds every client and pipeline from config.
func initEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sources, err := catalog.Load()
	if err != nil {
		st.Close()
		return nil, err
	}

	readerClient := reader.NewClient(cfg.Reader.Key, reader.WithBaseURL(cfg.Reader.BaseURL))
	bbClient := browserbase.NewClient(cfg.Browserbase.Key, browserbase.WithBaseURL(cfg.Browserbase.BaseURL))

	router := &fetch.Router{
		Reader: fetch.NewReaderFetcher(readerClient),
		Browser: fetch.NewBrowserFetcher(bbClient, cfg.Browserbase.ProjectID,
			fetch.WithExtensionDir(cfg.Browserbase.ExtensionDir),
			fetch.WithCaptchaWait(time.Duration(cfg.Track.CaptchaTimeoutSecs)*time.Second),
		),
	}

	modelClient := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(modelClient, cfg.Anthropic.Model)

	discordClient := discord.NewClient(cfg.Discord.Token, discord.WithBaseURL(cfg.Discord.BaseURL))
	channels := make(map[model.Category]string, len(cfg.Discord.Channels))
	for name, id := range cfg.Discord.Channels {
		channels[model.Category(name)] = id
	}
	notifier := notify.NewDiscord(discordClient, channels, cfg.Discord.GrantsCh, cfg.Discord.ErrorCh)

	news := track.NewNewsTracker(
		sources, router, extractor, st, notifier, notifier,
		time.Duration(cfg.Track.SourceTimeoutSecs)*time.Second,
	)

	summarizer := enrich.New(modelClient, st, notifier, notifier, cfg.Anthropic.Model, cfg.Grants.EnrichConcurrency)
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	// The export endpoint only serves the CSV on a form POST; an empty form
	// falls back to a plain GET.
	var exportForm url.Values
	if len(cfg.Grants.ExportForm) > 0 {
		exportForm = make(url.Values, len(cfg.Grants.ExportForm))
		for key, value := range cfg.Grants.ExportForm {
			exportForm.Set(key, value)
		}
	}
	grants := track.NewGrantsTracker(
		httpFetcher, cfg.Grants.ExportURL, exportForm, cfg.Grants.TempDir,
		st, summarizer, notifier,
	)

	return &env{
		Store:  st,
		News:   news,
		Grants: grants,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %q", cfg.Store.Driver)
	}
}

// Close releases shared resources.
func (e *env) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
}
