package fetch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/pkg/browserbase"
)

// BrowserFetcher fetches through a remote headless-browser session. Each
// Fetch provisions its own session so proxy and extension settings never
// leak between sources, and releases it on the way out.
type BrowserFetcher struct {
	provider     browserbase.Client
	projectID    string
	extensionDir string
	captchaWait  time.Duration
}

// BrowserOption configures a BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithExtensionDir sets the local directory holding the unpacked browser
// extension to upload for sources that request one.
func WithExtensionDir(dir string) BrowserOption {
	return func(f *BrowserFetcher) {
		f.extensionDir = dir
	}
}

// WithCaptchaWait overrides how long to wait for the CAPTCHA solve signals.
func WithCaptchaWait(d time.Duration) BrowserOption {
	return func(f *BrowserFetcher) {
		f.captchaWait = d
	}
}

// NewBrowserFetcher creates a fetcher backed by the session provider.
func NewBrowserFetcher(provider browserbase.Client, projectID string, opts ...BrowserOption) *BrowserFetcher {
	f := &BrowserFetcher{
		provider:    provider,
		projectID:   projectID,
		captchaWait: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch provisions a session, navigates to the source URL, waits out the
// CAPTCHA solve protocol when the source is flagged for it, and returns the
// rendered page HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, src model.Source) (string, error) {
	req := browserbase.SessionRequest{
		ProjectID: f.projectID,
		Proxies:   src.Proxy,
	}

	if src.Extension {
		if f.extensionDir == "" {
			return "", &Error{URL: src.URL, Err: eris.New("browser: source wants extension but no extension dir configured")}
		}
		archive, err := PackExtension(f.extensionDir)
		if err != nil {
			return "", &Error{URL: src.URL, Err: err}
		}
		ext, err := f.provider.CreateExtension(ctx, archive)
		if err != nil {
			return "", &Error{URL: src.URL, Err: err}
		}
		defer func() {
			if err := f.provider.DeleteExtension(context.WithoutCancel(ctx), ext.ID); err != nil {
				zap.L().Warn("fetch: delete extension failed",
					zap.String("extension_id", ext.ID),
					zap.Error(err),
				)
			}
		}()
		req.ExtensionID = ext.ID
	}

	session, err := f.provider.CreateSession(ctx, req)
	if err != nil {
		return "", &Error{URL: src.URL, Err: err}
	}
	defer func() {
		if err := f.provider.ReleaseSession(context.WithoutCancel(ctx), session.ID); err != nil {
			zap.L().Warn("fetch: release session failed",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}()

	zap.L().Debug("fetch: browser session created",
		zap.String("url", src.URL),
		zap.String("session_id", session.ID),
		zap.Bool("proxy", src.Proxy),
		zap.Bool("captcha", src.Captcha),
	)

	html, err := f.renderPage(ctx, session.ConnectURL, src)
	if err != nil {
		return "", &Error{URL: src.URL, Err: err}
	}
	return html, nil
}

// renderPage drives the remote browser over CDP: navigate, reconcile the
// CAPTCHA solve signals, wait for the body, capture the document HTML.
func (f *BrowserFetcher) renderPage(ctx context.Context, connectURL string, src model.Source) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, connectURL)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	solve := NewSolveState()
	chromedp.ListenTarget(taskCtx, func(ev any) {
		call, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		for _, arg := range call.Args {
			var msg string
			if err := json.Unmarshal(arg.Value, &msg); err == nil {
				solve.HandleConsole(msg)
			}
		}
	})

	if err := chromedp.Run(taskCtx, chromedp.Navigate(src.URL)); err != nil {
		return "", eris.Wrapf(err, "browser: navigate %s", src.URL)
	}

	if src.Captcha {
		outcome, err := solve.Wait(taskCtx, f.captchaWait)
		if err != nil {
			return "", err
		}
		zap.L().Debug("fetch: captcha wait resolved",
			zap.String("url", src.URL),
			zap.String("outcome", string(outcome)),
		)
	}

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", eris.Wrapf(err, "browser: capture %s", src.URL)
	}
	return html, nil
}
