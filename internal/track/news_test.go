package track

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/newswatch/internal/extract"
	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/pkg/anthropic"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string // url -> content
	failFor map[string]error  // url -> error
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, src model.Source) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, src.URL)
	f.mu.Unlock()
	if err, ok := f.failFor[src.URL]; ok {
		return "", err
	}
	return f.pages[src.URL], nil
}

type fakeModel struct {
	text string
}

func (f *fakeModel) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{Text: f.text}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool // urls already tracked
	inserted []model.Article
}

func (f *fakeStore) InsertArticles(ctx context.Context, articles []model.Article) ([]model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	var fresh []model.Article
	for _, a := range articles {
		if f.existing[a.URL] {
			continue
		}
		f.existing[a.URL] = true
		f.inserted = append(f.inserted, a)
		fresh = append(fresh, a)
	}
	return fresh, nil
}

func (f *fakeStore) InsertGrants(ctx context.Context, grants []model.Grant) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GrantsMissingSummary(ctx context.Context) ([]model.Grant, error) {
	return nil, nil
}
func (f *fakeStore) SetGrantSummary(ctx context.Context, id, summary string) error { return nil }
func (f *fakeStore) Ping(ctx context.Context) error                                { return nil }
func (f *fakeStore) Migrate(ctx context.Context) error                             { return nil }
func (f *fakeStore) Close() error                                                  { return nil }

type fakeNotifier struct {
	mu       sync.Mutex
	articles []model.Article
	err      error
}

func (f *fakeNotifier) ArticleFound(ctx context.Context, article model.Article) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles = append(f.articles, article)
	return nil
}

func (f *fakeNotifier) GrantSummarized(ctx context.Context, grant model.Grant) error { return nil }

type fakeSink struct {
	mu     sync.Mutex
	scopes []string
}

func (f *fakeSink) ReportError(ctx context.Context, scope string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, scope)
}

func testSources() []model.Source {
	return []model.Source{
		{Title: "World Wire", URL: "https://world.example.com", Category: model.CategoryWorld, Strategy: model.StrategyReader},
		{Title: "Defense Daily", URL: "https://defense.example.com", Category: model.CategoryDefense, Strategy: model.StrategyReader},
		{Title: "Dev Blog", URL: "https://blog.example.com", Category: model.CategoryBlogs, Strategy: model.StrategyReader},
	}
}

const extractJSON = `{"articles": [
	{"headline": "Story one", "url": "/s/1"},
	{"headline": "Story two", "url": "/s/2"}
]}`

func newTestTracker(f *fakeFetcher, st *fakeStore, n *fakeNotifier, sink *fakeSink) *NewsTracker {
	extractor := extract.New(&fakeModel{text: extractJSON}, "test-model")
	return NewNewsTracker(testSources(), f, extractor, st, n, sink, time.Minute)
}

func TestNewsRun(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"https://world.example.com":   "world page",
		"https://defense.example.com": "defense page",
	}}
	st := &fakeStore{}
	n := &fakeNotifier{}
	sink := &fakeSink{}

	res, err := newTestTracker(f, st, n, sink).Run(context.Background(),
		model.CategoryDefense, model.CategoryBusiness, model.CategoryWorld)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 4, res.NewArticles)

	// Blogs were not requested.
	assert.NotContains(t, f.fetched, "https://blog.example.com")

	// Every new article was announced with its source metadata.
	require.Len(t, n.articles, 4)
	assert.Equal(t, "https://world.example.com/s/1", st.inserted[0].URL)
	assert.Equal(t, model.CategoryWorld, st.inserted[0].Category)
	assert.Equal(t, "World Wire", st.inserted[0].Source)
	assert.Empty(t, sink.scopes)
}

func TestNewsRun_OnlyNewArticlesAnnounced(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"https://world.example.com": "world page",
	}}
	st := &fakeStore{existing: map[string]bool{
		"https://world.example.com/s/1": true,
	}}
	n := &fakeNotifier{}

	res, err := newTestTracker(f, st, n, &fakeSink{}).Run(context.Background(), model.CategoryWorld)

	require.NoError(t, err)
	assert.Equal(t, 1, res.NewArticles)
	require.Len(t, n.articles, 1)
	assert.Equal(t, "https://world.example.com/s/2", n.articles[0].URL)
}

func TestNewsRun_SourceFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		pages:   map[string]string{"https://defense.example.com": "defense page"},
		failFor: map[string]error{"https://world.example.com": errors.New("fetch timed out")},
	}
	st := &fakeStore{}
	n := &fakeNotifier{}
	sink := &fakeSink{}

	res, err := newTestTracker(f, st, n, sink).Run(context.Background(),
		model.CategoryWorld, model.CategoryDefense)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.NewArticles)

	// The failure was reported and the second source still ran.
	require.Len(t, sink.scopes, 1)
	assert.Contains(t, sink.scopes[0], "World Wire")
	assert.Contains(t, f.fetched, "https://defense.example.com")
}

func TestNewsRun_NotifyFailureDoesNotFailSource(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"https://world.example.com": "world page",
	}}
	st := &fakeStore{}
	n := &fakeNotifier{err: errors.New("discord down")}
	sink := &fakeSink{}

	res, err := newTestTracker(f, st, n, sink).Run(context.Background(), model.CategoryWorld)

	require.NoError(t, err)
	assert.Zero(t, res.Failed)
	// Articles are stored even though announcements failed.
	assert.Len(t, st.inserted, 2)
	assert.NotEmpty(t, sink.scopes)
}

func TestNewsRun_NoSources(t *testing.T) {
	t.Parallel()

	tracker := NewNewsTracker(nil, &fakeFetcher{}, extract.New(&fakeModel{}, "m"), &fakeStore{}, &fakeNotifier{}, &fakeSink{}, time.Minute)
	_, err := tracker.Run(context.Background(), model.CategoryWorld)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources")
}
