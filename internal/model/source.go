package model

// FetchStrategy selects how a source's page content is retrieved.
type FetchStrategy string

const (
	// StrategyReader fetches through the reader rendering service. Fast,
	// stateless, no JavaScript execution on our side.
	StrategyReader FetchStrategy = "reader"

	// StrategyBrowser fetches through a remote headless-browser session.
	// Handles JavaScript-heavy pages, proxy routing, and CAPTCHA solving.
	StrategyBrowser FetchStrategy = "browser"
)

// Category buckets sources into notification channels.
type Category string

const (
	CategoryDefense  Category = "defense"
	CategoryBusiness Category = "business"
	CategoryWorld    Category = "world"
	CategoryBlogs    Category = "blogs"
)

// Source is one static catalog entry: a page to scrape and how to scrape it.
// The catalog is immutable for the process lifetime.
type Source struct {
	Title    string        `yaml:"title"`
	URL      string        `yaml:"url"`
	Category Category      `yaml:"category"`
	Strategy FetchStrategy `yaml:"strategy"`
	Proxy    bool          `yaml:"proxy,omitempty"`
	Captcha  bool          `yaml:"captcha,omitempty"`

	// Extension loads the packaged paywall-bypass extension into the browser
	// session. Only meaningful with the browser strategy.
	Extension bool `yaml:"extension,omitempty"`
}
