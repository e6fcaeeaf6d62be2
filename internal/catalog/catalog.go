// Package catalog provides the static source catalog. Sources are compiled
// into the binary; editing the list means editing sources.yaml and
// rebuilding, which keeps the catalog versioned alongside the code that
// scrapes it.
package catalog

import (
	_ "embed"
	"net/url"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/newswatch/internal/model"
)

//go:embed sources.yaml
var sourcesYAML []byte

type sourceFile struct {
	Sources []model.Source `yaml:"sources"`
}

// Load parses and validates the embedded source catalog. The returned slice
// preserves file order; pipelines process sources in this order.
func Load() ([]model.Source, error) {
	var f sourceFile
	if err := yaml.Unmarshal(sourcesYAML, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse sources.yaml")
	}
	if len(f.Sources) == 0 {
		return nil, eris.New("catalog: no sources defined")
	}
	for i, s := range f.Sources {
		if err := validate(s); err != nil {
			return nil, eris.Wrapf(err, "catalog: source %d (%s)", i, s.Title)
		}
	}
	return f.Sources, nil
}

// ForCategory filters a catalog down to one category, preserving order.
func ForCategory(sources []model.Source, cat model.Category) []model.Source {
	var out []model.Source
	for _, s := range sources {
		if s.Category == cat {
			out = append(out, s)
		}
	}
	return out
}

func validate(s model.Source) error {
	if s.Title == "" {
		return eris.New("title is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || !u.IsAbs() {
		return eris.Errorf("url must be absolute: %q", s.URL)
	}
	switch s.Strategy {
	case model.StrategyReader, model.StrategyBrowser:
	default:
		return eris.Errorf("unknown fetch strategy: %q", s.Strategy)
	}
	switch s.Category {
	case model.CategoryDefense, model.CategoryBusiness, model.CategoryWorld, model.CategoryBlogs:
	default:
		return eris.Errorf("unknown category: %q", s.Category)
	}
	if s.Captcha && s.Strategy != model.StrategyBrowser {
		return eris.New("captcha handling requires the browser strategy")
	}
	if s.Extension && s.Strategy != model.StrategyBrowser {
		return eris.New("extension loading requires the browser strategy")
	}
	return nil
}
