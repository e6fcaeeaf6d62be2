package fetch

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
)

// Simplify reduces raw page HTML to readable text so the extraction prompt
// is not dominated by markup. Link targets are preserved inline because the
// extractor needs them to recover article URLs.
func Simplify(html, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", eris.Wrapf(err, "simplify: parse url %s", pageURL)
	}

	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		// Readability can fail on pages with no extractable article
		// structure. Fall back to the raw HTML rather than dropping the
		// source; the extractor tolerates markup.
		return html, nil
	}

	var b strings.Builder
	if article.Title != "" {
		b.WriteString(article.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(article.Content)
	return b.String(), nil
}
