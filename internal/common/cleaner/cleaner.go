package cleaner

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Cleaner sanitizes scraped HTML using Bluemonday. Detail-page
// descriptions arrive as raw tenant markup and go through here before
// indexing.
type Cleaner struct {
	policy *bluemonday.Policy
}

// NewCleaner creates a cleaner that keeps basic formatting but strips
// scripts, styles and event handlers.
func NewCleaner() *Cleaner {
	policy := bluemonday.NewPolicy()

	policy.AllowElements("p", "br", "div", "span")
	policy.AllowElements("strong", "b", "em", "i", "u")
	policy.AllowElements("ul", "ol", "li")
	policy.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")

	// Allow links but strip javascript:
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowRelativeURLs(true)
	policy.RequireParseableURLs(true)
	policy.AllowURLSchemes("http", "https", "mailto")

	return &Cleaner{policy: policy}
}

// NewStrictCleaner creates a cleaner that strips ALL HTML
func NewStrictCleaner() *Cleaner {
	return &Cleaner{policy: bluemonday.StrictPolicy()}
}

// Clean sanitizes HTML content
func (c *Cleaner) Clean(html string) string {
	return c.policy.Sanitize(html)
}

// CleanToText removes all HTML and returns plain text
func (c *Cleaner) CleanToText(html string) string {
	strict := bluemonday.StrictPolicy()
	text := strict.Sanitize(html)

	text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	text = strings.TrimSpace(text)

	return text
}
