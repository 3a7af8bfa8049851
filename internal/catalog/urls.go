package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

// View selects which rendering of a document page to request.
type View string

// Document views served by the catalog.
const (
	// ViewAll renders the full metadata tabs.
	ViewAll View = "ALL"
	// ViewText renders the document text.
	ViewText View = "TXT"
)

// DefaultBaseURL is the public catalog endpoint.
const DefaultBaseURL = "https://eur-lex.europa.eu"

// EarliestPeriod is the first publication day served with the current page structure.
var EarliestPeriod = harvest.NewPeriod(time.Date(2023, time.October, 2, 0, 0, 0, 0, time.UTC))

// URLs builds catalog URLs relative to a base.
type URLs struct {
	base string
}

// NewURLs returns a builder rooted at base (DefaultBaseURL when empty).
func NewURLs(base string) URLs {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return URLs{base: base}
}

// Base returns the normalized base URL.
func (u URLs) Base() string {
	return u.base
}

// Index returns the daily index page for a period.
func (u URLs) Index(p harvest.Period) string {
	return fmt.Sprintf("%s/oj/daily-view/L-series/default.html?ojDate=%s", u.base, p.Date().Format("02012006"))
}

// Document returns the detail page of id in the requested view.
func (u URLs) Document(id harvest.Identifier, view View) string {
	return fmt.Sprintf("%s/legal-content/EN/%s/?uri=OJ:L_%s", u.base, view, id)
}

// PDF returns the PDF rendering of id.
func (u URLs) PDF(id harvest.Identifier) string {
	return fmt.Sprintf("%s/legal-content/EN/TXT/PDF/?uri=OJ:L_%s", u.base, id)
}
