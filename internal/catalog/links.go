package catalog

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/metrics"
)

const (
	mainContentSelector = "div#MainContent"
	documentPathMarker  = "legal-content/EN/"
	documentRefMarker   = "uri=OJ:" + IdentifierPrefix
	refDelimiter        = "&"
)

// LinkExtractor finds document candidates on a period index page.
type LinkExtractor struct {
	base    *url.URL
	metrics harvest.Metrics
	logger  *zap.Logger
}

// NewLinkExtractor builds an extractor that resolves relative links against baseURL.
func NewLinkExtractor(baseURL string, m harvest.Metrics, logger *zap.Logger) (*LinkExtractor, error) {
	base, err := url.Parse(NewURLs(baseURL).Base() + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkExtractor{base: base, metrics: m, logger: logger}, nil
}

// Extract returns candidates in page order. A page without a main content region yields no
// candidates and no error.
func (e *LinkExtractor) Extract(body string) ([]harvest.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		e.metrics.RecordEvent("link_extraction_error", err.Error())
		return nil, fmt.Errorf("%w: index page: %w", harvest.ErrParse, err)
	}

	main := doc.Find(mainContentSelector).First()
	if main.Length() == 0 {
		e.logger.Debug("no main content found on index page")
		e.metrics.RecordEvent("page_structure", "no main content found")
		return []harvest.Candidate{}, nil
	}

	candidates := make([]harvest.Candidate, 0)
	main.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		raw, ok := referencedIdentifier(href)
		if !ok {
			return
		}
		if !IsValidIdentifier(raw) {
			e.logger.Debug("skipping invalid or corrigendum identifier", zap.String("identifier", raw))
			e.metrics.RecordValidationError("document_id", "invalid id: "+raw)
			return
		}
		target, err := e.resolve(href)
		if err != nil {
			e.logger.Debug("skipping unresolvable link", zap.String("href", href), zap.Error(err))
			e.metrics.RecordValidationError("url_parsing", href)
			return
		}
		candidates = append(candidates, harvest.Candidate{
			URL:        target,
			Title:      anchorTitle(link),
			Identifier: harvest.Identifier(NormalizeIdentifier(raw)),
		})
	})

	e.logger.Info("extracted document candidates", zap.Int("count", len(candidates)))
	e.metrics.RecordEvent("documents_found", fmt.Sprintf("count: %d", len(candidates)))
	return candidates, nil
}

func (e *LinkExtractor) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return e.base.ResolveReference(ref).String(), nil
}

// referencedIdentifier returns the raw identifier following the last document-reference marker.
func referencedIdentifier(href string) (string, bool) {
	if href == "" || !strings.Contains(href, documentPathMarker) {
		return "", false
	}
	idx := strings.LastIndex(href, documentRefMarker)
	if idx < 0 {
		return "", false
	}
	raw := href[idx+len(documentRefMarker):]
	if end := strings.Index(raw, refDelimiter); end >= 0 {
		raw = raw[:end]
	}
	return raw, true
}

func anchorTitle(link *goquery.Selection) string {
	if title := strings.TrimSpace(link.Text()); title != "" {
		return title
	}
	return strings.TrimSpace(link.Parent().Text())
}
