package extract

import (
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/lexharvest/internal/catalog"
	"github.com/JakeFAU/lexharvest/internal/harvest"
)

// contentSelectors are tried in order until one matches.
var contentSelectors = []string{"div#document-content", "div#TexteOnly", "div#text"}

var skippedClasses = []string{"hidden-print", "navigation", "metadata"}

// ContentParser implements harvest.ContentExtractor for the TXT view of a document page.
type ContentParser struct {
	urls catalog.URLs
}

// NewContentParser builds a ContentParser that derives document links from urls.
func NewContentParser(urls catalog.URLs) *ContentParser {
	return &ContentParser{urls: urls}
}

var _ harvest.ContentExtractor = (*ContentParser)(nil)

// ExtractContent collects the text of every non-empty block inside the document body, one block
// per line.
func (p *ContentParser) ExtractContent(html string, id harvest.Identifier) (harvest.DocumentContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.DocumentContent{}, fmt.Errorf("%w: content page: %w", harvest.ErrParse, err)
	}

	var body *goquery.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			body = found
			break
		}
	}
	if body == nil {
		return harvest.DocumentContent{}, fmt.Errorf("%w: content page for %s has no document body", harvest.ErrParse, id)
	}

	var lines []string
	body.Find("p, div, table").Each(func(_ int, block *goquery.Selection) {
		text := strings.TrimSpace(block.Text())
		if text == "" || slices.Contains(skippedClasses, firstClass(block)) {
			return
		}
		lines = append(lines, text)
	})

	return harvest.DocumentContent{
		FullText: strings.Join(lines, "\n"),
		HTMLURL:  p.urls.Document(id, catalog.ViewText),
		PDFURL:   p.urls.PDF(id),
	}, nil
}

func firstClass(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
