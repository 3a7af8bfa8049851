package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

const (
	eliPrefix = "http://data.europa.eu/eli/"

	labelDocumentDate = "date of document"
	labelEffectDate   = "date of effect"
	labelEndValidity  = "date of end of validity"
)

// MetadataParser implements harvest.MetadataExtractor for the ALL view of a document page.
type MetadataParser struct {
	logger *zap.Logger
}

// NewMetadataParser builds a MetadataParser.
func NewMetadataParser(logger *zap.Logger) *MetadataParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataParser{logger: logger}
}

var _ harvest.MetadataExtractor = (*MetadataParser)(nil)

// ExtractMetadata reads the document title block and the metadata definition lists. The logical
// key and title are mandatory; every other section may be absent.
func (p *MetadataParser) ExtractMetadata(html string) (harvest.Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.Metadata{}, fmt.Errorf("%w: metadata page: %w", harvest.ErrParse, err)
	}

	heading := strings.Fields(doc.Find("p.DocumentTitle").First().Text())
	if len(heading) == 0 {
		return harvest.Metadata{}, fmt.Errorf("%w: metadata page has no document title", harvest.ErrParse)
	}
	titleSel := doc.Find("p#title").First()
	if titleSel.Length() == 0 {
		return harvest.Metadata{}, fmt.Errorf("%w: metadata page has no title", harvest.ErrParse)
	}

	md := harvest.Metadata{
		LogicalKey: heading[len(heading)-1],
		Title:      strings.TrimSpace(titleSel.Text()),
	}
	md.Identifier = identifierAfter(titleSel)
	if md.Identifier == "" {
		p.logger.Warn("document identifier missing, falling back to title", zap.String("logical_key", md.LogicalKey))
		md.Identifier = md.Title
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href, _ := a.Attr("href"); strings.HasPrefix(href, eliPrefix) {
			md.ELIURI = href
			return false
		}
		return true
	})

	md.Dates = extractDates(doc)
	md.Form = sectionText(doc, "Form")
	md.ResponsibleBody = sectionText(doc, "Responsible body")
	md.Authors = splitList(sectionText(doc, "Author"))
	md.EurovocDescriptors = sectionItems(doc, "EUROVOC descriptor")
	md.SubjectMatters = sectionItems(doc, "Subject matter")
	md.DirectoryCodes, md.DirectoryDescriptions = directoryEntries(doc)
	return md, nil
}

// identifierAfter returns the paragraph following the title, skipping the hidden original title.
func identifierAfter(title *goquery.Selection) string {
	next := title.NextAllFiltered("p").First()
	if id, _ := next.Attr("id"); id == "originalTitle" {
		next = next.NextAllFiltered("p").First()
	}
	return strings.TrimSpace(next.Text())
}

func extractDates(doc *goquery.Document) harvest.Dates {
	var dates harvest.Dates
	dl := doc.Find("dl.NMetadata").First()
	dds := dl.Find("dd")
	dl.Find("dt").Each(func(i int, dt *goquery.Selection) {
		if i >= dds.Length() {
			return
		}
		label := strings.ToLower(strings.TrimSpace(dt.Text()))
		value, _, _ := strings.Cut(strings.TrimSpace(dds.Eq(i).Text()), ";")
		value = strings.TrimSpace(value)
		switch {
		case strings.Contains(label, labelDocumentDate):
			dates.Document = value
		case strings.Contains(label, labelEffectDate):
			dates.Effect = value
		case strings.Contains(label, labelEndValidity):
			dates.EndOfValidity = value
		}
	})
	return dates
}

// sectionValue returns the dd that follows the first dt whose text contains label.
func sectionValue(doc *goquery.Document, label string) *goquery.Selection {
	dt := doc.Find("dt").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), label)
	}).First()
	return dt.NextAllFiltered("dd").First()
}

func sectionText(doc *goquery.Document, label string) string {
	return strings.TrimSpace(sectionValue(doc, label).Text())
}

func sectionItems(doc *goquery.Document, label string) []string {
	var items []string
	sectionValue(doc, label).Find("li").Each(func(_ int, li *goquery.Selection) {
		if text := strings.TrimSpace(li.Text()); text != "" {
			items = append(items, text)
		}
	})
	return items
}

// directoryEntries pairs each directory code with its slash-joined description path.
func directoryEntries(doc *goquery.Document) ([]string, []string) {
	var codes, descriptions []string
	sectionValue(doc, "Directory code").Find("li").Each(func(_ int, li *goquery.Selection) {
		fields := strings.Fields(li.Text())
		if len(fields) == 0 {
			return
		}
		parts := make([]string, 0)
		li.Find("span").Each(func(_ int, span *goquery.Selection) {
			if text := strings.TrimSpace(span.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		codes = append(codes, fields[0])
		descriptions = append(descriptions, strings.Join(parts, " / "))
	})
	return codes, descriptions
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
