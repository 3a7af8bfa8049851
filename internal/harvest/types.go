package harvest

import (
	"fmt"
	"time"
)

// Identifier is the raw catalog-assigned code used to build detail-page URLs (YYYYNNNNN).
type Identifier string

// String returns the identifier as a plain string.
func (id Identifier) String() string {
	return string(id)
}

// Location is the filesystem path of a stored record.
type Location string

// String returns the location as a plain path.
func (l Location) String() string {
	return string(l)
}

// PeriodIDLayout is the fixed compact digit form of a period identifier.
const PeriodIDLayout = "20060102"

// Period identifies one publication cycle of the catalog (one calendar day's batch).
type Period struct {
	date time.Time
}

// NewPeriod truncates t to its calendar day in UTC.
func NewPeriod(t time.Time) Period {
	y, m, d := t.Date()
	return Period{date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParsePeriod parses a YYYY-MM-DD date into a Period.
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidPeriod, raw)
	}
	return NewPeriod(t), nil
}

// Date returns the calendar date of the period.
func (p Period) Date() time.Time {
	return p.date
}

// ID returns the period identifier in YYYYMMDD form.
func (p Period) ID() string {
	return p.date.Format(PeriodIDLayout)
}

// Year returns the four digit year segment.
func (p Period) Year() string {
	return fmt.Sprintf("%04d", p.date.Year())
}

// Month returns the two digit month segment.
func (p Period) Month() string {
	return fmt.Sprintf("%02d", int(p.date.Month()))
}

// String renders the period as YYYY-MM-DD.
func (p Period) String() string {
	return p.date.Format(time.DateOnly)
}

// Next returns the following calendar day.
func (p Period) Next() Period {
	return Period{date: p.date.AddDate(0, 0, 1)}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	return p.date.Before(other.date)
}

// IsZero reports whether the period was never set.
func (p Period) IsZero() bool {
	return p.date.IsZero()
}

// Candidate is a document reference discovered on a period index page.
type Candidate struct {
	URL        string
	Title      string
	Identifier Identifier
}

// Dates holds the temporal metadata published with a document.
type Dates struct {
	Document      string `json:"Date of document"`
	Effect        string `json:"Date of effect"`
	EndOfValidity string `json:"Date of end of validity"`
}

// Metadata is the structured description of a stored document. Title and LogicalKey are
// required; everything else is optional.
type Metadata struct {
	LogicalKey            string   `json:"celex_number"`
	Title                 string   `json:"title"`
	Identifier            string   `json:"identifier"`
	ELIURI                string   `json:"eli_uri"`
	HTMLURL               string   `json:"html_url"`
	PDFURL                string   `json:"pdf_url"`
	Dates                 Dates    `json:"dates"`
	Authors               []string `json:"authors"`
	ResponsibleBody       string   `json:"responsible_body"`
	Form                  string   `json:"form"`
	EurovocDescriptors    []string `json:"eurovoc_descriptors"`
	SubjectMatters        []string `json:"subject_matters"`
	DirectoryCodes        []string `json:"directory_codes"`
	DirectoryDescriptions []string `json:"directory_descriptions"`
}

// Record is the self-describing unit persisted per document.
type Record struct {
	Metadata Metadata `json:"metadata"`
	Content  string   `json:"content"`
}

// DocumentContent is what a ContentExtractor produces from a content page.
type DocumentContent struct {
	FullText string
	HTMLURL  string
	PDFURL   string
}

// StoredDocument describes a record after it has been written, for downstream hooks.
type StoredDocument struct {
	LogicalKey  string
	Identifier  Identifier
	Period      Period
	Location    Location
	ContentHash string
	Size        int64
	StoredAt    time.Time
}
