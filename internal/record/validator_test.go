package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

func validMetadata() harvest.Metadata {
	return harvest.Metadata{
		LogicalKey:            "32023R2400",
		Title:                 "Commission Implementing Regulation (EU) 2023/2400",
		Identifier:            "C/2023/7100",
		ELIURI:                "http://data.europa.eu/eli/reg_impl/2023/2400/oj",
		HTMLURL:               "https://eur-lex.europa.eu/legal-content/EN/TXT/?uri=OJ:L_202302400",
		PDFURL:                "https://eur-lex.europa.eu/legal-content/EN/TXT/PDF/?uri=OJ:L_202302400",
		Dates:                 harvest.Dates{Document: "30/10/2023"},
		Authors:               []string{"European Commission"},
		EurovocDescriptors:    []string{"import", "customs"},
		DirectoryCodes:        []string{"02.04.01.00"},
		DirectoryDescriptions: []string{"Customs Union / Common customs tariff"},
	}
}

func TestValidateAcceptsCompleteMetadata(t *testing.T) {
	t.Parallel()

	md := validMetadata()
	require.NoError(t, NewValidator(nil, nil).Validate(&md))
	assert.Equal(t, "C/2023/7100", md.Identifier)
}

func TestValidateRequiredFields(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		md   harvest.Metadata
	}{
		{"empty title", harvest.Metadata{Title: "", LogicalKey: "X"}},
		{"blank title", harvest.Metadata{Title: "   ", LogicalKey: "X"}},
		{"missing logical key", harvest.Metadata{Title: "T"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			md := tc.md
			err := NewValidator(nil, nil).Validate(&md)
			require.ErrorIs(t, err, harvest.ErrValidation)
		})
	}
}

func TestValidateNormalizesIdentifier(t *testing.T) {
	t.Parallel()

	md := harvest.Metadata{Title: "T", LogicalKey: "X", Identifier: "INVALID FORMAT"}
	require.NoError(t, NewValidator(nil, nil).Validate(&md))
	assert.Equal(t, "", md.Identifier)
}

func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"R/2023/2400":      "R/2023/2400",
		" L/2023/12/EU ":   "L/2023/12/EU",
		"C/2023/7100/":     "",
		"r/2023/2400":      "",
		"2023/2400":        "",
		"R/23/2400":        "",
		"R/2023/2400/eu":   "",
		"":                 "",
		"R/2023/2400/EU/X": "",
	}
	for input, want := range testCases {
		assert.Equal(t, want, NormalizeIdentifier(input), input)
	}
}

func TestValidateOptionalShape(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*harvest.Metadata)
	}{
		{"malformed eli uri", func(md *harvest.Metadata) { md.ELIURI = "not a uri" }},
		{"malformed pdf url", func(md *harvest.Metadata) { md.PDFURL = "http://exa mple.com/x y" }},
		{"blank author", func(md *harvest.Metadata) { md.Authors = []string{"European Commission", " "} }},
		{"blank descriptor", func(md *harvest.Metadata) { md.EurovocDescriptors = []string{""} }},
		{"unpaired directory", func(md *harvest.Metadata) { md.DirectoryDescriptions = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			md := validMetadata()
			tc.mutate(&md)
			require.ErrorIs(t, NewValidator(nil, nil).Validate(&md), harvest.ErrValidation)
		})
	}
}

func TestValidateLogsLogicalKeyRegardlessOfOutcome(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	v := NewValidator(nil, zap.New(core))

	ok := validMetadata()
	require.NoError(t, v.Validate(&ok))
	bad := harvest.Metadata{LogicalKey: "32023R9999"}
	require.Error(t, v.Validate(&bad))

	audited := logs.FilterMessage("validating metadata").All()
	require.Len(t, audited, 2)
	assert.Equal(t, "32023R2400", audited[0].ContextMap()["logical_key"])
	assert.Equal(t, "32023R9999", audited[1].ContextMap()["logical_key"])
}

func TestValidateNil(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, NewValidator(nil, nil).Validate(nil), harvest.ErrValidation)
}
