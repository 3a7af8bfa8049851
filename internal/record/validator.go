// Package record validates document metadata before it is stored.
package record

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/metrics"
)

// identifierPattern matches the human-readable document number, e.g. R/2023/2400 or L/2023/12/EU.
var identifierPattern = regexp.MustCompile(`^[A-Z]/\d{4}/\d+(/[A-Z]+)?$`)

// Validator checks metadata against the stored record schema.
type Validator struct {
	metrics harvest.Metrics
	logger  *zap.Logger
}

// NewValidator returns a Validator reporting failures to m.
func NewValidator(m harvest.Metrics, logger *zap.Logger) *Validator {
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{metrics: m, logger: logger}
}

// Validate normalizes md in place and reports whether it can be stored. A malformed
// Identifier is cleared rather than rejected; missing required fields and malformed optional
// fields fail with harvest.ErrValidation.
func (v *Validator) Validate(md *harvest.Metadata) error {
	if md == nil {
		return fmt.Errorf("%w: metadata is nil", harvest.ErrValidation)
	}
	v.logger.Info("validating metadata", zap.String("logical_key", md.LogicalKey))

	md.Identifier = NormalizeIdentifier(md.Identifier)

	if err := validateMetadata(md); err != nil {
		v.metrics.RecordValidationError("metadata", err.Error())
		v.logger.Warn("metadata validation failed", zap.String("logical_key", md.LogicalKey), zap.Error(err))
		return fmt.Errorf("%w: %w", harvest.ErrValidation, err)
	}
	return nil
}

// NormalizeIdentifier trims raw and returns it, or "" when it does not look like a document number.
func NormalizeIdentifier(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || !identifierPattern.MatchString(id) {
		return ""
	}
	return id
}

func validateMetadata(md *harvest.Metadata) error {
	err := validation.ValidateStruct(md,
		validation.Field(&md.Title, validation.By(notBlank)),
		validation.Field(&md.LogicalKey, validation.By(notBlank)),
		validation.Field(&md.ELIURI, is.URL),
		validation.Field(&md.HTMLURL, is.URL),
		validation.Field(&md.PDFURL, is.URL),
		validation.Field(&md.Authors, validation.Each(validation.By(notBlank))),
		validation.Field(&md.EurovocDescriptors, validation.Each(validation.By(notBlank))),
		validation.Field(&md.SubjectMatters, validation.Each(validation.By(notBlank))),
		validation.Field(&md.DirectoryCodes, validation.Each(validation.By(notBlank))),
		validation.Field(&md.DirectoryDescriptions, validation.By(lengthOf(len(md.DirectoryCodes), "directory_codes"))),
	)
	if err != nil {
		return err
	}
	return nil
}

// lengthOf requires a list to pair up one-to-one with another list of length n.
func lengthOf(n int, other string) validation.RuleFunc {
	return func(value any) error {
		list, ok := value.([]string)
		if !ok {
			return errors.New("must be a list of strings")
		}
		if len(list) != n {
			return fmt.Errorf("must have the same length as %s (%d != %d)", other, len(list), n)
		}
		return nil
	}
}

func notBlank(value any) error {
	s, ok := value.(string)
	if !ok {
		return errors.New("must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}
