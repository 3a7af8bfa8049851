package catalog

import "strings"

// IdentifierPrefix is the series token that may precede a raw identifier.
const IdentifierPrefix = "L_"

const (
	identifierLength = 9
	corrigendumMark  = '9'
)

// NormalizeIdentifier strips the series prefix and surrounding whitespace.
func NormalizeIdentifier(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), IdentifierPrefix)
}

// IsValidIdentifier reports whether raw is an acceptable YYYYNNNNN code. Corrigenda, whose
// fifth character is 9, are rejected.
func IsValidIdentifier(raw string) bool {
	id := strings.TrimPrefix(raw, IdentifierPrefix)
	if id == "" || len(id) != identifierLength {
		return false
	}
	for i := 0; i < 4; i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return id[4] != corrigendumMark
}
