package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims and NFC-normalizes identifiers (usernames, role and
// permission names) so canonically equivalent spellings share one row.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
