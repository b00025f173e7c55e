package ledger

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalName trims surrounding whitespace and applies Unicode NFC
// normalization, so a precomposed "é" and "e" + combining acute name
// the same entity.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// SortedNames returns the distinct names in lexicographic order.
// Stores use it to acquire ownership in a fixed order.
func SortedNames(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
