package crawler

import (
	"strings"
	"unicode/utf8"
)

// CollapseSpace trims s and folds every whitespace run into a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen counts characters rather than bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// WithinBand reports whether lo < RuneLen(s) < hi.
func WithinBand(s string, lo, hi int) bool {
	n := RuneLen(s)
	return n > lo && n < hi
}

// ContainsFold reports whether needle appears in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
