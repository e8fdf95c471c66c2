package model

import "strings"

// NormalizeName canonicalizes a place name for grouping and matching:
// lowercase, apostrophes removed, hyphens as spaces, whitespace collapsed.
// "Joe's Diner", "joes diner" and "JOES-DINER" all normalize identically.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}
