package util

import (
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// SafeName lowercases s and collapses every run of non-alphanumeric
// characters into a single underscore, yielding a filesystem- and
// ZIP-entry-safe segment. Empty input becomes "item".
func SafeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "item"
	}
	return s
}

// WorkerFolder builds the per-worker directory segment used inside document
// export archives: last names, first names, then RUT.
func WorkerFolder(lastNames, firstNames, rut string) string {
	return SafeName(lastNames) + "_" + SafeName(firstNames) + "_" + SafeName(rut)
}
