package models

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanName trims name and removes control characters.
func CleanName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
}

// NormalizeUser returns the canonical author label: cleaned, and
// DefaultUser when nothing is left. Every path that stamps an author uses it,
// so an echo and the record of the same send carry the same label.
func NormalizeUser(user string) string {
	user = strings.TrimSpace(CleanName(user))
	if user == "" {
		return DefaultUser
	}
	return user
}

// ValidUser reports whether a normalized user fits MaxUserLength.
func ValidUser(user string) bool {
	return utf8.RuneCountInString(user) <= MaxUserLength
}
