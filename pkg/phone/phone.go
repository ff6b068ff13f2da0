// Package phone normalizes customer and pharmacy contact numbers.
package phone

import (
	"regexp"
	"strings"
)

var e164ish = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Normalize strips common separators and reports whether what is left is a
// contact number of 10 to 15 digits with an optional leading plus.
func Normalize(raw string) (string, bool) {
	number := separators.Replace(strings.TrimSpace(raw))
	if !e164ish.MatchString(number) {
		return "", false
	}
	return number, true
}

// Valid reports whether raw normalizes to a contact number.
func Valid(raw string) bool {
	_, ok := Normalize(raw)
	return ok
}
