// Package email holds small helpers for addressing voters by mail.
package email

import (
	"strings"
	"unicode"
)

// GreetingName returns name when it is set, otherwise a capitalized first name
// guessed from the address' local part, e.g. "maria.gonzalez@x.cl" gives "Maria".
func GreetingName(name, address string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}

	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}
	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "vecino"
	}
	return capitalize(parts[0])
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
