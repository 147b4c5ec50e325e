package util

import (
	"html"
	"net/mail"
	"strings"
)

// SanitizeInput trims and escapes HTML so user text can be embedded in mail templates.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// SanitizeMultiline escapes like SanitizeInput and keeps line breaks visible in HTML.
func SanitizeMultiline(s string) string {
	return strings.ReplaceAll(SanitizeInput(s), "\n", "<br>")
}

// NormalizeEmail is the canonical key form of an address: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail accepts a bare address only, no display name.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}

// ContainsSuspicious flags markup or template injection attempts in short fields.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "${", "{{", "script", "onerror", "onload"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
