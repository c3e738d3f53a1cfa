package ops

import (
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled regexes, shared by sanitizers and validators.
var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	moneyJunk  = regexp.MustCompile(`[^0-9.\-]`)
)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeMoney strips currency symbols and thousands separators, keeping
// digits, sign, and the decimal point. "$1,234.50" becomes "1234.50".
func NormalizeMoney(s string) string {
	return moneyJunk.ReplaceAllString(strings.TrimSpace(s), "")
}

// NormalizeStatus lowercases a status value and maps common synonyms onto
// the canonical set used by the host tables.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "enabled", "subscribed", "on":
		return "active"
	case "disabled", "unsubscribed", "off":
		return "inactive"
	}
	return s
}

// validateEmail rejects values that do not look like an email address.
func validateEmail(value string) error {
	if !emailRegex.MatchString(value) {
		return fmt.Errorf("invalid email address: %q", value)
	}
	return nil
}
