// Package normalize provides canonical forms for the scalar identifiers the
// custody flows accept from users and import files: Spanish national phone
// numbers, IMEIs and corporate email addresses.
//
// All functions are pure and safe to call from any goroutine.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// corporateEmailRe matches local@mitie.es, case-insensitive.
var corporateEmailRe = regexp.MustCompile(`(?i)^[A-Za-z0-9._%+-]+@mitie\.es$`)

// ValidationError describes a scalar field that failed normalization.
// It is surfaced to the submitter verbatim; the operation must be
// aborted before any write.
type ValidationError struct {
	Field string // form/import field name
	Value string // the raw value as received
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

// Phone normalizes a raw phone value to its 9-digit national form.
//
// Empty input is "not provided" and returns ("", nil). Non-digit
// characters are stripped before applying the prefix rules:
//
//	9 digits            -> unchanged
//	34 + 9 digits       -> strip the 34 country prefix
//	0034 + 9 digits     -> strip the 0034 prefix
//	0 + 9 digits        -> strip the leading zero
//
// Any other non-empty shape returns a ValidationError. Callers reject
// the operation only when the raw field was non-empty yet invalid.
func Phone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	digits := stripNonDigits(raw)
	switch {
	case len(digits) == 9:
		return digits, nil
	case strings.HasPrefix(digits, "34") && len(digits) == 11:
		return digits[2:], nil
	case strings.HasPrefix(digits, "0034") && len(digits) == 13:
		return digits[4:], nil
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return digits[1:], nil
	}

	return "", &ValidationError{
		Field: "telefono",
		Value: raw,
		Msg:   "phone must be 9 digits, optionally prefixed with +34, 0034 or 0",
	}
}

// IMEI strips all non-digit characters from a raw IMEI value. It does not
// validate length; use ValidIMEI on the result.
func IMEI(raw string) string {
	return stripNonDigits(raw)
}

// ValidIMEI reports whether s is exactly 15 ASCII digits.
func ValidIMEI(s string) bool {
	if len(s) != 15 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsCorporateEmail reports whether addr is an @mitie.es address.
// Matching is case-insensitive; surrounding whitespace is ignored.
func IsCorporateEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	return corporateEmailRe.MatchString(addr)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
