// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "DE"

// ErrInvalidNumber is returned when a number cannot be dialled in E.164 form.
var ErrInvalidNumber = errors.New("invalid phone number")

// NormalizeE164 formats a phone number to E.164 using the default region.
// If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	return NormalizeE164ForRegion(input, defaultRegion)
}

// NormalizeE164ForRegion formats a phone number to E.164, interpreting
// national numbers in the given ISO-3166 alpha-2 region. If parsing fails,
// it returns the trimmed input.
func NormalizeE164ForRegion(input, region string) string {
	normalized, err := ParseE164(input, region)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// ParseE164 is the strict variant used where a bad number must be rejected.
func ParseE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidNumber
	}
	if region == "" {
		region = defaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalidNumber
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}
