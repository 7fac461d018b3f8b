package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidPhone is returned when a phone number is not E.164 compliant.
	ErrInvalidPhone = errors.New("invalid e164 phone number")
	// ErrInvalidDestination is returned when a destination cannot be dialled.
	ErrInvalidDestination = errors.New("invalid destination")
)

var (
	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	// Local numbers and carrier short codes are accepted unless strict
	// validation is configured.
	dialablePattern = regexp.MustCompile(`^\+?\d{3,15}$`)
	separators      = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizeE164 validates a phone number using the E.164 format and returns the
// normalized representation.
func NormalizeE164(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidPhone)
	}

	if !e164Pattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, trimmed)
	}

	return trimmed, nil
}

// NormalizeDestination strips common formatting separators and checks the
// result is a dialable number or short code.
func NormalizeDestination(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidDestination)
	}

	compact := separators.Replace(trimmed)
	if !dialablePattern.MatchString(compact) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, trimmed)
	}
	return compact, nil
}

// EnsureMaxRunes ensures a string is not longer than the provided rune count.
func EnsureMaxRunes(field, value string, max int) error {
	if max <= 0 {
		return nil
	}
	length := utf8.RuneCountInString(value)
	if length > max {
		return fmt.Errorf("%s exceeds maximum length of %d characters", field, max)
	}
	return nil
}

// SMSValidator returns a request check for outbound messages. A bodyMax of
// zero disables the length limit.
func SMSValidator(bodyMax int, strictE164 bool) func(destination, body string) error {
	return func(destination, body string) error {
		var err error
		if strictE164 {
			_, err = NormalizeE164(destination)
		} else {
			_, err = NormalizeDestination(destination)
		}
		if err != nil {
			return err
		}
		return EnsureMaxRunes("body", body, bodyMax)
	}
}
