package util

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeE164(t *testing.T) {
	phone, err := NormalizeE164(" +15551234567 ")
	if err != nil {
		t.Fatalf("expected valid phone: %v", err)
	}
	if phone != "+15551234567" {
		t.Fatalf("expected trimmed phone, got %q", phone)
	}

	if _, err := NormalizeE164("5551234567"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
	if _, err := NormalizeE164(""); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone for empty value, got %v", err)
	}
}

func TestNormalizeDestination(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 123-4567": "+15551234567",
		"5551234567":        "5551234567",
		"12345":             "12345",
		"555.123.4567":      "5551234567",
	}
	for in, want := range cases {
		got, err := NormalizeDestination(in)
		if err != nil {
			t.Fatalf("NormalizeDestination(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeDestination(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "abc", "12", "+", "555-CALL-NOW"} {
		if _, err := NormalizeDestination(in); !errors.Is(err, ErrInvalidDestination) {
			t.Fatalf("NormalizeDestination(%q) expected ErrInvalidDestination, got %v", in, err)
		}
	}
}

func TestEnsureMaxRunes(t *testing.T) {
	if err := EnsureMaxRunes("body", "héllo", 5); err != nil {
		t.Fatalf("expected rune count within limit: %v", err)
	}
	if err := EnsureMaxRunes("body", "hello!", 5); err == nil {
		t.Fatalf("expected error when exceeding limit")
	}
	if err := EnsureMaxRunes("body", strings.Repeat("x", 10), 0); err != nil {
		t.Fatalf("expected disabled limit to pass: %v", err)
	}
}

func TestSMSValidator(t *testing.T) {
	lenient := SMSValidator(10, false)
	if err := lenient("5551234567", "hi"); err != nil {
		t.Fatalf("expected lenient validator to accept local number: %v", err)
	}
	if err := lenient("5551234567", strings.Repeat("x", 11)); err == nil {
		t.Fatalf("expected body limit to be enforced")
	}

	strict := SMSValidator(0, true)
	if err := strict("5551234567", "hi"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected strict validator to require E.164, got %v", err)
	}
	if err := strict("+15551234567", strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("expected strict validator to accept E.164 without limit: %v", err)
	}
}
