package validation

import (
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in       string
		maxLen   int
		expected string
	}{
		{"  hello  ", 100, "hello"},
		{"with\x00null", 100, "withnull"},
		{"toolongstring", 5, "toolo"},
		{"", 100, ""},
	}

	for _, tt := range tests {
		if got := SanitizeString(tt.in, tt.maxLen); got != tt.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("name", ""),
		Required("asset", "SOL"),
		ValidAmount("amount", "-1"),
	)

	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "name" {
		t.Errorf("Expected first error on name, got %s", errs[0].Field)
	}
	if errs[1].Field != "amount" {
		t.Errorf("Expected second error on amount, got %s", errs[1].Field)
	}
	if !strings.Contains(errs.Error(), "name") {
		t.Errorf("Error() should mention the first failing field: %s", errs.Error())
	}
}

func TestValidate_AllPass(t *testing.T) {
	errs := Validate(
		Required("asset", "SOL"),
		ValidAmount("amount", "2.5"),
		MaxLength("notes", "short", 100),
	)
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"1", true},
		{"0.5", true},
		{"100.000001", true},
		{"", true}, // empty is allowed; use Required for required fields
		{"0", false},
		{"0.0", false},
		{"-5", false},
		{"1.2.3", false},
		{"abc", false},
		{"1e5", true}, // scientific notation parses as a decimal
	}

	for _, tt := range tests {
		err := ValidAmount("amount", tt.value)()
		if tt.valid && err != nil {
			t.Errorf("ValidAmount(%q) unexpected error: %v", tt.value, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidAmount(%q) expected error", tt.value)
		}
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", strings.Repeat("a", 11), 10)(); err == nil {
		t.Error("Expected error for string over max length")
	}
	if err := MaxLength("field", "short", 10)(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
