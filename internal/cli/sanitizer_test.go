package cli

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	limit := DefaultMaxInputSize

	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"under limit", limit - 1, false},
		{"exact limit", limit, false},
		{"over limit", limit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Repeat("a", tt.inputSize)
			_, err := sanitizeInput(input)
			if tt.wantErr {
				if !errors.Is(err, ErrInputTooLarge) {
					t.Errorf("sanitizeInput() error = %v, want ErrInputTooLarge", err)
				}
			} else if err != nil {
				t.Errorf("sanitizeInput() unexpected error: %v", err)
			}
		})
	}
}

func TestSanitizeInput_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "8")

	if _, err := sanitizeInput("12345678"); err != nil {
		t.Errorf("sanitizeInput() unexpected error at limit: %v", err)
	}
	if _, err := sanitizeInput("123456789"); !errors.Is(err, ErrInputTooLarge) {
		t.Errorf("sanitizeInput() error = %v, want ErrInputTooLarge", err)
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text", "submit order-42", "submit order-42"},
		{"safe controls", "line1\nline2\ttabbed", "line1\nline2\ttabbed"},
		{"ansi escape", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"null byte", "null\x00byte", "nullbyte"},
		{"bell", "ding\x07", "ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeInput(tt.input)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	if _, err := sanitizeInput("ok\xff\xfe"); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("sanitizeInput() error = %v, want ErrInvalidUTF8", err)
	}
}
