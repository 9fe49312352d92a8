package common

import (
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal secret", "secret123", "s***"},
		{"single character", "x", "***"},
		{"empty", "", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSecret(tt.input); got != tt.expected {
				t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{
			name:     "key=value dsn",
			input:    "host=localhost port=5432 user=u password=secret dbname=x",
			contains: "password=***",
		},
		{
			name:     "passwd variant",
			input:    "passwd=topsecret host=localhost",
			contains: "passwd=***",
		},
		{
			name:     "case insensitive",
			input:    "PASSWORD=abc",
			contains: "PASSWORD=***",
		},
		{
			name:     "no password field",
			input:    "host=localhost user=u",
			contains: "host=localhost user=u",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskDSN(tt.input)
			if !strings.Contains(result, tt.contains) {
				t.Errorf("MaskDSN(%q) = %q, should contain %q", tt.input, result, tt.contains)
			}
			if strings.Contains(tt.input, "secret") && strings.Contains(result, "secret") {
				t.Errorf("MaskDSN(%q) leaked the password: %q", tt.input, result)
			}
		})
	}
}
