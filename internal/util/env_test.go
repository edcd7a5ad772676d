package util

import (
	"os"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	defer os.Unsetenv("TEST_BOOL_ENV")

	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"unset uses default", "", true, true},
		{"true value", "true", false, true},
		{"numeric true", "1", false, true},
		{"yes value", "YES", false, true},
		{"false value", "false", true, false},
		{"off value", "off", true, false},
		{"garbage uses default", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_BOOL_ENV")
			if tt.value != "" {
				os.Setenv("TEST_BOOL_ENV", tt.value)
			}
			got := ParseBoolEnv("TEST_BOOL_ENV", tt.def)
			if got != tt.expected {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	defer os.Unsetenv("TEST_DURATION_ENV")

	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"unset uses default", "", time.Hour, time.Hour},
		{"seconds", "30s", time.Hour, 30 * time.Second},
		{"hours", "24h", time.Minute, 24 * time.Hour},
		{"padded value", " 5m ", time.Hour, 5 * time.Minute},
		{"garbage uses default", "soon", 2 * time.Hour, 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_DURATION_ENV")
			if tt.value != "" {
				os.Setenv("TEST_DURATION_ENV", tt.value)
			}
			got := ParseDurationEnv("TEST_DURATION_ENV", tt.def)
			if got != tt.expected {
				t.Errorf("ParseDurationEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}

func TestParseListEnv(t *testing.T) {
	defer os.Unsetenv("TEST_LIST_ENV")
	def := []string{"preenchido"}

	t.Run("unset uses default", func(t *testing.T) {
		os.Unsetenv("TEST_LIST_ENV")
		got := ParseListEnv("TEST_LIST_ENV", def)
		if len(got) != 1 || got[0] != "preenchido" {
			t.Errorf("ParseListEnv() = %v, want %v", got, def)
		}
	})

	t.Run("splits and trims", func(t *testing.T) {
		os.Setenv("TEST_LIST_ENV", "preenchido, termo enviado ,")
		got := ParseListEnv("TEST_LIST_ENV", def)
		if len(got) != 2 {
			t.Fatalf("ParseListEnv() returned %d entries, want 2: %v", len(got), got)
		}
		if got[0] != "preenchido" || got[1] != "termo enviado" {
			t.Errorf("ParseListEnv() = %v", got)
		}
	})

	t.Run("only separators uses default", func(t *testing.T) {
		os.Setenv("TEST_LIST_ENV", " , ,")
		got := ParseListEnv("TEST_LIST_ENV", def)
		if len(got) != 1 || got[0] != "preenchido" {
			t.Errorf("ParseListEnv() = %v, want %v", got, def)
		}
	})
}
