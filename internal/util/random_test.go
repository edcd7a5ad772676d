package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		hexLength int
	}{
		{"contact prefix", "c_", 32},
		{"message prefix", "m_", 32},
		{"batch prefix", "lote_", 32},
		{"short custom id", "x_", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)

			rest, ok := strings.CutPrefix(got, tt.prefix)
			if !ok {
				t.Fatalf("GenerateRandomID(%q, %d) = %q, missing prefix", tt.prefix, tt.hexLength, got)
			}
			if len(rest) != tt.hexLength {
				t.Errorf("hex part length = %d, want %d", len(rest), tt.hexLength)
			}
			if !isLowerHex(rest) {
				t.Errorf("hex part %q contains non-hex characters", rest)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	for _, length := range []int{8, 32, 64} {
		got := GenerateRandomHex(length)
		if len(got) != length {
			t.Errorf("GenerateRandomHex(%d) length = %d", length, len(got))
		}
		if !isLowerHex(got) {
			t.Errorf("GenerateRandomHex(%d) = %q is not lowercase hex", length, got)
		}
	}

	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("GenerateRandomHex(0) = %q, want empty", got)
	}
	if got := GenerateRandomHex(-3); got != "" {
		t.Errorf("GenerateRandomHex(-3) = %q, want empty", got)
	}
}

func TestDomainIDHelpers(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"contact", GenerateContactID, "c_"},
		{"message", GenerateMessageID, "m_"},
		{"batch", GenerateBatchID, "lote_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("%s id = %q, want prefix %q", tt.name, got, tt.prefix)
			}
			if len(got) != len(tt.prefix)+32 {
				t.Errorf("%s id length = %d, want %d", tt.name, len(got), len(tt.prefix)+32)
			}
		})
	}
}

func TestRandomIDUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := GenerateMessageID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
