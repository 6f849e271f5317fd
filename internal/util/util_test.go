package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"bogus", true, true},
	}
	for _, tt := range tests {
		t.Setenv("BOOKLINE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("BOOKLINE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestGenerateSessionID(t *testing.T) {
	a := GenerateSessionID()
	b := GenerateSessionID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty session IDs")
	}
	if a == b {
		t.Error("expected unique session IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected UUID-shaped session ID, got %q", a)
	}
}
