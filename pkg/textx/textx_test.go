package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"he\x00llo\nwo\x7frld\t!", "hello\nworld\t!"},
		{"  padded  ", "padded"},
		{"bad\xffbyte", "badbyte"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeText(tt.in); got != tt.want {
			t.Fatalf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeLine(t *testing.T) {
	if got := SanitizeLine("  Acme\n\tLabs \x00 Inc "); got != "Acme Labs Inc" {
		t.Fatalf("unexpected: %q", got)
	}
}
