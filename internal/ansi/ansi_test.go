// ABOUTME: Tests for ANSI stripping and terminal text normalization
// ABOUTME: Covers SGR colours, OSC titles, carriage returns and backspaces

package ansi

import "testing"

func TestStrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "tour/main> ", "tour/main> "},
		{"sgr", "\x1b[1;32mtour/main\x1b[0m> ", "tour/main> "},
		{"osc bel", "\x1b]0;ucm\x07prompt", "prompt"},
		{"osc st", "\x1b]2;title\x1b\\x", "x"},
		{"charset", "\x1b(Bok", "ok"},
		{"cursor", "a\x1b[2Kb\x1b[10Dc", "abc"},
		{"truncated csi", "x\x1b[1;3", "x"},
		{"two byte", "\x1b=y", "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Strip(tt.in); got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"lone cr", "loading\rtour/main> ", "loading\ntour/main> "},
		{"backspace", "ab\bc", "ac"},
		{"backspace at line start", "a\n\bb", "a\nb"},
		{"bell dropped", "x\x07y", "xy"},
		{"tab kept", "a\tb", "a\tb"},
		{"colour and cr", "\x1b[33mx\x1b[0m\r\n", "x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Plain(tt.in); got != tt.want {
				t.Errorf("Plain(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
