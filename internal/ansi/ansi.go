// ABOUTME: ANSI escape sequence stripping for scraping text out of a terminal stream
// ABOUTME: Handles CSI, OSC, charset and string sequences; normalizes carriage returns and controls

package ansi

import "strings"

// Strip removes all ANSI escape sequences from s.
func Strip(s string) string {
	if !containsESC(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == '\x1b' {
			i = skipSequence(s, i)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Plain converts raw terminal output into line-oriented text: escape
// sequences are removed, "\r\n" and lone "\r" become "\n", backspace erases
// the previous byte, and other C0 controls except tab are dropped.
func Plain(s string) string {
	s = Strip(s)
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				continue
			}
			buf = append(buf, '\n')
		case c == '\b':
			if n := len(buf); n > 0 && buf[n-1] != '\n' {
				buf = buf[:n-1]
			}
		case c == '\n' || c == '\t' || c >= 0x20:
			buf = append(buf, c)
		}
	}
	return string(buf)
}

// containsESC is a fast check for the presence of ESC (0x1B).
func containsESC(s string) bool {
	return strings.IndexByte(s, '\x1b') >= 0
}

// skipSequence advances past an ANSI escape sequence starting at s[i].
// Returns the index of the first byte after the sequence.
func skipSequence(s string, i int) int {
	if i >= len(s) || s[i] != '\x1b' {
		return i
	}
	i++ // skip ESC
	if i >= len(s) {
		return i
	}

	switch s[i] {
	case '[':
		// CSI sequence: ESC [ ... <final byte 0x40-0x7E>
		i++
		for i < len(s) {
			b := s[i]
			if b >= 0x40 && b <= 0x7E {
				return i + 1
			}
			i++
		}
		return i
	case ']':
		// OSC sequence: ESC ] ... (ST or BEL)
		i++
		for i < len(s) {
			if s[i] == '\x07' {
				return i + 1
			}
			if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
			i++
		}
		return i
	case '(', ')':
		// Designate character set: ESC ( <char>
		if i+1 < len(s) {
			return i + 2
		}
		return i + 1
	case '_', 'P', '^':
		// APC, DCS, PM: terminated by ST
		i++
		for i < len(s) {
			if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
			i++
		}
		return i
	default:
		// Simple two-byte ESC sequence
		return i + 1
	}
}
