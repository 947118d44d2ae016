// ABOUTME: Line scrapers that recover watch results and test outcomes from the tool's display text
// ABOUTME: Each grammar classifies a line or reports it unrecognized; results are deduplicated

package codeintel

import (
	"regexp"
	"strconv"
	"strings"
)

// Display glyphs.
const (
	WatchMarker  = "⧩"
	PassGlyph    = "✅"
	FailGlyph    = "🚫"
	AltPassGlyph = "◉"
	AltFailGlyph = "✗"
)

var (
	// watch-open = *SP 1*DIGIT *SP "|" *SP ">" *SP expr
	watchOpenRe = regexp.MustCompile(`^\s*(\d+)\s*\|\s*>\s*(.*?)\s*$`)
	// test-open  = *SP 1*DIGIT *SP "|" *SP "test>" *SP name *SP "=" any
	testOpenRe = regexp.MustCompile(`^\s*\d+\s*\|\s*test>\s*(\S.*?)\s*=`)
	// test-row   = *SP 1*DIGIT "." 1*SP name 1*SP glyph *SP
	testRowRe = regexp.MustCompile(`^\s*\d+\.\s+(\S.*?)\s+(` + PassGlyph + `|` + AltPassGlyph + `|` + FailGlyph + `|` + AltFailGlyph + `)\s*$`)
)

// scanWatches recovers watch results. A watch opens on `<N> | > expr`; a
// later line that is exactly the result marker arms it and the next
// non-empty line is its result. A new watch-open abandons an unfinished
// one. Results are kept once per line number.
func scanWatches(text string) []WatchResult {
	var (
		out     []WatchResult
		seen    = map[int]bool{}
		pending *WatchResult
		armed   bool
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := watchOpenRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			pending = &WatchResult{Line: n, Expression: m[2]}
			armed = false
			continue
		}
		if pending == nil {
			continue
		}
		switch {
		case trimmed == WatchMarker:
			armed = true
		case armed && trimmed != "":
			if !seen[pending.Line] {
				seen[pending.Line] = true
				pending.Result = trimmed
				out = append(out, *pending)
			}
			pending, armed = nil, false
		}
	}
	return out
}

// scanInlineTests recovers inline test outcomes from typecheck output. A
// `<N> | test> name = …` line makes name pending; the next line holding
// the pass or fail glyph resolves the most recent pending name. Results
// are kept once per name.
func scanInlineTests(text string) []TestResult {
	var (
		out     []TestResult
		seen    = map[string]bool{}
		pending string
	)
	for _, line := range strings.Split(text, "\n") {
		if m := testOpenRe.FindStringSubmatch(line); m != nil {
			pending = m[1]
			continue
		}
		if pending == "" {
			continue
		}
		passed, ok := inlineGlyph(line)
		if !ok {
			continue
		}
		if !seen[pending] {
			seen[pending] = true
			out = append(out, TestResult{Name: pending, Passed: passed})
		}
		pending = ""
	}
	return out
}

// inlineGlyph classifies a line by glyph; ok is false when it carries none.
func inlineGlyph(line string) (passed, ok bool) {
	switch {
	case strings.Contains(line, FailGlyph):
		return false, true
	case strings.Contains(line, PassGlyph):
		return true, true
	default:
		return false, false
	}
}

// scanTestRows recovers run-tests outcomes from `<N>. name glyph` rows.
// Results are kept once per name.
func scanTestRows(text string) []TestResult {
	var out []TestResult
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		m := testRowRe.FindStringSubmatch(line)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, TestResult{Name: m[1], Passed: m[2] == PassGlyph || m[2] == AltPassGlyph})
	}
	return out
}
