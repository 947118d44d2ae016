// ABOUTME: Two-tier parse of tool output: structured JSON first, raw text as the fallback
// ABOUTME: Extracts error and output messages, drops progress noise and summarizes source updates

package codeintel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// noise lines the tool prints around every operation.
var noise = []string{"Loading changes detected"}

// toolOutput is the structured payload the tool embeds in its text content.
type toolOutput struct {
	ErrorMessages     []string          `json:"errorMessages"`
	OutputMessages    []string          `json:"outputMessages"`
	SourceCodeUpdates []json.RawMessage `json:"sourceCodeUpdates"`
	Stdout            json.RawMessage   `json:"stdout"`
	Stderr            json.RawMessage   `json:"stderr"`
}

// defaults are the summaries used when the tool says nothing useful.
type defaults struct {
	success string
	failure string
}

// parsed is the common shape every operation is built from.
type parsed struct {
	success bool
	output  string
	errors  []string
	// transcript is every output line, noise included, for the scrapers.
	transcript string
	stdout     string
	stderr     string
}

// parseOutput applies the two-tier parse to raw, the joined text content
// of a tool result.
func parseOutput(raw string, isError bool, d defaults) parsed {
	trimmed := strings.TrimSpace(raw)
	var out toolOutput
	if !strings.HasPrefix(trimmed, "{") || json.Unmarshal([]byte(trimmed), &out) != nil {
		p := parsed{success: !isError, output: raw, transcript: raw}
		if isError {
			msg := raw
			if strings.TrimSpace(msg) == "" {
				msg = d.failure
				p.output = msg
			}
			p.errors = []string{msg}
		}
		return p
	}

	p := parsed{
		transcript: strings.Join(out.OutputMessages, "\n"),
		stdout:     flexText(out.Stdout),
		stderr:     flexText(out.Stderr),
	}
	for _, m := range out.ErrorMessages {
		if m != "" {
			p.errors = append(p.errors, m)
		}
	}

	var messages []string
	for _, m := range out.OutputMessages {
		if m == "" || m == "Done." || isNoise(m) {
			continue
		}
		messages = append(messages, m)
	}
	if n := len(out.SourceCodeUpdates); n > 0 {
		messages = append(messages, updatedSummary(n))
	}

	switch {
	case len(p.errors) > 0:
		p.output = strings.Join(p.errors, "\n")
	case len(messages) > 0:
		p.output = strings.Join(messages, ". ")
	case isError:
		p.output = d.failure
		p.errors = []string{d.failure}
	default:
		p.output = d.success
	}
	p.success = !isError && len(p.errors) == 0
	return p
}

func isNoise(m string) bool {
	for _, n := range noise {
		if strings.Contains(m, n) {
			return true
		}
	}
	return false
}

func updatedSummary(n int) string {
	if n == 1 {
		return "Updated 1 definition"
	}
	return fmt.Sprintf("Updated %d definitions", n)
}

// flexText decodes a JSON string or array of strings; anything else is
// rendered as its JSON text.
func flexText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var lines []string
	if json.Unmarshal(raw, &lines) == nil {
		return strings.Join(lines, "\n")
	}
	return string(raw)
}
