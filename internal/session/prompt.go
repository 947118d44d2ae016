// ABOUTME: Prompt grammar that recovers the tool's project/branch context from terminal text
// ABOUTME: Returns an explicit unrecognized outcome instead of guessing when no prompt is found

package session

import (
	"strings"
	"unicode"
)

// Context is the tool's active project and branch. The zero value means
// no context has been detected yet.
type Context struct {
	Project string `json:"project,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// IsZero reports whether no context is known.
func (c Context) IsZero() bool {
	return c.Project == "" && c.Branch == ""
}

func (c Context) String() string {
	if c.IsZero() {
		return "<none>"
	}
	return c.Project + "/" + c.Branch
}

// ContextParser extracts a Context from recent terminal text. ok is false
// when the text holds no recognizable prompt.
type ContextParser interface {
	Parse(text string) (ctx Context, ok bool)
}

// PromptParser recognizes the tool's interactive prompt:
//
//	line    = *any prompt ">" *any
//	prompt  = project "/" branch [ ":" subpath ]
//	project = 1*non-space
//	branch  = 1*non-space
//
// Lines are examined from last to first, skipping blank ones; within a
// line only the text before the last ">" is considered. The first line
// that satisfies the grammar wins, so in multi-line text the most recent
// prompt is reported.
type PromptParser struct{}

// Parse implements ContextParser.
func (PromptParser) Parse(text string) (Context, bool) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if ctx, ok := parsePromptLine(line); ok {
			return ctx, true
		}
	}
	return Context{}, false
}

func parsePromptLine(line string) (Context, bool) {
	end := strings.LastIndexByte(line, '>')
	if end < 0 {
		return Context{}, false
	}
	prompt := line[:end]
	if colon := strings.IndexByte(prompt, ':'); colon >= 0 {
		prompt = prompt[:colon]
	}
	slash := strings.LastIndexByte(prompt, '/')
	if slash < 0 {
		return Context{}, false
	}
	project := strings.TrimSpace(prompt[:slash])
	branch := strings.TrimSpace(prompt[slash+1:])
	if project == "" || branch == "" || hasSpace(project) || hasSpace(branch) {
		return Context{}, false
	}
	return Context{Project: project, Branch: branch}, true
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
