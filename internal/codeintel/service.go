// ABOUTME: Semantic operations against the tool's RPC server: update, typecheck, run-tests, run, view
// ABOUTME: Tool failures become typed results; only transport failures surface as Go errors

package codeintel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mauromedda/ucm-bridge/internal/log"
	"github.com/mauromedda/ucm-bridge/internal/mcp"
)

// Tool names on the RPC server.
const (
	ToolUpdate    = "update-definitions"
	ToolTypecheck = "typecheck-code"
	ToolRunTests  = "run-tests"
	ToolRun       = "run"
	ToolView      = "view-definitions"
)

// RequiredTools must all be offered by a server before it is used.
// ToolView is optional; older servers lack it.
var RequiredTools = []string{ToolUpdate, ToolTypecheck, ToolRunTests, ToolRun}

var (
	// ErrMissingContext is returned when no project or branch is given.
	ErrMissingContext = errors.New("codeintel: project and branch are required")
	// ErrToolFailed wraps a tool-level failure for operations that return
	// plain text.
	ErrToolFailed = errors.New("codeintel: tool reported an error")
)

var logger = log.With("codeintel")

// Caller invokes one tool; *mcp.Client satisfies it.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolCallResult, error)
}

// Service runs semantic operations through a connected Caller.
type Service struct {
	client Caller
}

// New returns a Service over client.
func New(client Caller) *Service {
	return &Service{client: client}
}

// Validate requires both names.
func (pc ProjectContext) Validate() error {
	if pc.ProjectName == "" || pc.BranchName == "" {
		return fmt.Errorf("%w (got %q/%q)", ErrMissingContext, pc.ProjectName, pc.BranchName)
	}
	return nil
}

func (pc ProjectContext) arg() map[string]string {
	return map[string]string{"projectName": pc.ProjectName, "branchName": pc.BranchName}
}

func (s *Service) call(ctx context.Context, tool string, args map[string]any, d defaults) (parsed, error) {
	res, err := s.client.CallTool(ctx, tool, args)
	if err != nil {
		return parsed{}, err
	}
	p := parseOutput(res.Text(), res.IsError, d)
	logger.Debug("%s: success=%v errors=%d", tool, p.success, len(p.errors))
	return p, nil
}

// Update saves the definitions in code to the codebase.
func (s *Service) Update(ctx context.Context, pc ProjectContext, code string) (UpdateResult, error) {
	if err := pc.Validate(); err != nil {
		return UpdateResult{}, err
	}
	p, err := s.call(ctx, ToolUpdate, map[string]any{
		"projectContext": pc.arg(),
		"code":           map[string]string{"text": code},
	}, defaults{success: "Saved to codebase", failure: "Update failed"})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Success: p.success, Output: p.output, Errors: nonNil(p.errors)}, nil
}

// Typecheck checks code without saving it and evaluates its watch
// expressions and inline tests.
func (s *Service) Typecheck(ctx context.Context, pc ProjectContext, code string) (TypecheckResult, error) {
	if err := pc.Validate(); err != nil {
		return TypecheckResult{}, err
	}
	p, err := s.call(ctx, ToolTypecheck, map[string]any{
		"projectContext": pc.arg(),
		"code":           map[string]string{"text": code},
	}, defaults{success: "Typechecked successfully", failure: "Typecheck failed"})
	if err != nil {
		return TypecheckResult{}, err
	}
	return TypecheckResult{
		Success: p.success,
		Output:  p.output,
		Errors:  nonNil(p.errors),
		Watches: nonNil(scanWatches(p.transcript)),
		Tests:   nonNil(scanInlineTests(p.transcript)),
	}, nil
}

// RunTests runs the tests under subnamespace, or all tests when empty.
func (s *Service) RunTests(ctx context.Context, pc ProjectContext, subnamespace string) (RunTestsResult, error) {
	if err := pc.Validate(); err != nil {
		return RunTestsResult{}, err
	}
	args := map[string]any{"projectContext": pc.arg()}
	if subnamespace != "" {
		args["subnamespace"] = subnamespace
	}
	p, err := s.call(ctx, ToolRunTests, args, defaults{success: "Tests completed", failure: "Test run failed"})
	if err != nil {
		return RunTestsResult{}, err
	}
	tests := scanTestRows(p.transcript)
	success := p.success
	for _, t := range tests {
		if !t.Passed {
			success = false
		}
	}
	return RunTestsResult{Success: success, Output: p.output, Errors: nonNil(p.errors), Tests: nonNil(tests)}, nil
}

// Run executes function with args and captures its output channels.
func (s *Service) Run(ctx context.Context, pc ProjectContext, function string, args []string) (RunResult, error) {
	if err := pc.Validate(); err != nil {
		return RunResult{}, err
	}
	if strings.TrimSpace(function) == "" {
		return RunResult{}, errors.New("codeintel: function name is required")
	}
	p, err := s.call(ctx, ToolRun, map[string]any{
		"projectContext":   pc.arg(),
		"mainFunctionName": function,
		"args":             nonNil(args),
	}, defaults{failure: "Run failed"})
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{
		Success: p.success,
		Output:  p.output,
		Stdout:  p.stdout,
		Stderr:  p.stderr,
		Errors:  nonNil(p.errors),
	}, nil
}

// View returns the source of the named definitions.
func (s *Service) View(ctx context.Context, pc ProjectContext, names []string) (string, error) {
	if err := pc.Validate(); err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.New("codeintel: at least one definition name is required")
	}
	res, err := s.client.CallTool(ctx, ToolView, map[string]any{
		"projectContext": pc.arg(),
		"names":          names,
	})
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, res.Text())
	}
	return res.Text(), nil
}

// nonNil keeps empty lists as [] rather than null in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
