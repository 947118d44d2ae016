// ABOUTME: Tests for the semantic operations over a scripted Caller
// ABOUTME: Checks tool names, argument shapes, typed failures and transport error propagation

package codeintel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauromedda/ucm-bridge/internal/mcp"
)

type call struct {
	name string
	args map[string]any
}

type fakeCaller struct {
	calls  []call
	result mcp.ToolCallResult
	err    error
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (mcp.ToolCallResult, error) {
	f.calls = append(f.calls, call{name, args})
	return f.result, f.err
}

func text(s string) mcp.ToolCallResult {
	return mcp.ToolCallResult{Content: []mcp.ContentItem{{Type: "text", Text: s}}}
}

var testPC = ProjectContext{ProjectName: "@me/tour", BranchName: "main"}

// argsJSON renders args the way the transport would send them.
func argsJSON(t *testing.T, args map[string]any) string {
	t.Helper()
	b, err := json.Marshal(args)
	require.NoError(t, err)
	return string(b)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{result: text(`{"outputMessages":["Done."],"sourceCodeUpdates":[{},{}]}`)}
	res, err := New(fc).Update(context.Background(), testPC, "foo = 1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Updated 2 definitions", res.Output)
	assert.Empty(t, res.Errors)
	require.Len(t, fc.calls, 1)
	assert.Equal(t, ToolUpdate, fc.calls[0].name)
	assert.JSONEq(t,
		`{"projectContext":{"projectName":"@me/tour","branchName":"main"},"code":{"text":"foo = 1"}}`,
		argsJSON(t, fc.calls[0].args))
}

func TestUpdateToolError(t *testing.T) {
	t.Parallel()

	r := text(`{"errorMessages":["I couldn't find foo"]}`)
	r.IsError = true
	res, err := New(&fakeCaller{result: r}).Update(context.Background(), testPC, "bar = foo")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"I couldn't find foo"}, res.Errors)
}

func TestTypecheckScrapesWatchesAndTests(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(map[string]any{
		"outputMessages": []string{
			"Loading changes detected in scratch.u.",
			"  1 | > 2 + 3\n        ⧩\n        5",
			"  4 | test> t.ok = check true\n        ✅ Passed",
		},
	})
	fc := &fakeCaller{result: text(string(payload))}
	res, err := New(fc).Typecheck(context.Background(), testPC, "> 2 + 3")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, ToolTypecheck, fc.calls[0].name)
	assert.Equal(t, []WatchResult{{Line: 1, Expression: "2 + 3", Result: "5"}}, res.Watches)
	assert.Equal(t, []TestResult{{Name: "t.ok", Passed: true}}, res.Tests)
}

func TestTypecheckEmptyListsNotNull(t *testing.T) {
	t.Parallel()

	res, err := New(&fakeCaller{result: text("{}")}).Typecheck(context.Background(), testPC, "")
	require.NoError(t, err)
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"output":"Typechecked successfully","errors":[],"watchResults":[],"testResults":[]}`, string(b))
}

func TestRunTests(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{result: text("  1. tests.a ◉\n  2. tests.b ✗\n")}
	res, err := New(fc).RunTests(context.Background(), testPC, "lib.utils")
	require.NoError(t, err)

	assert.False(t, res.Success, "a failing test fails the run")
	assert.Equal(t, 1, res.Passed())
	assert.Len(t, res.Tests, 2)
	assert.Equal(t, "lib.utils", fc.calls[0].args["subnamespace"])
}

func TestRunTestsWithoutSubnamespace(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{result: text("  1. tests.a ✅")}
	res, err := New(fc).RunTests(context.Background(), testPC, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	_, ok := fc.calls[0].args["subnamespace"]
	assert.False(t, ok, "subnamespace sent when empty")
}

func TestRun(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{result: text(`{"stdout":"hi\n","stderr":"","outputMessages":[]}`)}
	res, err := New(fc).Run(context.Background(), testPC, "main", nil)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.JSONEq(t,
		`{"projectContext":{"projectName":"@me/tour","branchName":"main"},"mainFunctionName":"main","args":[]}`,
		argsJSON(t, fc.calls[0].args))

	_, err = New(fc).Run(context.Background(), testPC, " ", nil)
	assert.Error(t, err)
}

func TestView(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{result: text("square x = x * x")}
	src, err := New(fc).View(context.Background(), testPC, []string{"square"})
	require.NoError(t, err)
	assert.Equal(t, "square x = x * x", src)
	assert.Equal(t, ToolView, fc.calls[0].name)

	r := text("not found: nope")
	r.IsError = true
	_, err = New(&fakeCaller{result: r}).View(context.Background(), testPC, []string{"nope"})
	assert.ErrorIs(t, err, ErrToolFailed)

	_, err = New(fc).View(context.Background(), testPC, nil)
	assert.Error(t, err)
}

func TestMissingContext(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{}
	s := New(fc)
	_, err := s.Update(context.Background(), ProjectContext{ProjectName: "p"}, "")
	assert.ErrorIs(t, err, ErrMissingContext)
	_, err = s.RunTests(context.Background(), ProjectContext{}, "")
	assert.ErrorIs(t, err, ErrMissingContext)
	assert.Empty(t, fc.calls)
}

func TestTransportErrorPropagates(t *testing.T) {
	t.Parallel()

	fc := &fakeCaller{err: mcp.ErrTransportClosed}
	_, err := New(fc).Typecheck(context.Background(), testPC, "x")
	assert.True(t, errors.Is(err, mcp.ErrTransportClosed))
}
