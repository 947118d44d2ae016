// ABOUTME: Tests for the command tree: flag wiring, ports, argument validation and rendering
// ABOUTME: Commands run in-process against a temporary config file

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/mauromedda/ucm-bridge/internal/bridge"
	"github.com/mauromedda/ucm-bridge/internal/codeintel"
	"github.com/mauromedda/ucm-bridge/internal/events"
)

// runCLI runs the CLI with a temporary config and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log_level: error\n"), 0o644))

	var out, errOut bytes.Buffer
	err := execute(newApp(), append([]string{"--config", cfgPath}, args...), &out, &errOut)
	return out.String(), errOut.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd(newApp())
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"attach", "relay", "ports", "update", "typecheck", "test", "run", "view", "watch"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "verbose", "metrics-addr"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func TestPortsCommand(t *testing.T) {
	out, _, err := runCLI(t, "ports", "20000", "--count", "3", "--json")
	require.NoError(t, err)

	var got []int
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 3)
	for i, p := range got {
		assert.GreaterOrEqual(t, p, 20000)
		if i > 0 {
			assert.Greater(t, p, got[i-1])
		}
	}
}

func TestPortsCommandRejectsBadStart(t *testing.T) {
	_, _, err := runCLI(t, "ports", "high")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid start port "high"`)
}

func TestRelayRejectsBadUpstream(t *testing.T) {
	_, _, err := runCLI(t, "relay", "--upstream", "no-port")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --upstream")
}

func TestUpdateRequiresProjectContext(t *testing.T) {
	src := filepath.Join(t.TempDir(), "scratch.u")
	require.NoError(t, os.WriteFile(src, []byte("x = 1\n"), 0o644))

	_, _, err := runCLI(t, "update", src, "--project", "", "--branch", "")
	require.ErrorIs(t, err, codeintel.ErrMissingContext)
}

func TestUpdateMissingFile(t *testing.T) {
	_, _, err := runCLI(t, "update", filepath.Join(t.TempDir(), "absent.u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestBadConfigFails(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tool:\n  binary: \"\"\n"), 0o644))

	root := newRootCmd(newApp())
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "ports"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestMetricsEndpoint(t *testing.T) {
	stop, err := serveMetrics("127.0.0.1:0")
	require.NoError(t, err)
	stop()
}

func TestMetricsStoppedAfterFailedCommand(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp4")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, _, err = runCLI(t, "--metrics-addr", addr, "ports", "high")
	require.Error(t, err)

	// the endpoint's port is free again once the failed command returns
	again, err := net.Listen("tcp", addr)
	require.NoError(t, err, "metrics endpoint still bound after a failed command")
	_ = again.Close()
}

func TestEmitReportsFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := &rpcFlags{asJSON: true}
	res := codeintel.UpdateResult{Success: false, Output: "boom", Errors: []string{"boom"}}
	err := emit(&buf, f, res, res.Success, renderUpdate)
	assert.True(t, errors.Is(err, errReported))

	var back codeintel.UpdateResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, res, back)
}

func TestRenderTypecheck(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderTypecheck(&buf, codeintel.TypecheckResult{
		Success: true,
		Output:  "Typechecked successfully",
		Watches: []codeintel.WatchResult{{Line: 3, Expression: "1 + 1", Result: "2"}},
		Tests:   []codeintel.TestResult{{Name: "ok.test", Passed: true}, {Name: "bad.test", Passed: false}},
	})
	out := buf.String()
	for _, want := range []string{"Typechecked successfully", "1 + 1", "⧩ 2", "ok.test", "bad.test"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderRunTests(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderRunTests(&buf, codeintel.RunTestsResult{
		Success: false,
		Tests:   []codeintel.TestResult{{Name: "a", Passed: true}, {Name: "b", Passed: false}},
	})
	assert.Contains(t, buf.String(), "1/2 passed")
}

func TestRenderRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderRun(&buf, codeintel.RunResult{Success: true, Stdout: "hello", Output: "hello"})
	assert.Equal(t, "hello\n", buf.String())
}

func TestRenderServicePorts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderServicePorts(&buf, bridge.ServicePorts{ControlPort: 5858, ProtocolPort: 5757, RelayPort: 5759})
	out := buf.String()
	for _, want := range []string{"5858", "5757", "ws://127.0.0.1:5759"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderFileEvent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderFileEvent(&buf, events.Event{
		Kind:       events.KindFileChanged,
		Path:       "/tmp/scratch.u",
		ChangeType: "deleted",
		DetectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "/tmp/scratch.u\n"), out)
	assert.Contains(t, out, "03:04:05.000")
	assert.Contains(t, out, "deleted")
}
