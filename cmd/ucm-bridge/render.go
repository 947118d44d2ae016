// ABOUTME: Text and JSON rendering of ports, semantic results and file events
// ABOUTME: Text output is styled with lipgloss; --json prints the raw result structs

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mauromedda/ucm-bridge/internal/bridge"
	"github.com/mauromedda/ucm-bridge/internal/codeintel"
	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/watcher"
)

var (
	colorOK    = lipgloss.Color("#2CD7C7")
	colorFail  = lipgloss.Color("#E74C3C")
	colorMuted = lipgloss.Color("#5C7A84")
	colorWatch = lipgloss.Color("#F4D03F")
)

var styles = struct {
	Title lipgloss.Style
	Label lipgloss.Style
	OK    lipgloss.Style
	Fail  lipgloss.Style
	Muted lipgloss.Style
	Watch lipgloss.Style
	Box   lipgloss.Style
}{
	Title: lipgloss.NewStyle().Bold(true),
	Label: lipgloss.NewStyle().Foreground(colorMuted).Width(10),
	OK:    lipgloss.NewStyle().Foreground(colorOK),
	Fail:  lipgloss.NewStyle().Foreground(colorFail),
	Muted: lipgloss.NewStyle().Foreground(colorMuted),
	Watch: lipgloss.NewStyle().Foreground(colorWatch),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorMuted).
		Padding(0, 1),
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

func status(ok bool, okText, failText string) string {
	if ok {
		return styles.OK.Render("✓ " + okText)
	}
	return styles.Fail.Render("✗ " + failText)
}

func renderServicePorts(w io.Writer, p bridge.ServicePorts) {
	rows := []string{
		styles.Label.Render("control") + fmt.Sprint(p.ControlPort),
		styles.Label.Render("protocol") + fmt.Sprint(p.ProtocolPort),
		styles.Label.Render("relay") + fmt.Sprintf("ws://127.0.0.1:%d", p.RelayPort),
	}
	fmt.Fprintln(w, styles.Box.Render(styles.Title.Render("session")+"\n"+strings.Join(rows, "\n")))
}

func renderErrors(w io.Writer, errs []string) {
	for _, e := range errs {
		fmt.Fprintln(w, styles.Fail.Render(e))
	}
}

func renderUpdate(w io.Writer, r codeintel.UpdateResult) {
	fmt.Fprintln(w, status(r.Success, r.Output, r.Output))
	renderErrors(w, r.Errors)
}

func renderTypecheck(w io.Writer, r codeintel.TypecheckResult) {
	fmt.Fprintln(w, status(r.Success, r.Output, r.Output))
	renderErrors(w, r.Errors)
	for _, wr := range r.Watches {
		fmt.Fprintf(w, "%s %s %s\n",
			styles.Muted.Render(fmt.Sprintf("%4d", wr.Line)),
			wr.Expression,
			styles.Watch.Render("⧩ "+wr.Result))
	}
	renderTests(w, r.Tests)
}

func renderTests(w io.Writer, tests []codeintel.TestResult) {
	for _, t := range tests {
		fmt.Fprintln(w, "  "+status(t.Passed, t.Name, t.Name))
	}
}

func renderRunTests(w io.Writer, r codeintel.RunTestsResult) {
	renderTests(w, r.Tests)
	passed := 0
	for _, t := range r.Tests {
		if t.Passed {
			passed++
		}
	}
	summary := fmt.Sprintf("%d/%d passed", passed, len(r.Tests))
	if len(r.Tests) == 0 {
		summary = r.Output
	}
	fmt.Fprintln(w, status(r.Success, summary, summary))
	renderErrors(w, r.Errors)
}

func renderRun(w io.Writer, r codeintel.RunResult) {
	if r.Stdout != "" {
		fmt.Fprint(w, r.Stdout)
		if !strings.HasSuffix(r.Stdout, "\n") {
			fmt.Fprintln(w)
		}
	}
	if r.Stderr != "" {
		fmt.Fprintln(w, styles.Fail.Render(strings.TrimRight(r.Stderr, "\n")))
	}
	if r.Output != "" && r.Output != r.Stdout {
		fmt.Fprintln(w, styles.Muted.Render(r.Output))
	}
	if !r.Success {
		fmt.Fprintln(w, status(false, "", "run failed"))
	}
	renderErrors(w, r.Errors)
}

func renderFileEvent(w io.Writer, e events.Event) {
	stamp := styles.Muted.Render(e.DetectedAt.Format("15:04:05.000"))
	kind := styles.Watch.Render(e.ChangeType)
	if e.ChangeType == watcher.ChangeDeleted {
		kind = styles.Fail.Render(e.ChangeType)
	}
	fmt.Fprintf(w, "%s %s %s\n", stamp, kind, e.Path)
}
