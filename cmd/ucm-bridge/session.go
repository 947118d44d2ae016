// ABOUTME: attach command: runs an interactive session in the host terminal
// ABOUTME: Prints the service ports, mirrors the pty and exits on detach, process exit or lock conflict

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mauromedda/ucm-bridge/internal/bridge"
	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/terminal"
)

func newAttachCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "attach [dir]",
		Short: "Start an interactive session in this terminal (Ctrl-] detaches)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("resolving %s: %w", args[0], err)
				}
				dir = abs
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := bridge.New(a.cfg, nil)
			defer func() { _ = m.Close() }()

			var lockConflict atomic.Bool
			m.Subscribe(events.OnlyKinds(func(events.Event) {
				lockConflict.Store(true)
			}, events.KindLockConflict))

			output := terminal.NewOutputBuffer(m)
			defer output.Close()

			p, err := m.StartSession(ctx, bridge.StartRequest{WorkingDirectory: dir})
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd.ErrOrStderr(), p); err != nil {
					return err
				}
			} else {
				renderServicePorts(cmd.ErrOrStderr(), p)
			}

			console := terminal.NewConsole(os.Stdin, os.Stdout)
			reason, err := terminal.Attach(ctx, console, os.Stdin, m.Session(), output)
			if err != nil {
				return err
			}
			if lockConflict.Load() {
				return errors.New("the codebase is locked by another process")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\r\n%s\r\n", styles.Muted.Render(reason.String()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print ports as JSON")
	return cmd
}
