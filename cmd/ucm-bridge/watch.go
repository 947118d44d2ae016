// ABOUTME: watch command: report external changes to files until interrupted
// ABOUTME: Prints one line (or one JSON object) per file-changed event

package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mauromedda/ucm-bridge/internal/bridge"
	"github.com/mauromedda/ucm-bridge/internal/events"
	"github.com/mauromedda/ucm-bridge/internal/log"
)

func newWatchCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "watch FILE...",
		Short: "Report modifications and deletions of FILE until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := bridge.New(a.cfg, nil)
			defer func() { _ = m.Close() }()

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			m.Subscribe(events.OnlyKinds(func(e events.Event) {
				mu.Lock()
				defer mu.Unlock()
				if asJSON {
					if err := writeJSON(out, e); err != nil {
						log.Warn("writing event: %v", err)
					}
					return
				}
				renderFileEvent(out, e)
			}, events.KindFileChanged))

			for _, path := range args {
				if err := m.Watch(path); err != nil {
					return err
				}
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON")
	return cmd
}
