// ABOUTME: relay and ports commands: run a standalone protocol relay, probe free ports
// ABOUTME: relay serves until interrupted; ports prints the first free ports of a scan

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mauromedda/ucm-bridge/internal/ports"
	"github.com/mauromedda/ucm-bridge/internal/relay"
)

func newRelayCmd(a *app) *cobra.Command {
	var (
		listen   int
		upstream string
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay WebSocket clients to a framed TCP language server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upstream == "" {
				upstream = net.JoinHostPort("127.0.0.1", strconv.Itoa(a.cfg.Ports.ProtocolStart))
			}
			if _, _, err := net.SplitHostPort(upstream); err != nil {
				return fmt.Errorf("invalid --upstream %q: %w", upstream, err)
			}

			ln, err := relayListener(listen, a.cfg.Ports.RelayStart)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := relay.New(relay.Options{Upstream: upstream, MaxMessageBytes: a.cfg.Relay.MaxMessageBytes})
			fmt.Fprintf(cmd.OutOrStdout(), "relaying ws://%s to %s\n", ln.Addr(), upstream)
			return r.Serve(ctx, ln)
		},
	}
	cmd.Flags().IntVar(&listen, "listen", 0, "port to listen on (default: first free from ports.relay_start)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "language server address (default: 127.0.0.1:ports.protocol_start)")
	return cmd
}

func relayListener(port, scanStart int) (net.Listener, error) {
	if port > 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("listening on port %d: %w", port, err)
		}
		return ln, nil
	}
	res, err := ports.Reserve(scanStart)
	if err != nil {
		return nil, err
	}
	return res.Listener(), nil
}

func newPortsCmd(a *app) *cobra.Command {
	var (
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ports [start]",
		Short: "Print the first free loopback ports at or above start",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := a.cfg.Ports.ControlStart
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid start port %q: %w", args[0], err)
				}
				start = n
			}
			found, err := ports.FindAvailablePorts(count, start)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), found)
			}
			for _, p := range found {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ports")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as a JSON array")
	return cmd
}
