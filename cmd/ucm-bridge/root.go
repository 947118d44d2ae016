// ABOUTME: Root command, persistent flags, configuration loading and the optional metrics endpoint
// ABOUTME: Every subcommand receives the loaded config through the shared app value

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mauromedda/ucm-bridge/internal/config"
	"github.com/mauromedda/ucm-bridge/internal/log"
)

// errReported marks a failure already shown to the user.
var errReported = errors.New("reported")

type app struct {
	configPath  string
	verbose     bool
	metricsAddr string

	cfg         *config.Config
	stopMetrics func()
}

func newApp() *app {
	return &app{}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ucm-bridge",
		Short:         "Bridge an editor to the Unison codebase manager",
		Long:          "Runs the codebase manager under a pseudo-terminal, relays its language server over WebSocket and drives its RPC tools.",
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default: ~/.ucm-bridge/config.yaml and ./.ucm-bridge.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newAttachCmd(a),
		newRelayCmd(a),
		newPortsCmd(a),
		newUpdateCmd(a),
		newTypecheckCmd(a),
		newTestCmd(a),
		newRunCmd(a),
		newViewCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	log.SetLevel(log.ParseLevel(cfg.LogLevel))
	if a.verbose {
		log.SetLevel(log.LevelDebug)
	}

	if a.metricsAddr != "" {
		stop, err := serveMetrics(a.metricsAddr)
		if err != nil {
			return err
		}
		a.stopMetrics = stop
	}
	return nil
}

// shutdown stops the metrics endpoint, if one was started.
func (a *app) shutdown() {
	if a.stopMetrics != nil {
		a.stopMetrics()
		a.stopMetrics = nil
	}
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		cfg, err := config.LoadFiles(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// serveMetrics exposes the default Prometheus registry on addr.
func serveMetrics(addr string) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server: %v", err)
		}
	}()
	log.Debug("metrics on http://%s/metrics", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		// Serve may not have taken ownership of ln yet
		_ = ln.Close()
	}, nil
}
