// ABOUTME: Bridge configuration loaded from layered YAML files with defaults
// ABOUTME: Global ~/.ucm-bridge/config.yaml, then project .ucm-bridge.yaml; later layers win per key

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the merged bridge configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Tool     ToolConfig     `yaml:"tool"`
	Ports    PortsConfig    `yaml:"ports"`
	Terminal TerminalConfig `yaml:"terminal"`
	Relay    RelayConfig    `yaml:"relay"`
	Watcher  WatcherConfig  `yaml:"watcher"`
}

// ToolConfig describes how to launch the external tool.
type ToolConfig struct {
	Binary string `yaml:"binary"`
	// Args are passed before the control port flag.
	Args []string `yaml:"args"`
	// ControlPortFlag precedes the control port on the command line.
	// Empty means the port is not passed.
	ControlPortFlag string            `yaml:"control_port_flag"`
	ExtraPath       []string          `yaml:"extra_path"`
	Env             map[string]string `yaml:"env"`
	LockSentinel    string            `yaml:"lock_sentinel"`
	// RPCArgs start the tool in JSON-RPC mode.
	RPCArgs []string `yaml:"rpc_args"`
}

// PortsConfig seeds port negotiation.
type PortsConfig struct {
	ControlStart  int `yaml:"control_start"`
	ProtocolStart int `yaml:"protocol_start"`
	// ProtocolFixed pins the protocol port; zero negotiates one.
	ProtocolFixed int `yaml:"protocol_fixed"`
	// ProtocolEnv is the environment variable that tells the tool its
	// protocol port when negotiated.
	ProtocolEnv string `yaml:"protocol_env"`
	RelayStart  int    `yaml:"relay_start"`
}

// TerminalConfig controls the pseudo-terminal and output scraping.
type TerminalConfig struct {
	Rows       uint16 `yaml:"rows"`
	Cols       uint16 `yaml:"cols"`
	ParseEvery int    `yaml:"parse_every"`
	SmallChunk int    `yaml:"small_chunk"`
	BufferMax  int    `yaml:"buffer_max"`
	BufferKeep int    `yaml:"buffer_keep"`
}

// RelayConfig bounds the protocol relay.
type RelayConfig struct {
	MaxMessageBytes int `yaml:"max_message_bytes"`
}

// WatcherConfig tunes the file watcher.
type WatcherConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Tool: ToolConfig{
			Binary:          "ucm",
			ControlPortFlag: "--port",
			Env:             map[string]string{},
			LockSentinel:    "Failed to obtain a file lock",
			RPCArgs:         []string{"mcp"},
		},
		Ports: PortsConfig{
			ControlStart:  5858,
			ProtocolStart: 5757,
			ProtocolEnv:   "UNISON_LSP_PORT",
			RelayStart:    5758,
		},
		Terminal: TerminalConfig{
			Rows:       24,
			Cols:       80,
			ParseEvery: 5,
			SmallChunk: 256,
			BufferMax:  1024,
			BufferKeep: 512,
		},
		Relay: RelayConfig{
			MaxMessageBytes: 64 << 20,
		},
		Watcher: WatcherConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// Load reads the global and project-local config files on top of the
// defaults. Missing files are skipped.
func Load(projectRoot string) (*Config, error) {
	return LoadFiles(GlobalConfigFile(), ProjectConfigFile(projectRoot))
}

// LoadFiles layers the given YAML files over the defaults in order, expands
// ${VAR} references and validates the result. Missing files are skipped.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := Default()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}
	ResolveEnvVars(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile decodes path onto cfg; keys present in the file replace the
// current values, absent keys keep them.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Tool.Binary == "" {
		return errors.New("tool.binary must be set")
	}
	for name, p := range map[string]int{
		"ports.control_start":  c.Ports.ControlStart,
		"ports.protocol_start": c.Ports.ProtocolStart,
		"ports.relay_start":    c.Ports.RelayStart,
	} {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("%s: %d out of range", name, p)
		}
	}
	if c.Ports.ProtocolFixed < 0 || c.Ports.ProtocolFixed > 65535 {
		return fmt.Errorf("ports.protocol_fixed: %d out of range", c.Ports.ProtocolFixed)
	}
	if c.Terminal.Rows == 0 || c.Terminal.Cols == 0 {
		return fmt.Errorf("terminal size %dx%d must be non-zero", c.Terminal.Rows, c.Terminal.Cols)
	}
	if c.Terminal.BufferKeep <= 0 || c.Terminal.BufferKeep > c.Terminal.BufferMax {
		return fmt.Errorf("terminal.buffer_keep %d must be in 1..buffer_max (%d)",
			c.Terminal.BufferKeep, c.Terminal.BufferMax)
	}
	if c.Relay.MaxMessageBytes <= 0 {
		return fmt.Errorf("relay.max_message_bytes: %d must be positive", c.Relay.MaxMessageBytes)
	}
	return nil
}
