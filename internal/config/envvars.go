// ABOUTME: Environment variable expansion in config string fields
// ABOUTME: Replaces ${VAR} patterns with os.Getenv values; unset vars become empty

package config

import (
	"os"
	"regexp"
)

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// ResolveEnvVars expands ${VAR} patterns in string fields of Config.
func ResolveEnvVars(c *Config) {
	c.LogLevel = expandEnv(c.LogLevel)
	c.Tool.Binary = expandEnv(c.Tool.Binary)
	c.Tool.LockSentinel = expandEnv(c.Tool.LockSentinel)
	c.Ports.ProtocolEnv = expandEnv(c.Ports.ProtocolEnv)

	for i, a := range c.Tool.Args {
		c.Tool.Args[i] = expandEnv(a)
	}
	for i, p := range c.Tool.ExtraPath {
		c.Tool.ExtraPath[i] = expandEnv(p)
	}
	for k, v := range c.Tool.Env {
		c.Tool.Env[k] = expandEnv(v)
	}
}

// expandEnv replaces ${VAR} with os.Getenv(VAR). Unset vars become "".
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
