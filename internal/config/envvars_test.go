// ABOUTME: Tests for environment variable expansion in config
// ABOUTME: Validates ${VAR} replacement for set, unset, and mixed patterns

package config

import (
	"testing"
)

func TestExpandEnv_Set(t *testing.T) {
	t.Setenv("TEST_UCM_BIN", "/opt/ucm/bin/ucm")
	result := expandEnv("${TEST_UCM_BIN}")
	if result != "/opt/ucm/bin/ucm" {
		t.Errorf("expandEnv = %q; want %q", result, "/opt/ucm/bin/ucm")
	}
}

func TestExpandEnv_Unset(t *testing.T) {
	result := expandEnv("${DEFINITELY_NOT_SET_12345}")
	if result != "" {
		t.Errorf("expandEnv = %q; want empty for unset var", result)
	}
}

func TestExpandEnv_Mixed(t *testing.T) {
	t.Setenv("MY_HOME", "/home/dev")
	result := expandEnv("${MY_HOME}/.local/bin")
	if result != "/home/dev/.local/bin" {
		t.Errorf("expandEnv = %q; want %q", result, "/home/dev/.local/bin")
	}
}

func TestExpandEnv_NoPattern(t *testing.T) {
	result := expandEnv("plain string")
	if result != "plain string" {
		t.Errorf("expandEnv = %q; want %q", result, "plain string")
	}
}

func TestResolveEnvVars_ConfigFields(t *testing.T) {
	t.Setenv("TEST_BIN", "ucm-dev")
	t.Setenv("TEST_DIR", "/nix/bin")
	t.Setenv("TEST_CODEBASE", "/tmp/cb")

	c := Default()
	c.Tool.Binary = "${TEST_BIN}"
	c.Tool.Args = []string{"--codebase", "${TEST_CODEBASE}"}
	c.Tool.ExtraPath = []string{"${TEST_DIR}"}
	c.Tool.Env = map[string]string{"CODEBASE": "${TEST_CODEBASE}"}

	ResolveEnvVars(c)

	if c.Tool.Binary != "ucm-dev" {
		t.Errorf("Binary = %q", c.Tool.Binary)
	}
	if c.Tool.Args[1] != "/tmp/cb" {
		t.Errorf("Args = %v", c.Tool.Args)
	}
	if c.Tool.ExtraPath[0] != "/nix/bin" {
		t.Errorf("ExtraPath = %v", c.Tool.ExtraPath)
	}
	if c.Tool.Env["CODEBASE"] != "/tmp/cb" {
		t.Errorf("Env = %v", c.Tool.Env)
	}
}
