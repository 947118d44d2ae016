// ABOUTME: Standard filesystem paths for ucm-bridge configuration
// ABOUTME: Resolves ~/.ucm-bridge/ for global and .ucm-bridge.yaml for project-local config

package config

import (
	"os"
	"path/filepath"
)

const (
	globalDirName   = ".ucm-bridge"
	projectFileName = ".ucm-bridge.yaml"
)

// GlobalDir returns the user-global config directory (~/.ucm-bridge/).
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// GlobalConfigFile returns the path to the global config file.
func GlobalConfigFile() string {
	return filepath.Join(GlobalDir(), "config.yaml")
}

// ProjectConfigFile returns the path to the project-local config file.
func ProjectConfigFile(projectRoot string) string {
	return filepath.Join(projectRoot, projectFileName)
}
