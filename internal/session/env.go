// ABOUTME: Environment and executable lookup for launching the tool under a pseudo-terminal
// ABOUTME: Prepends common install dirs to PATH and forces UTF-8, xterm-256color and colour output

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrToolNotFound is returned when the tool binary is not on the search path.
var ErrToolNotFound = errors.New("tool binary not found")

// defaultPathDirs are searched after any configured extras. GUI launchers
// often start with a minimal PATH that misses package-manager installs.
var defaultPathDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

// searchPath builds the PATH value handed to the tool.
func searchPath(extra []string, home, inherited string) string {
	dirs := make([]string, 0, len(extra)+len(defaultPathDirs)+3)
	dirs = append(dirs, extra...)
	if home != "" {
		dirs = append(dirs, filepath.Join(home, "bin"), filepath.Join(home, ".local", "bin"))
	}
	dirs = append(dirs, defaultPathDirs...)
	if inherited != "" {
		dirs = append(dirs, inherited)
	}
	return strings.Join(dirs, string(os.PathListSeparator))
}

// buildEnv returns the child environment: the inherited one with terminal,
// locale and colour settings forced, then protocolEnv and extra applied.
func buildEnv(base []string, pathValue, home string, protocolEnv string, protocolPort int, extra map[string]string) []string {
	env := make(map[string]string, len(base)+16)
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	env["PATH"] = pathValue
	env["TERM"] = "xterm-256color"
	env["COLORTERM"] = "truecolor"
	env["LANG"] = "en_US.UTF-8"
	env["LC_ALL"] = "en_US.UTF-8"
	env["TERMINFO_DIRS"] = "/usr/share/terminfo:/lib/terminfo:/etc/terminfo"
	env["CLICOLOR"] = "1"
	env["CLICOLOR_FORCE"] = "1"
	env["FORCE_COLOR"] = "1"
	delete(env, "NO_COLOR")
	if home != "" {
		env["HOME"] = home
	}
	if protocolEnv != "" && protocolPort > 0 {
		env[protocolEnv] = strconv.Itoa(protocolPort)
	}
	for k, v := range extra {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// lookPath resolves binary against pathValue rather than the bridge's own
// PATH, so the child sees the same search order it will run with.
func lookPath(binary, pathValue string) (string, error) {
	if strings.ContainsRune(binary, os.PathSeparator) {
		if isExecutable(binary) {
			return binary, nil
		}
		return "", fmt.Errorf("%s: %w", binary, ErrToolNotFound)
	}
	for _, dir := range filepath.SplitList(pathValue) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, binary)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not in PATH %q: %w", binary, pathValue, ErrToolNotFound)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// ToolCommand resolves binary the way Spawn does and returns it with the
// environment a non-interactive tool process should run with.
func ToolCommand(binary string, extraPath []string, extra map[string]string) (string, []string, error) {
	home, _ := os.UserHomeDir()
	pathValue := searchPath(extraPath, home, os.Getenv("PATH"))
	bin, err := lookPath(binary, pathValue)
	if err != nil {
		return "", nil, err
	}
	return bin, buildEnv(os.Environ(), pathValue, home, "", 0, extra), nil
}
