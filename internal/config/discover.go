package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfig names the environment variable that overrides discovery.
const EnvConfig = "STREAMGRAB_CONFIG"

const appName = "streamgrab"

// xdgDir returns $env/streamgrab, falling back to ~/fallback/streamgrab and
// finally to local when there is no home directory.
func xdgDir(env, fallback, local string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return local
	}
	return filepath.Join(home, fallback, appName)
}

// DefaultPath is where `config init` writes and discovery looks after ./.
func DefaultPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "."), "config.toml")
}

// StateDir holds history, credentials and the event log by default.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"), ".streamgrab")
}

func defaultMusicDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Music", appName)
}

// searchPaths lists config locations in priority order.
func searchPaths() []string {
	return []string{
		"config.toml",
		DefaultPath(),
		filepath.Join("/etc", appName, "config.toml"),
	}
}

// Discover finds the config file to use. $STREAMGRAB_CONFIG wins and must
// exist; otherwise the first existing file of ./config.toml, the XDG config
// path and /etc/streamgrab/config.toml is returned, or ErrNotFound.
func Discover() (string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvConfig, envPath, err)
		}
		return envPath, nil
	}

	paths := searchPaths()
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w, checked: %s", ErrNotFound, strings.Join(paths, ", "))
}
