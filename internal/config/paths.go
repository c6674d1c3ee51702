// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "agentctx"

// Paths contains the standard paths for agentctx data.
type Paths struct {
	Config string // ~/.config/agentctx
	State  string // ~/.local/state/agentctx
}

// GetPaths returns the standard paths for agentctx data.
func GetPaths() *Paths {
	return &Paths{
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), appName),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), appName),
	}
}

// LogPath returns the default log file location.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, "agentctx.log")
}

// LocalAgentDir returns the workspace-scoped agent directory.
func LocalAgentDir(workspace string) string {
	return filepath.Join(workspace, ".amazonq", "cli-agents")
}

// GlobalAgentDir returns the user-scoped agent directory.
// AGENTCTX_GLOBAL_AGENT_DIR overrides the default location.
func GlobalAgentDir() string {
	if dir := os.Getenv("AGENTCTX_GLOBAL_AGENT_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".aws", "amazonq", "cli-agents")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "agentctx.json")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".agentctx", "agentctx.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE")
	}
	return os.Getenv("HOME")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(homeDir(), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(homeDir(), ".local", "state")
}
