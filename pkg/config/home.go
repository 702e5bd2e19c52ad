package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "COMMAND_RUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the command-runner home directory.
//
// Resolution order:
//  1. $COMMAND_RUNNER_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. ~/.command-runner
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetConfigPath returns <home>/config.yaml.
func GetConfigPath() string {
	return filepath.Join(GetHome(), "config.yaml")
}

func resolveHome() string {
	// 1. Environment variable
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// 2. Binary-relative: if binary is at <home>/bin/command-runner, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	// 3. User home directory
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".command-runner")
	}

	return ".command-runner"
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
