// Package cli provides the command-line interface for command-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/command-runner/pkg/config"
	"github.com/devicelab-dev/command-runner/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to workspace config (default: command-runner.yaml, then $COMMAND_RUNNER_HOME/config.yaml)",
		EnvVars: []string{"COMMAND_RUNNER_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write the execution log to this file",
		EnvVars: []string{"COMMAND_RUNNER_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"COMMAND_RUNNER_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Commands are the subcommands of the app.
var Commands = []*cli.Command{
	runCommand,
	validateCommand,
	initCommand,
	schemaCommand,
}

// NewApp builds the command-runner app.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "command-runner",
		Usage:   "Run and validate multi-step agent command workflows",
		Version: Version,
		Description: `command-runner executes command documents: a metadata section, parameters,
an ordered workflow of agent steps and an output configuration.

Examples:
  command-runner run -p target=src/ .claude/commands/review.yaml
  command-runner validate .claude/commands/
  command-runner init --description "Review a change" "Code Review"`,
		Flags:    GlobalFlags,
		Commands: Commands,

		// Parameter values may contain commas.
		DisableSliceFlagSeparator: true,
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the workspace config selected by --config or found in
// the working directory.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Find(c.String("config"), cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupLogging initializes the file logger from --log-file or the config.
// The returned func closes it.
func setupLogging(c *cli.Context, cfg *config.Config) func() {
	logPath := c.String("log-file")
	if logPath == "" && cfg != nil {
		logPath = cfg.LogFile
	}
	if c.Bool("verbose") {
		logger.SetLevel(logger.LevelDebug)
	}
	if logPath == "" {
		return func() {}
	}
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Warning: Failed to initialize logger: %v\n", err)
		return func() {}
	}
	return logger.Close
}

// stringSetting returns the flag value when set on the command line or in
// the environment, else the config value, else the flag default.
func stringSetting(c *cli.Context, flag, configured string) string {
	if c.IsSet(flag) || configured == "" {
		return c.String(flag)
	}
	return configured
}
