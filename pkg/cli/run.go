package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/command-runner/pkg/agent"
	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/config"
	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/executor"
	"github.com/devicelab-dev/command-runner/pkg/logger"
	"github.com/devicelab-dev/command-runner/pkg/report"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Execute a command document",
	ArgsUsage: "<command-file>",
	Description: `Execute the workflow of a command document step by step.

Parameter values, lowest to highest priority:
  parameter defaults < config params < --params-file < --param

Examples:
  command-runner run review.yaml
  command-runner run -p target=src/ -p depth=2 review.yaml
  command-runner run --params-file params.jsonc --backend llm review.yaml
  command-runner run --dry-run --report run.json review.yaml

Flags must come before the command file.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "agents-dir",
			Usage:   "Directory containing agent definitions",
			Value:   agent.DefaultDir,
			EnvVars: []string{"COMMAND_RUNNER_AGENTS_DIR"},
		},
		&cli.StringSliceFlag{
			Name:    "param",
			Aliases: []string{"p"},
			Usage:   "Parameter value (key=value), repeatable",
		},
		&cli.StringFlag{
			Name:  "params-file",
			Usage: "JSON file of parameter values (comments allowed)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Use simulated agents regardless of the configured backend",
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Agent backend (simulated, command, llm, script)",
			Value:   agent.BackendSimulated,
			EnvVars: []string{"COMMAND_RUNNER_BACKEND"},
		},
		&cli.BoolFlag{
			Name:    "strict-conditions",
			Usage:   "Skip steps whose condition is not recognized",
			EnvVars: []string{"COMMAND_RUNNER_STRICT_CONDITIONS"},
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON run record to this file",
		},
	},
	Action: runAction,
}

// RunConfig holds the resolved settings for one run.
type RunConfig struct {
	CommandPath      string
	AgentsDir        string
	Backend          string
	DryRun           bool
	StrictConditions bool
	ReportPath       string

	Params     []core.Binding // --param, highest priority
	FileParams []core.Binding // --params-file
	Workspace  *config.Config
}

func runAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one command file is required")
	}

	workspace, err := loadConfig(c)
	if err != nil {
		return err
	}
	closeLog := setupLogging(c, workspace)
	defer closeLog()

	params, err := executor.ParseAssignments(c.StringSlice("param"))
	if err != nil {
		return err
	}

	var fileParams []core.Binding
	if path := c.String("params-file"); path != "" {
		if fileParams, err = config.LoadParams(path); err != nil {
			return err
		}
	}

	cfg := &RunConfig{
		CommandPath:      c.Args().First(),
		AgentsDir:        stringSetting(c, "agents-dir", workspace.AgentsDir),
		Backend:          stringSetting(c, "backend", workspace.Backend),
		DryRun:           c.Bool("dry-run"),
		StrictConditions: c.Bool("strict-conditions") || workspace.StrictConditions,
		ReportPath:       c.String("report"),
		Params:           params,
		FileParams:       fileParams,
		Workspace:        workspace,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return executeRun(ctx, c, cfg)
}

func executeRun(ctx context.Context, c *cli.Context, cfg *RunConfig) error {
	p := newPrinter(c)

	def, err := command.ParseFile(cfg.CommandPath)
	if err != nil {
		var perr *command.ParseError
		if errors.As(err, &perr) && perr.IsMissingFrontmatter() {
			p.printf("❌ Invalid command file format\n")
		} else {
			p.printf("❌ Error loading command file: %v\n", err)
		}
		logger.Error("load %s: %v", cfg.CommandPath, err)
		return cli.Exit("", 1)
	}

	params, err := executor.ResolveParams(def.Parameters,
		executor.BindingsFromMap(cfg.Workspace.Params), cfg.FileParams, cfg.Params)
	if err != nil {
		p.printf("❌ %v\n", err)
		return cli.Exit("", 1)
	}

	invoker, err := newInvoker(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("Backend: %s (dry run: %v), agents dir: %s", cfg.Backend, cfg.DryRun, cfg.AgentsDir)

	runner := executor.New(invoker, executor.RunnerConfig{
		StrictConditions: cfg.StrictConditions,
		OnStepStart:      p.stepStart,
		OnStepEnd: func(_ int, step command.Step, res core.StepResult) {
			p.stepEnd(step, res)
		},
		OnRetry: func(_ int, step command.Step, attempt int, err error) {
			p.retry(step, attempt, err)
		},
		OnWarning: p.warning,
	})

	p.runHeader(def, params)
	run, err := runner.Run(ctx, def, params)
	if err != nil {
		p.printf("❌ %v\n", err)
		return cli.Exit("", 1)
	}
	p.runEnd(run)

	if cfg.ReportPath != "" {
		backend := cfg.Backend
		if cfg.DryRun {
			backend = agent.BackendSimulated
		}
		rec := report.BuildRecord(def, run, report.RecordConfig{
			RunnerVersion: Version,
			Backend:       backend,
		})
		if err := report.WriteRecord(cfg.ReportPath, rec); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "Warning: failed to write run record: %v\n", err)
		} else {
			p.printf("  Run record: %s\n", cfg.ReportPath)
		}
	}

	if !run.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// newInvoker builds the agent backend for the run.
func newInvoker(ctx context.Context, cfg *RunConfig) (core.Invoker, error) {
	cmdCfg, err := cfg.Workspace.Command.Agent()
	if err != nil {
		return nil, err
	}
	llmCfg, err := cfg.Workspace.LLM.Agent()
	if err != nil {
		return nil, err
	}
	return agent.New(ctx, agent.Options{
		Backend: cfg.Backend,
		Dir:     cfg.AgentsDir,
		DryRun:  cfg.DryRun,
		Command: cmdCfg,
		LLM:     llmCfg,
	})
}
