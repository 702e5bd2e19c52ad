package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/command-runner/pkg/agent"
	"github.com/devicelab-dev/command-runner/pkg/logger"
	"github.com/devicelab-dev/command-runner/pkg/validator"
)

// Output formats for validate.
const (
	formatText = "text"
	formatJSON = "json"
)

// watchDebounce groups bursts of file events into one re-validation.
const watchDebounce = 150 * time.Millisecond

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check command documents without running them",
	ArgsUsage: "<command-file-or-folder>",
	Description: `Validate a command document, or every .yaml/.yml document in a folder.
Exits 1 when any document has errors; warnings never change the exit code.

Examples:
  command-runner validate review.yaml
  command-runner validate --format json .claude/commands/
  command-runner validate --watch review.yaml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "agents-dir",
			Usage:   "Directory containing agent definitions",
			Value:   agent.DefaultDir,
			EnvVars: []string{"COMMAND_RUNNER_AGENTS_DIR"},
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output format (text, json)",
			Value: formatText,
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "Re-validate whenever the documents or agents change",
		},
	},
	Action: validateAction,
}

// jsonResult is the --format json shape of one validated document.
type jsonResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func validateAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one command file or folder is required")
	}
	format := c.String("format")
	if format != formatText && format != formatJSON {
		return fmt.Errorf("unknown format %q (expected text or json)", format)
	}

	workspace, err := loadConfig(c)
	if err != nil {
		return err
	}
	closeLog := setupLogging(c, workspace)
	defer closeLog()

	target := c.Args().First()
	agentsDir := stringSetting(c, "agents-dir", workspace.AgentsDir)
	v := validator.New(agentsDir)

	if !c.Bool("watch") {
		valid, err := runValidation(c, v, target, format)
		if err != nil {
			return err
		}
		if !valid {
			return cli.Exit("", 1)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := runValidation(c, v, target, format); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "Watching %s for changes (Ctrl+C to stop)...\n", target)
	return watch(ctx, watchPaths(target, agentsDir), func() {
		if _, err := runValidation(c, v, target, format); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "Error: %v\n", err)
		}
	})
}

// runValidation validates target and prints the results. It reports
// whether every document is valid.
func runValidation(c *cli.Context, v *validator.Validator, target, format string) (bool, error) {
	results, err := v.ValidateAll(target)
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, fmt.Errorf("no command files found in %s", target)
	}

	valid := true
	for _, res := range results {
		valid = valid && res.IsValid()
	}

	if format == formatJSON {
		return valid, printJSONResults(c, results)
	}

	p := newPrinter(c)
	for _, res := range results {
		p.validation(res, len(results) > 1)
	}
	return valid, nil
}

func printJSONResults(c *cli.Context, results []*validator.Result) error {
	out := make([]jsonResult, 0, len(results))
	for _, res := range results {
		jr := jsonResult{
			File:     res.File,
			Valid:    res.IsValid(),
			Errors:   res.Errors,
			Warnings: res.Warnings,
		}
		if jr.Errors == nil {
			jr.Errors = []string{}
		}
		if jr.Warnings == nil {
			jr.Warnings = []string{}
		}
		out = append(out, jr)
	}

	var data []byte
	var err error
	if len(out) == 1 {
		data, err = json.MarshalIndent(out[0], "", "  ")
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}

// watchPaths returns the directories to watch for target: the target itself
// if it is a directory, else its parent, plus the agents directory when it
// exists.
func watchPaths(target, agentsDir string) []string {
	dir := target
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		dir = filepath.Dir(target)
	}
	paths := []string{dir}
	if info, err := os.Stat(agentsDir); err == nil && info.IsDir() {
		if filepath.Clean(agentsDir) != filepath.Clean(dir) {
			paths = append(paths, agentsDir)
		}
	}
	return paths
}

// watch calls onChange after files under paths are written, created,
// removed or renamed, until ctx is done.
func watch(ctx context.Context, paths []string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	for _, p := range paths {
		if err := w.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		logger.Debug("watching %s", p)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			logger.Debug("watch event: %s", ev)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error: %v", err)
		case <-fire:
			fire = nil
			onChange()
		}
	}
}
