package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/validator"
)

// Slow step threshold in milliseconds (30 seconds)
const slowThresholdMs = 30000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// theme holds the output styles. The zero-styled theme prints plain text.
type theme struct {
	title lipgloss.Style
	rule  lipgloss.Style
	bold  lipgloss.Style
	dim   lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	info  lipgloss.Style
}

func newTheme(color bool) theme {
	plain := lipgloss.NewStyle()
	if !color {
		return theme{plain, plain, plain, plain, plain, plain, plain, plain}
	}
	return theme{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		rule:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		bold:  lipgloss.NewStyle().Bold(true),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		info:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

// printer writes human-facing progress for one command invocation.
type printer struct {
	out   io.Writer
	theme theme
}

func newPrinter(c *cli.Context) *printer {
	return &printer{
		out:   c.App.Writer,
		theme: newTheme(colorsEnabled && !c.Bool("no-ansi")),
	}
}

func (p *printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) separator() {
	p.printf("%s\n", p.theme.rule.Render(strings.Repeat("=", 60)))
}

func (p *printer) runHeader(def *command.Definition, params []core.Binding) {
	p.printf("\n")
	p.separator()
	p.printf("🚀 Executing Command: %s\n", p.theme.title.Render(def.Metadata.Name))
	p.printf("   %s\n", def.Metadata.Description)
	p.separator()
	p.printf("\n")

	if len(params) > 0 {
		p.printf("📊 Parameters:\n")
		for _, b := range params {
			p.printf("   • %s: %s\n", b.Name, b.Value)
		}
	}
}

func (p *printer) stepStart(idx, total int, step command.Step) {
	p.printf("\n")
	p.separator()
	p.printf("📍 Step %d/%d: %s\n", idx+1, total, p.theme.bold.Render(step.Label()))
	if step.Description != "" {
		p.printf("   %s\n", step.Description)
	}
	p.printf("   Agent: %s\n", step.Agent)
	p.separator()
}

func (p *printer) stepEnd(step command.Step, res core.StepResult) {
	durationMs := res.Duration.Milliseconds()
	durStr := p.theme.dim.Render("(" + formatDuration(durationMs) + ")")
	if durationMs >= slowThresholdMs {
		durStr = p.theme.warn.Render("(" + formatDuration(durationMs) + ")")
	}

	switch res.Status {
	case core.StatusSkipped:
		p.printf("%s  Skipping step (condition not met): %s\n", p.theme.info.Render("⏭️"), step.Condition)
	case core.StatusFailed:
		p.printf("%s Step failed: %s %s\n", p.theme.fail.Render("❌"), step.Label(), durStr)
		if res.Error != "" {
			p.printf("   %s %s\n", p.theme.dim.Render("╰─"), res.Error)
		}
	default:
		p.printf("%s Step completed: %s %s\n", p.theme.ok.Render("✅"), step.Label(), durStr)
	}
}

func (p *printer) retry(step command.Step, attempt int, err error) {
	p.printf("%s Retrying %s (attempt %d of %d): %v\n",
		p.theme.warn.Render("↻"), step.Label(), attempt, step.RetryCount+1, err)
}

func (p *printer) warning(msg string) {
	p.printf("%s  Warning: %s\n", p.theme.warn.Render("⚠️"), msg)
}

func (p *printer) runEnd(run *core.RunResult) {
	p.printf("\n")
	p.separator()
	if run.Success() {
		p.printf("%s\n", p.theme.ok.Render("✅ Workflow completed successfully!"))
	} else {
		p.printf("%s\n", p.theme.fail.Render("❌ Workflow failed"))
		if run.Err != nil {
			p.printf("   %v\n", run.Err)
		}
	}
	p.separator()

	p.printf("  %s completed, %s failed, %s skipped %s\n",
		p.theme.ok.Render(fmt.Sprint(run.CompletedSteps)),
		p.theme.fail.Render(fmt.Sprint(run.FailedSteps)),
		p.theme.info.Render(fmt.Sprint(run.SkippedSteps)),
		p.theme.dim.Render("("+formatDuration(run.Duration.Milliseconds())+")"))

	if run.OutputPath != "" {
		p.printf("\n💾 Output saved to: %s\n", run.OutputPath)
	}
	p.printf("\n")
}

// validation prints one validator result.
func (p *printer) validation(res *validator.Result, showFile bool) {
	if showFile {
		p.printf("\n%s\n", p.theme.bold.Render(res.File))
	}
	if len(res.Errors) > 0 {
		p.printf("\n%s\n", p.theme.fail.Render("❌ ERRORS:"))
		for _, e := range res.Errors {
			p.printf("  • %s\n", e)
		}
	}
	if len(res.Warnings) > 0 {
		p.printf("\n%s\n", p.theme.warn.Render("⚠️  WARNINGS:"))
		for _, w := range res.Warnings {
			p.printf("  • %s\n", w)
		}
	}
	if res.IsValid() {
		if len(res.Warnings) == 0 {
			p.printf("%s\n", p.theme.ok.Render("✅ Command file is valid!"))
		} else {
			p.printf("\n%s\n", p.theme.ok.Render("✅ Command file is valid (with warnings)"))
		}
	}
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
