package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stackvity/corpus-converter/internal/cli/hooks"
	"github.com/stackvity/corpus-converter/internal/cli/runner"
	"github.com/stackvity/corpus-converter/internal/cli/ui"
	"github.com/stackvity/corpus-converter/pkg/converter"
)

// Run orchestrates one conversion after configuration loading: it picks the
// progress display, wires the exec substrate factory, runs the library and
// prints the report to stdout. A no-op run returns nil.
func Run(ctx context.Context, opts converter.Options, logger *slog.Logger, stdout io.Writer) error {
	if opts.SubstrateFactory == nil {
		opts.SubstrateFactory = runner.Factory
	}

	interactive := term.IsTerminal(int(os.Stderr.Fd())) && !opts.Verbose && opts.OutputFormat != converter.OutputFormatJSON
	useTUI := interactive && opts.TuiEnabled && !opts.DryRun

	var (
		tuiProg  hooks.TUIProgram
		bar      hooks.ProgressBar
		program  *tea.Program
		deferred bytes.Buffer
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	switch {
	case useTUI:
		// Log lines would tear the TUI; keep warnings for after it exits.
		opts.Logger = slog.NewTextHandler(&deferred, &slog.HandlerOptions{Level: slog.LevelWarn})
		logger = slog.New(opts.Logger)
		model := ui.NewModel(opts.AppVersion)
		program = tea.NewProgram(&model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
		tuiProg = program
	case interactive && !opts.DryRun:
		bar = newProgressBar(os.Stderr)
	}
	opts.EventHooks = hooks.NewCLIHooks(logger, useTUI, opts.Verbose, tuiProg, bar)

	tuiDone := make(chan error, 1)
	if program != nil {
		go func() {
			_, err := program.Run()
			// Quitting the TUI aborts the run; staging is kept for the next attempt.
			cancelRun()
			tuiDone <- err
		}()
	}

	report, runErr := converter.GenerateCorpus(runCtx, opts)

	if program != nil {
		program.Quit()
		if tuiErr := <-tuiDone; tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
			logger.Warn("Terminal UI exited with error", slog.Any("error", tuiErr))
		}
		_, _ = io.Copy(os.Stderr, &deferred)
	}

	if report.Summary.AttemptID != "" {
		if err := report.Render(stdout, opts.OutputFormat); err != nil {
			logger.Error("Failed to write run report", slog.Any("error", err))
		}
	}
	if runErr != nil {
		logger.Error("Conversion run failed", slog.Any("error", runErr))
		return runErr
	}
	return nil
}

// newProgressBar returns the bar shown on a terminal when the TUI is disabled.
// Its maximum grows as chunks are planned.
func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(0,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(30),
	)
}
