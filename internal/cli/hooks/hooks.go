// --- START OF FINAL REVISED FILE internal/cli/hooks/hooks.go ---
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stackvity/corpus-converter/pkg/converter"
)

// --- TUI Message Structs ---

// ChunkPlannedMsg signals that the planner assigned a source file to a chunk.
type ChunkPlannedMsg struct{ Chunk converter.Chunk }

// ChunkStatusUpdateMsg signals a change in a chunk's dispatch status.
type ChunkStatusUpdateMsg struct {
	Chunk    converter.Chunk
	Status   converter.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg signals the completion of the entire conversion run.
type RunCompleteMsg struct{ Report converter.Report }

// --- Hook Implementation ---

// CLIHooks implements the converter.Hooks interface, bridging library events
// to the CLI's UI layer (TUI, Logger, Progress Bar).
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar // nil when no bar is shown
	out            io.Writer
	mu             sync.Mutex // Protects progressBar
}

// TUIProgram defines the interface needed to interact with the Bubble Tea program.
// *tea.Program satisfies it.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar defines the subset of *progressbar.ProgressBar used by the hooks.
type ProgressBar interface {
	Add(num int) error
	Describe(description string)
	ChangeMax(newMax int)
	GetMax() int
	Close() error
}

// NoOpTUIProgram provides a default null implementation.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// NewCLIHooks creates a new CLIHooks instance.
// Pass nil for tuiProgram or progressBar if not applicable.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) *CLIHooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	return &CLIHooks{
		logger:         logger.With(slog.String("component", "hooks")),
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
		out:            os.Stderr,
	}
}

// OnChunkPlanned handles the event when the planner creates a chunk.
func (h *CLIHooks) OnChunkPlanned(chunk converter.Chunk) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ChunkPlannedMsg{Chunk: chunk})
		return nil
	}
	if h.progressBar != nil {
		h.mu.Lock()
		h.progressBar.ChangeMax(h.progressBar.GetMax() + 1)
		h.mu.Unlock()
	}
	if h.verboseEnabled {
		h.logger.Debug("Chunk planned",
			slog.Int("chunk", chunk.Ordinal),
			slog.String("file", chunk.FileName),
			slog.String("range", chunk.Range().String()))
	}
	return nil // Library ignores hook errors
}

// OnChunkStatusUpdate handles events when a chunk's status changes.
// This method MUST be thread-safe.
func (h *CLIHooks) OnChunkStatusUpdate(chunk converter.Chunk, status converter.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ChunkStatusUpdateMsg{
			Chunk:    chunk,
			Status:   status,
			Message:  message,
			Duration: duration,
		})
		return nil
	}

	if h.progressBar != nil && status.IsFinal() {
		h.mu.Lock()
		h.progressBar.Describe(fmt.Sprintf("chunk %d %s", chunk.Ordinal, status))
		_ = h.progressBar.Add(1)
		h.mu.Unlock()
	}

	attrs := []any{
		slog.Int("chunk", chunk.Ordinal),
		slog.String("file", chunk.FileName),
		slog.String("status", string(status)),
	}
	if duration > 0 {
		attrs = append(attrs, slog.Duration("duration", duration))
	}
	if message != "" {
		logKey := "message"
		if status == converter.StatusFailed {
			logKey = "error"
		}
		attrs = append(attrs, slog.String(logKey, message))
	}

	switch {
	case status == converter.StatusFailed:
		// Failures are logged in every non-TUI mode.
		h.logger.Error("Chunk conversion failed", attrs...)
	case h.verboseEnabled:
		level := slog.LevelDebug
		if status == converter.StatusSuccess {
			level = slog.LevelInfo
		}
		h.logger.Log(context.Background(), level, "Chunk status updated", attrs...)
	}
	return nil // Library ignores hook errors
}

// OnRunComplete sends the final report to the TUI or finalizes the progress bar.
// The text summary itself is printed by the CLI.
func (h *CLIHooks) OnRunComplete(report converter.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	if h.progressBar != nil {
		h.mu.Lock()
		_ = h.progressBar.Close()
		h.mu.Unlock()
		// Keep the prompt off the bar's line.
		_, _ = fmt.Fprintln(h.out)
	}
	return nil // Library ignores hook errors
}

// --- END OF FINAL REVISED FILE internal/cli/hooks/hooks.go ---
