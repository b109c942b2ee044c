// --- START OF FINAL REVISED FILE internal/cli/runner/runner.go ---
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/stackvity/corpus-converter/pkg/converter"
)

const (
	// maxLogOutputBytes limits the size of stdout/stderr captured in logs and errors.
	maxLogOutputBytes = 1024
	// maxChunkReadBytes caps stdout/stderr capture per chunk process.
	maxChunkReadBytes = 10 * 1024 * 1024 // 10 MiB
	// killWaitDelay bounds how long Wait keeps reading output after the chunk was killed.
	killWaitDelay = 2 * time.Second
	// ResourceHintEnv carries DispatchConfig.ResourceHint to each chunk process.
	ResourceHintEnv = "CORPUSCONVERTER_RESOURCE_HINT"
)

var (
	// ErrExecStart indicates the chunk process could not be started.
	ErrExecStart = errors.New("chunk process failed to start")
	// ErrExecNonZeroExit indicates the chunk process exited unsuccessfully.
	ErrExecNonZeroExit = errors.New("chunk process exited with non-zero status")
	// ErrExecBadOutput indicates the chunk process did not report a usable result.
	ErrExecBadOutput = errors.New("chunk process produced invalid output")
	// ErrExecTimeout indicates the chunk process was killed by cancellation or timeout.
	ErrExecTimeout = errors.New("chunk process cancelled or timed out")
)

// ExecSubstrate runs each unit's rendered command as a separate OS process.
// Submit queues a unit; AwaitAll starts the processes with bounded concurrency
// and blocks until every one has exited.
type ExecSubstrate struct {
	mu          sync.Mutex
	units       []converter.WorkUnit
	concurrency int
	logger      *slog.Logger
	observer    converter.UnitObserverFunc
	awaited     bool
}

// NewExecSubstrate creates an exec substrate running at most concurrency processes at once.
func NewExecSubstrate(concurrency int, loggerHandler slog.Handler) *ExecSubstrate { // minimal comment
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "execSubstrate"))
	return &ExecSubstrate{concurrency: concurrency, logger: logger}
}

// Factory is a converter.SubstrateFactory selecting the substrate named in opts.
func Factory(opts *converter.Options, logger *slog.Logger) (converter.Substrate, error) {
	switch opts.Dispatch.Substrate {
	case converter.SubstrateExec:
		return NewExecSubstrate(opts.Dispatch.Concurrency, logger.Handler()), nil
	case converter.SubstrateInProcess, "":
		return converter.NewInProcessSubstrate(opts.Dispatch.Concurrency, converter.ChunkDeps{
			Parsers:  opts.Parsers,
			Formats:  opts.FormatDetector,
			Encoding: opts.EncodingHandler,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown substrate %q", converter.ErrConfigValidation, opts.Dispatch.Substrate)
	}
}

// SetObserver implements converter.UnitObserver.
func (s *ExecSubstrate) SetObserver(fn func(unit converter.WorkUnit, status converter.Status, message string, duration time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Submit implements converter.Substrate.
func (s *ExecSubstrate) Submit(ctx context.Context, unit converter.WorkUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(unit.Chunk.Command) == 0 || unit.Chunk.Command[0] == "" {
		return fmt.Errorf("%w: chunk %d has no command", converter.ErrInvalidWorkUnit, unit.Chunk.Ordinal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaited {
		return fmt.Errorf("%w: substrate already awaited", converter.ErrInvalidWorkUnit)
	}
	s.units = append(s.units, unit)
	return nil
}

// AwaitAll implements converter.Substrate.
func (s *ExecSubstrate) AwaitAll(ctx context.Context) (converter.Outcome, error) {
	s.mu.Lock()
	if s.awaited {
		s.mu.Unlock()
		return converter.Outcome{}, fmt.Errorf("%w: substrate already awaited", converter.ErrInvalidWorkUnit)
	}
	s.awaited = true
	units := s.units
	observer := s.observer
	s.mu.Unlock()

	s.logger.Debug("Launching chunk processes", slog.Int("chunks", len(units)), slog.Int("concurrency", s.concurrency))
	outcome := converter.RunUnits(ctx, units, s.concurrency, observer, s.run)
	return outcome, ctx.Err()
}

// run executes one chunk process and reads its result from the last stdout line.
func (s *ExecSubstrate) run(ctx context.Context, unit converter.WorkUnit) (converter.ChunkResult, error) { // minimal comment
	command := unit.Chunk.Command
	logArgs := []any{
		slog.Int("chunk", unit.Chunk.Ordinal),
		slog.String("file", unit.Chunk.FileName),
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	setProcessGroup(cmd)
	cmd.WaitDelay = killWaitDelay
	cmd.Env = os.Environ()
	if unit.ResourceHint != "" {
		cmd.Env = append(cmd.Env, ResourceHintEnv+"="+unit.ResourceHint)
	}
	stdout := &boundedBuffer{limit: maxChunkReadBytes}
	stderr := &boundedBuffer{limit: maxChunkReadBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if startErr := cmd.Start(); startErr != nil {
		s.logger.Error("Failed to start chunk process", append(logArgs, slog.String("command", strings.Join(command, " ")), slog.Any("error", startErr))...)
		return converter.ChunkResult{}, fmt.Errorf("%w: %s: %w", ErrExecStart, command[0], startErr)
	}
	s.logger.Debug("Chunk process started", append(logArgs, slog.Int("pid", cmd.Process.Pid))...)

	waitErr := cmd.Wait()
	stderrString := truncate(strings.TrimSpace(stderr.String()))
	if len(stderrString) > 0 {
		logArgs = append(logArgs, slog.String("chunk_stderr", stderrString))
	}

	if ctx.Err() != nil {
		s.logger.Warn("Chunk process cancelled or timed out", append(logArgs, slog.Any("error", ctx.Err()))...)
		return converter.ChunkResult{}, fmt.Errorf("%w: %w", ErrExecTimeout, ctx.Err())
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		s.logger.Error("Chunk process failed", append(logArgs, slog.Int("exitCode", exitCode), slog.Any("error", waitErr))...)
		base := ErrExecNonZeroExit
		if exitCode == converter.ExitCodeIDRangeOverflow {
			base = fmt.Errorf("%w: %w", ErrExecNonZeroExit, converter.ErrIDRangeOverflow)
		}
		if stderrString != "" {
			return converter.ChunkResult{}, fmt.Errorf("%w: exit code %d: %s", base, exitCode, stderrString)
		}
		return converter.ChunkResult{}, fmt.Errorf("%w: exit code %d", base, exitCode)
	}

	if stdout.truncated {
		return converter.ChunkResult{}, fmt.Errorf("%w: stdout exceeded read limit (%d bytes)", ErrExecBadOutput, maxChunkReadBytes)
	}
	result, err := ParseResult(stdout.Bytes())
	if err != nil {
		s.logger.Error("Chunk process output unusable", append(logArgs, slog.String("stdout_prefix", truncate(stdout.String())), slog.Any("error", err))...)
		return converter.ChunkResult{}, err
	}
	s.logger.Debug("Chunk process finished successfully", append(logArgs, slog.Int64("records", result.RecordCount))...)
	return result, nil
}

// ParseResult decodes the ChunkResult JSON from the last non-empty line of a chunk process's stdout.
func ParseResult(stdout []byte) (converter.ChunkResult, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	last := bytes.TrimSpace(lines[len(lines)-1])
	if len(last) == 0 {
		return converter.ChunkResult{}, fmt.Errorf("%w: empty stdout", ErrExecBadOutput)
	}
	var result converter.ChunkResult
	if err := json.Unmarshal(last, &result); err != nil {
		return converter.ChunkResult{}, fmt.Errorf("%w: %w", ErrExecBadOutput, err)
	}
	return result, nil
}

func truncate(s string) string {
	if len(s) > maxLogOutputBytes {
		return s[:maxLogOutputBytes] + "... (truncated)"
	}
	return s
}

// boundedBuffer keeps the first limit bytes written and drops the rest.
// Writes never fail.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *boundedBuffer) String() string { return b.buf.String() }

// --- END OF FINAL REVISED FILE internal/cli/runner/runner.go ---
