// --- START OF FINAL REVISED FILE pkg/converter/report.go ---
package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Report summarizes the result of a single GenerateCorpus run.
type Report struct {
	Summary ReportSummary `json:"summary"`
	Chunks  []ChunkInfo   `json:"chunks"`
	Errors  []ErrorInfo   `json:"errors"`
}

// ReportSummary contains aggregated statistics for a GenerateCorpus run.
type ReportSummary struct {
	InputPath          string         `json:"inputPath"`
	OutputPath         string         `json:"outputPath"`
	ProfileUsed        string         `json:"profileUsed,omitempty"`
	ConfigFilePath     string         `json:"configFilePath,omitempty"`
	AttemptID          string         `json:"attemptId"`
	Mode               RunMode        `json:"mode"`
	Source             string         `json:"source"`
	RunOrdinal         uint64         `json:"runOrdinal,omitempty"`
	ResetToken         string         `json:"resetToken,omitempty"`
	ArchivePath        string         `json:"archivePath,omitempty"`
	Recovery           RecoveryAction `json:"recovery,omitempty"`
	AvailableFiles     int            `json:"availableFiles"`
	NewFiles           int            `json:"newFiles"`
	ChunkCount         int            `json:"chunkCount"`
	RecordCount        int64          `json:"recordCount"`
	FirstID            uint64         `json:"firstId,omitempty"`
	NextFreeID         uint64         `json:"nextFreeId"`
	Committed          bool           `json:"committed"`
	DryRun             bool           `json:"dryRun,omitempty"`
	ErrorCount         int            `json:"errorCount"`
	FatalErrorOccurred bool           `json:"fatalError"`
	DurationSeconds    float64        `json:"durationSeconds"`
	Substrate          SubstrateKind  `json:"substrate"`
	Concurrency        int            `json:"concurrency"`
	Timestamp          time.Time      `json:"timestamp"`
	SchemaVersion      string         `json:"schemaVersion,omitempty"`
}

// ChunkInfo details a single chunk of the run.
type ChunkInfo struct {
	Ordinal     int    `json:"ordinal"`
	InputFile   string `json:"inputFile"`
	Artifact    string `json:"artifact"`
	MinID       uint64 `json:"minId"`
	LimitID     uint64 `json:"limitId"`
	Status      Status `json:"status"`
	RecordCount int64  `json:"recordCount"`
	Format      string `json:"format,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	DurationMs  int64  `json:"durationMs"`
}

// ErrorInfo details an error encountered while processing a chunk or committing the run.
type ErrorInfo struct {
	Chunk   string `json:"chunk,omitempty"`
	Error   string `json:"error"`
	IsFatal bool   `json:"isFatal"`
}

// Render writes the report in the requested format.
func (r Report) Render(w io.Writer, format OutputFormat) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case OutputFormatText, "":
		_, err := io.WriteString(w, r.text())
		return err
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrConfigValidation, format)
	}
}

func (r Report) text() string {
	s := r.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "corpus:    %s\n", s.OutputPath)
	fmt.Fprintf(&b, "mode:      %s", s.Mode)
	if s.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")
	if s.Recovery != RecoveryNone {
		fmt.Fprintf(&b, "recovery:  %s\n", s.Recovery)
	}
	if s.ArchivePath != "" {
		fmt.Fprintf(&b, "archived:  %s (token %s)\n", s.ArchivePath, s.ResetToken)
	}
	fmt.Fprintf(&b, "files:     %d available, %d new\n", s.AvailableFiles, s.NewFiles)
	if s.RunOrdinal > 0 {
		fmt.Fprintf(&b, "run:       %d, ids [%d,%d), %d chunks, %d records\n",
			s.RunOrdinal, s.FirstID, s.NextFreeID, s.ChunkCount, s.RecordCount)
	}
	for _, c := range r.Chunks {
		fmt.Fprintf(&b, "  %-10s %s -> %s [%d,%d) %d records\n",
			c.Status, c.InputFile, c.Artifact, c.MinID, c.LimitID, c.RecordCount)
	}
	for _, e := range r.Errors {
		if e.Chunk != "" {
			fmt.Fprintf(&b, "error: %s: %s\n", e.Chunk, e.Error)
		} else {
			fmt.Fprintf(&b, "error: %s\n", e.Error)
		}
	}
	fmt.Fprintf(&b, "committed: %t in %.2fs\n", s.Committed, s.DurationSeconds)
	return b.String()
}

// --- END OF FINAL REVISED FILE pkg/converter/report.go ---
