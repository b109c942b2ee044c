// --- START OF FINAL REVISED FILE pkg/converter/chunk.go ---
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stackvity/corpus-converter/pkg/converter/encoding"
	"github.com/stackvity/corpus-converter/pkg/converter/format"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
	"github.com/stackvity/corpus-converter/pkg/util"
)

// ChunkSpec is everything one conversion needs. It is the payload of the chunk subcommand.
type ChunkSpec struct {
	InputFile  string `json:"inputFile"`
	OutputPath string `json:"outputPath"`
	MinID      uint64 `json:"minId"`
	// LimitID is exclusive. The chunk may emit at most LimitID-MinID records.
	LimitID         uint64 `json:"limitId"`
	Source          string `json:"source,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	Format          string `json:"format,omitempty"` // Forced record format; detected when empty
	DefaultEncoding string `json:"defaultEncoding,omitempty"`
}

// Validate checks the spec before any file is touched.
func (s ChunkSpec) Validate() error {
	if s.InputFile == "" {
		return fmt.Errorf("%w: chunk input file is empty", ErrInvalidWorkUnit)
	}
	if s.LimitID <= s.MinID {
		return fmt.Errorf("%w: chunk limit id %d must be greater than min id %d", ErrInvalidWorkUnit, s.LimitID, s.MinID)
	}
	return nil
}

// ChunkDeps are the collaborators of the chunk converter. Nil fields get defaults.
type ChunkDeps struct {
	Parsers  *record.Registry
	Formats  format.Detector
	Encoding encoding.Handler
	Logger   *slog.Logger
}

func (d ChunkDeps) withDefaults(spec ChunkSpec) ChunkDeps {
	if d.Parsers == nil {
		d.Parsers = record.Default()
	}
	if d.Formats == nil {
		d.Formats = format.NewDetector(nil)
	}
	if d.Encoding == nil {
		d.Encoding = encoding.NewHandler(spec.DefaultEncoding)
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// ChunkResult reports one finished conversion. The exec substrate reads it as JSON
// from the last line of the chunk subcommand's stdout.
type ChunkResult struct {
	InputFile   string `json:"inputFile"`
	OutputPath  string `json:"outputPath,omitempty"`
	RecordCount int64  `json:"recordCount"`
	FirstID     uint64 `json:"firstId,omitempty"`
	LastID      uint64 `json:"lastId,omitempty"`
	Format      string `json:"format"`
	Encoding    string `json:"encoding"`
	DurationMs  int64  `json:"durationMs"`
}

// StreamRecords parses one source file and calls emit with each record, numbered
// MinID, MinID+1, ... and stamped with origin file, source and publisher.
// A record that would reach LimitID fails with ErrIDRangeOverflow.
func StreamRecords(ctx context.Context, spec ChunkSpec, deps ChunkDeps, emit record.EmitFunc) (ChunkResult, error) {
	startTime := time.Now()
	deps = deps.withDefaults(spec)
	logger := deps.Logger.With(slog.String("component", "chunk"), slog.String("input", filepath.Base(spec.InputFile)))
	result := ChunkResult{InputFile: spec.InputFile, OutputPath: spec.OutputPath}

	if err := spec.Validate(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	raw, err := os.ReadFile(spec.InputFile)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %w", ErrReadFailed, spec.InputFile, err)
	}
	if deps.Encoding.IsBinary(raw) {
		return result, fmt.Errorf("%w: %s", ErrBinaryFile, spec.InputFile)
	}

	content, encName, certain, err := deps.Encoding.Decode(raw)
	if err != nil {
		return result, fmt.Errorf("%w: decoding %s: %w", ErrReadFailed, spec.InputFile, err)
	}
	result.Encoding = encName
	if !certain {
		logger.Warn("Source encoding guessed", slog.String("encoding", encName))
	} else {
		logger.Debug("Encoding handled", slog.String("encoding", encName))
	}

	formatName := spec.Format
	if formatName == "" {
		var confidence float64
		formatName, confidence = deps.Formats.Detect(content, spec.InputFile)
		logger.Debug("Record format detected", slog.String("format", formatName), slog.Float64("confidence", confidence))
	}
	result.Format = formatName
	parser, err := deps.Parsers.Lookup(formatName)
	if err != nil {
		return result, fmt.Errorf("%s: %w", spec.InputFile, err)
	}

	origin := filepath.Base(spec.InputFile)
	next := spec.MinID
	err = parser.Parse(ctx, bytes.NewReader(content), func(rec record.Record) error {
		if next >= spec.LimitID {
			return &IDRangeError{Kind: ErrIDRangeOverflow, Requested: next, Bound: spec.LimitID}
		}
		rec.ID = next
		rec.OriginFile = origin
		rec.Source = spec.Source
		rec.Publisher = spec.Publisher
		if err := emit(rec); err != nil {
			return err
		}
		if result.RecordCount == 0 {
			result.FirstID = next
		}
		result.LastID = next
		result.RecordCount++
		next++
		return nil
	})
	result.DurationMs = time.Since(startTime).Milliseconds()
	if err != nil {
		if errors.Is(err, ErrIDRangeOverflow) {
			logger.Error("Chunk exceeded its identifier range; increase the id step", slog.Uint64("minId", spec.MinID), slog.Uint64("limitId", spec.LimitID))
		}
		return result, fmt.Errorf("%s: %w", spec.InputFile, err)
	}
	return result, nil
}

// ConvertChunk converts one source file into one JSON-lines artifact at spec.OutputPath.
// The artifact appears atomically; on any failure no artifact is left behind.
func ConvertChunk(ctx context.Context, spec ChunkSpec, deps ChunkDeps) (ChunkResult, error) {
	if spec.OutputPath == "" {
		return ChunkResult{InputFile: spec.InputFile}, fmt.Errorf("%w: chunk output path is empty", ErrInvalidWorkUnit)
	}
	deps = deps.withDefaults(spec)

	var result ChunkResult
	writeErr := util.WriteFileAtomic(spec.OutputPath, 0o644, func(w io.Writer) error {
		rw := record.NewWriter(w)
		var err error
		result, err = StreamRecords(ctx, spec, deps, rw.Write)
		if err != nil {
			return err
		}
		if err := rw.Flush(); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		return nil
	})
	if writeErr != nil {
		if result.InputFile == "" {
			result.InputFile = spec.InputFile
		}
		if !isChunkError(writeErr) {
			writeErr = fmt.Errorf("%w: %s: %w", ErrWriteFailed, spec.OutputPath, writeErr)
		}
		return result, writeErr
	}
	deps.Logger.Debug("Chunk artifact written",
		slog.String("component", "chunk"),
		slog.String("output", spec.OutputPath),
		slog.Int64("records", result.RecordCount))
	return result, nil
}

// isChunkError reports whether err already carries a chunk failure category.
func isChunkError(err error) bool {
	for _, target := range []error{
		ErrInvalidWorkUnit, ErrReadFailed, ErrBinaryFile, ErrWriteFailed, ErrIDRangeOverflow,
		record.ErrMalformedRecord, record.ErrUnknownFormat, context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// --- END OF FINAL REVISED FILE pkg/converter/chunk.go ---
