// --- START OF FINAL REVISED FILE pkg/converter/options.go ---
package converter

import (
	"context" // Import context as it's used in interfaces
	"log/slog"
	"time"

	"github.com/stackvity/corpus-converter/pkg/converter/encoding"
	"github.com/stackvity/corpus-converter/pkg/converter/format"
	"github.com/stackvity/corpus-converter/pkg/converter/ledger"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
)

// NamespaceConfig is the identifier interval configured for one source category.
type NamespaceConfig struct {
	Base  uint64 `mapstructure:"base"`
	Limit uint64 `mapstructure:"limit"`
}

// DispatchConfig holds settings for handing chunks to the execution substrate.
type DispatchConfig struct {
	Substrate   SubstrateKind `mapstructure:"substrate"`   // ("inprocess", "exec")
	Concurrency int           `mapstructure:"concurrency"` // Parallel chunks (0=auto)
	Timeout     string        `mapstructure:"timeout"`     // Barrier timeout, Go duration ("0s" disables)
	// ResourceHint is an opaque per-chunk hint passed to the substrate (e.g. "mem=4g").
	ResourceHint string `mapstructure:"resourceHint"`
	// Command is the argument template for the exec substrate. Each element is a text/template.
	Command    []string `mapstructure:"command"`
	Executable string   `mapstructure:"executable"` // Converter binary; defaults to the running executable
}

// StagingConfig controls the private staging area.
type StagingConfig struct {
	KeepOnFailure bool `mapstructure:"keepOnFailure"`
	Verify        bool `mapstructure:"verify"`
}

// WorkUnit is one chunk handed to a Substrate.
type WorkUnit struct {
	Chunk Chunk
	// Spec is the in-process form of the chunk; exec substrates use Chunk.Command instead.
	Spec         ChunkSpec
	ResourceHint string
}

// UnitResult is the terminal state of one submitted unit.
type UnitResult struct {
	Chunk    Chunk
	Status   Status
	Result   ChunkResult
	Err      error
	Duration time.Duration
}

// Outcome is the aggregate result observed at the barrier.
type Outcome struct {
	Units []UnitResult
}

// Failed returns the units that did not succeed.
func (o Outcome) Failed() []UnitResult {
	var failed []UnitResult
	for _, u := range o.Units {
		if u.Status != StatusSuccess {
			failed = append(failed, u)
		}
	}
	return failed
}

// Substrate runs chunks. Submit enqueues without blocking on completion;
// AwaitAll blocks until every submitted unit reached a terminal state.
// A substrate is used for exactly one barrier.
type Substrate interface {
	Submit(ctx context.Context, unit WorkUnit) error
	AwaitAll(ctx context.Context) (Outcome, error)
}

// UnitObserver is optionally implemented by substrates that report per-unit transitions.
type UnitObserver interface {
	SetObserver(fn func(unit WorkUnit, status Status, message string, duration time.Duration))
}

// Hooks defines callbacks for status updates during a run.
// Implementations MUST be thread-safe as methods may be called concurrently.
type Hooks interface {
	OnChunkPlanned(chunk Chunk) error
	OnChunkStatusUpdate(chunk Chunk, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

// OnChunkPlanned implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnChunkPlanned(chunk Chunk) error { return nil }

// OnChunkStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnChunkStatusUpdate(chunk Chunk, status Status, message string, duration time.Duration) error { // minimal comment
	return nil
}

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// SubstrateFactory builds the substrate for one run. Used by the CLI to inject the exec substrate.
type SubstrateFactory func(opts *Options, logger *slog.Logger) (Substrate, error)

// Options holds all configuration for a GenerateCorpus run.
type Options struct {
	// --- Core Paths ---
	InputPath  string `mapstructure:"inputPath"`  // Required: Absolute path to the bulk-drop directory
	OutputPath string `mapstructure:"outputPath"` // Required: Absolute path to the corpus directory

	// --- Application Info ---
	AppVersion string `mapstructure:"-"` // Recorded in ledger entries. Should be populated by caller.

	// --- Behavior & Control ---
	ConfigFilePath string       `mapstructure:"-"`            // Path to the loaded config file (for reporting)
	ProfileName    string       `mapstructure:"-"`            // Name of the profile used (for reporting)
	Verbose        bool         `mapstructure:"verbose"`      // Enable debug logging
	TuiEnabled     bool         `mapstructure:"tuiEnabled"`   // Hint for CLI to use TUI (ignored if Verbose)
	DryRun         bool         `mapstructure:"dryRun"`       // Detect and plan only
	OutputFormat   OutputFormat `mapstructure:"outputFormat"` // ("text", "json") for final report

	// --- Identity ---
	Source     string                     `mapstructure:"source"`     // Source category selecting the namespace
	Publisher  string                     `mapstructure:"publisher"`  // Stamped on every record
	Namespaces map[string]NamespaceConfig `mapstructure:"namespaces"` // Per-source identifier intervals
	IDStep     uint64                     `mapstructure:"idStep"`     // Identifier range width per chunk
	Namespace  Namespace                  `mapstructure:"-"`          // Resolved from Source and Namespaces

	// --- Source Handling ---
	IgnorePatterns    []string          `mapstructure:"ignore"`            // Glob patterns over source file names
	ResetMarkerPrefix string            `mapstructure:"resetMarkerPrefix"` // Baseline-reset trigger prefix
	Format            string            `mapstructure:"format"`            // Force a record format ("" = detect)
	FormatMappings    map[string]string `mapstructure:"formatMappings"`    // Extension -> format overrides
	DefaultEncoding   string            `mapstructure:"defaultEncoding"`

	// --- Dispatch & Staging ---
	Dispatch        DispatchConfig `mapstructure:"dispatch"`
	DispatchTimeout time.Duration  `mapstructure:"-"` // Derived from Dispatch.Timeout
	Staging         StagingConfig  `mapstructure:"staging"`

	// --- Injected Dependencies & Internal State ---
	EventHooks       Hooks            `mapstructure:"-"` // Required: Callback interface
	Logger           slog.Handler     `mapstructure:"-"` // Required: Logging backend
	SubstrateFactory SubstrateFactory `mapstructure:"-"` // Optional: defaults to the in-process substrate
	Ledger           ledger.Ledger    `mapstructure:"-"` // Optional: defaults to <corpus>/ledger.jsonl
	Parsers          *record.Registry `mapstructure:"-"` // Optional: defaults to record.Default()
	FormatDetector   format.Detector  `mapstructure:"-"` // Optional: record format detection
	EncodingHandler  encoding.Handler `mapstructure:"-"` // Optional: encoding handling implementation
}

// --- END OF FINAL REVISED FILE pkg/converter/options.go ---
