// --- START OF FINAL REVISED FILE pkg/converter/constants.go ---
package converter

import "time"

// Constants defining default values for configuration options.
// These are used when setting up Viper defaults in the configuration loading process.
const (
	// DefaultIDStep is the width of the identifier range reserved for one chunk.
	// It must exceed the largest number of records a single source file can contain.
	DefaultIDStep uint64 = 300000
	// DefaultNamespaceBase is the identifier floor used when no namespace is configured for the source.
	DefaultNamespaceBase uint64 = 0
	// DefaultSource is the source category assumed when none is configured.
	DefaultSource = "default"
	// DefaultResetMarkerPrefix prefixes the baseline-reset trigger file; the remainder of the name is the version token.
	DefaultResetMarkerPrefix = "BASELINE_"
	// DefaultConcurrency determines the default number of parallel chunks. 0 means runtime.NumCPU().
	DefaultConcurrency = 0
	// DefaultSubstrate is the execution substrate used when none is configured.
	DefaultSubstrate = SubstrateInProcess
	// DefaultDispatchTimeoutString disables the barrier timeout.
	DefaultDispatchTimeoutString = "0s"
	// DefaultDispatchTimeout is the parsed form of DefaultDispatchTimeoutString.
	DefaultDispatchTimeout = 0 * time.Second
	// DefaultKeepStagingOnFailure keeps staged artifacts of a failed run for inspection.
	DefaultKeepStagingOnFailure = true
	// DefaultVerifyArtifacts re-reads staged artifacts and checks their identifiers before commit.
	DefaultVerifyArtifacts = true
	// DefaultTuiEnabled is the default state for the Terminal UI.
	DefaultTuiEnabled = true
	// DefaultOutputFormat is the default format for the final run report.
	DefaultOutputFormat = OutputFormatText
	// DefaultVerbose is the default state for verbose logging.
	DefaultVerbose = false
)

// Corpus layout. Names are relative to the corpus directory unless noted.
const (
	// ArtifactSuffix terminates every committed chunk artifact.
	ArtifactSuffix = ".records.jsonl"
	// CommitIntentFileName holds the pending commit while staged artifacts are being moved.
	CommitIntentFileName = ".commit-intent.json"
	// LockFileSuffix is appended to the corpus directory path to form the sibling lock file.
	LockFileSuffix = ".lock"
	// StagingDirSuffix is appended to the corpus directory path to form the sibling staging root.
	StagingDirSuffix = ".staging"
	// ArchiveInfix joins the corpus directory path and the reset token when archiving.
	ArchiveInfix = ".pre-"
)

// Process exit codes of the corpus-converter binary. A chunk process that overflows its
// identifier range exits with ExitCodeIDRangeOverflow so the exec substrate can tell it apart.
const (
	ExitCodeFailure         = 1
	ExitCodeConfiguration   = 2
	ExitCodeIDRangeOverflow = 3
)

// Constants related to report schema.
const (
	// ReportSchemaVersion indicates the version of the JSON report structure.
	ReportSchemaVersion = "1.0"
)

// --- END OF FINAL REVISED FILE pkg/converter/constants.go ---
