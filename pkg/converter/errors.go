// --- START OF FINAL REVISED FILE pkg/converter/errors.go ---
package converter

import (
	"errors"
	"fmt"

	"github.com/stackvity/corpus-converter/pkg/converter/lock"
)

// --- Exported Error Variables ---
// These errors represent the categories of failure a run can end with.
// Library users can check against these using errors.Is.

var (
	// ErrConfigValidation indicates that the provided Options failed validation
	// (missing or invalid paths, invalid modes, namespace inconsistencies).
	// Always fatal; no state is created before it is returned.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrNoSourceFiles indicates that the input directory contains no discoverable source files.
	ErrNoSourceFiles = errors.New("no source files found in input directory")

	// ErrMultipleResetMarkers indicates more than one baseline-reset trigger in the input directory.
	// Checked before any filesystem mutation.
	ErrMultipleResetMarkers = errors.New("more than one baseline reset marker present")

	// ErrInvalidResetMarker indicates a reset trigger whose name carries no usable version token.
	ErrInvalidResetMarker = errors.New("invalid baseline reset marker")

	// ErrArchiveExists indicates that the archive directory for a reset token already exists.
	ErrArchiveExists = errors.New("corpus archive for reset token already exists")

	// ErrInvalidStep indicates a zero identifier step.
	ErrInvalidStep = errors.New("identifier step must be greater than zero")

	// ErrNamespaceUnderflow indicates an identifier below the configured namespace base.
	ErrNamespaceUnderflow = errors.New("identifier below namespace base")

	// ErrIDSpaceOverflow indicates that a reservation would cross the namespace limit
	// or overflow the 64-bit identifier space.
	ErrIDSpaceOverflow = errors.New("identifier space exhausted")

	// ErrIDRangeOverflow indicates that a chunk produced more records than its reserved
	// range allows. This is a configuration error (step too small), never recovered at runtime.
	ErrIDRangeOverflow = errors.New("chunk exceeded its reserved identifier range")

	// ErrRunFailed is the single signal every chunk-level failure surfaces as.
	// The corpus and ledger are untouched when a run ends with it.
	ErrRunFailed = errors.New("run failed")

	// ErrChunkFailed indicates that one chunk's conversion failed on the substrate.
	ErrChunkFailed = errors.New("chunk conversion failed")

	// ErrInvalidWorkUnit indicates a unit submitted to a substrate is incomplete.
	ErrInvalidWorkUnit = errors.New("invalid work unit")

	// ErrMissingArtifact indicates a chunk reported success but its staged artifact does not exist.
	ErrMissingArtifact = errors.New("staged artifact missing")

	// ErrArtifactVerification indicates a staged artifact's identifiers are not the contiguous
	// run starting at its chunk's first identifier.
	ErrArtifactVerification = errors.New("staged artifact failed verification")

	// ErrArtifactConflict indicates a committed artifact with the same name already exists in the corpus.
	ErrArtifactConflict = errors.New("artifact already present in corpus")

	// ErrUnaccountedArtifacts indicates artifacts in the corpus that belong to no ledger entry
	// and no pending commit. Requires operator cleanup.
	ErrUnaccountedArtifacts = errors.New("corpus contains artifacts not recorded in the ledger")

	// ErrCommitIntent indicates the pending commit record could not be written, read or removed.
	ErrCommitIntent = errors.New("commit intent failure")

	// ErrCommitFailed indicates moving staged artifacts or appending the ledger failed mid-commit.
	// The pending commit is resolved on the next run.
	ErrCommitFailed = errors.New("commit failed")

	// ErrBinaryFile indicates a source file detected as binary.
	ErrBinaryFile = errors.New("binary source file encountered")

	// ErrReadFailed indicates a failure to read a source file.
	ErrReadFailed = errors.New("failed to read source file")

	// ErrWriteFailed indicates a failure to write a chunk artifact.
	ErrWriteFailed = errors.New("failed to write chunk artifact")

	// ErrCorpusLocked indicates another run holds the corpus lock.
	ErrCorpusLocked = lock.ErrLocked
)

// IDRangeError carries the numbers behind an identifier allocation failure.
// errors.Is matches it against its Kind sentinel.
type IDRangeError struct {
	Kind      error  `json:"-"`
	Requested uint64 `json:"requested"`
	Bound     uint64 `json:"bound"`
}

func (e *IDRangeError) Error() string {
	return fmt.Sprintf("%v: requested %d, bound %d", e.Kind, e.Requested, e.Bound)
}

// Unwrap exposes the sentinel kind to errors.Is.
func (e *IDRangeError) Unwrap() error { return e.Kind }

// --- END OF FINAL REVISED FILE pkg/converter/errors.go ---
