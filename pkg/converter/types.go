// --- START OF FINAL REVISED FILE pkg/converter/types.go ---
package converter

// Status defines the possible states of a chunk while a run is dispatched.
type Status string

// Constants representing the defined chunk statuses.
const (
	StatusPlanned   Status = "planned"
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsFinal reports whether no further updates are expected for a chunk in this status.
func (s Status) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// RunMode describes what the change detector decided a run must do.
type RunMode string

const (
	// RunModeIncremental processes only source files not yet recorded in the ledger.
	RunModeIncremental RunMode = "incremental"
	// RunModeReset archives the corpus, starts a fresh ledger and processes every source file.
	RunModeReset RunMode = "reset"
	// RunModeNoop means nothing new was found; corpus and ledger stay untouched.
	RunModeNoop RunMode = "noop"
)

// OutputFormat defines the format for the final run report printed to standard output.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// SubstrateKind selects the execution substrate chunks are dispatched to.
type SubstrateKind string

const (
	// SubstrateInProcess converts chunks in goroutines of the orchestrating process.
	SubstrateInProcess SubstrateKind = "inprocess"
	// SubstrateExec launches the rendered chunk command as a separate OS process per chunk.
	SubstrateExec SubstrateKind = "exec"
)

// RecoveryAction records how a pending commit left behind by an interrupted run was resolved.
type RecoveryAction string

const (
	RecoveryNone          RecoveryAction = ""
	RecoveryCleared       RecoveryAction = "cleared"
	RecoveryRolledForward RecoveryAction = "rolled_forward"
	RecoveryRolledBack    RecoveryAction = "rolled_back"
)

// --- END OF FINAL REVISED FILE pkg/converter/types.go ---
