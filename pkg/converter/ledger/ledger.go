// --- START OF FINAL REVISED FILE pkg/converter/ledger/ledger.go ---
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// --- Constants ---

// FileName is the standard name of the ledger inside the corpus directory.
const FileName = "ledger.jsonl"

// SchemaVersion is written on every entry. Entries carrying a different schema are corrupt.
const SchemaVersion = "1"

// --- Error Variables ---

// ErrLedgerCorrupt indicates an unparsable or internally inconsistent ledger.
// It is fatal: the ledger is never repaired automatically.
var ErrLedgerCorrupt = errors.New("ledger corrupt")

// ErrLedgerAppend indicates an entry could not be durably appended.
var ErrLedgerAppend = errors.New("failed to append ledger entry")

// --- Data Structures ---

// Entry is the immutable record of one committed run.
type Entry struct {
	SchemaVersion    string    `json:"schemaVersion"`
	Run              uint64    `json:"run"`
	FirstID          uint64    `json:"firstId"`
	NextFreeID       uint64    `json:"nextFreeId"`
	Files            []string  `json:"files"`
	Artifacts        []string  `json:"artifacts,omitempty"`
	Source           string    `json:"source,omitempty"`
	CommittedAt      time.Time `json:"committedAt"`
	ConverterVersion string    `json:"converterVersion,omitempty"`
}

// Validate checks the entry on its own.
func (e Entry) Validate() error {
	if e.Run == 0 {
		return fmt.Errorf("%w: run ordinal must be positive", ErrLedgerCorrupt)
	}
	if e.NextFreeID <= e.FirstID {
		return fmt.Errorf("%w: run %d next-free id %d not above first id %d", ErrLedgerCorrupt, e.Run, e.NextFreeID, e.FirstID)
	}
	if len(e.Files) == 0 {
		return fmt.Errorf("%w: run %d lists no files", ErrLedgerCorrupt, e.Run)
	}
	if len(e.Artifacts) != 0 && len(e.Artifacts) != len(e.Files) {
		return fmt.Errorf("%w: run %d lists %d files but %d artifacts", ErrLedgerCorrupt, e.Run, len(e.Files), len(e.Artifacts))
	}
	return nil
}

// State is the derived view of the ledger that drives planning.
type State struct {
	LastRun    uint64
	NextFreeID uint64
	DoneFiles  map[string]uint64 // file name -> run ordinal
	Entries    []Entry
}

// IsDone reports whether a source file was committed by some run.
func (s State) IsDone(name string) bool {
	_, ok := s.DoneFiles[name]
	return ok
}

// HasRun reports whether the given run ordinal is committed.
func (s State) HasRun(run uint64) bool {
	for _, e := range s.Entries {
		if e.Run == run {
			return true
		}
	}
	return false
}

// Artifacts returns every artifact name recorded by committed runs.
func (s State) Artifacts() map[string]uint64 {
	out := make(map[string]uint64)
	for _, e := range s.Entries {
		for _, a := range e.Artifacts {
			out[a] = e.Run
		}
	}
	return out
}

// apply folds one entry into the state, enforcing cross-entry consistency.
func (s *State) apply(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.SchemaVersion != "" && e.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: run %d has schema %q, expected %q", ErrLedgerCorrupt, e.Run, e.SchemaVersion, SchemaVersion)
	}
	if e.Run <= s.LastRun {
		return fmt.Errorf("%w: run ordinal %d does not follow %d", ErrLedgerCorrupt, e.Run, s.LastRun)
	}
	if e.FirstID < s.NextFreeID {
		return fmt.Errorf("%w: run %d first id %d overlaps previous range ending at %d", ErrLedgerCorrupt, e.Run, e.FirstID, s.NextFreeID)
	}
	for _, f := range e.Files {
		if prev, dup := s.DoneFiles[f]; dup {
			return fmt.Errorf("%w: file %q recorded by run %d and run %d", ErrLedgerCorrupt, f, prev, e.Run)
		}
	}
	for _, f := range e.Files {
		s.DoneFiles[f] = e.Run
	}
	s.LastRun = e.Run
	s.NextFreeID = e.NextFreeID
	s.Entries = append(s.Entries, e)
	return nil
}

// --- Interfaces ---

// Ledger persists committed runs.
//
// Load returns the empty state (last run 0, next free id = base, no files) when the ledger does not exist.
// Append durably adds one entry; on return the entry survives a crash.
type Ledger interface {
	Load() (State, error)
	Append(entry Entry) error
	Path() string
}

// --- fileLedger Implementation ---

type fileLedger struct {
	path   string
	base   uint64
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileLedger creates a JSON-lines ledger at path. base is the namespace base
// reported as NextFreeID while no run is committed.
func NewFileLedger(loggerHandler slog.Handler, path string, base uint64) Ledger { // minimal comment
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(
		slog.String("component", "ledger"),
		slog.String("impl", "file"),
	)
	return &fileLedger{path: path, base: base, logger: logger}
}

// Path implements the Ledger interface.
func (l *fileLedger) Path() string { return l.path }

// Load implements the Ledger interface.
func (l *fileLedger) Load() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := State{NextFreeID: l.base, DoneFiles: make(map[string]uint64)}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Debug("Ledger not found, starting empty", "path", l.path, "nextFreeId", l.base)
			return state, nil
		}
		return State{}, fmt.Errorf("read ledger %s: %w", l.path, err)
	}

	state, err = Parse(bytes.NewReader(data), l.base)
	if err != nil {
		l.logger.Error("Ledger failed validation", "path", l.path, "error", err.Error())
		return State{}, err
	}
	l.logger.Debug("Ledger loaded", "path", l.path, "runs", len(state.Entries), "lastRun", state.LastRun, "nextFreeId", state.NextFreeID)
	return state, nil
}

// Parse reads a JSON-lines ledger stream and folds it into a State.
// Blank lines are skipped. A truncated final line is corruption, not a partial append to ignore.
func Parse(r io.Reader, base uint64) (State, error) {
	state := State{NextFreeID: base, DoneFiles: make(map[string]uint64)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return State{}, fmt.Errorf("%w: line %d: %w", ErrLedgerCorrupt, lineNo, err)
		}
		if e.FirstID < base {
			return State{}, fmt.Errorf("%w: line %d: run %d first id %d below namespace base %d", ErrLedgerCorrupt, lineNo, e.Run, e.FirstID, base)
		}
		if err := state.apply(e); err != nil {
			return State{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrLedgerCorrupt, err)
	}
	return state, nil
}

// Append implements the Ledger interface.
func (l *fileLedger) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.SchemaVersion == "" {
		entry.SchemaVersion = SchemaVersion
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerAppend, err)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode run %d: %w", ErrLedgerAppend, entry.Run, err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerAppend, err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrLedgerAppend, l.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrLedgerAppend, l.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrLedgerAppend, l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrLedgerAppend, l.path, err)
	}
	l.logger.Info("Ledger entry appended", "run", entry.Run, "firstId", entry.FirstID, "nextFreeId", entry.NextFreeID, "files", len(entry.Files))
	return nil
}

// --- END OF FINAL REVISED FILE pkg/converter/ledger/ledger.go ---
