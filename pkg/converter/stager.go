package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stackvity/corpus-converter/pkg/converter/ledger"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
	"github.com/stackvity/corpus-converter/pkg/util"
)

// IntentSchemaVersion is written on every commit intent.
const IntentSchemaVersion = "1"

// CommitIntent is persisted in the corpus before any staged artifact moves.
// It names everything needed to finish or undo the commit after a crash.
type CommitIntent struct {
	SchemaVersion string       `json:"schemaVersion"`
	Entry         ledger.Entry `json:"entry"`
	StagingDir    string       `json:"stagingDir"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// StagerConfig configures a Stager.
type StagerConfig struct {
	CorpusDir     string
	StagingRoot   string
	Ledger        ledger.Ledger
	KeepOnFailure bool
	Verify        bool
	Logger        *slog.Logger
}

// Stager moves staged chunk artifacts into the corpus and records the run,
// so that readers of the corpus observe a run entirely or not at all.
type Stager struct {
	cfg    StagerConfig
	logger *slog.Logger
}

// NewStager creates a stager.
func NewStager(cfg StagerConfig) *Stager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stager{cfg: cfg, logger: logger.With(slog.String("component", "stager"))}
}

// StagingRoot returns the default private staging root for a corpus directory.
func StagingRoot(corpusDir string) string {
	return filepath.Clean(corpusDir) + StagingDirSuffix
}

func (s *Stager) intentPath() string {
	return filepath.Join(s.cfg.CorpusDir, CommitIntentFileName)
}

// StagingDir names the staging directory of one attempt at a run.
func (s *Stager) StagingDir(run uint64, attemptID string) string {
	suffix := attemptID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return filepath.Join(s.cfg.StagingRoot, fmt.Sprintf("run-%05d-%s", run, suffix))
}

// Prepare creates a fresh staging directory for one attempt at a run.
func (s *Stager) Prepare(run uint64, attemptID string) (string, error) {
	dir := s.StagingDir(run, attemptID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w", dir, err)
	}
	s.logger.Debug("Staging directory prepared", slog.String("dir", dir))
	return dir, nil
}

// Abandon discards a failed attempt. The staging directory is kept for inspection
// when KeepOnFailure is set. The corpus and ledger are never touched.
func (s *Stager) Abandon(stagingDir string) error {
	if stagingDir == "" {
		return nil
	}
	if s.cfg.KeepOnFailure {
		s.logger.Info("Run abandoned, staging kept for inspection", slog.String("dir", stagingDir))
		return nil
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("remove staging directory %s: %w", stagingDir, err)
	}
	s.removeEmptyRoot()
	s.logger.Info("Run abandoned, staging removed", slog.String("dir", stagingDir))
	return nil
}

func (s *Stager) removeEmptyRoot() {
	// os.Remove refuses non-empty directories, which is what we want here.
	_ = os.Remove(s.cfg.StagingRoot)
}

// CommitInput describes the run being committed.
type CommitInput struct {
	Plan             Plan
	Source           string
	ConverterVersion string
}

// VerifyArtifact checks that a staged artifact numbers its records r.First, r.First+1, ...
// with no gap and no identifier at or past r.Limit.
func VerifyArtifact(path string, r IDRange) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var count int64
	next := r.First
	err = record.ScanIDs(f, func(id uint64) error {
		if !r.Contains(id) {
			return fmt.Errorf("id %d outside %s", id, r)
		}
		if id != next {
			if count == 0 {
				return fmt.Errorf("first id %d, want %d", id, r.First)
			}
			return fmt.Errorf("id %d follows %d, want %d", id, next-1, next)
		}
		next++
		count++
		return nil
	})
	return count, err
}

// Commit moves every staged artifact of the plan into the corpus and appends the ledger entry.
// Failures before the first move leave the corpus and ledger untouched. A crash after the
// intent is written is resolved by Recover on the next run.
func (s *Stager) Commit(ctx context.Context, in CommitInput) (ledger.Entry, error) {
	plan := in.Plan
	logArgs := []any{slog.Uint64("run", plan.RunOrdinal), slog.Int("chunks", len(plan.Chunks))}

	// 1. Every artifact is present (and sane).
	for _, c := range plan.Chunks {
		exists, err := util.FileExists(c.StagingPath)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("%w: %w: %s: %w", ErrRunFailed, ErrMissingArtifact, c.StagingPath, err)
		}
		if !exists {
			return ledger.Entry{}, fmt.Errorf("%w: %w: chunk %d (%s)", ErrRunFailed, ErrMissingArtifact, c.Ordinal, c.FileName)
		}
		if s.cfg.Verify {
			if err := ctx.Err(); err != nil {
				return ledger.Entry{}, fmt.Errorf("%w: %w", ErrRunFailed, err)
			}
			if _, err := VerifyArtifact(c.StagingPath, c.Range()); err != nil {
				return ledger.Entry{}, fmt.Errorf("%w: %w: chunk %d (%s): %w", ErrRunFailed, ErrArtifactVerification, c.Ordinal, c.FileName, err)
			}
		}
	}

	// 2. Nothing would be overwritten.
	for _, c := range plan.Chunks {
		exists, err := util.FileExists(filepath.Join(s.cfg.CorpusDir, c.ArtifactName))
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
		}
		if exists {
			return ledger.Entry{}, fmt.Errorf("%w: %s", ErrArtifactConflict, c.ArtifactName)
		}
	}

	entry := ledger.Entry{
		SchemaVersion:    ledger.SchemaVersion,
		Run:              plan.RunOrdinal,
		FirstID:          plan.FirstID,
		NextFreeID:       plan.NextFreeID,
		Files:            plan.Files(),
		Artifacts:        plan.Artifacts(),
		Source:           in.Source,
		CommittedAt:      time.Now().UTC(),
		ConverterVersion: in.ConverterVersion,
	}
	intent := CommitIntent{SchemaVersion: IntentSchemaVersion, Entry: entry, StagingDir: plan.StagingDir, CreatedAt: entry.CommittedAt}

	// 3. Intent.
	if err := os.MkdirAll(s.cfg.CorpusDir, 0o755); err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	if err := s.writeIntent(intent); err != nil {
		return ledger.Entry{}, err
	}

	// 4. Move.
	var moved []Chunk
	for _, c := range plan.Chunks {
		if err := os.Rename(c.StagingPath, filepath.Join(s.cfg.CorpusDir, c.ArtifactName)); err != nil {
			s.logger.Error("Moving artifact into corpus failed, rolling back", append(logArgs, slog.String("artifact", c.ArtifactName), slog.String("error", err.Error()))...)
			if rbErr := s.moveBack(moved); rbErr != nil {
				return ledger.Entry{}, fmt.Errorf("%w: move %s: %w (rollback incomplete, resolved on next run: %v)", ErrCommitFailed, c.ArtifactName, err, rbErr)
			}
			_ = os.Remove(s.intentPath())
			return ledger.Entry{}, fmt.Errorf("%w: move %s: %w", ErrCommitFailed, c.ArtifactName, err)
		}
		moved = append(moved, c)
	}
	if err := util.SyncDir(s.cfg.CorpusDir); err != nil {
		s.logger.Warn("Syncing corpus directory failed", append(logArgs, slog.String("error", err.Error()))...)
	}

	// 5. Ledger.
	if err := s.cfg.Ledger.Append(entry); err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	// 6. Cleanup. The run is committed; failures here are only logged.
	if err := os.Remove(s.intentPath()); err != nil {
		s.logger.Warn("Removing commit intent failed; cleared on next run", append(logArgs, slog.String("error", err.Error()))...)
	}
	if err := os.RemoveAll(plan.StagingDir); err != nil {
		s.logger.Warn("Removing staging directory failed", append(logArgs, slog.String("error", err.Error()))...)
	}
	s.removeEmptyRoot()
	s.logger.Info("Run committed", append(logArgs, slog.Uint64("firstId", entry.FirstID), slog.Uint64("nextFreeId", entry.NextFreeID))...)
	return entry, nil
}

func (s *Stager) moveBack(moved []Chunk) error {
	var errs []error
	for _, c := range moved {
		if err := os.Rename(filepath.Join(s.cfg.CorpusDir, c.ArtifactName), c.StagingPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stager) writeIntent(intent CommitIntent) error {
	err := util.WriteFileAtomic(s.intentPath(), 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(intent)
	})
	if err != nil {
		return fmt.Errorf("%w: write: %w", ErrCommitIntent, err)
	}
	if err := util.SyncDir(s.cfg.CorpusDir); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrCommitIntent, err)
	}
	return nil
}

// ReadIntent returns the pending commit intent, or nil when there is none.
func (s *Stager) ReadIntent() (*CommitIntent, error) {
	data, err := os.ReadFile(s.intentPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read: %w", ErrCommitIntent, err)
	}
	var intent CommitIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrCommitIntent, s.intentPath(), err)
	}
	if intent.SchemaVersion != IntentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema %q", ErrCommitIntent, intent.SchemaVersion)
	}
	if err := intent.Entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommitIntent, err)
	}
	return &intent, nil
}

// Recover resolves a commit interrupted by a crash, then checks that every artifact
// in the corpus belongs to a committed run. With dryRun set it only reports the
// action it would take.
func (s *Stager) Recover(dryRun bool) (RecoveryAction, error) {
	state, err := s.cfg.Ledger.Load()
	if err != nil {
		return RecoveryNone, err
	}
	intent, err := s.ReadIntent()
	if err != nil {
		return RecoveryNone, err
	}

	action := RecoveryNone
	if intent != nil {
		action, err = s.resolve(*intent, state, dryRun)
		if err != nil {
			return action, err
		}
		if dryRun {
			return action, nil
		}
		if state, err = s.cfg.Ledger.Load(); err != nil {
			return action, err
		}
	}
	return action, s.checkAccounted(state)
}

func (s *Stager) resolve(intent CommitIntent, state ledger.State, dryRun bool) (RecoveryAction, error) {
	entry := intent.Entry
	logArgs := []any{slog.Uint64("run", entry.Run), slog.String("stagingDir", intent.StagingDir)}

	if state.HasRun(entry.Run) {
		s.logger.Info("Pending commit already recorded in ledger, clearing intent", logArgs...)
		if dryRun {
			return RecoveryCleared, nil
		}
		if err := os.Remove(s.intentPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return RecoveryCleared, fmt.Errorf("%w: remove: %w", ErrCommitIntent, err)
		}
		_ = os.RemoveAll(intent.StagingDir)
		s.removeEmptyRoot()
		return RecoveryCleared, nil
	}

	// Only the run directly following the ledger may be rolled forward.
	canAppend := entry.Run == state.LastRun+1 && entry.FirstID >= state.NextFreeID
	allAvailable := canAppend
	var inCorpus []string
	for _, a := range entry.Artifacts {
		corpusHas, err := util.FileExists(filepath.Join(s.cfg.CorpusDir, a))
		if err != nil {
			return RecoveryNone, err
		}
		if corpusHas {
			inCorpus = append(inCorpus, a)
			continue
		}
		stagingHas, err := util.FileExists(filepath.Join(intent.StagingDir, a))
		if err != nil {
			return RecoveryNone, err
		}
		if !stagingHas {
			allAvailable = false
		}
	}

	if allAvailable && len(entry.Artifacts) > 0 {
		s.logger.Warn("Rolling pending commit forward", append(logArgs, slog.Int("alreadyMoved", len(inCorpus)))...)
		if dryRun {
			return RecoveryRolledForward, nil
		}
		for _, a := range entry.Artifacts {
			dst := filepath.Join(s.cfg.CorpusDir, a)
			if ok, _ := util.FileExists(dst); ok {
				continue
			}
			if err := os.Rename(filepath.Join(intent.StagingDir, a), dst); err != nil {
				return RecoveryRolledForward, fmt.Errorf("%w: roll forward %s: %w", ErrCommitFailed, a, err)
			}
		}
		_ = util.SyncDir(s.cfg.CorpusDir)
		if err := s.cfg.Ledger.Append(entry); err != nil {
			return RecoveryRolledForward, fmt.Errorf("%w: roll forward: %w", ErrCommitFailed, err)
		}
		if err := os.Remove(s.intentPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return RecoveryRolledForward, fmt.Errorf("%w: remove: %w", ErrCommitIntent, err)
		}
		_ = os.RemoveAll(intent.StagingDir)
		s.removeEmptyRoot()
		return RecoveryRolledForward, nil
	}

	s.logger.Warn("Rolling pending commit back; its files will be planned again", append(logArgs, slog.Int("removing", len(inCorpus)))...)
	if dryRun {
		return RecoveryRolledBack, nil
	}
	for _, a := range inCorpus {
		if err := os.Remove(filepath.Join(s.cfg.CorpusDir, a)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return RecoveryRolledBack, fmt.Errorf("%w: roll back %s: %w", ErrCommitFailed, a, err)
		}
	}
	_ = util.SyncDir(s.cfg.CorpusDir)
	if err := os.Remove(s.intentPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return RecoveryRolledBack, fmt.Errorf("%w: remove: %w", ErrCommitIntent, err)
	}
	if !s.cfg.KeepOnFailure {
		_ = os.RemoveAll(intent.StagingDir)
		s.removeEmptyRoot()
	}
	return RecoveryRolledBack, nil
}

// checkAccounted fails when the corpus holds artifacts no committed run recorded.
func (s *Stager) checkAccounted(state ledger.State) error {
	entries, err := os.ReadDir(s.cfg.CorpusDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list corpus: %w", err)
	}
	known := state.Artifacts()
	var stray []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ArtifactSuffix) {
			continue
		}
		if _, ok := known[name]; !ok {
			stray = append(stray, name)
		}
	}
	if len(stray) > 0 {
		return fmt.Errorf("%w: %s", ErrUnaccountedArtifacts, strings.Join(stray, ", "))
	}
	return nil
}
