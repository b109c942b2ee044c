package converter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stackvity/corpus-converter/pkg/converter/ledger"
	"github.com/stackvity/corpus-converter/pkg/util"
)

// DetectInput carries what the change detector needs for one run.
type DetectInput struct {
	InputDir       string
	CorpusDir      string
	State          ledger.State
	IgnorePatterns []string
	MarkerPrefix   string
	// DryRun checks every precondition but never touches the filesystem.
	DryRun bool
}

// Detection is the decision taken for a run.
type Detection struct {
	Mode RunMode
	// Available lists every source file in directory-listing order.
	Available []string
	// New lists the files to plan, in directory-listing order.
	New         []string
	ResetToken  string
	ArchivePath string
	// ResetAlreadyApplied is set when the corpus already carries the marker of the requested token.
	ResetAlreadyApplied bool
}

// SourceListing is the classified content of an input directory.
type SourceListing struct {
	Sources []string
	Markers []string
}

// ListSources reads the input directory once. Regular non-hidden files are sources
// unless the drop's ignore file or a configured pattern excludes them; files starting with the marker prefix are
// reset markers. Names are returned in lexical order.
func ListSources(inputDir, markerPrefix string, ignore []string) (SourceListing, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SourceListing{}, fmt.Errorf("%w: input directory %s does not exist", ErrConfigValidation, inputDir)
		}
		return SourceListing{}, fmt.Errorf("%w: input directory %s: %w", ErrConfigValidation, inputDir, err)
	}
	if !info.IsDir() {
		return SourceListing{}, fmt.Errorf("%w: input path %s is not a directory", ErrConfigValidation, inputDir)
	}

	entries, err := os.ReadDir(inputDir) // sorted by name
	if err != nil {
		return SourceListing{}, fmt.Errorf("%w: %s: %w", ErrReadFailed, inputDir, err)
	}
	matcher, err := newIgnoreMatcher(inputDir, ignore)
	if err != nil {
		return SourceListing{}, err
	}
	var listing SourceListing
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if markerPrefix != "" && strings.HasPrefix(name, markerPrefix) {
			listing.Markers = append(listing.Markers, name)
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		if matcher.Match(name) {
			continue
		}
		listing.Sources = append(listing.Sources, name)
	}
	return listing, nil
}

// ResetToken extracts the version token from a marker name.
func ResetToken(marker, prefix string) (string, error) {
	token := strings.TrimPrefix(marker, prefix)
	if token == "" || token == marker {
		return "", fmt.Errorf("%w: %q carries no version token", ErrInvalidResetMarker, marker)
	}
	if token == "." || token == ".." || strings.ContainsAny(token, `/\`) {
		return "", fmt.Errorf("%w: %q is not a usable version token", ErrInvalidResetMarker, token)
	}
	return token, nil
}

// ArchivePath returns where the corpus is moved on a baseline reset to token.
func ArchivePath(corpusDir, token string) string {
	return filepath.Clean(corpusDir) + ArchiveInfix + token
}

// Detect decides between a baseline reset, an incremental run and a no-op.
// Every precondition is checked before anything is mutated.
func Detect(in DetectInput, logger *slog.Logger) (Detection, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("component", "detector"))

	listing, err := ListSources(in.InputDir, in.MarkerPrefix, in.IgnorePatterns)
	if err != nil {
		return Detection{}, err
	}
	if len(listing.Markers) > 1 {
		return Detection{}, fmt.Errorf("%w: %s", ErrMultipleResetMarkers, strings.Join(listing.Markers, ", "))
	}
	if len(listing.Sources) == 0 {
		return Detection{}, fmt.Errorf("%w: %s", ErrNoSourceFiles, in.InputDir)
	}

	det := Detection{Available: listing.Sources}

	if len(listing.Markers) == 1 {
		marker := listing.Markers[0]
		token, err := ResetToken(marker, in.MarkerPrefix)
		if err != nil {
			return Detection{}, err
		}
		det.Mode = RunModeReset
		det.ResetToken = token
		det.ArchivePath = ArchivePath(in.CorpusDir, token)
		det.New = append([]string(nil), listing.Sources...)

		applied, err := util.FileExists(filepath.Join(in.CorpusDir, marker))
		if err != nil {
			return Detection{}, fmt.Errorf("check reset marker in corpus: %w", err)
		}
		if applied {
			// The corpus is already on this baseline; only the trigger is left over.
			det.ResetAlreadyApplied = true
			det.Mode = RunModeIncremental
			det.New = newFiles(listing.Sources, in.State)
			if len(det.New) == 0 {
				det.Mode = RunModeNoop
			}
			logger.Warn("Reset marker already applied to corpus, removing trigger", slog.String("token", token))
			if !in.DryRun {
				if err := os.Remove(filepath.Join(in.InputDir, marker)); err != nil && !errors.Is(err, os.ErrNotExist) {
					return Detection{}, fmt.Errorf("remove reset trigger %s: %w", marker, err)
				}
			}
			return det, nil
		}

		archiveExists, err := util.FileExists(det.ArchivePath)
		if err != nil {
			return Detection{}, fmt.Errorf("check archive path: %w", err)
		}
		if archiveExists {
			return Detection{}, fmt.Errorf("%w: %s", ErrArchiveExists, det.ArchivePath)
		}

		if in.DryRun {
			logger.Info("Dry run: baseline reset detected, corpus left untouched", slog.String("token", token), slog.String("archive", det.ArchivePath))
			return det, nil
		}
		if err := archiveAndReinitialize(in.CorpusDir, det.ArchivePath, marker, token); err != nil {
			return Detection{}, err
		}
		if err := os.Remove(filepath.Join(in.InputDir, marker)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Detection{}, fmt.Errorf("remove reset trigger %s: %w", marker, err)
		}
		logger.Info("Baseline reset applied", slog.String("token", token), slog.String("archive", det.ArchivePath), slog.Int("sources", len(det.New)))
		return det, nil
	}

	det.New = newFiles(listing.Sources, in.State)
	if len(det.New) == 0 {
		det.Mode = RunModeNoop
		logger.Info("No new source files", slog.Int("available", len(det.Available)))
		return det, nil
	}
	det.Mode = RunModeIncremental
	logger.Info("New source files detected", slog.Int("available", len(det.Available)), slog.Int("new", len(det.New)))
	return det, nil
}

func newFiles(available []string, state ledger.State) []string {
	var out []string
	for _, name := range available {
		if !state.IsDone(name) {
			out = append(out, name)
		}
	}
	return out
}

// archiveAndReinitialize moves the corpus aside and recreates it empty, carrying
// the reset marker. The sibling lock and staging paths are unaffected.
func archiveAndReinitialize(corpusDir, archivePath, marker, token string) error {
	exists, err := util.FileExists(corpusDir)
	if err != nil {
		return fmt.Errorf("check corpus directory: %w", err)
	}
	if exists {
		if err := os.Rename(corpusDir, archivePath); err != nil {
			return fmt.Errorf("archive corpus to %s: %w", archivePath, err)
		}
	}
	if err := os.MkdirAll(corpusDir, 0o755); err != nil {
		return fmt.Errorf("recreate corpus directory: %w", err)
	}
	markerPath := filepath.Join(corpusDir, marker)
	err = util.WriteFileAtomic(markerPath, 0o644, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "token=%s\narchive=%s\nresetAt=%s\n", token, archivePath, time.Now().UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return fmt.Errorf("write reset marker: %w", err)
	}
	if err := util.SyncDir(filepath.Dir(filepath.Clean(corpusDir))); err != nil {
		return fmt.Errorf("sync corpus parent: %w", err)
	}
	return nil
}
