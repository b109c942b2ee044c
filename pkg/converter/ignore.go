// --- START OF FINAL REVISED FILE pkg/converter/ignore.go ---
package converter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackvity/corpus-converter/pkg/util"
)

// IgnoreFileName is the optional per-drop file listing source names to skip.
// It is hidden, so it is never itself a source.
const IgnoreFileName = ".corpusconverterignore"

// ignoreMatcher decides which names in a flat bulk-drop directory are skipped.
// Later patterns win, and a leading "!" re-includes a name.
type ignoreMatcher struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	glob    string
	negated bool
}

// newIgnoreMatcher loads the drop's ignore file (if any) followed by the configured patterns.
func newIgnoreMatcher(inputDir string, configPatterns []string) (*ignoreMatcher, error) { // minimal comment
	m := &ignoreMatcher{}
	filePatterns, err := loadIgnoreFile(filepath.Join(inputDir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	m.addPatterns(filePatterns)
	m.addPatterns(configPatterns)
	return m, nil
}

// loadIgnoreFile reads one pattern per line; blank lines and "#" comments are skipped.
func loadIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open ignore file %s: %w", ErrReadFailed, path, err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read ignore file %s: %w", ErrReadFailed, path, err)
	}
	return patterns, nil
}

func (m *ignoreMatcher) addPatterns(raw []string) {
	for _, r := range raw {
		p := ignorePattern{glob: strings.TrimSpace(r)}
		if strings.HasPrefix(p.glob, "!") {
			p.negated = true
			p.glob = strings.TrimSpace(p.glob[1:])
		}
		if p.glob == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
}

// Match reports whether name is ignored after applying every pattern in order.
func (m *ignoreMatcher) Match(name string) bool {
	ignored := false
	for _, p := range m.patterns {
		if util.MatchesIgnore([]string{p.glob}, name) {
			ignored = !p.negated
		}
	}
	return ignored
}

// --- END OF FINAL REVISED FILE pkg/converter/ignore.go ---
