// --- START OF FINAL REVISED FILE internal/testutil/mocks_test.go ---
package testutil_test

import (
	"path/filepath"
	"testing"

	"github.com/stackvity/corpus-converter/internal/testutil"
	"github.com/stackvity/corpus-converter/pkg/converter"
	"github.com/stackvity/corpus-converter/pkg/converter/encoding"
	"github.com/stackvity/corpus-converter/pkg/converter/format"
	"github.com/stackvity/corpus-converter/pkg/converter/ledger"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
	"github.com/stretchr/testify/assert"
)

// Mocks carry no logic worth testing on their own; these assertions pin the
// interfaces they stand in for, so a signature change breaks here first.
var (
	_ converter.Substrate = (*testutil.MockSubstrate)(nil)
	_ converter.Hooks     = (*testutil.MockHooks)(nil)
	_ ledger.Ledger       = (*testutil.MockLedger)(nil)
	_ format.Detector     = (*testutil.MockFormatDetector)(nil)
	_ encoding.Handler    = (*testutil.MockEncodingHandler)(nil)
	_ record.Parser       = (*testutil.MockParser)(nil)
)

func TestCreateSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop", "a.jsonl")
	testutil.CreateSourceFile(t, path, "a", 3)

	lines := testutil.ReadJSONLines(t, path)
	assert.Len(t, lines, 3)
	assert.Equal(t, "a-2", lines[2]["pmid"])
	assert.Equal(t, []string{"a.jsonl"}, testutil.ListDir(t, filepath.Dir(path)))
	assert.Nil(t, testutil.ListDir(t, filepath.Join(t.TempDir(), "missing")))
}

// --- END OF FINAL REVISED FILE internal/testutil/mocks_test.go ---
