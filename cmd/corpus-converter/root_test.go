package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stackvity/corpus-converter/internal/testutil"
	"github.com/stackvity/corpus-converter/pkg/converter"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
)

// executeCommand runs a fresh command tree and captures its output.
func executeCommand(args ...string) (stdout string, stderr string, err error) {
	root := newRootCmd()
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(stderrBuf)
	root.SetArgs(args)

	err = root.Execute()

	return stdoutBuf.String(), stderrBuf.String(), err
}

func findSubcommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("subcommand %q not registered", name)
	return nil
}

func TestRootCmdHelp(t *testing.T) {
	stdout, stderr, err := executeCommand("--help")

	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "corpus-converter -i <inputDir> -o <corpusDir>")
	assert.Contains(t, stdout, "chunk")
	assert.Contains(t, stdout, "parse")

	root := newRootCmd()
	root.Flags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "Help output should contain flag --%s", f.Name)
	})
	root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "Help output should contain persistent flag --%s", f.Name)
	})
}

func TestRootCmdVersion(t *testing.T) {
	originalVersion, originalCommit, originalDate := version, commit, date
	version, commit, date = "test-1.2.3", "testcommit123", "2024-01-01T10:00:00Z"
	defer func() { version, commit, date = originalVersion, originalCommit, originalDate }()

	stdout, _, err := executeCommand("--version")
	require.NoError(t, err)
	assert.Equal(t, "corpus-converter version test-1.2.3 (commit: testcommit123, built: 2024-01-01T10:00:00Z)\n", stdout)
}

func TestRootCmd_MissingRequiredFlags(t *testing.T) {
	_, _, err := executeCommand("-o", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "input" not set`)

	_, _, err = executeCommand("-i", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "output" not set`)
}

func TestRootCmd_InvalidFlagValue(t *testing.T) {
	_, _, err := executeCommand("-i", t.TempDir(), "-o", t.TempDir(), "--substrate", "cluster")
	require.Error(t, err)
	assert.ErrorIs(t, err, converter.ErrConfigValidation)
}

func TestRootCmd_EndToEndInProcess(t *testing.T) {
	parent := t.TempDir()
	input := filepath.Join(parent, "drop")
	corpus := filepath.Join(parent, "corpus")
	testutil.CreateSourceFile(t, filepath.Join(input, "pubmed-0001.jsonl"), "pm", 3)
	testutil.CreateSourceFile(t, filepath.Join(input, "pubmed-0002.jsonl"), "pq", 2)

	args := []string{"-i", input, "-o", corpus, "--source", "pubmed", "--no-tui", "--output-format", "json", "--id-step", "1000"}
	stdout, _, err := executeCommand(args...)
	require.NoError(t, err)

	var report converter.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.True(t, report.Summary.Committed)
	assert.Equal(t, uint64(1), report.Summary.RunOrdinal)
	assert.Equal(t, 2, report.Summary.ChunkCount)
	assert.Equal(t, int64(5), report.Summary.RecordCount)
	assert.Contains(t, testutil.ListDir(t, corpus), "r00001-c00000.records.jsonl")

	// The same drop again is a no-op.
	stdout, _, err = executeCommand(args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, converter.RunModeNoop, report.Summary.Mode)
	assert.False(t, report.Summary.Committed)
}

func TestChunkCmd_WritesArtifactAndPrintsResult(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pubmed-0001.jsonl")
	out := filepath.Join(dir, "stage", "r00001-c00000.records.jsonl")
	testutil.CreateSourceFile(t, src, "pm", 4)

	stdout, _, err := executeCommand("chunk", "--input", src, "--output", out,
		"--min-id", "100", "--limit-id", "200", "--source", "pubmed", "--publisher", "nlm")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	var result converter.ChunkResult
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &result))
	assert.Equal(t, int64(4), result.RecordCount)
	assert.Equal(t, uint64(100), result.FirstID)
	assert.Equal(t, uint64(103), result.LastID)
	assert.Equal(t, out, result.OutputPath)

	records := testutil.ReadJSONLines(t, out)
	require.Len(t, records, 4)
	assert.Equal(t, "nlm", records[0]["publisher"])
}

func TestChunkCmd_RangeTooSmallFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pubmed-0001.jsonl")
	out := filepath.Join(dir, "out.jsonl")
	testutil.CreateSourceFile(t, src, "pm", 5)

	stdout, _, err := executeCommand("chunk", "--input", src, "--output", out, "--min-id", "0", "--limit-id", "3")
	require.Error(t, err)
	assert.ErrorIs(t, err, converter.ErrIDRangeOverflow)
	assert.Empty(t, stdout)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no artifact may be left behind")
}

func TestChunkCmd_FormatMapOverridesExtension(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "legacy-0001.jsonl")
	out := filepath.Join(dir, "out.jsonl")
	testutil.CreateDummyFile(t, src, "pmid\ttitle\n11\tFirst\n12\tSecond\n")

	_, _, err := executeCommand("chunk", "--input", src, "--output", out, "--limit-id", "10")
	require.ErrorIs(t, err, record.ErrMalformedRecord, "tab-separated rows are not JSON lines")

	stdout, _, err := executeCommand("chunk", "--input", src, "--output", out, "--limit-id", "10",
		"--format-map", ".jsonl=tsv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	var result converter.ChunkResult
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &result))
	assert.Equal(t, "tsv", result.Format)
	assert.Equal(t, int64(2), result.RecordCount)

	records := testutil.ReadJSONLines(t, out)
	require.Len(t, records, 2)
	assert.Equal(t, "11", records[0]["externalId"])
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, converter.ExitCodeFailure, exitCodeFor(errors.New("boom")))
	assert.Equal(t, converter.ExitCodeConfiguration, exitCodeFor(fmt.Errorf("load: %w", converter.ErrConfigValidation)))
	assert.Equal(t, converter.ExitCodeIDRangeOverflow, exitCodeFor(fmt.Errorf("chunk 0: %w", converter.ErrIDRangeOverflow)))
}

func TestChunkCmd_RequiresFlags(t *testing.T) {
	_, _, err := executeCommand("chunk", "--input", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s)")
}

func TestChunkCmd_FlagsMatchCommandTemplate(t *testing.T) {
	chunk := findSubcommand(t, newRootCmd(), "chunk")
	for _, name := range []string{"input", "output", "min-id", "limit-id", "source", "publisher", "format", "default-encoding", "format-map"} {
		assert.NotNil(t, chunk.Flags().Lookup(name), "chunk must accept --%s", name)
	}
}

func TestParseCmd_PrintFormats(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pubmed-0001.jsonl")
	testutil.CreateSourceFile(t, src, "pm", 3)

	t.Run("json", func(t *testing.T) {
		stdout, stderr, err := executeCommand("parse", src, "--print", "json", "--min-id", "40")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.Len(t, lines, 3)
		var first map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.EqualValues(t, 40, first["id"])
		assert.Contains(t, stderr, "3 records, format jsonl")
	})

	t.Run("yaml", func(t *testing.T) {
		stdout, _, err := executeCommand("parse", src, "--print", "yaml")
		require.NoError(t, err)
		dec := yaml.NewDecoder(strings.NewReader(stdout))
		count := 0
		for {
			var doc map[string]any
			if err := dec.Decode(&doc); err != nil {
				break
			}
			assert.Equal(t, count, doc["id"])
			count++
		}
		assert.Equal(t, 3, count)
	})

	t.Run("limit prints a prefix", func(t *testing.T) {
		stdout, stderr, err := executeCommand("parse", src, "--print", "json", "--limit", "1")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 1)
		assert.Contains(t, stderr, "3 records")
	})

	t.Run("bad print value", func(t *testing.T) {
		_, _, err := executeCommand("parse", src, "--print", "xml")
		require.Error(t, err)
		assert.ErrorIs(t, err, converter.ErrConfigValidation)
	})
}

func TestParseCmd_RequiresOneFile(t *testing.T) {
	_, _, err := executeCommand("parse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("accepts %d arg(s)", 1))
}
