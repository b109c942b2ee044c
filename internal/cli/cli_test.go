package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/corpus-converter/internal/testutil"
	"github.com/stackvity/corpus-converter/pkg/converter"
)

func testOptions(t *testing.T) converter.Options {
	t.Helper()
	parent := t.TempDir()
	input := filepath.Join(parent, "drop")
	testutil.CreateSourceFile(t, filepath.Join(input, "crossref-0001.jsonl"), "cr", 2)
	return converter.Options{
		InputPath:         input,
		OutputPath:        filepath.Join(parent, "corpus"),
		AppVersion:        "test",
		Source:            "crossref",
		IDStep:            100,
		ResetMarkerPrefix: converter.DefaultResetMarkerPrefix,
		OutputFormat:      converter.OutputFormatText,
		Dispatch:          converter.DispatchConfig{Substrate: converter.SubstrateInProcess, Concurrency: 1},
		Staging:           converter.StagingConfig{KeepOnFailure: true, Verify: true},
		Logger:            slog.NewTextHandler(io.Discard, nil),
	}
}

func TestRun_RendersReport(t *testing.T) {
	opts := testOptions(t)
	var out bytes.Buffer

	err := Run(context.Background(), opts, slog.New(opts.Logger), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "corpus:    "+opts.OutputPath)
	assert.Contains(t, out.String(), "files:     1 available, 1 new")
	assert.Contains(t, testutil.ListDir(t, opts.OutputPath), "r00001-c00000.records.jsonl")

	out.Reset()
	err = Run(context.Background(), opts, slog.New(opts.Logger), &out)
	require.NoError(t, err, "a run with nothing new succeeds")
	assert.Contains(t, out.String(), string(converter.RunModeNoop))
}

func TestRun_ConfigurationErrorIsReturned(t *testing.T) {
	opts := testOptions(t)
	opts.IDStep = 0
	var out bytes.Buffer

	err := Run(context.Background(), opts, slog.New(opts.Logger), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, converter.ErrConfigValidation)
}
