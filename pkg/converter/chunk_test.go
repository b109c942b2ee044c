package converter_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stackvity/corpus-converter/internal/testutil"
	"github.com/stackvity/corpus-converter/pkg/converter"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConvertChunk_JSONLines(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drop", "pubmed-0001.jsonl")
	out := filepath.Join(dir, "stage", "r00001-c00000.records.jsonl")
	testutil.CreateSourceFile(t, src, "pm", 3)

	res, err := converter.ConvertChunk(context.Background(), converter.ChunkSpec{
		InputFile:  src,
		OutputPath: out,
		MinID:      1000,
		LimitID:    2000,
		Source:     "pubmed",
		Publisher:  "nlm",
	}, converter.ChunkDeps{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RecordCount)
	assert.Equal(t, uint64(1000), res.FirstID)
	assert.Equal(t, uint64(1002), res.LastID)
	assert.Equal(t, "jsonl", res.Format)
	assert.Equal(t, "utf-8", res.Encoding)

	lines := testutil.ReadJSONLines(t, out)
	require.Len(t, lines, 3)
	for i, l := range lines {
		assert.EqualValues(t, 1000+i, l["id"])
		assert.Equal(t, "pubmed-0001.jsonl", l["originFile"])
		assert.Equal(t, "pubmed", l["source"])
		assert.Equal(t, "nlm", l["publisher"])
	}
	assert.Equal(t, "pm-1", lines[1]["externalId"])
	assert.Equal(t, []any{"Doe J", "Roe R"}, lines[1]["authors"])
	assert.EqualValues(t, 2001, lines[1]["year"])
}

func TestConvertChunk_Latin1TSV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "export.tsv")
	testutil.CreateDummyFile(t, src, "pmid\ttitle\tauthors\tcustom\n7\tCaf\xe9 society\tM\xfcller K; Smith A\tx\n")

	out := filepath.Join(dir, "out.jsonl")
	res, err := converter.ConvertChunk(context.Background(), converter.ChunkSpec{
		InputFile: src, OutputPath: out, MinID: 0, LimitID: 10,
	}, converter.ChunkDeps{})
	require.NoError(t, err)
	assert.Equal(t, "tsv", res.Format)

	lines := testutil.ReadJSONLines(t, out)
	require.Len(t, lines, 1)
	assert.Equal(t, "Café society", lines[0]["title"])
	assert.Equal(t, []any{"Müller K", "Smith A"}, lines[0]["authors"])
	assert.Equal(t, map[string]any{"custom": "x"}, lines[0]["extra"])
}

func TestConvertChunk_FailuresLeaveNoArtifact(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		limit   uint64
		wantErr error
	}{
		{name: "Range overflow", content: "{\"title\":\"a\"}\n{\"title\":\"b\"}\n{\"title\":\"c\"}\n", limit: 2, wantErr: converter.ErrIDRangeOverflow},
		{name: "Malformed line", content: "{\"title\":\"a\"}\n{not json\n", limit: 10, wantErr: record.ErrMalformedRecord},
		{name: "Binary content", content: "\x00\x01\x02\x03\x00\x00\x00\x00binary\x00", limit: 10, wantErr: converter.ErrBinaryFile},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "in.jsonl")
			testutil.CreateDummyFile(t, src, tc.content)
			stage := filepath.Join(dir, "stage")
			testutil.CreateDummyDir(t, stage)

			_, err := converter.ConvertChunk(context.Background(), converter.ChunkSpec{
				InputFile: src, OutputPath: filepath.Join(stage, "out.jsonl"), MinID: 0, LimitID: tc.limit,
			}, converter.ChunkDeps{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, testutil.ListDir(t, stage), "no artifact or temp file left behind")
		})
	}
}

func TestConvertChunk_MissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := converter.ConvertChunk(context.Background(), converter.ChunkSpec{
		InputFile: filepath.Join(dir, "missing.jsonl"), OutputPath: filepath.Join(dir, "out"), LimitID: 1,
	}, converter.ChunkDeps{})
	assert.ErrorIs(t, err, converter.ErrReadFailed)

	_, err = converter.ConvertChunk(context.Background(), converter.ChunkSpec{InputFile: "x", LimitID: 1}, converter.ChunkDeps{})
	assert.ErrorIs(t, err, converter.ErrInvalidWorkUnit)
}

func TestStreamRecords_InjectedCollaborators(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "feed.dat")
	testutil.CreateDummyFile(t, src, "raw")

	enc := new(testutil.MockEncodingHandler)
	enc.On("IsBinary", []byte("raw")).Return(false)
	enc.On("Decode", []byte("raw")).Return([]byte("decoded"), "windows-1252", false, nil)

	formats := new(testutil.MockFormatDetector)
	formats.On("Detect", []byte("decoded"), src).Return("custom", 0.5)

	parser := &testutil.MockParser{FormatName: "custom"}
	parser.On("Parse", mock.Anything, mock.Anything).Return([]record.Record{
		{Title: "one"}, {Title: "two"},
	}, nil)
	reg := record.NewRegistry()
	reg.Register(parser)

	var got []record.Record
	res, err := converter.StreamRecords(context.Background(),
		converter.ChunkSpec{InputFile: src, MinID: 50, LimitID: 60, Source: "s"},
		converter.ChunkDeps{Parsers: reg, Formats: formats, Encoding: enc},
		func(r record.Record) error { got = append(got, r); return nil })
	require.NoError(t, err)
	assert.Equal(t, "custom", res.Format)
	assert.Equal(t, "windows-1252", res.Encoding)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(50), got[0].ID)
	assert.Equal(t, uint64(51), got[1].ID)
	assert.Equal(t, "feed.dat", got[1].OriginFile)
	assert.Equal(t, "s", got[1].Source)

	enc.AssertExpectations(t)
	formats.AssertExpectations(t)
	parser.AssertExpectations(t)
}

func TestStreamRecords_UnknownFormat(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.jsonl")
	testutil.CreateDummyFile(t, src, "{}\n")
	_, err := converter.StreamRecords(context.Background(),
		converter.ChunkSpec{InputFile: src, LimitID: 1, Format: "marcxml"}, converter.ChunkDeps{},
		func(record.Record) error { return nil })
	assert.ErrorIs(t, err, record.ErrUnknownFormat)
}
