package record_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stackvity/corpus-converter/pkg/converter/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p record.Parser, input string) ([]record.Record, error) {
	t.Helper()
	var out []record.Record
	err := p.Parse(context.Background(), strings.NewReader(input), func(rec record.Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

func TestJSONLParser(t *testing.T) {
	input := `{"id":"PMC1","title":"On Things","authors":["Doe, J","Roe, R"],"year":2021,"doi":"10.1/x","lang":"en"}

{"externalId":"PMC2","title":"More","journal":"Nature","meta":{"k":1}}
`
	recs, err := collect(t, record.JSONLParser{}, input)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "PMC1", recs[0].ExternalID)
	assert.Equal(t, "On Things", recs[0].Title)
	assert.Equal(t, []string{"Doe, J", "Roe, R"}, recs[0].Authors)
	assert.Equal(t, 2021, recs[0].Year)
	assert.Equal(t, "10.1/x", recs[0].DOI)
	assert.Equal(t, map[string]string{"lang": "en"}, recs[0].Extra)

	assert.Equal(t, "PMC2", recs[1].ExternalID)
	assert.Equal(t, "Nature", recs[1].Journal)
	assert.Equal(t, `{"k":1}`, recs[1].Extra["meta"])
}

func TestJSONLParser_AliasesAreDeterministic(t *testing.T) {
	input := `{"id":"X1","pmid":"P2","author":"A","authors":["B","C"]}`
	first, err := collect(t, record.JSONLParser{}, input)
	require.NoError(t, err)
	require.Len(t, first, 1)

	assert.Equal(t, "P2", first[0].ExternalID)
	assert.Equal(t, []string{"B", "C"}, first[0].Authors)
	assert.Equal(t, map[string]string{"id": "X1", "author": "A"}, first[0].Extra)

	for i := 0; i < 200; i++ {
		again, err := collect(t, record.JSONLParser{}, input)
		require.NoError(t, err)
		require.Equal(t, first, again, "iteration %d", i)
	}
}

func TestFromFields(t *testing.T) {
	testCases := []struct {
		name   string
		fields []record.Field
		want   record.Record
	}{
		{
			name:   "Higher-ranked alias wins regardless of order",
			fields: []record.Field{{Name: "accession", Value: "A9"}, {Name: "external_id", Value: "E1"}},
			want:   record.Record{ExternalID: "E1", Extra: map[string]string{"accession": "A9"}},
		},
		{
			name:   "Empty alias does not block a later one",
			fields: []record.Field{{Name: "pmid", Value: ""}, {Name: "id", Value: "X"}},
			want:   record.Record{ExternalID: "X"},
		},
		{
			name:   "Case variants keep one value",
			fields: []record.Field{{Name: "Title", Value: "Upper"}, {Name: "title", Value: "lower"}},
			want:   record.Record{Title: "Upper", Extra: map[string]string{"title": "lower"}},
		},
		{
			name:   "Venue backs up journal",
			fields: []record.Field{{Name: "venue", Value: "ACL"}},
			want:   record.Record{Journal: "ACL"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := record.FromFields(tc.fields)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestJSONLParser_Malformed(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"Not JSON", "{\"title\":\"ok\"}\nnot json\n"},
		{"Trailing data", `{"title":"a"} {"title":"b"}`},
		{"Bad year", `{"year":"soon"}`},
		{"Null", "null"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := collect(t, record.JSONLParser{}, tc.input)
			require.ErrorIs(t, err, record.ErrMalformedRecord)
		})
	}
}

func TestJSONLParser_StopsOnEmitError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := record.JSONLParser{}.Parse(context.Background(), strings.NewReader("{}\n{}\n{}\n"), func(record.Record) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestTSVParser(t *testing.T) {
	input := "\ufeffpmid\tTitle\tauthor\tyear\tcountry\n" +
		"1\tFirst\tA; B\t1999\tNZ\n" +
		"2\tSecond \"quoted\"\t\t\t\n"
	recs, err := collect(t, record.TSVParser{}, input)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "1", recs[0].ExternalID)
	assert.Equal(t, "First", recs[0].Title)
	assert.Equal(t, []string{"A", "B"}, recs[0].Authors)
	assert.Equal(t, 1999, recs[0].Year)
	assert.Equal(t, "NZ", recs[0].Extra["country"])

	assert.Equal(t, `Second "quoted"`, recs[1].Title)
	assert.Nil(t, recs[1].Authors)
	assert.Equal(t, 0, recs[1].Year)
}

func TestTSVParser_EmptyInput(t *testing.T) {
	recs, err := collect(t, record.TSVParser{}, "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTSVParser_ColumnMismatch(t *testing.T) {
	_, err := collect(t, record.TSVParser{}, "a\tb\n1\t2\t3\n")
	require.ErrorIs(t, err, record.ErrMalformedRecord)
}

func TestRegistry(t *testing.T) {
	reg := record.Default()
	assert.Equal(t, []string{"jsonl", "tsv"}, reg.Names())

	p, err := reg.Lookup("JSONL")
	require.NoError(t, err)
	assert.Equal(t, "jsonl", p.Name())

	_, err = reg.Lookup("marc")
	require.ErrorIs(t, err, record.ErrUnknownFormat)
}

func TestWriterAndScanIDs(t *testing.T) {
	var buf bytes.Buffer
	w := record.NewWriter(&buf)
	for id := uint64(10); id < 13; id++ {
		require.NoError(t, w.Write(record.Record{ID: id, OriginFile: "a.jsonl", Title: "<b>"}))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, int64(3), w.Count())
	assert.Contains(t, buf.String(), `"title":"<b>"`, "HTML must not be escaped")

	var ids []uint64
	require.NoError(t, record.ScanIDs(&buf, func(id uint64) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []uint64{10, 11, 12}, ids)
}

func TestScanIDs_MissingID(t *testing.T) {
	err := record.ScanIDs(strings.NewReader(`{"title":"x"}`+"\n"), func(uint64) error { return nil })
	require.ErrorIs(t, err, record.ErrMalformedRecord)
}
