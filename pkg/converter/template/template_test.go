// --- START OF FINAL REVISED FILE pkg/converter/template/template_test.go ---
package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmpl "github.com/stackvity/corpus-converter/pkg/converter/template"
)

// TestLoadDefault verifies the embedded default command renders the chunk subcommand.
func TestLoadDefault(t *testing.T) {
	builder, err := tmpl.LoadDefault()
	require.NoError(t, err)

	args, err := builder.Build(tmpl.CommandData{
		Executable: "/usr/bin/corpus-converter",
		InputFile:  "/drops/a.jsonl",
		OutputPath: "/corpus.staging/run/r00001-c00000.records.jsonl",
		MinID:      5000000000,
		LimitID:    5000300000,
		Source:     "pubmed",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/usr/bin/corpus-converter",
		"chunk",
		"--input=/drops/a.jsonl",
		"--output=/corpus.staging/run/r00001-c00000.records.jsonl",
		"--min-id=5000000000",
		"--limit-id=5000300000",
		"--source=pubmed",
	}, args, "Empty optional flags must be dropped")
}

func TestLoadDefault_FormatMappings(t *testing.T) {
	builder, err := tmpl.LoadDefault()
	require.NoError(t, err)

	args, err := builder.Build(tmpl.CommandData{
		Executable:     "corpus-converter",
		InputFile:      "a.txt",
		OutputPath:     "out.jsonl",
		LimitID:        10,
		FormatMappings: tmpl.JoinMappings(map[string]string{".txt": "tsv", ".dat": "tsv"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "--format-map=.dat=tsv,.txt=tsv", args[len(args)-1])
}

func TestJoinMappings(t *testing.T) {
	assert.Empty(t, tmpl.JoinMappings(nil))
	assert.Equal(t, ".a=jsonl,.b=tsv,.c=tsv", tmpl.JoinMappings(map[string]string{".c": "tsv", ".a": "jsonl", ".b": "tsv"}))
}

func TestParse_CustomCommand(t *testing.T) {
	builder, err := tmpl.Parse([]string{
		"sbatch",
		"--job-name=chunk-{{ .RunOrdinal }}-{{ .ChunkOrdinal }}",
		"{{ with .ResourceHint }}--mem={{ . }}{{ end }}",
		"convert.sh",
		"{{ stem .InputFile }}",
		"{{ default \"unknown\" .Publisher }}",
	})
	require.NoError(t, err)

	args, err := builder.Build(tmpl.CommandData{RunOrdinal: 3, ChunkOrdinal: 7, ResourceHint: "8g", InputFile: "/d/pubmed24n0001.tsv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sbatch", "--job-name=chunk-3-7", "--mem=8g", "convert.sh", "pubmed24n0001", "unknown"}, args)
}

func TestParse_Errors(t *testing.T) {
	_, err := tmpl.Parse(nil)
	require.ErrorIs(t, err, tmpl.ErrCommandTemplate)

	_, err = tmpl.Parse([]string{"{{ .Unclosed"})
	require.ErrorIs(t, err, tmpl.ErrCommandTemplate)

	builder, err := tmpl.Parse([]string{"run", "{{ .NoSuchField }}"})
	require.NoError(t, err)
	_, err = builder.Build(tmpl.CommandData{})
	require.ErrorIs(t, err, tmpl.ErrCommandTemplate)

	builder, err = tmpl.Parse([]string{"{{ .Executable }}"})
	require.NoError(t, err)
	_, err = builder.Build(tmpl.CommandData{})
	require.ErrorIs(t, err, tmpl.ErrCommandTemplate, "A command without an executable is rejected")
}

// --- END OF FINAL REVISED FILE pkg/converter/template/template_test.go ---
