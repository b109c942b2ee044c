// --- START OF FINAL REVISED FILE pkg/converter/template/template.go ---
package template

import (
	"bytes"
	_ "embed" // Required for //go:embed
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

//go:embed default_command.tmpl
var defaultCommandContent string

// ErrCommandTemplate indicates a command template that does not parse or does not render.
var ErrCommandTemplate = errors.New("invalid command template")

// CommandData holds the values a chunk's dispatch command can reference.
type CommandData struct {
	Executable      string
	InputFile       string
	FileName        string
	OutputPath      string
	MinID           uint64
	LimitID         uint64
	RunOrdinal      uint64
	ChunkOrdinal    int
	Source          string
	Publisher       string
	Format          string
	DefaultEncoding string
	// FormatMappings is the extension override table as "ext=format" pairs joined by commas.
	FormatMappings string
	ResourceHint   string
}

// JoinMappings renders an extension override table in the form the chunk
// subcommand's --format-map flag reads, sorted by extension.
func JoinMappings(mappings map[string]string) string {
	pairs := make([]string, 0, len(mappings))
	for ext, format := range mappings {
		pairs = append(pairs, ext+"="+format)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// CommandBuilder renders the argument vector for one chunk.
//
// Stability: Public Stable API - Implementations can be provided externally.
type CommandBuilder interface {
	Build(data CommandData) ([]string, error)
}

// ArgsTemplate renders each argument through its own text/template.
// Arguments that render to an empty string are dropped, so optional flags can be
// written as {{ with .Field }}--flag={{ . }}{{ end }}.
type ArgsTemplate struct {
	args []*template.Template
}

// customTemplateFuncs defines the custom functions available within command templates.
var customTemplateFuncs = template.FuncMap{
	"base": filepath.Base,
	"stem": func(path string) string {
		b := filepath.Base(path)
		return strings.TrimSuffix(b, filepath.Ext(b))
	},
	"default": func(fallback, value string) string {
		if value == "" {
			return fallback
		}
		return value
	},
}

// Parse builds an ArgsTemplate from one template string per argument.
func Parse(args []string) (*ArgsTemplate, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: command is empty", ErrCommandTemplate)
	}
	parsed := make([]*template.Template, 0, len(args))
	for i, a := range args {
		t, err := template.New(fmt.Sprintf("arg%d", i)).Funcs(customTemplateFuncs).Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d %q: %w", ErrCommandTemplate, i, a, err)
		}
		parsed = append(parsed, t)
	}
	return &ArgsTemplate{args: parsed}, nil
}

// LoadDefault parses the embedded default command, which invokes this binary's chunk subcommand.
func LoadDefault() (*ArgsTemplate, error) { // minimal comment
	if defaultCommandContent == "" {
		return nil, fmt.Errorf("%w: embedded default command is empty", ErrCommandTemplate)
	}
	return Parse(DefaultArgs())
}

// DefaultArgs returns the embedded default command, one template per argument.
func DefaultArgs() []string {
	var args []string
	for _, line := range strings.Split(defaultCommandContent, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			args = append(args, line)
		}
	}
	return args
}

// Build implements CommandBuilder.
func (t *ArgsTemplate) Build(data CommandData) ([]string, error) {
	out := make([]string, 0, len(t.args))
	var buf bytes.Buffer
	for _, a := range t.args {
		buf.Reset()
		if err := a.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCommandTemplate, err)
		}
		if s := buf.String(); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 || out[0] == "" {
		return nil, fmt.Errorf("%w: command renders no executable", ErrCommandTemplate)
	}
	return out, nil
}

// --- END OF FINAL REVISED FILE pkg/converter/template/template.go ---
