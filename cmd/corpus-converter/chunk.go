package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackvity/corpus-converter/internal/cli/runner"
	"github.com/stackvity/corpus-converter/pkg/converter"
	"github.com/stackvity/corpus-converter/pkg/converter/encoding"
	"github.com/stackvity/corpus-converter/pkg/converter/format"
)

// newChunkCmd builds the subcommand the exec substrate launches once per chunk.
// Its last stdout line is the ChunkResult as JSON.
func newChunkCmd(rf *rootFlags) *cobra.Command {
	var (
		spec       converter.ChunkSpec
		formatMaps map[string]string
	)
	cmd := &cobra.Command{
		Use:   "chunk --input FILE --output PATH --min-id N --limit-id M",
		Short: "Convert one source file into one staged artifact",
		Long: `chunk converts a single source file into a JSON-lines artifact whose records are
numbered from --min-id upward. It fails without leaving an artifact behind when the
file is unreadable, malformed, or holds more records than [min-id, limit-id) allows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error { // minimal comment
			logger := stderrLogger(cmd, rf.verbose).With(slog.String("component", "chunkCmd"))
			if err := encoding.ValidateEncodingName(spec.DefaultEncoding); err != nil {
				return fmt.Errorf("%w: %w", converter.ErrConfigValidation, err)
			}
			if hint := os.Getenv(runner.ResourceHintEnv); hint != "" {
				logger.Debug("Resource hint received", slog.String("hint", hint))
			}

			result, err := converter.ConvertChunk(cmd.Context(), spec, converter.ChunkDeps{
				Formats: format.NewDetector(formatMaps),
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			line, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("encode chunk result: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(line))
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&spec.InputFile, "input", "", "Required. Source file to convert")
	flags.StringVar(&spec.OutputPath, "output", "", "Required. Artifact path to write")
	flags.Uint64Var(&spec.MinID, "min-id", 0, "First identifier of the chunk's range")
	flags.Uint64Var(&spec.LimitID, "limit-id", 0, "Required. Exclusive upper bound of the chunk's range")
	flags.StringVar(&spec.Source, "source", "", "Source category stamped on every record")
	flags.StringVar(&spec.Publisher, "publisher", "", "Publisher stamped on every record")
	flags.StringVar(&spec.Format, "format", "", "Force a record format instead of detecting it")
	flags.StringVar(&spec.DefaultEncoding, "default-encoding", "", "Encoding assumed when the file is not valid UTF-8")
	flags.StringToStringVar(&formatMaps, "format-map", nil, "Extension to format overrides (e.g. .txt=tsv,.dat=jsonl)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("limit-id")
	return cmd
}
