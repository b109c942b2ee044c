// --- START OF FINAL REVISED FILE cmd/corpus-converter/root.go ---
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stackvity/corpus-converter/internal/cli"
	"github.com/stackvity/corpus-converter/internal/cli/config"
	"github.com/stackvity/corpus-converter/pkg/converter"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootFlags holds the flags shared by every subcommand.
type rootFlags struct {
	cfgFile     string
	profileName string
	verbose     bool
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag state out of package globals.
func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "corpus-converter -i <inputDir> -o <corpusDir>",
		Short: "Incrementally converts bibliographic bulk drops into an ID-partitioned corpus.",
		Long: `corpus-converter converts the source files of a bulk-drop directory into
JSON-lines record artifacts with globally unique, range-partitioned identifiers.

Each run:
  - Converts only files the ledger has not seen before.
  - Reserves a disjoint identifier range per file, so chunks run in parallel.
  - Stages artifacts privately and commits them together with one ledger entry.
  - Archives the corpus and starts over when a BASELINE_<token> marker appears.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error { // minimal comment
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, logger, err := config.LoadAndValidate(rf.cfgFile, rf.profileName, version, rf.verbose, cmd.Flags())
			if err != nil {
				return err
			}
			return cli.Run(ctx, opts, logger, cmd.OutOrStdout())
		},
	}
	rootCmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	// Persistent flags
	rootCmd.PersistentFlags().StringVar(&rf.cfgFile, "config", "", "Configuration file path (default is search standard locations like ., $HOME/.config/corpus-converter/)")
	rootCmd.PersistentFlags().StringVar(&rf.profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&rf.verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")

	// Required Input/Output flags
	rootCmd.Flags().StringP("input", "i", "", "Required. Bulk-drop directory holding the source files.")
	rootCmd.Flags().StringP("output", "o", "", "Required. Corpus directory receiving artifacts and the ledger.")
	_ = rootCmd.MarkFlagRequired("input")
	_ = rootCmd.MarkFlagRequired("output")
	config.DefineRunFlags(rootCmd.Flags())

	rootCmd.AddCommand(newChunkCmd(rf), newParseCmd(rf))
	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, converter.ErrIDRangeOverflow):
		return converter.ExitCodeIDRangeOverflow
	case converter.IsConfigError(err):
		return converter.ExitCodeConfiguration
	default:
		return converter.ExitCodeFailure
	}
}

// stderrLogger builds the logger used by the single-file subcommands.
func stderrLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// --- END OF FINAL REVISED FILE cmd/corpus-converter/root.go ---
