// --- START OF FINAL REVISED FILE pkg/converter/converter.go ---
package converter

import (
	"context"
	"fmt"
	"log/slog"
)

// GenerateCorpus is the main entry point for the core conversion library.
// It runs one incremental conversion of opts.InputPath into the corpus at opts.OutputPath.
func GenerateCorpus(ctx context.Context, opts Options) (Report, error) {
	// --- Initial Validation ---
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger)

	if opts.EventHooks == nil {
		return Report{}, fmt.Errorf("%w: EventHooks implementation cannot be nil (use NoOpHooks if needed)", ErrConfigValidation)
	}
	if opts.InputPath == "" {
		err := fmt.Errorf("%w: input path cannot be empty", ErrConfigValidation)
		logger.Error(err.Error())
		return Report{}, err
	}
	if opts.OutputPath == "" {
		err := fmt.Errorf("%w: output path cannot be empty", ErrConfigValidation)
		logger.Error(err.Error())
		return Report{}, err
	}
	if opts.Dispatch.Concurrency < 0 {
		err := fmt.Errorf("%w: concurrency cannot be negative", ErrConfigValidation)
		logger.Error(err.Error(), slog.Int("concurrency", opts.Dispatch.Concurrency))
		return Report{}, err
	}

	version := opts.AppVersion
	if version == "" {
		version = "dev"
	}
	logger.Info("Starting corpus-converter library execution", slog.String("version", version))

	engine, err := NewEngine(ctx, opts)
	if err != nil {
		logger.Error("Engine initialization failed", slog.String("error", err.Error()))
		return Report{}, err
	}
	return engine.Run()
}

// --- END OF FINAL REVISED FILE pkg/converter/converter.go ---
