// --- START OF FINAL REVISED FILE pkg/converter/engine.go ---
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/stackvity/corpus-converter/pkg/converter/encoding"
	"github.com/stackvity/corpus-converter/pkg/converter/format"
	"github.com/stackvity/corpus-converter/pkg/converter/ledger"
	"github.com/stackvity/corpus-converter/pkg/converter/lock"
	"github.com/stackvity/corpus-converter/pkg/converter/record"
	tpl "github.com/stackvity/corpus-converter/pkg/converter/template"
)

// Engine orchestrates one run: lock, recover, detect, plan, dispatch, commit.
type Engine struct {
	opts             *Options
	logger           *slog.Logger
	hooks            Hooks
	ledger           ledger.Ledger
	stager           *Stager
	deps             ChunkDeps
	command          tpl.CommandBuilder
	substrateFactory SubstrateFactory
	concurrency      int
	ctx              context.Context
	cancelFunc       context.CancelFunc
}

// NewEngine creates and initializes a new Engine instance, validating options and setting up dependencies.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) { // minimal comment
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, fmt.Errorf("%w: input and output paths are required", ErrConfigValidation)
	}
	if opts.IDStep == 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, ErrInvalidStep)
	}
	if opts.Namespace.Source == "" {
		opts.Namespace = Namespace{Source: opts.Source, Base: DefaultNamespaceBase}
		if ns, ok := opts.Namespaces[opts.Source]; ok {
			opts.Namespace.Base, opts.Namespace.Limit = ns.Base, ns.Limit
		}
	}
	if err := opts.Namespace.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	if opts.Dispatch.Concurrency < 0 {
		return nil, fmt.Errorf("%w: concurrency cannot be negative", ErrConfigValidation)
	}
	inAbs, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: input path: %w", ErrConfigValidation, err)
	}
	outAbs, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: output path: %w", ErrConfigValidation, err)
	}
	if inAbs == outAbs {
		return nil, fmt.Errorf("%w: input and corpus directories must differ", ErrConfigValidation)
	}
	opts.InputPath, opts.OutputPath = inAbs, outAbs

	// Initialize defaults for dependencies if not provided
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewFileLedger(opts.Logger, filepath.Join(opts.OutputPath, ledger.FileName), opts.Namespace.Base)
		logger.Debug("Ledger not provided, using file ledger.", "path", opts.Ledger.Path())
	}
	if opts.Parsers == nil {
		opts.Parsers = record.Default()
	}
	if opts.FormatDetector == nil {
		opts.FormatDetector = format.NewDetector(opts.FormatMappings)
		logger.Debug("FormatDetector not provided, using default enry detector.")
	}
	if opts.EncodingHandler == nil {
		opts.EncodingHandler = encoding.NewHandler(opts.DefaultEncoding)
		logger.Debug("EncodingHandler not provided, using default charset handler.")
	}
	if opts.Format != "" {
		if _, err := opts.Parsers.Lookup(opts.Format); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
		}
	}

	concurrency := opts.Dispatch.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		logger.Debug("Concurrency auto-detected", "count", concurrency)
	}
	if opts.Dispatch.Substrate == "" {
		opts.Dispatch.Substrate = DefaultSubstrate
	}

	deps := ChunkDeps{
		Parsers:  opts.Parsers,
		Formats:  opts.FormatDetector,
		Encoding: opts.EncodingHandler,
		Logger:   slog.New(opts.Logger),
	}

	var command tpl.CommandBuilder
	factory := opts.SubstrateFactory
	switch opts.Dispatch.Substrate {
	case SubstrateInProcess:
		if factory == nil {
			factory = func(o *Options, _ *slog.Logger) (Substrate, error) {
				return NewInProcessSubstrate(concurrency, deps), nil
			}
		}
	case SubstrateExec:
		if factory == nil {
			return nil, fmt.Errorf("%w: substrate %q requires a SubstrateFactory", ErrConfigValidation, opts.Dispatch.Substrate)
		}
		if opts.Dispatch.Executable == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("%w: resolve converter executable: %w", ErrConfigValidation, err)
			}
			opts.Dispatch.Executable = exe
		}
		var args *tpl.ArgsTemplate
		if len(opts.Dispatch.Command) > 0 {
			args, err = tpl.Parse(opts.Dispatch.Command)
		} else {
			args, err = tpl.LoadDefault()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
		}
		command = args
	default:
		return nil, fmt.Errorf("%w: unknown substrate %q", ErrConfigValidation, opts.Dispatch.Substrate)
	}

	stager := NewStager(StagerConfig{
		CorpusDir:     opts.OutputPath,
		StagingRoot:   StagingRoot(opts.OutputPath),
		Ledger:        opts.Ledger,
		KeepOnFailure: opts.Staging.KeepOnFailure,
		Verify:        opts.Staging.Verify,
		Logger:        slog.New(opts.Logger),
	})

	engineCtx, cancelFunc := context.WithCancel(ctx)
	return &Engine{
		opts:             &opts,
		logger:           logger,
		hooks:            opts.EventHooks,
		ledger:           opts.Ledger,
		stager:           stager,
		deps:             deps,
		command:          command,
		substrateFactory: factory,
		concurrency:      concurrency,
		ctx:              engineCtx,
		cancelFunc:       cancelFunc,
	}, nil
}

// Run executes the run. The report is returned in every case; err is non-nil
// when the run did not complete (a no-op run completes).
func (e *Engine) Run() (report Report, err error) { // minimal comment
	startTime := time.Now()
	agg := newReportAggregator(e.opts, uuid.NewString(), e.concurrency)
	e.logger.Info("Starting conversion run",
		slog.String("attemptId", agg.summary.AttemptID),
		slog.String("corpus", e.opts.OutputPath),
		slog.String("substrate", string(e.opts.Dispatch.Substrate)),
		slog.Bool("dryRun", e.opts.DryRun))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during engine run", "panicValue", r)
			err = fmt.Errorf("panic during execution: %v", r)
		}
		e.cancelFunc()

		report = agg.finish(startTime, err)
		e.logger.Info("Conversion run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.String("mode", string(report.Summary.Mode)),
			slog.Int("chunks", report.Summary.ChunkCount),
			slog.Int64("records", report.Summary.RecordCount),
			slog.Bool("committed", report.Summary.Committed),
			slog.Bool("fatalErrorOccurred", report.Summary.FatalErrorOccurred),
		)
		if hookErr := e.hooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	lk, err := lock.Acquire(filepath.Clean(e.opts.OutputPath) + LockFileSuffix)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if releaseErr := lk.Release(); releaseErr != nil {
			e.logger.Warn("Releasing corpus lock failed", slog.String("error", releaseErr.Error()))
		}
	}()

	if !e.opts.DryRun {
		if err := os.MkdirAll(e.opts.OutputPath, 0o755); err != nil {
			return Report{}, fmt.Errorf("%w: create corpus directory: %w", ErrConfigValidation, err)
		}
	}

	// --- Recover a commit interrupted by a crash ---
	action, err := e.stager.Recover(e.opts.DryRun)
	agg.summary.Recovery = action
	if err != nil {
		return Report{}, err
	}
	if action != RecoveryNone {
		e.logger.Warn("Pending commit resolved", slog.String("action", string(action)))
	}

	state, err := e.ledger.Load()
	if err != nil {
		return Report{}, err
	}

	// --- Detect ---
	det, err := Detect(DetectInput{
		InputDir:       e.opts.InputPath,
		CorpusDir:      e.opts.OutputPath,
		State:          state,
		IgnorePatterns: e.opts.IgnorePatterns,
		MarkerPrefix:   e.opts.ResetMarkerPrefix,
		DryRun:         e.opts.DryRun,
	}, e.logger)
	if err != nil {
		return Report{}, err
	}
	agg.detected(det)
	if det.Mode == RunModeNoop {
		return Report{}, nil
	}
	if det.Mode == RunModeReset {
		if e.opts.DryRun {
			// The archive would leave an empty ledger behind.
			state = ledger.State{NextFreeID: e.opts.Namespace.Base, DoneFiles: map[string]uint64{}}
		} else if state, err = e.ledger.Load(); err != nil {
			return Report{}, err
		}
	}

	// --- Plan ---
	runOrdinal := state.LastRun + 1
	stagingDir := e.stager.StagingDir(runOrdinal, agg.summary.AttemptID)
	plan, err := BuildPlan(PlanInput{
		RunOrdinal: runOrdinal,
		NextFreeID: state.NextFreeID,
		Namespace:  e.opts.Namespace,
		Step:       e.opts.IDStep,
		InputDir:   e.opts.InputPath,
		Files:      det.New,
		StagingDir: stagingDir,
		Command:    e.command,
		CommandBase: tpl.CommandData{
			Executable:      e.opts.Dispatch.Executable,
			Source:          e.opts.Source,
			Publisher:       e.opts.Publisher,
			Format:          e.opts.Format,
			DefaultEncoding: e.opts.DefaultEncoding,
			FormatMappings:  tpl.JoinMappings(e.opts.FormatMappings),
			ResourceHint:    e.opts.Dispatch.ResourceHint,
		},
	})
	if err != nil {
		return Report{}, err
	}
	agg.planned(plan)
	for _, c := range plan.Chunks {
		if hookErr := e.hooks.OnChunkPlanned(c); hookErr != nil {
			e.logger.Warn("OnChunkPlanned hook returned an error", slog.String("error", hookErr.Error()))
		}
	}
	e.logger.Info("Run planned",
		slog.Uint64("run", plan.RunOrdinal),
		slog.Int("chunks", len(plan.Chunks)),
		slog.String("ids", IDRange{First: plan.FirstID, Limit: plan.NextFreeID}.String()))
	if e.opts.DryRun {
		return Report{}, nil
	}

	// --- Dispatch ---
	if _, err := e.stager.Prepare(runOrdinal, agg.summary.AttemptID); err != nil {
		return Report{}, err
	}
	sub, err := e.substrateFactory(e.opts, e.logger)
	if err != nil {
		e.abandon(plan.StagingDir)
		return Report{}, fmt.Errorf("%w: create substrate: %w", ErrRunFailed, err)
	}
	if obs, ok := sub.(UnitObserver); ok {
		obs.SetObserver(func(unit WorkUnit, status Status, message string, duration time.Duration) {
			if hookErr := e.hooks.OnChunkStatusUpdate(unit.Chunk, status, message, duration); hookErr != nil {
				e.logger.Warn("OnChunkStatusUpdate hook returned an error", slog.String("error", hookErr.Error()))
			}
		})
	}

	outcome, err := Dispatch(e.ctx, sub, e.units(plan), e.opts.DispatchTimeout, slog.New(e.opts.Logger))
	agg.dispatched(outcome)
	if err != nil {
		e.abandon(plan.StagingDir)
		return Report{}, err
	}

	// --- Commit ---
	entry, err := e.stager.Commit(e.ctx, CommitInput{Plan: plan, Source: e.opts.Source, ConverterVersion: e.opts.AppVersion})
	if err != nil {
		// A pending intent needs the staged artifacts for recovery.
		if pending, readErr := e.stager.ReadIntent(); readErr == nil && pending == nil {
			e.abandon(plan.StagingDir)
		}
		return Report{}, err
	}
	agg.committed(entry)
	return Report{}, nil
}

func (e *Engine) units(plan Plan) []WorkUnit {
	units := make([]WorkUnit, 0, len(plan.Chunks))
	for _, c := range plan.Chunks {
		units = append(units, WorkUnit{
			Chunk: c,
			Spec: ChunkSpec{
				InputFile:       c.InputFile,
				OutputPath:      c.StagingPath,
				MinID:           c.MinID,
				LimitID:         c.LimitID,
				Source:          e.opts.Source,
				Publisher:       e.opts.Publisher,
				Format:          e.opts.Format,
				DefaultEncoding: e.opts.DefaultEncoding,
			},
			ResourceHint: e.opts.Dispatch.ResourceHint,
		})
	}
	return units
}

func (e *Engine) abandon(stagingDir string) {
	if err := e.stager.Abandon(stagingDir); err != nil {
		e.logger.Warn("Abandoning staging failed", slog.String("error", err.Error()))
	}
}

// --- Report Aggregation ---

type reportAggregator struct {
	summary ReportSummary
	chunks  []ChunkInfo
	errors  []ErrorInfo
	index   map[int]int // chunk ordinal -> position in chunks
}

func newReportAggregator(opts *Options, attemptID string, concurrency int) *reportAggregator { // minimal comment
	return &reportAggregator{
		summary: ReportSummary{
			InputPath:      opts.InputPath,
			OutputPath:     opts.OutputPath,
			ProfileUsed:    opts.ProfileName,
			ConfigFilePath: opts.ConfigFilePath,
			AttemptID:      attemptID,
			Source:         opts.Source,
			DryRun:         opts.DryRun,
			Substrate:      opts.Dispatch.Substrate,
			Concurrency:    concurrency,
			SchemaVersion:  ReportSchemaVersion,
		},
		chunks: []ChunkInfo{},
		errors: []ErrorInfo{},
		index:  make(map[int]int),
	}
}

func (a *reportAggregator) detected(det Detection) {
	a.summary.Mode = det.Mode
	a.summary.AvailableFiles = len(det.Available)
	a.summary.NewFiles = len(det.New)
	if det.Mode == RunModeReset {
		a.summary.ResetToken = det.ResetToken
		a.summary.ArchivePath = det.ArchivePath
	}
}

func (a *reportAggregator) planned(plan Plan) {
	a.summary.RunOrdinal = plan.RunOrdinal
	a.summary.FirstID = plan.FirstID
	a.summary.NextFreeID = plan.NextFreeID
	a.summary.ChunkCount = len(plan.Chunks)
	for _, c := range plan.Chunks {
		a.index[c.Ordinal] = len(a.chunks)
		a.chunks = append(a.chunks, ChunkInfo{
			Ordinal:   c.Ordinal,
			InputFile: c.FileName,
			Artifact:  c.ArtifactName,
			MinID:     c.MinID,
			LimitID:   c.LimitID,
			Status:    StatusPlanned,
		})
	}
}

func (a *reportAggregator) dispatched(outcome Outcome) {
	for _, u := range outcome.Units {
		i, ok := a.index[u.Chunk.Ordinal]
		if !ok {
			continue
		}
		info := &a.chunks[i]
		info.Status = u.Status
		info.RecordCount = u.Result.RecordCount
		info.Format = u.Result.Format
		info.Encoding = u.Result.Encoding
		info.DurationMs = u.Duration.Milliseconds()
		a.summary.RecordCount += u.Result.RecordCount
		if u.Status == StatusFailed && u.Err != nil {
			a.errors = append(a.errors, ErrorInfo{Chunk: u.Chunk.FileName, Error: u.Err.Error(), IsFatal: true})
		}
	}
}

func (a *reportAggregator) committed(entry ledger.Entry) {
	a.summary.Committed = true
	a.summary.NextFreeID = entry.NextFreeID
}

func (a *reportAggregator) finish(startTime time.Time, runErr error) Report {
	if runErr != nil {
		a.summary.FatalErrorOccurred = true
		a.summary.Committed = false
		if !a.hasError(runErr.Error()) {
			a.errors = append(a.errors, ErrorInfo{Error: runErr.Error(), IsFatal: true})
		}
	}
	a.summary.ErrorCount = len(a.errors)
	a.summary.DurationSeconds = time.Since(startTime).Seconds()
	a.summary.Timestamp = time.Now()
	return Report{Summary: a.summary, Chunks: a.chunks, Errors: a.errors}
}

func (a *reportAggregator) hasError(msg string) bool {
	for _, e := range a.errors {
		if e.Error == msg {
			return true
		}
	}
	return false
}

// IsConfigError reports whether err stems from misconfiguration rather than bad input.
// A chunk overflowing its identifier range counts: the step is too small for the drop.
func IsConfigError(err error) bool {
	for _, target := range []error{
		ErrConfigValidation, ErrNoSourceFiles, ErrMultipleResetMarkers, ErrInvalidResetMarker,
		ErrArchiveExists, ErrInvalidStep, ErrNamespaceUnderflow, ErrIDSpaceOverflow, ErrIDRangeOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// --- END OF FINAL REVISED FILE pkg/converter/engine.go ---
