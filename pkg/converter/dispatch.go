package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// UnitExecutor performs one unit of work on behalf of a substrate.
type UnitExecutor func(ctx context.Context, unit WorkUnit) (ChunkResult, error)

// UnitObserverFunc receives per-unit transitions. It may be called concurrently.
type UnitObserverFunc func(unit WorkUnit, status Status, message string, duration time.Duration)

// RunUnits executes units with bounded concurrency and returns once every unit is terminal.
// The first failure cancels the units still waiting or running; those end as StatusCancelled.
// Concurrency <= 0 means runtime.NumCPU().
func RunUnits(ctx context.Context, units []WorkUnit, concurrency int, observer UnitObserverFunc, exec UnitExecutor) Outcome {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	notify := func(u WorkUnit, s Status, msg string, d time.Duration) {
		if observer != nil {
			observer(u, s, msg, d)
		}
	}

	results := make([]UnitResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, unit := range units {
		results[i] = UnitResult{Chunk: unit.Chunk, Status: StatusSubmitted}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Status = StatusCancelled
				results[i].Err = err
				notify(unit, StatusCancelled, err.Error(), 0)
				return nil
			}
			notify(unit, StatusRunning, "", 0)
			start := time.Now()
			res, err := exec(gctx, unit)
			elapsed := time.Since(start)
			results[i].Result = res
			results[i].Duration = elapsed
			switch {
			case err == nil:
				results[i].Status = StatusSuccess
				notify(unit, StatusSuccess, fmt.Sprintf("%d records", res.RecordCount), elapsed)
				return nil
			case gctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
				results[i].Status = StatusCancelled
				results[i].Err = err
				notify(unit, StatusCancelled, err.Error(), elapsed)
				return nil
			default:
				results[i].Status = StatusFailed
				results[i].Err = fmt.Errorf("%w: chunk %d (%s): %w", ErrChunkFailed, unit.Chunk.Ordinal, unit.Chunk.FileName, err)
				notify(unit, StatusFailed, err.Error(), elapsed)
				return results[i].Err
			}
		})
	}
	_ = g.Wait() // failures are carried per unit
	return Outcome{Units: results}
}

// InProcessSubstrate runs the chunk converter on a goroutine pool inside this process.
// Submit queues a unit; AwaitAll runs the queue and blocks until it drains.
type InProcessSubstrate struct {
	mu          sync.Mutex
	units       []WorkUnit
	concurrency int
	deps        ChunkDeps
	observer    UnitObserverFunc
	awaited     bool
}

// NewInProcessSubstrate creates a substrate running at most concurrency chunks at once.
func NewInProcessSubstrate(concurrency int, deps ChunkDeps) *InProcessSubstrate {
	return &InProcessSubstrate{concurrency: concurrency, deps: deps}
}

// SetObserver implements UnitObserver.
func (s *InProcessSubstrate) SetObserver(fn func(unit WorkUnit, status Status, message string, duration time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Submit implements Substrate.
func (s *InProcessSubstrate) Submit(ctx context.Context, unit WorkUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := unit.Spec.Validate(); err != nil {
		return err
	}
	if unit.Spec.OutputPath == "" {
		return fmt.Errorf("%w: chunk %d has no output path", ErrInvalidWorkUnit, unit.Chunk.Ordinal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaited {
		return fmt.Errorf("%w: substrate already awaited", ErrInvalidWorkUnit)
	}
	s.units = append(s.units, unit)
	return nil
}

// AwaitAll implements Substrate.
func (s *InProcessSubstrate) AwaitAll(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.awaited {
		s.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: substrate already awaited", ErrInvalidWorkUnit)
	}
	s.awaited = true
	units := s.units
	observer := s.observer
	s.mu.Unlock()

	outcome := RunUnits(ctx, units, s.concurrency, observer, func(ctx context.Context, u WorkUnit) (ChunkResult, error) {
		return ConvertChunk(ctx, u.Spec, s.deps)
	})
	return outcome, ctx.Err()
}

// Dispatch submits every unit and blocks once at the barrier. It is all-or-nothing:
// a submit error, any unit not ending in success, cancellation or timeout fails the
// run with ErrRunFailed. The outcome is returned in every case for reporting.
func Dispatch(ctx context.Context, sub Substrate, units []WorkUnit, timeout time.Duration, logger *slog.Logger) (Outcome, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("component", "dispatch"))
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, u := range units {
		if err := sub.Submit(ctx, u); err != nil {
			logger.Error("Submit failed", slog.Int("chunk", u.Chunk.Ordinal), slog.String("error", err.Error()))
			// Drain whatever was already accepted so no work outlives the run.
			drainCtx, cancel := context.WithCancel(ctx)
			cancel()
			outcome, _ := sub.AwaitAll(drainCtx)
			return outcome, fmt.Errorf("%w: submitting chunk %d: %w", ErrRunFailed, u.Chunk.Ordinal, err)
		}
	}
	logger.Debug("All chunks submitted, waiting at barrier", slog.Int("chunks", len(units)))

	outcome, awaitErr := sub.AwaitAll(ctx)

	succeeded := make(map[int]bool, len(outcome.Units))
	var failures []error
	for _, u := range outcome.Units {
		if u.Status == StatusSuccess {
			succeeded[u.Chunk.Ordinal] = true
			continue
		}
		if u.Status == StatusFailed && u.Err != nil {
			failures = append(failures, u.Err)
		}
	}
	missing := 0
	for _, u := range units {
		if !succeeded[u.Chunk.Ordinal] {
			missing++
		}
	}

	switch {
	case len(failures) > 0:
		return outcome, fmt.Errorf("%w: %d of %d chunks did not succeed: %w", ErrRunFailed, missing, len(units), errors.Join(failures...))
	case awaitErr != nil:
		return outcome, fmt.Errorf("%w: %w", ErrRunFailed, awaitErr)
	case missing > 0:
		return outcome, fmt.Errorf("%w: %d of %d chunks did not succeed", ErrRunFailed, missing, len(units))
	}
	logger.Info("Barrier passed", slog.Int("chunks", len(units)))
	return outcome, nil
}
