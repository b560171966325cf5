package services

import (
	"context"
	"errors"
	"fmt"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/platform/metrics"
	"stop-sequencing-service/internal/ports"
	"time"

	"go.uber.org/zap"
)

const DefaultBatchSize = 25

var (
	ErrMissingCoordinates = errors.New("stop has no coordinates")
	ErrPermutation        = errors.New("optimized order is not a permutation of the input")
)

type Strategy string

const (
	StrategyNone    Strategy = "none"
	StrategyDirect  Strategy = "direct"
	StrategyBatched Strategy = "batched"
)

type Status string

const (
	StatusOptimized         Status = "optimized"
	StatusDegraded          Status = "degraded"
	StatusNothingToOptimize Status = "nothing_to_optimize"
)

// OptimizeResult is the outcome of one optimization run.
// Stops is always a permutation of the input.
type OptimizeResult struct {
	Stops           []domain.Stop
	Strategy        Strategy
	Batches         int
	DegradedBatches int
	Status          Status
}

// HybridOptimizer orders a route's stops using a remote sequencing service,
// splitting large routes into anchored batches that are sequenced one after
// another. Any remote failure is recovered locally: the affected batch keeps
// the order it had before the call.
//
// The optimizer holds no per-run state and may be shared between goroutines
// optimizing different routes.
type HybridOptimizer struct {
	Client    ports.SequenceClient
	BatchSize int
	Anchor    AnchorStrategy
	Logger    *zap.Logger
}

func NewHybridOptimizer(client ports.SequenceClient, batchSize int, anchor AnchorStrategy, logger *zap.Logger) *HybridOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridOptimizer{
		Client:    client,
		BatchSize: batchSize,
		Anchor:    anchor,
		Logger:    logger,
	}
}

// run carries the bookkeeping of a single Optimize call.
type run struct {
	log      *zap.Logger
	batches  int
	degraded int
}

func (r *run) phase(name string, fields ...zap.Field) {
	r.log.Debug("optimizer phase", append([]zap.Field{zap.String("phase", name)}, fields...)...)
}

// Optimize returns stops in visiting order from start to end.
func (o *HybridOptimizer) Optimize(
	ctx context.Context,
	stops []domain.Stop,
	start domain.Coordinates,
	end domain.Coordinates,
) (res OptimizeResult, err error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &run{log: log.With(zap.Int("stops", len(stops)))}
	began := time.Now()

	r.phase("validating")
	if len(stops) == 0 {
		metrics.OptimizerRuns.WithLabelValues(string(StrategyNone), string(StatusNothingToOptimize)).Inc()
		return OptimizeResult{
			Stops:    []domain.Stop{},
			Strategy: StrategyNone,
			Status:   StatusNothingToOptimize,
		}, nil
	}
	for _, s := range stops {
		if !s.HasCoordinates() {
			return OptimizeResult{}, fmt.Errorf("optimize: stop %q: %w", s.StopID, ErrMissingCoordinates)
		}
	}

	batchSize := o.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 1 {
		return OptimizeResult{}, fmt.Errorf("optimize: %w (got %d)", ErrInvalidBatchSize, batchSize)
	}

	var ordered []domain.Stop
	var strategy Strategy

	if len(stops) <= batchSize {
		strategy = StrategyDirect
		r.phase("direct")
		ordered = o.sequence(ctx, r, 0, stops, start, end)
	} else {
		strategy = StrategyBatched
		ordered, err = o.batched(ctx, r, stops, start, end, batchSize)
		if err != nil {
			return OptimizeResult{}, err
		}
	}

	if err := checkPermutation(stops, ordered); err != nil {
		return OptimizeResult{}, fmt.Errorf("optimize: %w", err)
	}

	status := StatusOptimized
	if r.degraded > 0 {
		status = StatusDegraded
	}
	metrics.OptimizerRuns.WithLabelValues(string(strategy), string(status)).Inc()

	r.phase("done",
		zap.String("strategy", string(strategy)),
		zap.String("status", string(status)),
		zap.Int("batches", r.batches),
		zap.Int("degraded_batches", r.degraded),
		zap.Int64("dur_ms", time.Since(began).Milliseconds()),
	)

	return OptimizeResult{
		Stops:           ordered,
		Strategy:        strategy,
		Batches:         r.batches,
		DegradedBatches: r.degraded,
		Status:          status,
	}, nil
}

func (o *HybridOptimizer) batched(
	ctx context.Context,
	r *run,
	stops []domain.Stop,
	start domain.Coordinates,
	end domain.Coordinates,
	batchSize int,
) ([]domain.Stop, error) {
	r.phase("presorting")
	presorted := GreedySequence(stops, start)

	r.phase("batching")
	batches, err := PlanBatches(presorted, batchSize, start, end, o.Anchor)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	r.phase("processing", zap.Int("batches", len(batches)))
	out := make([]domain.Stop, 0, len(stops))
	for i, b := range batches {
		// Continuity: start where the previous batch actually finished.
		if i > 0 {
			b.Start = *out[len(out)-1].Location
		}
		out = append(out, o.sequence(ctx, r, b.Index, b.Stops, b.Start, b.End)...)
	}

	r.phase("stitching")
	return out, nil
}

// sequence performs one remote call for a batch and returns its new order,
// or the batch unchanged when the call fails or the answer is unusable.
func (o *HybridOptimizer) sequence(
	ctx context.Context,
	r *run,
	index int,
	stops []domain.Stop,
	start domain.Coordinates,
	end domain.Coordinates,
) []domain.Stop {
	r.batches++

	fallback := func(reason error) []domain.Stop {
		r.degraded++
		metrics.OptimizerBatches.WithLabelValues("degraded").Inc()
		r.log.Warn("batch kept pre-call order",
			zap.Int("batch", index),
			zap.Int("batch_stops", len(stops)),
			zap.Error(reason),
		)
		kept := make([]domain.Stop, len(stops))
		copy(kept, stops)
		return kept
	}

	if o.Client == nil {
		return fallback(errors.New("no sequencing client configured"))
	}

	ids, err := o.Client.Sequence(ctx, ports.SequenceRequest{
		Start: start,
		End:   end,
		Stops: stops,
	})
	if err != nil {
		return fallback(err)
	}

	reordered, err := reorder(stops, ids)
	if err != nil {
		return fallback(err)
	}

	metrics.OptimizerBatches.WithLabelValues("ok").Inc()
	return reordered
}

// reorder maps ids back onto stops. ids must name every stop exactly once.
func reorder(stops []domain.Stop, ids []string) ([]domain.Stop, error) {
	if len(ids) != len(stops) {
		return nil, fmt.Errorf("%w: got %d ids for %d stops", ErrPermutation, len(ids), len(stops))
	}

	byID := make(map[string]domain.Stop, len(stops))
	for _, s := range stops {
		byID[s.StopID] = s
	}

	out := make([]domain.Stop, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown stop id %q", ErrPermutation, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate stop id %q", ErrPermutation, id)
		}
		seen[id] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// checkPermutation compares stop id multisets of input and output.
func checkPermutation(in, out []domain.Stop) error {
	if len(in) != len(out) {
		return fmt.Errorf("%w: %d stops in, %d out", ErrPermutation, len(in), len(out))
	}
	counts := make(map[string]int, len(in))
	for _, s := range in {
		counts[s.StopID]++
	}
	for _, s := range out {
		counts[s.StopID]--
		if counts[s.StopID] < 0 {
			return fmt.Errorf("%w: unexpected stop %q", ErrPermutation, s.StopID)
		}
	}
	return nil
}
