package evsel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Records are classified and associated in chunks of this many per worker task.
const chunkSize = 1024

// Processor runs batches through classification, association and aggregation,
// then hands the results to its sinks.
type Processor struct {
	Config  Config
	Cache   *CalibrationCache
	Counter Counter
	Sinks   []RecordSink
}

// NewProcessor returns a Processor reading calibration through cache.
func NewProcessor(cfg Config, cache *CalibrationCache, counter Counter, sinks ...RecordSink) *Processor {
	return &Processor{
		Config:  cfg,
		Cache:   cache,
		Counter: counter,
		Sinks:   sinks,
	}
}

// forEachChunk calls fn(i) for every i in [0, n) using at most workers goroutines.
func forEachChunk(ctx context.Context, n, workers int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for lo := 0; lo < n; lo += chunkSize {
		lo := lo
		hi := min(lo+chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessBatch classifies every BC of batch, associates each collision to a BC and
// computes its event record. A missing calibration object aborts the batch with an
// error wrapping ErrCalibrationUnavailable.
func (p *Processor) ProcessBatch(ctx context.Context, batch *Batch, collisions []Collision) (*BatchResult, error) {
	rc, err := NewRunContext(ctx, p.Cache, batch, p.Config, p.Counter)
	if err != nil {
		return nil, err
	}
	result := NewBatchResult(batch, rc.Run)
	workers := p.Config.Workers

	result.BCs = make([]BCSelection, len(batch.BCs))
	if err := forEachChunk(ctx, len(batch.BCs), workers, func(i int) {
		result.BCs[i] = rc.ClassifyBC(i)
	}); err != nil {
		return nil, err
	}

	// Every BC record exists before any index is built or searched.
	var tvx, tor *BCIndex
	if !rc.Legacy {
		tvx, tor = rc.buildIndices(result.BCs)
	}

	result.Events = make([]EventSelection, len(collisions))
	if err := forEachChunk(ctx, len(collisions), workers, func(k int) {
		result.Events[k] = rc.SelectEvent(&collisions[k], result.BCs, tvx, tor)
	}); err != nil {
		return nil, err
	}
	for k := range result.Events {
		if result.Events[k].Sel8 {
			result.Accepted++
		}
	}
	result.Finish = time.Now()

	UpdateLogger.Printf("Batch %s run %d: %d BCs (%d TVX, %d TOR), %d events, %d accepted, shift %d, %v",
		result.ID, rc.Run, len(result.BCs), tvx.Len(), tor.Len(), len(result.Events), result.Accepted,
		rc.TriggerShift, result.Finish.Sub(result.Start))

	var sinkErrs []error
	for _, s := range p.Sinks {
		if err := s.WriteBatch(ctx, result); err != nil {
			ProblemLogger.Printf("Batch %s: sink %T failed: %v", result.ID, s, err)
			sinkErrs = append(sinkErrs, fmt.Errorf("sink %T: %w", s, err))
		}
	}
	return result, errors.Join(sinkErrs...)
}

// Close closes every sink.
func (p *Processor) Close() error {
	var errs []error
	for _, s := range p.Sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
