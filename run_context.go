package evsel

import (
	"context"
	"fmt"
)

// RunContext is everything needed to process one batch: the run it belongs to,
// the calibration snapshot of each BC and the batch-wide lookups. It is built
// fresh for each batch and read-only while the batch is processed.
type RunContext struct {
	Batch         *Batch
	Run           int
	Legacy        bool
	Simulation    bool
	Mode          Mode
	TriggerShift  int
	CustomDeltaBC int
	Filling       *BunchFilling // nil when no bunch-filling filter applies

	params  []*CalibrationParameters
	aliases []*TriggerAliasTable
	bcmap   GlobalBCMap
	counter Counter
}

// NewRunContext fetches every calibration object the batch needs. This is the
// only step of batch processing that can block or fail.
func NewRunContext(ctx context.Context, cache *CalibrationCache, batch *Batch, cfg Config, counter Counter) (*RunContext, error) {
	if batch == nil || len(batch.BCs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	first := &batch.BCs[0]
	rc := &RunContext{
		Batch:         batch,
		Run:           first.RunNumber,
		Legacy:        cfg.LegacyRun2,
		Simulation:    cfg.Simulation,
		Mode:          cfg.Mode,
		CustomDeltaBC: cfg.CustomDeltaBC,
		params:        make([]*CalibrationParameters, len(batch.BCs)),
		aliases:       make([]*TriggerAliasTable, len(batch.BCs)),
		counter:       counter,
	}
	for i := range batch.BCs {
		ts := batch.BCs[i].Timestamp
		par, err := cache.Parameters(ctx, ts)
		if err != nil {
			return nil, err
		}
		al, err := cache.Aliases(ctx, ts)
		if err != nil {
			return nil, err
		}
		rc.params[i] = par
		rc.aliases[i] = al
	}
	if rc.Legacy {
		return rc, nil
	}

	rc.TriggerShift = EffectiveTriggerBCShift(cfg.TriggerBCShift, rc.Run)
	rc.bcmap = NewGlobalBCMap(batch.BCs)
	if rc.Run >= firstFilledRun {
		filling, err := cache.Filling(ctx, first.Timestamp)
		if err != nil {
			return nil, err
		}
		rc.Filling = filling
	}
	return rc, nil
}
