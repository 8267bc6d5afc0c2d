package evsel

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// BatchResult is the output of processing one batch.
type BatchResult struct {
	ID       ulid.ULID
	Run      int
	Start    time.Time
	Finish   time.Time
	Batch    *Batch
	BCs      []BCSelection
	Events   []EventSelection
	Accepted int // events with Sel8
}

// NewBatchResult returns an empty result for a batch of run, stamped with a new ID.
func NewBatchResult(batch *Batch, run int) *BatchResult {
	now := time.Now()
	return &BatchResult{
		ID:    ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Run:   run,
		Start: now,
		Batch: batch,
	}
}

// GlobalBC returns the global BC number of BC record i.
func (r *BatchResult) GlobalBC(i int) uint64 {
	return r.Batch.BCs[i].GlobalBC
}

// RecordSink receives the records of each completed batch.
type RecordSink interface {
	WriteBatch(ctx context.Context, result *BatchResult) error
	Close() error
}
