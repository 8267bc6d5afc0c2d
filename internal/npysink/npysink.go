// Package npysink writes event-selection records as numpy *.npy files.
//
// Per-BC columns are written once per batch, one file per column. Event records
// are appended to a single structured array per run.
package npysink

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sbinet/npyio"
	"github.com/usnistgov/evsel"
)

// EventDtype is the numpy dtype of one event record.
const EventDtype = "[('alias', '<u4'), ('selection', '<u8'), ('ncontrib', '<i4'), " +
	"('sel7', '|u1'), ('sel8', '|u1'), ('sel1', '|u1'), ('foundBC', '<i4'), " +
	"('foundFT0', '<i4'), ('foundFV0', '<i4'), ('foundFDD', '<i4'), ('foundZDC', '<i4')]"

// EventRecordSize is the size in bytes of one event record.
const EventRecordSize = 4 + 8 + 4 + 3 + 5*4

// Sink is a RecordSink writing under one directory.
type Sink struct {
	dir    string
	events map[int]*appendableNPY
	sync.Mutex
}

// New returns a Sink writing into dir, creating it if needed.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	return &Sink{dir: dir, events: make(map[int]*appendableNPY)}, nil
}

// BCColumnPath returns the file holding column of the BCs of batch id.
func (s *Sink) BCColumnPath(id, column string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_bc_%s.npy", id, column))
}

// EventPath returns the file holding the event records of run.
func (s *Sink) EventPath(run int) string {
	return filepath.Join(s.dir, fmt.Sprintf("run%06d_evsel.npy", run))
}

func writeColumn(path string, column any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, column); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// WriteBatch implements evsel.RecordSink.
func (s *Sink) WriteBatch(_ context.Context, r *evsel.BatchResult) error {
	n := len(r.BCs)
	globalBC := make([]uint64, n)
	alias := make([]uint32, n)
	selection := make([]uint64, n)
	spdClusters := make([]uint32, n)
	for i := range r.BCs {
		globalBC[i] = r.GlobalBC(i)
		alias[i] = uint32(r.BCs[i].Alias)
		selection[i] = uint64(r.BCs[i].Selection)
		spdClusters[i] = r.BCs[i].SPDClusters
	}
	id := r.ID.String()
	columns := map[string]any{
		"globalbc":    globalBC,
		"alias":       alias,
		"selection":   selection,
		"spdclusters": spdClusters,
	}
	for name, col := range columns {
		if err := writeColumn(s.BCColumnPath(id, name), col); err != nil {
			return err
		}
	}

	s.Lock()
	defer s.Unlock()
	events, ok := s.events[r.Run]
	if !ok {
		var err error
		if events, err = createAppendableNPY(s.EventPath(r.Run), EventDtype); err != nil {
			return err
		}
		s.events[r.Run] = events
	}
	records := make([][]byte, len(r.Events))
	for k := range r.Events {
		records[k] = encodeEvent(&r.Events[k])
	}
	return events.Append(records)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// encodeEvent packs one event record in EventDtype layout.
func encodeEvent(e *evsel.EventSelection) []byte {
	b := make([]byte, 0, EventRecordSize)
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Alias))
	b = binary.LittleEndian.AppendUint64(b, uint64(e.Selection))
	b = binary.LittleEndian.AppendUint32(b, uint32(e.NContrib))
	b = append(b, boolByte(e.Sel7), boolByte(e.Sel8), boolByte(e.Sel1))
	for _, idx := range []int32{e.FoundBC, e.FoundFT0, e.FoundFV0, e.FoundFDD, e.FoundZDC} {
		b = binary.LittleEndian.AppendUint32(b, uint32(idx))
	}
	return b
}

// Close closes every open event file.
func (s *Sink) Close() error {
	s.Lock()
	defer s.Unlock()
	var firstErr error
	for run, f := range s.events {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.events, run)
	}
	return firstErr
}
