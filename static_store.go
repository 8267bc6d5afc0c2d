package evsel

import (
	"context"
	"fmt"
	"sync"
)

// StaticStore is an in-memory CalibrationStore, used for simulation and tests.
type StaticStore struct {
	objects map[CalibrationKind][]Calibration
	sync.RWMutex
}

// NewStaticStore returns a store holding the given objects. Each object's kind
// is deduced from its Go type.
func NewStaticStore(objects ...Calibration) (*StaticStore, error) {
	s := &StaticStore{objects: make(map[CalibrationKind][]Calibration)}
	for _, obj := range objects {
		if err := s.Add(obj); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// KindOf returns the calibration kind served by obj.
func KindOf(obj Calibration) (CalibrationKind, error) {
	switch obj.(type) {
	case *CalibrationParameters:
		return EventSelectionParams, nil
	case *TriggerAliasTable:
		return TriggerAliases, nil
	case *BunchFilling:
		return BunchFillingScheme, nil
	}
	return 0, fmt.Errorf("unsupported calibration object type %T", obj)
}

// Add stores one more object.
func (s *StaticStore) Add(obj Calibration) error {
	kind, err := KindOf(obj)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	s.objects[kind] = append(s.objects[kind], obj)
	return nil
}

// Fetch returns the most recently added object of kind whose validity covers timestamp.
func (s *StaticStore) Fetch(_ context.Context, kind CalibrationKind, timestamp int64) (Calibration, error) {
	s.RLock()
	defer s.RUnlock()
	objs := s.objects[kind]
	for i := len(objs) - 1; i >= 0; i-- {
		if objs[i].Validity().Contains(timestamp) {
			return objs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no %s object covers %d", ErrCalibrationUnavailable, kind, timestamp)
}
