package evsel

import (
	"context"
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

// CalibrationCache keeps the last object fetched for each calibration kind and
// only asks its store again when a timestamp falls outside that object's validity.
// Objects it returns are shared and must not be modified.
type CalibrationCache struct {
	store   CalibrationStore
	cached  map[CalibrationKind]Calibration
	fetches int
	sync.Mutex
}

// NewCalibrationCache returns an empty cache in front of store.
func NewCalibrationCache(store CalibrationStore) *CalibrationCache {
	return &CalibrationCache{
		store:  store,
		cached: make(map[CalibrationKind]Calibration),
	}
}

// Fetches returns how many times the backing store has been queried.
func (cc *CalibrationCache) Fetches() int {
	cc.Lock()
	defer cc.Unlock()
	return cc.fetches
}

// Fetch returns the object of the given kind valid at timestamp.
func (cc *CalibrationCache) Fetch(ctx context.Context, kind CalibrationKind, timestamp int64) (Calibration, error) {
	cc.Lock()
	defer cc.Unlock()
	if obj, ok := cc.cached[kind]; ok && obj.Validity().Contains(timestamp) {
		return obj, nil
	}
	cc.fetches++
	obj, err := cc.store.Fetch(ctx, kind, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %d: %v", ErrCalibrationUnavailable, kind, timestamp, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: %s at %d: store returned nothing", ErrCalibrationUnavailable, kind, timestamp)
	}
	if !obj.Validity().Contains(timestamp) {
		return nil, fmt.Errorf("%w: %s at %d: store returned object valid over %v",
			ErrCalibrationUnavailable, kind, timestamp, obj.Validity())
	}
	switch o := obj.(type) {
	case *CalibrationParameters:
		if err := o.Validate(); err != nil {
			ProblemLogger.Printf("%v\n%s", err, spew.Sdump(o))
		}
	case *BunchFilling:
		o.buildPattern()
	}
	cc.cached[kind] = obj
	return obj, nil
}

// Parameters returns the event-selection thresholds valid at timestamp.
func (cc *CalibrationCache) Parameters(ctx context.Context, timestamp int64) (*CalibrationParameters, error) {
	obj, err := cc.Fetch(ctx, EventSelectionParams, timestamp)
	if err != nil {
		return nil, err
	}
	p, ok := obj.(*CalibrationParameters)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %d has type %T", ErrCalibrationUnavailable, EventSelectionParams, timestamp, obj)
	}
	return p, nil
}

// Aliases returns the trigger alias table valid at timestamp.
func (cc *CalibrationCache) Aliases(ctx context.Context, timestamp int64) (*TriggerAliasTable, error) {
	obj, err := cc.Fetch(ctx, TriggerAliases, timestamp)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*TriggerAliasTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %d has type %T", ErrCalibrationUnavailable, TriggerAliases, timestamp, obj)
	}
	return t, nil
}

// Filling returns the bunch-filling scheme valid at timestamp.
func (cc *CalibrationCache) Filling(ctx context.Context, timestamp int64) (*BunchFilling, error) {
	obj, err := cc.Fetch(ctx, BunchFillingScheme, timestamp)
	if err != nil {
		return nil, err
	}
	f, ok := obj.(*BunchFilling)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %d has type %T", ErrCalibrationUnavailable, BunchFillingScheme, timestamp, obj)
	}
	return f, nil
}
