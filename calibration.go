package evsel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrCalibrationUnavailable means no calibration object covers a requested timestamp.
// It is fatal to the batch being processed.
var ErrCalibrationUnavailable = errors.New("calibration unavailable")

// CalibrationKind selects one family of versioned calibration objects.
type CalibrationKind int

// The calibration kinds used by event selection.
const (
	EventSelectionParams CalibrationKind = iota
	TriggerAliases
	BunchFillingScheme
)

// Path returns the conventional storage path of the kind.
func (k CalibrationKind) Path() string {
	switch k {
	case EventSelectionParams:
		return "EventSelection/EventSelectionParams"
	case TriggerAliases:
		return "EventSelection/TriggerAliases"
	case BunchFillingScheme:
		return "GLO/Config/GRPLHCIF"
	default:
		return fmt.Sprintf("unknown/%d", int(k))
	}
}

func (k CalibrationKind) String() string {
	return k.Path()
}

// ValidityRange is the half-open timestamp interval [Start, End) in ms.
type ValidityRange struct {
	Start int64 `yaml:"start" db:"ValidFrom"`
	End   int64 `yaml:"end" db:"ValidUntil"`
}

// Contains reports whether ts lies within the range.
func (v ValidityRange) Contains(ts int64) bool {
	return ts >= v.Start && ts < v.End
}

// Calibration is any versioned calibration object.
type Calibration interface {
	Validity() ValidityRange
}

// CalibrationStore is the backing store of versioned calibration objects.
// Fetch must return an object of the Go type matching kind (*CalibrationParameters,
// *TriggerAliasTable or *BunchFilling) that covers timestamp, or an error wrapping
// ErrCalibrationUnavailable.
type CalibrationStore interface {
	Fetch(ctx context.Context, kind CalibrationKind, timestamp int64) (Calibration, error)
}

// Window is an open time interval in ns.
type Window struct {
	Lower float32 `yaml:"lower"`
	Upper float32 `yaml:"upper"`
}

// Contains reports whether Lower < t < Upper.
func (w Window) Contains(t float32) bool {
	return t > w.Lower && t < w.Upper
}

// LinearCut is the bound A + B*x used by the pileup and background discriminators.
type LinearCut struct {
	A float32 `yaml:"a"`
	B float32 `yaml:"b"`
}

// Bound returns A + B*x.
func (c LinearCut) Bound(x float32) float32 {
	return c.A + c.B*x
}

// Ellipse is the calibrated ZNA/ZNC sum-difference acceptance region.
type Ellipse struct {
	SumMean  float32 `yaml:"sumMean"`
	SumSigma float32 `yaml:"sumSigma"`
	DifMean  float32 `yaml:"difMean"`
	DifSigma float32 `yaml:"difSigma"`
}

// CalibrationParameters holds every threshold used by the BC classifier and
// the selection recipes per running mode.
type CalibrationParameters struct {
	Valid ValidityRange `yaml:"validity"`

	V0ABB Window `yaml:"v0aBB"`
	V0ABG Window `yaml:"v0aBG"`
	V0CBB Window `yaml:"v0cBB"`
	V0CBG Window `yaml:"v0cBG"`
	FDABB Window `yaml:"fdaBB"`
	FDABG Window `yaml:"fdaBG"`
	FDCBB Window `yaml:"fdcBB"`
	FDCBG Window `yaml:"fdcBG"`
	T0ABB Window `yaml:"t0aBB"`
	T0ABG Window `yaml:"t0aBG"`
	T0CBB Window `yaml:"t0cBB"`
	T0CBG Window `yaml:"t0cBG"`
	ZNABB Window `yaml:"znaBB"`
	ZNABG Window `yaml:"znaBG"`
	ZNCBB Window `yaml:"zncBB"`
	ZNCBG Window `yaml:"zncBG"`

	ZN Ellipse `yaml:"zn"`

	V0MOnVsOf   LinearCut `yaml:"v0mOnVsOf"`
	SPDOnVsOf   LinearCut `yaml:"spdOnVsOf"`
	V0Casym     LinearCut `yaml:"v0cAsym"`
	SPDClsVsTkl LinearCut `yaml:"spdClsVsTkl"`
	V0C012vsTkl LinearCut `yaml:"v0c012VsTkl"`

	Recipes map[Mode]Recipe `yaml:"recipes"`
}

// Validity implements Calibration.
func (p *CalibrationParameters) Validity() ValidityRange { return p.Valid }

// Recipe returns the active-bit recipe for mode, falling back to the default
// recipe when the parameters carry none.
func (p *CalibrationParameters) Recipe(mode Mode) Recipe {
	if r, ok := p.Recipes[mode]; ok {
		return r
	}
	return DefaultRecipe(mode)
}

// namedFields maps the flat parameter names used by row-oriented stores onto fields.
func (p *CalibrationParameters) namedFields() map[string]*float32 {
	fields := map[string]*float32{
		"fZNSumMean":  &p.ZN.SumMean,
		"fZNSumSigma": &p.ZN.SumSigma,
		"fZNDifMean":  &p.ZN.DifMean,
		"fZNDifSigma": &p.ZN.DifSigma,
	}
	windows := map[string]*Window{
		"V0ABB": &p.V0ABB, "V0ABG": &p.V0ABG, "V0CBB": &p.V0CBB, "V0CBG": &p.V0CBG,
		"FDABB": &p.FDABB, "FDABG": &p.FDABG, "FDCBB": &p.FDCBB, "FDCBG": &p.FDCBG,
		"T0ABB": &p.T0ABB, "T0ABG": &p.T0ABG, "T0CBB": &p.T0CBB, "T0CBG": &p.T0CBG,
		"ZNABB": &p.ZNABB, "ZNABG": &p.ZNABG, "ZNCBB": &p.ZNCBB, "ZNCBG": &p.ZNCBG,
	}
	for name, w := range windows {
		fields["f"+name+"lower"] = &w.Lower
		fields["f"+name+"upper"] = &w.Upper
	}
	cuts := map[string]*LinearCut{
		"V0MOnVsOf": &p.V0MOnVsOf, "SPDOnVsOf": &p.SPDOnVsOf, "V0Casym": &p.V0Casym,
		"SPDClsVsTkl": &p.SPDClsVsTkl, "V0C012vsTkl": &p.V0C012vsTkl,
	}
	for name, c := range cuts {
		fields["f"+name+"A"] = &c.A
		fields["f"+name+"B"] = &c.B
	}
	return fields
}

// SetNamed sets one threshold by its flat name, e.g. "fV0ABBlower" or "fV0MOnVsOfB".
func (p *CalibrationParameters) SetNamed(name string, value float64) error {
	field, ok := p.namedFields()[name]
	if !ok {
		return fmt.Errorf("unknown event selection parameter %q", name)
	}
	*field = float32(value)
	return nil
}

// Validate lists the parameter problems that make some selection bit meaningless.
func (p *CalibrationParameters) Validate() error {
	var problems []string
	if !(p.ZN.SumSigma > 0) || !(p.ZN.DifSigma > 0) {
		problems = append(problems, fmt.Sprintf("ZN ellipse sigmas must be positive (sum=%v, dif=%v)",
			p.ZN.SumSigma, p.ZN.DifSigma))
	}
	for name, field := range p.namedFields() {
		if math.IsNaN(float64(*field)) {
			problems = append(problems, fmt.Sprintf("%s is NaN", name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("event selection parameters %v: %s", p.Valid, strings.Join(problems, "; "))
	}
	return nil
}

// AliasEntry maps one alias to the raw trigger bits that fire it.
type AliasEntry struct {
	Alias      Alias  `yaml:"alias" db:"AliasID"`
	Mask       uint64 `yaml:"mask" db:"Mask"`
	MaskNext50 uint64 `yaml:"maskNext50" db:"MaskNext50"`
}

// TriggerAliasTable is the versioned alias-to-trigger-mask mapping.
type TriggerAliasTable struct {
	Valid   ValidityRange `yaml:"validity"`
	Entries []AliasEntry  `yaml:"entries"`
}

// Validity implements Calibration.
func (t *TriggerAliasTable) Validity() ValidityRange { return t.Valid }

// BunchFilling lists the bunch slots where both beams collide.
type BunchFilling struct {
	Valid     ValidityRange `yaml:"validity"`
	Colliding []int         `yaml:"colliding"`

	pattern []bool
}

// Validity implements Calibration.
func (f *BunchFilling) Validity() ValidityRange { return f.Valid }

// NewBunchFilling builds a filling scheme from the colliding slot numbers.
func NewBunchFilling(valid ValidityRange, colliding []int) *BunchFilling {
	f := &BunchFilling{Valid: valid, Colliding: colliding}
	f.buildPattern()
	return f
}

func (f *BunchFilling) buildPattern() {
	f.pattern = make([]bool, LHCMaxBunches)
	for _, slot := range f.Colliding {
		if slot >= 0 && slot < LHCMaxBunches {
			f.pattern[slot] = true
		}
	}
}

// IsColliding reports whether globalBC falls on a colliding bunch slot.
func (f *BunchFilling) IsColliding(globalBC uint64) bool {
	slot := int(globalBC % LHCMaxBunches)
	if f.pattern != nil {
		return f.pattern[slot]
	}
	for _, s := range f.Colliding {
		if s == slot {
			return true
		}
	}
	return false
}
