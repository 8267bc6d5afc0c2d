package evsel

import (
	"fmt"
	"strings"
)

// Mode selects which selection bits take part in the sel7 decision.
type Mode int

// Running modes.
const (
	Barrel Mode = iota
	MuonWithPileupCuts
	MuonWithoutPileupCuts
)

var modeNames = []string{"barrel", "muon-pileup", "muon-nopileup"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode accepts the mode names or the legacy integer selector 0, 1, 2.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for i, name := range modeNames {
		if s == name || s == fmt.Sprint(i) {
			return Mode(i), nil
		}
	}
	return Barrel, fmt.Errorf("unknown running mode %q (want one of %v)", s, modeNames)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Recipe is the set of bits that must all be set for a sel7 accept.
type Recipe []SelectionBit

// Contains reports whether bit is active in the recipe.
func (r Recipe) Contains(bit SelectionBit) bool {
	for _, b := range r {
		if b == bit {
			return true
		}
	}
	return false
}

// Without returns a copy of r with the listed bits removed.
func (r Recipe) Without(bits ...SelectionBit) Recipe {
	out := make(Recipe, 0, len(r))
	for _, b := range r {
		drop := false
		for _, x := range bits {
			if b == x {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, b)
		}
	}
	return out
}

// Mask packs the recipe into the selection-word layout.
func (r Recipe) Mask() SelectionMask {
	var m SelectionMask
	for _, b := range r {
		m.SetIf(b, b >= 0 && b < NSelectionBits)
	}
	return m
}

// unreliableInSimulation lists the bits whose inputs are not reproduced by the
// detector simulation. They are never required when processing simulated data.
var unreliableInSimulation = []SelectionBit{
	IsBBZAC,
	NoV0MOnVsOfPileup,
	NoSPDOnVsOfPileup,
	NoV0Casymmetry,
	NoV0PFPileup,
}

// ForSimulation returns r without the bits that simulation cannot be trusted for.
func (r Recipe) ForSimulation() Recipe {
	return r.Without(unreliableInSimulation...)
}

var barrelRecipe = Recipe{
	IsBBV0A, IsBBV0C, NoBGV0A, NoBGV0C, IsBBZAC,
	NoV0MOnVsOfPileup, NoSPDOnVsOfPileup, NoV0Casymmetry,
	IsGoodTimeRange, NoIncompleteDAQ, NoTPCLaserWarmUp, NoTPCHVdip,
	NoPileupFromSPD, NoV0PFPileup, NoSPDClsVsTklBG, NoV0C012vsTklBG,
}

var muonPileupRecipe = Recipe{
	IsBBV0A, IsBBV0C, NoBGV0A, NoBGV0C, IsBBZAC,
	NoV0MOnVsOfPileup, NoSPDOnVsOfPileup, NoV0Casymmetry,
	IsGoodTimeRange, NoIncompleteDAQ, NoPileupFromSPD, NoV0PFPileup,
}

var muonNoPileupRecipe = Recipe{
	IsBBV0A, IsBBV0C, NoBGV0A, NoBGV0C, IsBBZAC,
	IsGoodTimeRange, NoIncompleteDAQ,
}

// DefaultRecipe is used when the calibration parameters carry no recipe for mode.
func DefaultRecipe(mode Mode) Recipe {
	var r Recipe
	switch mode {
	case MuonWithPileupCuts:
		r = muonPileupRecipe
	case MuonWithoutPileupCuts:
		r = muonNoPileupRecipe
	default:
		r = barrelRecipe
	}
	return append(Recipe(nil), r...)
}
