package evsel

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectionBit names one position in the 64-bit selection mask. The numeric
// positions are read by downstream consumers and must never be renumbered.
type SelectionBit int

// All named selection bits, in wire order.
const (
	IsBBV0A            SelectionBit = iota // 0: V0A time in beam-beam window
	IsBBV0C                                // 1
	IsBBFDA                                // 2
	IsBBFDC                                // 3
	NoBGV0A                                // 4: V0A time not in beam-gas window
	NoBGV0C                                // 5
	NoBGFDA                                // 6
	NoBGFDC                                // 7
	IsBBT0A                                // 8
	IsBBT0C                                // 9
	IsBBZNA                                // 10
	IsBBZNC                                // 11
	IsBBZAC                                // 12: ZNA/ZNC sum-difference ellipse
	NoBGZNA                                // 13
	NoBGZNC                                // 14
	NoV0MOnVsOfPileup                      // 15
	NoSPDOnVsOfPileup                      // 16
	NoV0Casymmetry                         // 17
	IsGoodTimeRange                        // 18
	NoIncompleteDAQ                        // 19
	NoTPCLaserWarmUp                       // 20
	NoTPCHVdip                             // 21
	NoPileupFromSPD                        // 22
	NoV0PFPileup                           // 23
	NoSPDClsVsTklBG                        // 24
	NoV0C012vsTklBG                        // 25
	NoInconsistentVtx                      // 26
	NoPileupInMultBins                     // 27
	NoPileupMV                             // 28
	NoPileupTPC                            // 29
	IsTriggerTVX                           // 30: FT0 vertex trigger
	IsINT1                                 // 31
	NoBGT0A                                // 32
	NoBGT0C                                // 33
	NSelectionBits
)

var selectionBitNames = [NSelectionBits]string{
	"IsBBV0A", "IsBBV0C", "IsBBFDA", "IsBBFDC",
	"NoBGV0A", "NoBGV0C", "NoBGFDA", "NoBGFDC",
	"IsBBT0A", "IsBBT0C", "IsBBZNA", "IsBBZNC", "IsBBZAC",
	"NoBGZNA", "NoBGZNC",
	"NoV0MOnVsOfPileup", "NoSPDOnVsOfPileup", "NoV0Casymmetry",
	"IsGoodTimeRange", "NoIncompleteDAQ", "NoTPCLaserWarmUp", "NoTPCHVdip",
	"NoPileupFromSPD", "NoV0PFPileup", "NoSPDClsVsTklBG", "NoV0C012vsTklBG",
	"NoInconsistentVtx", "NoPileupInMultBins", "NoPileupMV", "NoPileupTPC",
	"IsTriggerTVX", "IsINT1", "NoBGT0A", "NoBGT0C",
}

func (b SelectionBit) String() string {
	if b < 0 || b >= NSelectionBits {
		return fmt.Sprintf("SelectionBit(%d)", int(b))
	}
	return selectionBitNames[b]
}

// ParseSelectionBit returns the bit with the given name (case-insensitive).
func ParseSelectionBit(name string) (SelectionBit, error) {
	for i, n := range selectionBitNames {
		if strings.EqualFold(n, name) {
			return SelectionBit(i), nil
		}
	}
	if pos, err := strconv.Atoi(name); err == nil && pos >= 0 && pos < int(NSelectionBits) {
		return SelectionBit(pos), nil
	}
	return 0, fmt.Errorf("unknown selection bit %q", name)
}

// MarshalText lets selection bits appear by name in YAML and JSON.
func (b SelectionBit) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (b *SelectionBit) UnmarshalText(text []byte) error {
	bit, err := ParseSelectionBit(string(text))
	if err != nil {
		return err
	}
	*b = bit
	return nil
}

// SelectionMask is the packed per-BC selection word.
type SelectionMask uint64

// Has reports whether bit b is set.
func (m SelectionMask) Has(b SelectionBit) bool {
	return m&(1<<uint(b)) != 0
}

// SetIf sets bit b when cond is true.
func (m *SelectionMask) SetIf(b SelectionBit, cond bool) {
	if cond {
		*m |= 1 << uint(b)
	}
}

// Alias identifies one named trigger condition.
type Alias int

// Trigger aliases. AliasALL is set on every BC.
const (
	AliasINT7 Alias = iota
	AliasEMC7
	AliasINT7inMUON
	AliasMuonSingleLowPt7
	AliasMuonSingleHighPt7
	AliasMuonUnlikeLowPt7
	AliasMuonLikeLowPt7
	AliasCUP8
	AliasCUP9
	AliasMUP10
	AliasMUP11
	AliasINT1
	AliasUnused
	AliasALL
	NAliases
)

var aliasNames = [NAliases]string{
	"kINT7", "kEMC7", "kINT7inMUON", "kMuonSingleLowPt7", "kMuonSingleHighPt7",
	"kMuonUnlikeLowPt7", "kMuonLikeLowPt7", "kCUP8", "kCUP9", "kMUP10", "kMUP11",
	"kINT1", "kUnused", "kALL",
}

func (a Alias) String() string {
	if a < 0 || a >= NAliases {
		return fmt.Sprintf("Alias(%d)", int(a))
	}
	return aliasNames[a]
}

// ParseAlias returns the alias with the given name, with or without the leading "k".
func ParseAlias(name string) (Alias, error) {
	for i, n := range aliasNames {
		if strings.EqualFold(n, name) || strings.EqualFold(n[1:], name) {
			return Alias(i), nil
		}
	}
	// Alias tables may carry ids beyond the named ones.
	if id, err := strconv.Atoi(name); err == nil && id >= 0 && id < 32 {
		return Alias(id), nil
	}
	return 0, fmt.Errorf("unknown trigger alias %q", name)
}

// MarshalText writes the alias by name.
func (a Alias) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts an alias name or its numeric id.
func (a *Alias) UnmarshalText(text []byte) error {
	alias, err := ParseAlias(string(text))
	if err != nil {
		return err
	}
	*a = alias
	return nil
}

// AliasMask is the set of fired aliases for one BC.
type AliasMask uint32

// Has reports whether alias a fired.
func (m AliasMask) Has(a Alias) bool {
	return m&(1<<uint(a)) != 0
}
