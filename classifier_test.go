package evsel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// windowFlags lists the beam-beam and beam-gas results of a BC record.
func windowFlags(s BCSelection) map[string]bool {
	return map[string]bool{
		"BBV0A": s.BBV0A, "BBV0C": s.BBV0C, "BGV0A": s.BGV0A, "BGV0C": s.BGV0C,
		"BBFDA": s.BBFDA, "BBFDC": s.BBFDC, "BGFDA": s.BGFDA, "BGFDC": s.BGFDC,
		"IsBBV0A": s.Selection.Has(IsBBV0A), "IsBBV0C": s.Selection.Has(IsBBV0C),
		"IsBBFDA": s.Selection.Has(IsBBFDA), "IsBBFDC": s.Selection.Has(IsBBFDC),
		"IsBBT0A": s.Selection.Has(IsBBT0A), "IsBBT0C": s.Selection.Has(IsBBT0C),
		"IsBBZNA": s.Selection.Has(IsBBZNA), "IsBBZNC": s.Selection.Has(IsBBZNC),
		"IsBBZAC":      s.Selection.Has(IsBBZAC),
		"IsTriggerTVX": s.Selection.Has(IsTriggerTVX),
	}
}

func TestAbsentSignals(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		b := &Batch{BCs: []BunchCrossing{emptyBC(300000, 100), emptyBC(300000, 101)}}
		rc := testRunContext(t, b, testConfig(legacy), nil, testParams())
		for i := range b.BCs {
			s := rc.ClassifyBC(i)
			for name, v := range windowFlags(s) {
				assert.False(t, v, "legacy=%v BC %d: %s", legacy, i, name)
			}
			assert.Equal(t, [5]float32{}, s.MultRingV0A)
			assert.Equal(t, [4]float32{}, s.MultRingV0C)
			assert.Equal(t, NoSignal, s.FoundFT0)
			assert.Equal(t, NoSignal, s.FoundFV0)
			assert.Equal(t, NoSignal, s.FoundFDD)
			assert.Equal(t, NoSignal, s.FoundZDC)
			assert.True(t, s.Selection.Has(NoBGZNA))
			assert.True(t, s.Selection.Has(NoBGZNC))
		}
	}
}

func TestEllipse(t *testing.T) {
	e := Ellipse{SumMean: 1, SumSigma: 2, DifMean: -1, DifSigma: 0.5}
	assert.InDelta(t, 0, e.QuadraticForm(1, -1), 1e-12)
	assert.True(t, e.Contains(1, -1))
	assert.InDelta(t, 100, e.QuadraticForm(21, -1), 1e-9)
	assert.False(t, e.Contains(21, -1))
	assert.False(t, e.Contains(1, 4))
	assert.True(t, e.Contains(2.9, -1)) // 0.95 sigma
	assert.False(t, e.Contains(3, -1))  // exactly on the edge

	bad := Ellipse{SumMean: 0, SumSigma: 0, DifMean: 0, DifSigma: 1}
	assert.False(t, bad.Contains(0, 0))
}

func TestEllipseBit(t *testing.T) {
	b := &Batch{BCs: []BunchCrossing{emptyBC(300000, 100)}}
	addZDC(b, 0, 0)
	b.BCs = append(b.BCs, emptyBC(300000, 200))
	addZDC(b, 10, -10) // sum at the mean, difference 10 sigma away
	rc := testRunContext(t, b, testConfig(false), nil, testParams())
	assert.True(t, rc.ClassifyBC(0).Selection.Has(IsBBZAC))
	s := rc.ClassifyBC(1)
	assert.False(t, s.Selection.Has(IsBBZAC))
	assert.False(t, s.Selection.Has(NoBGZNA)) // |10| is inside the beam-gas window
	assert.False(t, s.Selection.Has(NoBGZNC))
}

func TestRingMultiplicity(t *testing.T) {
	sig := &FV0Signal{
		Channels:   []uint8{0, 7, 8, 39, 40, 47, 48, 99},
		Amplitudes: []float32{1, 2, 4, 8, 16, 32, 64, 128},
	}
	var rings [5]float32
	total := ringMultiplicity(sig, rings[:], true)
	assert.Equal(t, [5]float32{3, 4, 0, 0, 8 + 16 + 32}, rings)
	assert.Equal(t, float32(63), total)

	rings = [5]float32{}
	total = ringMultiplicity(sig, rings[:], false)
	assert.Equal(t, [5]float32{3, 4, 0, 0, 8}, rings)
	assert.Equal(t, float32(15), total)

	var v0c [4]float32
	assert.Equal(t, float32(0), ringMultiplicity(nil, v0c[:], false))
	assert.Equal(t, [4]float32{}, v0c)
}

func TestClassifyRun3(t *testing.T) {
	b := &Batch{}
	b.BCs = append(b.BCs, emptyBC(300000, 995)) // 5 BCs before the last BC
	addFDD(b, -20, 0)
	b.BCs = append(b.BCs, emptyBC(300000, 999)) // 1 BC before the last BC
	addV0A(b, -20, nil, nil)
	addFT0(b, -20, 0, false)
	b.BCs = append(b.BCs, emptyBC(300000, 1000))
	addV0A(b, 1, []uint8{0, 44}, []float32{10, 5})
	addFT0(b, 0, 1, true)
	addFDD(b, 0, 0)
	b.BCs[2].TriggerMask = 1
	b.BCs[2].TriggerMaskNext50 = 1 << 3

	counter := NewMapCounter()
	rc := testRunContext(t, b, testConfig(false), counter, testParams())
	assert.Equal(t, 0, rc.TriggerShift)
	s := rc.ClassifyBC(2)
	assert.True(t, s.Alias.Has(AliasINT7))
	assert.True(t, s.Alias.Has(AliasCUP8))
	assert.True(t, s.BBV0A)
	assert.False(t, s.BBV0C)
	assert.True(t, s.BBFDA && s.BBFDC)
	assert.True(t, s.BGV0A, "V0A beam-gas comes from the previous BC")
	assert.True(t, s.BGFDA, "FDA beam-gas comes from 5 BCs back")
	assert.False(t, s.BGFDC)
	sel := s.Selection
	for _, bit := range []SelectionBit{IsBBV0A, IsBBFDA, IsBBFDC, NoBGFDC, IsBBT0A, IsBBT0C, NoBGT0C, IsTriggerTVX} {
		assert.True(t, sel.Has(bit), "%s should be set", bit)
	}
	for _, bit := range []SelectionBit{IsBBV0C, NoBGV0C, NoBGV0A, NoBGFDA, NoBGT0A, IsINT1} {
		assert.False(t, sel.Has(bit), "%s should be clear", bit)
	}
	assert.Equal(t, [5]float32{10, 0, 0, 0, 5}, s.MultRingV0A)
	assert.Equal(t, int32(1), s.FoundFT0)
	assert.Equal(t, int32(1), s.FoundFV0)
	assert.Equal(t, int32(1), s.FoundFDD)
	assert.Equal(t, NoSignal, s.FoundZDC)
	assert.Equal(t, 1, counter.Get(counterTVX, 300000))

	// With BC 995 gone nothing sits exactly 5 BCs back.
	b.BCs[0].GlobalBC = 994
	rc = testRunContext(t, b, testConfig(false), nil, testParams())
	s = rc.ClassifyBC(2)
	assert.False(t, s.BGFDA)
	assert.True(t, s.Selection.Has(NoBGFDA))
}

func TestPrecedingBC(t *testing.T) {
	bcs := []BunchCrossing{{GlobalBC: 1}, {GlobalBC: 2}, {GlobalBC: 3}, {GlobalBC: 4}, {GlobalBC: 5},
		{GlobalBC: 6}, {GlobalBC: 7}, {GlobalBC: 8}, {GlobalBC: 20}}
	assert.Equal(t, 6, precedingBC(bcs, 7, 1))
	assert.Equal(t, 2, precedingBC(bcs, 7, 5))
	assert.Equal(t, 1, precedingBC(bcs, 7, 6))
	assert.Equal(t, -1, precedingBC(bcs, 7, 7)) // beyond the lookback
	assert.Equal(t, -1, precedingBC(bcs, 8, 1))
	assert.Equal(t, -1, precedingBC(bcs, 0, 1))
}

func TestClassifyRun2(t *testing.T) {
	b := &Batch{}
	b.BCs = append(b.BCs, emptyBC(150000, 1000))
	addV0A(b, 0, []uint8{0, 8, 39}, []float32{30, 20, 10})
	addV0C(b, 0, []uint8{0, 9, 17, 24}, []float32{1, 2, 3, 40})
	addFDD(b, -20, 0)
	addZDC(b, 0, 0)
	b.BCs[0].TriggerMask = 1 << 2
	b.BCs[0].Run2 = &Run2Info{
		EventCuts:        1<<legacyTimeRangeCut | 1<<legacyIsTPCHVdip,
		SPDClustersL0:    5,
		SPDClustersL1:    6,
		SPDFiredChipsL0:  2,
		SPDFiredChipsL1:  3,
		SPDFiredFastOrL0: 1,
		SPDFiredFastOrL1: 1,
		V0TriggerChargeA: 50,
		V0TriggerChargeC: 30,
	}

	counter := NewMapCounter()
	rc := testRunContext(t, b, testConfig(true), counter, testParams())
	s := rc.ClassifyBC(0)
	assert.True(t, s.Alias.Has(AliasINT1))
	assert.True(t, s.BBV0A && s.BBV0C)
	assert.True(t, s.BGFDA, "legacy beam-gas uses the BC's own time")
	assert.Equal(t, uint32(11), s.SPDClusters)
	assert.Equal(t, [5]float32{30, 20, 0, 0, 10}, s.MultRingV0A)
	assert.Equal(t, [4]float32{1, 2, 3, 40}, s.MultRingV0C)

	sel := s.Selection
	// online 80 vs offline 30+20+10+46-30=76: 80 < 100+76.
	assert.False(t, sel.Has(NoV0MOnVsOfPileup))
	// online 2 vs offline 5.
	assert.False(t, sel.Has(NoSPDOnVsOfPileup))
	// ring 3 is 40 > 10 + 6.
	assert.True(t, sel.Has(NoV0Casymmetry))
	assert.True(t, sel.Has(IsGoodTimeRange))
	assert.False(t, sel.Has(NoTPCHVdip))
	assert.True(t, sel.Has(NoTPCLaserWarmUp))
	assert.False(t, sel.Has(NoIncompleteDAQ))
	assert.True(t, sel.Has(IsINT1))
	assert.True(t, sel.Has(IsBBZAC))
	assert.False(t, sel.Has(IsTriggerTVX))
	assert.False(t, sel.Has(NoBGT0A), "T0 beam-gas bits belong to the current layout")
	assert.Equal(t, 0, counter.Get(counterTVX, 150000))
}

func TestOnlineOfflineCuts(t *testing.T) {
	// Offline V0M is 30+20+10+46-30 = 76, offline SPD 5 and V0C rings 0-2 sum to 6.
	for _, tt := range []struct {
		name       string
		par        func(*CalibrationParameters)
		v0m, spd   bool
		asymmetric bool
	}{
		{"below every bound", func(p *CalibrationParameters) {
			p.V0MOnVsOf = LinearCut{A: 100, B: 1}
			p.SPDOnVsOf = LinearCut{A: 50, B: 1}
			p.V0Casym = LinearCut{A: 50, B: 1}
		}, false, false, false},
		{"above every bound", func(p *CalibrationParameters) {
			p.V0MOnVsOf = LinearCut{A: -59.56, B: 0.5}
			p.SPDOnVsOf = LinearCut{A: -10, B: 1}
			p.V0Casym = LinearCut{A: 10, B: 1}
		}, true, true, true},
		{"exactly on every bound", func(p *CalibrationParameters) {
			p.V0MOnVsOf = LinearCut{A: 4, B: 1}
			p.SPDOnVsOf = LinearCut{A: -3, B: 1}
			p.V0Casym = LinearCut{A: 34, B: 1}
		}, false, false, false},
	} {
		b := &Batch{BCs: []BunchCrossing{emptyBC(200000, 1000)}}
		addV0A(b, 0, []uint8{0, 8, 39}, []float32{30, 20, 10})
		addV0C(b, 0, []uint8{0, 9, 17, 24}, []float32{1, 2, 3, 40})
		b.BCs[0].Run2 = &Run2Info{
			SPDFiredChipsL0:  2,
			SPDFiredChipsL1:  3,
			SPDFiredFastOrL0: 1,
			SPDFiredFastOrL1: 1,
			V0TriggerChargeA: 50,
			V0TriggerChargeC: 30,
		}
		par := testParams()
		tt.par(par)
		sel := testRunContext(t, b, testConfig(true), nil, par).ClassifyBC(0).Selection
		assert.Equal(t, tt.v0m, sel.Has(NoV0MOnVsOfPileup), tt.name)
		assert.Equal(t, tt.spd, sel.Has(NoSPDOnVsOfPileup), tt.name)
		assert.Equal(t, tt.asymmetric, sel.Has(NoV0Casymmetry), tt.name)
	}
}

func TestLegacyCarryOverPolarity(t *testing.T) {
	for _, c := range legacyCarryOvers {
		var set, clear SelectionMask
		carryOverLegacyCuts(1<<c.source, &set)
		carryOverLegacyCuts(0, &clear)
		assert.Equal(t, !c.negate, set.Has(c.dest), "%s with source bit %d set", c.dest, c.source)
		assert.Equal(t, c.negate, clear.Has(c.dest), "%s with source bit %d clear", c.dest, c.source)
	}

	var m SelectionMask
	carryOverLegacyCuts(1<<legacyIsPileupFromSPD|1<<legacyPileUpMV, &m)
	assert.False(t, m.Has(NoPileupFromSPD))
	assert.True(t, m.Has(NoPileupMV))
	assert.True(t, m.Has(NoV0PFPileup))
	assert.False(t, m.Has(NoPileupTPC))
}
