package evsel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Beam-gas interactions upstream of a detector arrive in an earlier BC. These
// are the distances back to the BC whose signals are tested against BG windows.
const (
	bgLookbackV0T0 = 1
	bgLookbackFDD  = 5
	maxLookback    = 6
)

// counterTVX counts BCs with the FT0 vertex trigger, per run.
const counterTVX = "hCounterTVX"

// QuadraticForm returns the squared Mahalanobis distance of (sum, dif) from the
// ellipse centre, with the two axes uncorrelated.
func (e Ellipse) QuadraticForm(sum, dif float32) float64 {
	d := mat.NewVecDense(2, []float64{
		float64(sum - e.SumMean),
		float64(dif - e.DifMean),
	})
	ss, sd := float64(e.SumSigma), float64(e.DifSigma)
	invCov := mat.NewDiagDense(2, []float64{1 / (ss * ss), 1 / (sd * sd)})
	return mat.Inner(d, invCov, d)
}

// Contains reports whether (sum, dif) lies strictly inside the ellipse. An ellipse
// with non-positive sigmas contains nothing.
func (e Ellipse) Contains(sum, dif float32) bool {
	if !(e.SumSigma > 0) || !(e.DifSigma > 0) {
		return false
	}
	return e.QuadraticForm(sum, dif) < 1
}

func v0Time(s *FV0Signal) float32 {
	if s == nil {
		return absentTime
	}
	return s.Time
}

func ft0Times(s *FT0Signal) (a, c float32) {
	if s == nil {
		return absentTime, absentTime
	}
	return s.TimeA, s.TimeC
}

func fddTimes(s *FDDSignal) (a, c float32) {
	if s == nil {
		return absentTime, absentTime
	}
	return s.TimeA, s.TimeC
}

func zdcTimes(s *ZDCSignal) (zna, znc float32) {
	if s == nil {
		return absentTime, absentTime
	}
	return s.TimeZNA, s.TimeZNC
}

func abs32(x float32) float32 {
	return float32(math.Abs(float64(x)))
}

// classifyZDC sets the neutron-calorimeter bits. Beam-gas windows apply to |t|.
func classifyZDC(par *CalibrationParameters, zdc *ZDCSignal, sel *SelectionMask) {
	zna, znc := zdcTimes(zdc)
	sel.SetIf(IsBBZNA, par.ZNABB.Contains(zna))
	sel.SetIf(IsBBZNC, par.ZNCBB.Contains(znc))
	sel.SetIf(IsBBZAC, zdc != nil && par.ZN.Contains(zna+znc, zna-znc))
	sel.SetIf(NoBGZNA, !(zdc != nil && par.ZNABG.Contains(abs32(zna))))
	sel.SetIf(NoBGZNC, !(zdc != nil && par.ZNCBG.Contains(abs32(znc))))
}

// classifyFT0 sets the T0 beam-beam bits and the vertex trigger bit.
func classifyFT0(par *CalibrationParameters, ft0 *FT0Signal, sel *SelectionMask) {
	t0a, t0c := ft0Times(ft0)
	sel.SetIf(IsBBT0A, par.T0ABB.Contains(t0a))
	sel.SetIf(IsBBT0C, par.T0CBB.Contains(t0c))
	sel.SetIf(IsTriggerTVX, ft0 != nil && ft0.TriggerMask&(1<<ft0VertexBit) != 0)
}

// precedingBC returns the index of the BC exactly delta global BCs before BC i,
// or -1. Only the maxLookback preceding entries are examined.
func precedingBC(bcs []BunchCrossing, i int, delta uint64) int {
	g := bcs[i].GlobalBC
	for k := 1; k <= maxLookback && i-k >= 0; k++ {
		prev := bcs[i-k].GlobalBC
		if prev+delta == g {
			return i - k
		}
		if prev+delta < g {
			break
		}
	}
	return -1
}

// foundIndices fills the detector back-references of BC i.
func foundIndices(b *Batch, i int, out *BCSelection) {
	bc := &b.BCs[i]
	out.FoundFT0 = foundID(bc.FT0ID, len(b.FT0s))
	out.FoundFV0 = foundID(bc.FV0AID, len(b.FV0A))
	out.FoundFDD = foundID(bc.FDDID, len(b.FDDs))
	out.FoundZDC = foundID(bc.ZDCID, len(b.ZDCs))
}

// classifyRun3 classifies BC i of the current detector layout. Aliases come from
// the trigger-shifted BC, beam-gas windows are tested on earlier BCs, and there is
// no V0C.
func (rc *RunContext) classifyRun3(i int) BCSelection {
	b := rc.Batch
	par := rc.params[i]
	out := BCSelection{
		Alias: shiftedTriggerAliases(b, rc.bcmap, i, rc.TriggerShift, rc.aliases[i]),
	}
	foundIndices(b, i, &out)

	timeV0A := v0Time(b.V0A(i))
	timeFDA, timeFDC := fddTimes(b.FDD(i))
	timeV0ABG, timeT0ABG, timeT0CBG := absentTime, absentTime, absentTime
	timeFDABG, timeFDCBG := absentTime, absentTime
	if j := precedingBC(b.BCs, i, bgLookbackV0T0); j >= 0 {
		timeV0ABG = v0Time(b.V0A(j))
		timeT0ABG, timeT0CBG = ft0Times(b.FT0(j))
	}
	if j := precedingBC(b.BCs, i, bgLookbackFDD); j >= 0 {
		timeFDABG, timeFDCBG = fddTimes(b.FDD(j))
	}

	out.BBV0A = par.V0ABB.Contains(timeV0A)
	out.BBFDA = par.FDABB.Contains(timeFDA)
	out.BBFDC = par.FDCBB.Contains(timeFDC)
	out.BGV0A = par.V0ABG.Contains(timeV0ABG)
	out.BGFDA = par.FDABG.Contains(timeFDABG)
	out.BGFDC = par.FDCBG.Contains(timeFDCBG)
	bgT0A := par.T0ABG.Contains(timeT0ABG)
	bgT0C := par.T0CBG.Contains(timeT0CBG)

	sel := &out.Selection
	sel.SetIf(IsBBV0A, out.BBV0A)
	sel.SetIf(IsBBFDA, out.BBFDA)
	sel.SetIf(IsBBFDC, out.BBFDC)
	sel.SetIf(NoBGV0A, !out.BGV0A)
	sel.SetIf(NoBGFDA, !out.BGFDA)
	sel.SetIf(NoBGFDC, !out.BGFDC)
	sel.SetIf(NoBGT0A, !bgT0A)
	sel.SetIf(NoBGT0C, !bgT0C)
	classifyFT0(par, b.FT0(i), sel)
	classifyZDC(par, b.ZDC(i), sel)

	ringMultiplicity(b.V0A(i), out.MultRingV0A[:], true)
	rc.countTVX(out.Selection)
	return out
}

// classifyRun2 classifies BC i of the legacy detector layout. All timing tests use
// the BC's own signals, and the legacy SPD and event-cut information is folded in.
func (rc *RunContext) classifyRun2(i int) BCSelection {
	b := rc.Batch
	bc := &b.BCs[i]
	par := rc.params[i]
	out := BCSelection{
		Alias: DecodeAliases(rc.aliases[i], bc.TriggerMask, bc.TriggerMaskNext50),
	}
	foundIndices(b, i, &out)

	timeV0A := v0Time(b.V0A(i))
	timeV0C := v0Time(b.V0C(i))
	timeFDA, timeFDC := fddTimes(b.FDD(i))

	out.BBV0A = par.V0ABB.Contains(timeV0A)
	out.BBV0C = par.V0CBB.Contains(timeV0C)
	out.BBFDA = par.FDABB.Contains(timeFDA)
	out.BBFDC = par.FDCBB.Contains(timeFDC)
	out.BGV0A = par.V0ABG.Contains(timeV0A)
	out.BGV0C = par.V0CBG.Contains(timeV0C)
	out.BGFDA = par.FDABG.Contains(timeFDA)
	out.BGFDC = par.FDCBG.Contains(timeFDC)

	sel := &out.Selection
	sel.SetIf(IsBBV0A, out.BBV0A)
	sel.SetIf(IsBBV0C, out.BBV0C)
	sel.SetIf(IsBBFDA, out.BBFDA)
	sel.SetIf(IsBBFDC, out.BBFDC)
	sel.SetIf(NoBGV0A, !out.BGV0A)
	sel.SetIf(NoBGV0C, !out.BGV0C)
	sel.SetIf(NoBGFDA, !out.BGFDA)
	sel.SetIf(NoBGFDC, !out.BGFDC)
	classifyFT0(par, b.FT0(i), sel)
	classifyZDC(par, b.ZDC(i), sel)

	multFV0A := ringMultiplicity(b.V0A(i), out.MultRingV0A[:], false)
	multFV0C := ringMultiplicity(b.V0C(i), out.MultRingV0C[:], false)

	var info Run2Info
	if bc.Run2 != nil {
		info = *bc.Run2
	}
	out.SPDClusters = info.SPDClustersL0 + info.SPDClustersL1

	// The online V0 charge excludes V0A ring 0, so the offline sum does too.
	ofV0M := multFV0A + multFV0C - out.MultRingV0A[0]
	onV0M := info.V0TriggerChargeA + info.V0TriggerChargeC
	ofSPD := float32(info.SPDFiredChipsL0 + info.SPDFiredChipsL1)
	onSPD := float32(info.SPDFiredFastOrL0 + info.SPDFiredFastOrL1)
	multV0C012 := out.MultRingV0C[0] + out.MultRingV0C[1] + out.MultRingV0C[2]

	// Bit layout is fixed by existing consumers: each bit is set when the online
	// estimate exceeds the calibrated bound.
	sel.SetIf(NoV0MOnVsOfPileup, onV0M > par.V0MOnVsOf.Bound(ofV0M))
	sel.SetIf(NoSPDOnVsOfPileup, onSPD > par.SPDOnVsOf.Bound(ofSPD))
	sel.SetIf(NoV0Casymmetry, out.MultRingV0C[3] > par.V0Casym.Bound(multV0C012))

	carryOverLegacyCuts(info.EventCuts, sel)
	sel.SetIf(IsINT1, out.BBV0A || out.BBV0C || ofSPD > 0)

	rc.countTVX(out.Selection)
	return out
}

func (rc *RunContext) countTVX(sel SelectionMask) {
	if rc.counter != nil && sel.Has(IsTriggerTVX) {
		rc.counter.Inc(counterTVX, rc.Run)
	}
}

// ClassifyBC computes the selection record of BC i.
func (rc *RunContext) ClassifyBC(i int) BCSelection {
	if rc.Legacy {
		return rc.classifyRun2(i)
	}
	return rc.classifyRun3(i)
}
