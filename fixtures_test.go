package evsel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

var alwaysValid = ValidityRange{Start: 0, End: 1 << 50}

// testParams returns thresholds with every beam-beam window at (-5, 5) ns and
// every beam-gas window at (-30, -15) ns.
func testParams() *CalibrationParameters {
	bb := Window{Lower: -5, Upper: 5}
	bg := Window{Lower: -30, Upper: -15}
	return &CalibrationParameters{
		Valid: alwaysValid,
		V0ABB: bb, V0ABG: bg, V0CBB: bb, V0CBG: bg,
		FDABB: bb, FDABG: bg, FDCBB: bb, FDCBG: bg,
		T0ABB: bb, T0ABG: bg, T0CBB: bb, T0CBG: bg,
		ZNABB: Window{Lower: -2, Upper: 2}, ZNABG: Window{Lower: 5, Upper: 100},
		ZNCBB: Window{Lower: -2, Upper: 2}, ZNCBG: Window{Lower: 5, Upper: 100},
		ZN:          Ellipse{SumMean: 0, SumSigma: 2, DifMean: 0, DifSigma: 2},
		V0MOnVsOf:   LinearCut{A: 100, B: 1},
		SPDOnVsOf:   LinearCut{A: 50, B: 1},
		V0Casym:     LinearCut{A: 10, B: 1},
		SPDClsVsTkl: LinearCut{A: 65, B: 4},
		V0C012vsTkl: LinearCut{A: 150, B: 20},
	}
}

func testAliases() *TriggerAliasTable {
	return &TriggerAliasTable{
		Valid: alwaysValid,
		Entries: []AliasEntry{
			{Alias: AliasINT7, Mask: 1 << 0},
			{Alias: AliasEMC7, Mask: 1 << 1},
			{Alias: AliasINT1, Mask: 1 << 2},
			{Alias: AliasCUP8, MaskNext50: 1 << 3},
		},
	}
}

func allColliding() *BunchFilling {
	slots := make([]int, LHCMaxBunches)
	for i := range slots {
		slots[i] = i
	}
	return NewBunchFilling(alwaysValid, slots)
}

// emptyBC is a BC with no detector signal at all.
func emptyBC(run int, globalBC uint64) BunchCrossing {
	return BunchCrossing{
		GlobalBC:  globalBC,
		RunNumber: run,
		Timestamp: 1000,
		FT0ID:     NoSignal,
		FV0AID:    NoSignal,
		FV0CID:    NoSignal,
		FDDID:     NoSignal,
		ZDCID:     NoSignal,
	}
}

// addFT0 attaches an FT0 signal to the last BC of b.
func addFT0(b *Batch, timeA, timeC float32, tvx bool) {
	var mask uint8
	if tvx {
		mask = 1 << ft0VertexBit
	}
	b.BCs[len(b.BCs)-1].FT0ID = int32(len(b.FT0s))
	b.FT0s = append(b.FT0s, FT0Signal{TimeA: timeA, TimeC: timeC, TriggerMask: mask})
}

func addV0A(b *Batch, time float32, channels []uint8, amplitudes []float32) {
	b.BCs[len(b.BCs)-1].FV0AID = int32(len(b.FV0A))
	b.FV0A = append(b.FV0A, FV0Signal{Time: time, Channels: channels, Amplitudes: amplitudes})
}

func addV0C(b *Batch, time float32, channels []uint8, amplitudes []float32) {
	b.BCs[len(b.BCs)-1].FV0CID = int32(len(b.FV0C))
	b.FV0C = append(b.FV0C, FV0Signal{Time: time, Channels: channels, Amplitudes: amplitudes})
}

func addFDD(b *Batch, timeA, timeC float32) {
	b.BCs[len(b.BCs)-1].FDDID = int32(len(b.FDDs))
	b.FDDs = append(b.FDDs, FDDSignal{TimeA: timeA, TimeC: timeC})
}

func addZDC(b *Batch, zna, znc float32) {
	b.BCs[len(b.BCs)-1].ZDCID = int32(len(b.ZDCs))
	b.ZDCs = append(b.ZDCs, ZDCSignal{TimeZNA: zna, TimeZNC: znc})
}

func testCache(t *testing.T, objects ...Calibration) *CalibrationCache {
	t.Helper()
	store, err := NewStaticStore(objects...)
	require.NoError(t, err)
	return NewCalibrationCache(store)
}

func testConfig(legacy bool) Config {
	cfg := DefaultConfig()
	cfg.LegacyRun2 = legacy
	cfg.Workers = 2
	return cfg
}

// testRunContext prepares batch with the test calibration.
func testRunContext(t *testing.T, batch *Batch, cfg Config, counter Counter, params *CalibrationParameters) *RunContext {
	t.Helper()
	cache := testCache(t, params, testAliases(), allColliding())
	rc, err := NewRunContext(context.Background(), cache, batch, cfg, counter)
	require.NoError(t, err)
	return rc
}
