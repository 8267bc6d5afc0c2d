package evsel

// Bit positions of the packed Run 2 event-cut word.
const (
	legacyINELgtZERO = iota
	legacyPileupInMultBins
	legacyConsistencySPDandTrackVertices
	legacyTrackletsVsClusters
	legacyNonZeroNContribs
	legacyIncompleteDAQ
	legacyPileUpMV
	legacyTPCPileUp
	legacyTimeRangeCut
	legacyEMCALEDCut
	legacyAliEventCutsAccepted
	legacyIsPileupFromSPD
	legacyIsV0PFPileup
	legacyIsTPCHVdip
	legacyIsTPCLaserWarmUp
)

// legacyCarryOver says which event-cut bit lands on which selection bit.
// Negated sources are "is bad" flags whose absence sets a "No..." bit.
type legacyCarryOver struct {
	source uint
	dest   SelectionBit
	negate bool
}

var legacyCarryOvers = []legacyCarryOver{
	{legacyTimeRangeCut, IsGoodTimeRange, false},
	{legacyIncompleteDAQ, NoIncompleteDAQ, false},
	{legacyIsTPCLaserWarmUp, NoTPCLaserWarmUp, true},
	{legacyIsTPCHVdip, NoTPCHVdip, true},
	{legacyIsPileupFromSPD, NoPileupFromSPD, true},
	{legacyIsV0PFPileup, NoV0PFPileup, true},
	{legacyConsistencySPDandTrackVertices, NoInconsistentVtx, false},
	{legacyPileupInMultBins, NoPileupInMultBins, false},
	{legacyPileUpMV, NoPileupMV, false},
	{legacyTPCPileUp, NoPileupTPC, false},
}

// carryOverLegacyCuts copies the packed event-cut bits into the selection mask.
func carryOverLegacyCuts(eventCuts uint32, sel *SelectionMask) {
	for _, c := range legacyCarryOvers {
		set := eventCuts&(1<<c.source) != 0
		sel.SetIf(c.dest, set != c.negate)
	}
}
