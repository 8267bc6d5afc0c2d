package evsel

// AutoTriggerBCShift selects the run-number derived trigger BC shift.
const AutoTriggerBCShift = -1

// latencyShiftBCs is the trigger-latency offset of the affected 2022 pp periods.
const latencyShiftBCs = 294

// runRange is an inclusive range of run numbers.
type runRange struct {
	first, last int
}

func (r runRange) contains(run int) bool {
	return run >= r.first && run <= r.last
}

// unshiftedRuns lists the run ranges whose trigger words are correctly aligned.
// Runs outside every range carry the latency offset.
var unshiftedRuns = []runRange{
	{0, 526766},
	{527259, 527518},
	{527523, 527523},
	{527734, 527734},
}

// TriggerBCShift returns the number of BCs between a BC and the BC that holds
// its trigger information for the given run.
func TriggerBCShift(run int) int {
	for _, r := range unshiftedRuns {
		if r.contains(run) {
			return 0
		}
	}
	return latencyShiftBCs
}

// EffectiveTriggerBCShift applies a configured shift, or derives it from the run
// when configured is negative.
func EffectiveTriggerBCShift(configured, run int) int {
	if configured >= 0 {
		return configured
	}
	return TriggerBCShift(run)
}

// DecodeAliases returns the aliases fired by the raw trigger words. AliasALL is always set.
func DecodeAliases(table *TriggerAliasTable, mask, maskNext50 uint64) AliasMask {
	alias := AliasMask(1) << uint(AliasALL)
	if table == nil {
		return alias
	}
	for _, e := range table.Entries {
		if mask&e.Mask != 0 || maskNext50&e.MaskNext50 != 0 {
			alias |= 1 << uint(e.Alias)
		}
	}
	return alias
}

// GlobalBCMap is an exact-match lookup from global BC number to local BC index.
type GlobalBCMap map[uint64]int

// NewGlobalBCMap indexes every BC of bcs by its global BC number.
func NewGlobalBCMap(bcs []BunchCrossing) GlobalBCMap {
	m := make(GlobalBCMap, len(bcs))
	for i := range bcs {
		m[bcs[i].GlobalBC] = i
	}
	return m
}

// shiftedTriggerAliases decodes the trigger word found shift BCs after BC i. When
// no BC carries that global BC number only AliasALL is set.
func shiftedTriggerAliases(batch *Batch, bcmap GlobalBCMap, i, shift int, table *TriggerAliasTable) AliasMask {
	target := uint64(int64(batch.BCs[i].GlobalBC) + int64(shift))
	j, ok := bcmap[target]
	if !ok {
		return DecodeAliases(nil, 0, 0)
	}
	return DecodeAliases(table, batch.BCs[j].TriggerMask, batch.BCs[j].TriggerMaskNext50)
}
