package evsel

// Tracklet-dependent cuts only apply below this many tracklets.
const maxTrackletsForV0CCut = 6

// IsINT1Period reports whether run was taken with the INT1 (SPD or V0A or V0C)
// minimum-bias trigger of the 2010 and 2011 pp periods.
func IsINT1Period(run int) bool {
	return run <= 136377 || (run >= 144871 && run <= 159582)
}

// Decisions are the composite accept flags of one event.
type Decisions struct {
	Sel7 bool // every recipe bit set
	Sel8 bool // beam-beam on both FT0 sides
	Sel1 bool // INT1 without V0 beam-gas or TPC problems
}

// Decide computes the composite flags of a selection word under recipe.
func Decide(sel SelectionMask, recipe Recipe) Decisions {
	required := recipe.Mask()
	return Decisions{
		Sel7: sel&required == required,
		Sel8: sel.Has(IsBBT0A) && sel.Has(IsBBT0C),
		Sel1: sel.Has(IsINT1) && sel.Has(NoBGV0A) && sel.Has(NoBGV0C) &&
			sel.Has(NoTPCLaserWarmUp) && sel.Has(NoTPCHVdip),
	}
}

// trackletCuts sets the tracklet-dependent background bits of the legacy path.
func trackletCuts(par *CalibrationParameters, evt *EventSelection, nTkl int) {
	tkl := float32(nTkl)
	multV0C012 := evt.MultRingV0C[0] + evt.MultRingV0C[1] + evt.MultRingV0C[2]
	evt.Selection.SetIf(NoSPDClsVsTklBG, float32(evt.SPDClusters) < par.SPDClsVsTkl.Bound(tkl))
	evt.Selection.SetIf(NoV0C012vsTklBG,
		!(nTkl < maxTrackletsForV0CCut && multV0C012 > par.V0C012vsTkl.Bound(tkl)))
}

// recipeFor returns the active bits for the BC with calibration par.
func (rc *RunContext) recipeFor(par *CalibrationParameters) Recipe {
	r := par.Recipe(rc.Mode)
	if rc.Simulation {
		r = r.ForSimulation()
	}
	return r
}

func (rc *RunContext) applyDecisions(evt *EventSelection, d Decisions) {
	evt.Sel7 = d.Sel7
	evt.Sel8 = d.Sel8
	evt.Sel1 = d.Sel1
}

// countCollision fills the collision counters for one event.
func (rc *RunContext) countCollision(evt *EventSelection) {
	if rc.counter == nil {
		return
	}
	if !rc.Legacy {
		rc.counter.Inc(counterColAll, rc.Run)
		if evt.Sel8 {
			rc.counter.Inc(counterColAcc, rc.Run)
		}
		return
	}
	int1 := IsINT1Period(rc.Run)
	if rc.Simulation || (!int1 && evt.Alias.Has(AliasINT7)) || (int1 && evt.Alias.Has(AliasINT1)) {
		rc.counter.Inc(counterColAll, rc.Run)
		if (!int1 && evt.Sel7) || (int1 && evt.Sel1) {
			rc.counter.Inc(counterColAcc, rc.Run)
		}
	}
}

// SelectEvent associates collision c to a BC and computes its event record.
// tvx and tor are the primary and secondary association indices; the legacy path
// ignores them and keeps the collision's own BC.
func (rc *RunContext) SelectEvent(c *Collision, sels []BCSelection, tvx, tor *BCIndex) EventSelection {
	if c.BCIndex < 0 || c.BCIndex >= len(sels) {
		evt := unmatchedEvent()
		rc.countCollision(&evt)
		return evt
	}
	if rc.Legacy {
		return rc.selectRun2(c, sels)
	}
	return rc.selectRun3(c, sels, tvx, tor)
}

func (rc *RunContext) selectRun3(c *Collision, sels []BCSelection, tvx, tor *BCIndex) EventSelection {
	s := summarizeTracks(c.Tracks)
	w := searchWindow(int64(rc.Batch.BCs[c.BCIndex].GlobalBC), c, s, rc.CustomDeltaBC)
	evt := unmatchedEvent()
	par := rc.params[c.BCIndex]
	if j := closestInWindow(w, tvx, tor); j >= 0 {
		evt = eventFromBC(j, &sels[j])
		par = rc.params[j]
	}
	evt.NContrib = int32(s.nContrib)
	rc.applyDecisions(&evt, Decide(evt.Selection, rc.recipeFor(par)))
	rc.countCollision(&evt)
	return evt
}

func (rc *RunContext) selectRun2(c *Collision, sels []BCSelection) EventSelection {
	j := c.BCIndex
	par := rc.params[j]
	evt := eventFromBC(j, &sels[j])
	evt.NContrib = int32(c.NTracklets)
	trackletCuts(par, &evt, c.NTracklets)
	rc.applyDecisions(&evt, Decide(evt.Selection, rc.recipeFor(par)))
	rc.countCollision(&evt)
	return evt
}
