package evsel

import (
	"math"
	"sort"
)

// BCIndex is a set of BCs ordered by strictly increasing global BC, used for
// closest-BC searches. It is read-only once built.
type BCIndex struct {
	keys  []int64
	local []int
}

// Len returns the number of entries.
func (x *BCIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.keys)
}

// add appends an entry. Keys must be added in increasing order.
func (x *BCIndex) add(globalBC int64, local int) {
	x.keys = append(x.keys, globalBC)
	x.local = append(x.local, local)
}

// NewBCIndex builds an index from parallel slices of increasing keys and local BC indices.
func NewBCIndex(keys []int64, local []int) *BCIndex {
	x := &BCIndex{}
	for i := range keys {
		x.add(keys[i], local[i])
	}
	return x
}

// FindClosest returns the entry whose key is closest to key. Of the first key not
// less than key and its predecessor, the closer one wins and a tie goes to the
// not-less-than key. Keys beyond either end resolve to the nearest end entry.
// ok is false only for an empty index.
func (x *BCIndex) FindClosest(key int64) (local int, globalBC int64, ok bool) {
	n := x.Len()
	if n == 0 {
		return -1, 0, false
	}
	pos := sort.Search(n, func(i int) bool { return x.keys[i] >= key })
	if pos == n {
		return x.local[n-1], x.keys[n-1], true
	}
	if pos > 0 && key-x.keys[pos-1] < x.keys[pos]-key {
		pos--
	}
	return x.local[pos], x.keys[pos], true
}

// MatchWindow is the inclusive global-BC range [Mean-Delta, Mean+Delta] in which
// a collision's BC is searched for.
type MatchWindow struct {
	Mean  int64
	Delta int64
}

// Accepts reports whether globalBC lies in the window, bounds included.
func (w MatchWindow) Accepts(globalBC int64) bool {
	return globalBC >= w.Mean-w.Delta && globalBC <= w.Mean+w.Delta
}

// trackSummary counts the primary-vertex contributors by timing detector.
type trackSummary struct {
	nContrib int
	nITS     int
	nTPC     int
	nTOF     int
	nTRD     int // TRD-matched without TOF
	timeTOF  float64
	timeTRD  float64
}

func summarizeTracks(tracks []Track) trackSummary {
	var s trackSummary
	for _, t := range tracks {
		if !t.PVContributor {
			continue
		}
		s.nContrib++
		if t.HasITS {
			s.nITS++
		}
		if t.HasTPC {
			s.nTPC++
		}
		if t.HasTOF {
			s.nTOF++
			s.timeTOF += t.Time
		} else if t.HasTRD {
			s.nTRD++
			s.timeTRD += t.Time
		}
	}
	return s
}

// searchWindow computes the window for a collision whose estimated BC is
// estimatedBC. Precise track timing moves the centre and narrows the window.
// customDelta > 0 replaces the resolution-derived half-width.
func searchWindow(estimatedBC int64, c *Collision, s trackSummary, customDelta int) MatchWindow {
	w := MatchWindow{
		Mean:  estimatedBC,
		Delta: int64(math.Ceil(c.TimeResolution / LHCBunchSpacingNS * 4)),
	}
	if customDelta > 0 {
		w.Delta = int64(customDelta)
	}
	switch {
	case s.nTRD > 0:
		w.Mean += int64(math.Round(s.timeTRD / float64(s.nTRD) / LHCBunchSpacingNS))
		w.Delta = 0
	case s.nTOF > 0:
		w.Mean += int64(math.Floor(s.timeTOF / float64(s.nTOF) / LHCBunchSpacingNS))
		w.Delta = 4
	case s.nTPC > 0:
		w.Delta += 30
	}
	return w
}

// closestInWindow searches the primary index, then the secondary one, and returns
// the local index of the first closest match inside w, or -1.
func closestInWindow(w MatchWindow, indices ...*BCIndex) int {
	for _, x := range indices {
		local, globalBC, ok := x.FindClosest(w.Mean)
		if ok && w.Accepts(globalBC) {
			return local
		}
	}
	return -1
}

// buildIndices collects the BCs with the vertex trigger (primary) and those with
// a beam-beam signal on either FT0 side (secondary). BCs outside the colliding
// bunch slots are left out when a filling scheme applies.
func (rc *RunContext) buildIndices(sels []BCSelection) (tvx, tor *BCIndex) {
	tvx, tor = &BCIndex{}, &BCIndex{}
	for i := range sels {
		g := rc.Batch.BCs[i].GlobalBC
		if rc.Filling != nil && !rc.Filling.IsColliding(g) {
			continue
		}
		sel := sels[i].Selection
		if sel.Has(IsBBT0A) || sel.Has(IsBBT0C) {
			tor.add(int64(g), i)
		}
		if sel.Has(IsTriggerTVX) {
			tvx.add(int64(g), i)
		}
	}
	return tvx, tor
}
