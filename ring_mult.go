package evsel

const channelsPerRing = 8

// ringMultiplicity accumulates amplitude per ring into rings, and returns the
// total amplitude over all accepted channels. With foldOuter set, the sixth ring
// (the second half of the 16-channel outermost ring) is added to the last ring.
// Channels mapping beyond the rings are dropped.
func ringMultiplicity(sig *FV0Signal, rings []float32, foldOuter bool) (total float32) {
	if sig == nil {
		return 0
	}
	n := len(sig.Channels)
	if len(sig.Amplitudes) < n {
		n = len(sig.Amplitudes)
	}
	for i := 0; i < n; i++ {
		ring := int(sig.Channels[i]) / channelsPerRing
		if foldOuter && ring == len(rings) {
			ring = len(rings) - 1
		}
		if ring >= len(rings) {
			continue
		}
		rings[ring] += sig.Amplitudes[i]
		total += sig.Amplitudes[i]
	}
	return total
}
