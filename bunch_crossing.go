package evsel

// NoSignal marks an absent detector signal (and an unmatched BC) in every index field.
const NoSignal int32 = -1

// absentTime is assigned to every timing channel whose signal is missing. It lies
// outside every physical window, so all window tests on it fail.
const absentTime float32 = -999

// Run2Info holds the legacy per-BC quantities only present in Run 2 data.
type Run2Info struct {
	EventCuts        uint32 // packed legacy event-cut word, see legacy_cuts.go
	SPDClustersL0    uint32
	SPDClustersL1    uint32
	SPDFiredChipsL0  uint32
	SPDFiredChipsL1  uint32
	SPDFiredFastOrL0 uint32
	SPDFiredFastOrL1 uint32
	V0TriggerChargeA float32
	V0TriggerChargeC float32
}

// BunchCrossing is one accelerator clock tick with its raw trigger word and
// references into the detector signal tables of its Batch.
type BunchCrossing struct {
	GlobalBC          uint64
	RunNumber         int
	Timestamp         int64 // ms since the epoch
	TriggerMask       uint64
	TriggerMaskNext50 uint64
	FT0ID             int32
	FV0AID            int32
	FV0CID            int32
	FDDID             int32
	ZDCID             int32
	Run2              *Run2Info
}

// FT0Signal is a reconstructed FT0 (T0) hit.
type FT0Signal struct {
	TimeA       float32
	TimeC       float32
	TriggerMask uint8
}

// ft0VertexBit is the FT0 trigger-word bit of the vertex (TVX) trigger.
const ft0VertexBit = 2

// FV0Signal is a reconstructed V0 hit. Channels and Amplitudes are parallel slices.
type FV0Signal struct {
	Time       float32
	Channels   []uint8
	Amplitudes []float32
}

// FDDSignal is a reconstructed FDD hit.
type FDDSignal struct {
	TimeA float32
	TimeC float32
}

// ZDCSignal is a reconstructed ZDC neutron-calorimeter hit.
type ZDCSignal struct {
	TimeZNA float32
	TimeZNC float32
}

// Batch is one run's worth of BCs and the detector tables they refer to.
// BCs must be ordered by strictly increasing GlobalBC.
type Batch struct {
	BCs  []BunchCrossing
	FT0s []FT0Signal
	FV0A []FV0Signal
	FV0C []FV0Signal
	FDDs []FDDSignal
	ZDCs []ZDCSignal
}

func lookup[T any](table []T, id int32) *T {
	if id < 0 || int(id) >= len(table) {
		return nil
	}
	return &table[id]
}

// FT0 returns the FT0 signal of BC i, or nil when absent.
func (b *Batch) FT0(i int) *FT0Signal { return lookup(b.FT0s, b.BCs[i].FT0ID) }

// V0A returns the V0A signal of BC i, or nil when absent.
func (b *Batch) V0A(i int) *FV0Signal { return lookup(b.FV0A, b.BCs[i].FV0AID) }

// V0C returns the V0C signal of BC i, or nil when absent.
func (b *Batch) V0C(i int) *FV0Signal { return lookup(b.FV0C, b.BCs[i].FV0CID) }

// FDD returns the FDD signal of BC i, or nil when absent.
func (b *Batch) FDD(i int) *FDDSignal { return lookup(b.FDDs, b.BCs[i].FDDID) }

// ZDC returns the ZDC signal of BC i, or nil when absent.
func (b *Batch) ZDC(i int) *ZDCSignal { return lookup(b.ZDCs, b.BCs[i].ZDCID) }

// foundID returns id if it refers to a present entry of a table of length n.
func foundID(id int32, n int) int32 {
	if id < 0 || int(id) >= n {
		return NoSignal
	}
	return id
}

// Track is the timing-relevant summary of one reconstructed track.
type Track struct {
	PVContributor bool
	HasITS        bool
	HasTPC        bool
	HasTOF        bool
	HasTRD        bool
	Time          float64 // ns, relative to the collision's estimated BC
}

// Collision is one reconstructed event with an imprecise BC estimate.
type Collision struct {
	BCIndex        int     // local index of the estimated BC
	TimeResolution float64 // ns
	Tracks         []Track
	NTracklets     int // legacy SPD tracklets
}

// BCSelection is the per-BC output record. Field order is the record layout.
type BCSelection struct {
	Alias       AliasMask
	Selection   SelectionMask
	BBV0A       bool
	BBV0C       bool
	BGV0A       bool
	BGV0C       bool
	BBFDA       bool
	BBFDC       bool
	BGFDA       bool
	BGFDC       bool
	MultRingV0A [5]float32
	MultRingV0C [4]float32
	SPDClusters uint32
	FoundFT0    int32
	FoundFV0    int32
	FoundFDD    int32
	FoundZDC    int32
}

// EventSelection is the per-collision output record.
type EventSelection struct {
	Alias       AliasMask
	Selection   SelectionMask
	BBV0A       bool
	BBV0C       bool
	BGV0A       bool
	BGV0C       bool
	BBFDA       bool
	BBFDC       bool
	BGFDA       bool
	BGFDC       bool
	MultRingV0A [5]float32
	MultRingV0C [4]float32
	SPDClusters uint32
	NContrib    int32
	Sel7        bool
	Sel8        bool
	Sel1        bool
	FoundBC     int32
	FoundFT0    int32
	FoundFV0    int32
	FoundFDD    int32
	FoundZDC    int32
}

// unmatchedEvent is the record of a collision with no BC in its acceptance window.
func unmatchedEvent() EventSelection {
	return EventSelection{
		FoundBC:  NoSignal,
		FoundFT0: NoSignal,
		FoundFV0: NoSignal,
		FoundFDD: NoSignal,
		FoundZDC: NoSignal,
	}
}

// eventFromBC copies the BC-level decisions of BC index bcIndex into an event record.
func eventFromBC(bcIndex int, sel *BCSelection) EventSelection {
	return EventSelection{
		Alias:       sel.Alias,
		Selection:   sel.Selection,
		BBV0A:       sel.BBV0A,
		BBV0C:       sel.BBV0C,
		BGV0A:       sel.BGV0A,
		BGV0C:       sel.BGV0C,
		BBFDA:       sel.BBFDA,
		BBFDC:       sel.BBFDC,
		BGFDA:       sel.BGFDA,
		BGFDC:       sel.BGFDC,
		MultRingV0A: sel.MultRingV0A,
		MultRingV0C: sel.MultRingV0C,
		SPDClusters: sel.SPDClusters,
		FoundBC:     int32(bcIndex),
		FoundFT0:    sel.FoundFT0,
		FoundFV0:    sel.FoundFV0,
		FoundFDD:    sel.FoundFDD,
		FoundZDC:    sel.FoundZDC,
	}
}
