package chsink

import "time"

// The composite types written to the ClickHouse database, besides the per-BC and
// per-event rows themselves.

// ActivityMessage is the information for the evselactivity table: one row per
// processing session.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// BatchMessage is the information for the batches table.
type BatchMessage struct {
	ID         string
	ActivityID string
	Run        int
	NBCs       int
	NEvents    int
	NAccepted  int
	Start      time.Time
	End        time.Time
}
