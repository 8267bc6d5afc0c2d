package evsel

import (
	"log"
	"os"
	"time"
)

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Gitdate string
	Date    string
	Host    string
	Summary string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.1",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// EvselStartTime is a global holding the time init() was run
var EvselStartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

// UpdateLogger will log batch summaries to a file
var UpdateLogger *log.Logger

// LHC machine constants used by the association step.
const (
	LHCMaxBunches     = 3564
	LHCRFFreqHz       = 400.789e6
	LHCBunchSpacingNS = 10 * 1.e9 / LHCRFFreqHz
)

// Runs at or above this number are data (or anchored simulation) with a known
// bunch-filling scheme.
const firstFilledRun = 500000

func init() {
	EvselStartTime = time.Now()

	// The evsel main program will override these, but at least initialize with sensible values
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
	UpdateLogger = log.New(os.Stderr, "", log.LstdFlags)
}
