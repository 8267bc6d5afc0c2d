package evsel

import (
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the processing options found under the "evsel" configuration key.
type Config struct {
	TriggerBCShift int    `mapstructure:"triggerBcShift"` // negative or 999 means derive from the run number
	ModeName       string `mapstructure:"mode"`
	Simulation     bool   `mapstructure:"simulation"`
	CustomDeltaBC  int    `mapstructure:"customDeltaBC"` // 0 means derive from the collision time resolution
	LegacyRun2     bool   `mapstructure:"legacyRun2"`
	Workers        int    `mapstructure:"workers"`

	Mode Mode `mapstructure:"-"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		TriggerBCShift: AutoTriggerBCShift,
		ModeName:       Barrel.String(),
		Workers:        runtime.NumCPU(),
		Mode:           Barrel,
	}
}

// SetConfigDefaults registers the default values of every "evsel" key with viper.
func SetConfigDefaults() {
	d := DefaultConfig()
	viper.SetDefault("evsel.triggerBcShift", d.TriggerBCShift)
	viper.SetDefault("evsel.mode", d.ModeName)
	viper.SetDefault("evsel.simulation", d.Simulation)
	viper.SetDefault("evsel.customDeltaBC", d.CustomDeltaBC)
	viper.SetDefault("evsel.legacyRun2", d.LegacyRun2)
	viper.SetDefault("evsel.workers", d.Workers)
}

// LoadConfig reads the "evsel" key of the active viper configuration.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := viper.UnmarshalKey("evsel", &cfg); err != nil {
		return cfg, fmt.Errorf("could not read evsel configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// autoShiftSentinel is how older configurations ask for the run-derived shift.
const autoShiftSentinel = 999

// Validate parses the mode name and fixes up out-of-range values.
func (c *Config) Validate() error {
	if c.TriggerBCShift < 0 || c.TriggerBCShift == autoShiftSentinel {
		c.TriggerBCShift = AutoTriggerBCShift
	}
	mode, err := ParseMode(c.ModeName)
	if err != nil {
		return err
	}
	c.Mode = mode
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.CustomDeltaBC < 0 {
		return fmt.Errorf("customDeltaBC=%d, must be non-negative", c.CustomDeltaBC)
	}
	return nil
}
