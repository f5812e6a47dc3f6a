/*
PURPOSE:
  Defines the configuration structure and loading logic for Respiro.
  One immutable Config object describes a whole experiment: input file,
  column mapping, phase cycle, chamber metadata and all thresholds.

REQUIREMENTS:
  User-specified:
  - Phase cycle (ordered flush/wait/measure slots with durations).
  - Per-chamber animal mass, chamber volume, animal volume.
  - Salinity/temperature driven oxygen solubility, configurable units.
  - Truncation tolerance, regression quality threshold, trim percentile
    must all be configurable, not hard-coded.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Duplicate-timestamp policy is a policy choice; expose it
    (dedup_policy: first|last) instead of baking one in.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/importer, internal/engine
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Validate() is called once at pipeline entry; stages assume a valid
    Config afterwards.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (0.90 truncation, R2 0.95, 20% SMR quantile).
  - Config is read-only after Load; stages never write to it.

USAGE:
  cfg, err := config.Load("respiro.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update Load()
    defaults and Validate().

RELATED FILES:
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// PhaseSpec is one slot of the respirometry cycle.
type PhaseSpec struct {
	Type     string        `yaml:"type"` // flush | wait | measure
	Duration time.Duration `yaml:"duration"`
}

// UnmarshalYAML accepts durations either as Go duration strings ("600s",
// "10m") or as bare integers, which are taken as seconds to match
// instrument cycle settings.
func (p *PhaseSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Type     string `yaml:"type"`
		Duration string `yaml:"duration"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.Type = raw.Type
	if raw.Duration == "" {
		p.Duration = 0
		return nil
	}
	d, err := time.ParseDuration(raw.Duration)
	if err != nil {
		secs, ierr := strconv.Atoi(raw.Duration)
		if ierr != nil {
			return fmt.Errorf("phase duration %q: %w", raw.Duration, err)
		}
		d = time.Duration(secs) * time.Second
	}
	p.Duration = d
	return nil
}

// Boundary restarts the cycle mid-run (multi-day experiments, manual
// interventions). Entry names the phase type the cycle resumes with, which
// covers the M->F and M->W transitions at day cutoffs.
type Boundary struct {
	At    time.Time `yaml:"at"`
	Entry string    `yaml:"entry"` // flush | wait | measure
}

// ChamberConfig declares one chamber and its animal.
type ChamberConfig struct {
	ID            string  `yaml:"id"`
	MassKg        float64 `yaml:"mass_kg"`
	VolumeL       float64 `yaml:"volume_l"`
	AnimalVolumeL float64 `yaml:"animal_volume_l"`
}

// ColumnMap names the input columns holding each field. Empty fields fall
// back to the vendor preset. TimeLayout is a Go reference layout.
type ColumnMap struct {
	Chamber    string `yaml:"chamber"`
	Time       string `yaml:"time"`
	O2         string `yaml:"o2"`
	Temp       string `yaml:"temp"`
	TimeLayout string `yaml:"time_layout"`
}

// BackgroundConfig selects the background-respiration correction.
// Modes: none, pre (constant pre-test rate), post (constant post-test
// rate), linear (interpolated between both over elapsed time).
type BackgroundConfig struct {
	Mode     string `yaml:"mode"`
	PreFile  string `yaml:"pre_file"`
	PostFile string `yaml:"post_file"`
	Summary  string `yaml:"summary"` // mean | median
}

// Config represents the full configuration for one Respiro run.
type Config struct {
	Input      string    `yaml:"input"`
	Vendor     string    `yaml:"vendor"`
	Columns    ColumnMap `yaml:"columns"`
	OutputDir  string    `yaml:"output_dir"`
	OutputFile string    `yaml:"output_file"`

	Cycle      []PhaseSpec     `yaml:"cycle"`
	Start      *time.Time      `yaml:"start"`
	Stop       *time.Time      `yaml:"stop"`
	Boundaries []Boundary      `yaml:"boundaries"`
	Chambers   []ChamberConfig `yaml:"chambers"`

	SalinityPSU   float64 `yaml:"salinity_psu"`
	O2Unit        string  `yaml:"o2_unit"`        // mg_l | percent_as
	SaturationMgL float64 `yaml:"saturation_mgl"` // 0 = derive from temp/salinity

	DedupPolicy         string        `yaml:"dedup_policy"` // first | last
	ClockTolerance      time.Duration `yaml:"clock_tolerance"`
	TruncationTolerance float64       `yaml:"truncation_tolerance"`
	RSquaredMin         float64       `yaml:"r_squared_min"`
	MixtureFilter       bool          `yaml:"mixture_filter"`
	MixtureKeepMin      float64       `yaml:"mixture_keep_min"`
	SMRQuantile         float64       `yaml:"smr_quantile"`
	TrimFraction        float64       `yaml:"trim_fraction"`

	Background BackgroundConfig `yaml:"background"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Vendor:     "generic",
		OutputDir:  ".",
		OutputFile: "metabolic_rates.csv",
		Cycle: []PhaseSpec{
			{Type: "flush", Duration: 3 * time.Minute},
			{Type: "wait", Duration: 1 * time.Minute},
			{Type: "measure", Duration: 10 * time.Minute},
		},
		O2Unit:              "mg_l",
		DedupPolicy:         "last",
		ClockTolerance:      5 * time.Second,
		TruncationTolerance: 0.90,
		RSquaredMin:         0.95,
		MixtureKeepMin:      0.5,
		SMRQuantile:         0.2,
		TrimFraction:        0,
		Background:          BackgroundConfig{Mode: "none", Summary: "mean"},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		// Search for defaults
		defaults := []string{"respiro.yaml", "respiro.yml", "experiment.yaml"}
		found := false
		for _, name := range defaults {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name // record which file we loaded
				found = true
				break
			}
		}
		if !found {
			// No config file found, return default
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration once at pipeline entry.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("config: input file is required")
	}
	if len(c.Cycle) == 0 {
		return fmt.Errorf("config: cycle must declare at least one phase")
	}
	hasMeasure := false
	for i, p := range c.Cycle {
		switch p.Type {
		case "flush", "wait":
		case "measure":
			hasMeasure = true
		default:
			return fmt.Errorf("config: cycle[%d]: unknown phase type %q", i, p.Type)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("config: cycle[%d]: duration must be positive", i)
		}
	}
	if !hasMeasure {
		return fmt.Errorf("config: cycle must contain a measure phase")
	}
	if len(c.Chambers) == 0 {
		return fmt.Errorf("config: at least one chamber is required")
	}
	for _, ch := range c.Chambers {
		if ch.ID == "" {
			return fmt.Errorf("config: chamber without id")
		}
		if ch.MassKg <= 0 {
			return fmt.Errorf("config: chamber %s: mass_kg must be positive", ch.ID)
		}
		if ch.VolumeL <= 0 {
			return fmt.Errorf("config: chamber %s: volume_l must be positive", ch.ID)
		}
	}
	switch c.DedupPolicy {
	case "first", "last":
	default:
		return fmt.Errorf("config: dedup_policy must be first or last, got %q", c.DedupPolicy)
	}
	if c.TruncationTolerance <= 0 || c.TruncationTolerance > 1 {
		return fmt.Errorf("config: truncation_tolerance must be in (0, 1]")
	}
	if c.RSquaredMin < 0 || c.RSquaredMin > 1 {
		return fmt.Errorf("config: r_squared_min must be in [0, 1]")
	}
	if c.MixtureKeepMin <= 0 || c.MixtureKeepMin > 1 {
		return fmt.Errorf("config: mixture_keep_min must be in (0, 1]")
	}
	if c.SMRQuantile < 0 || c.SMRQuantile > 1 {
		return fmt.Errorf("config: smr_quantile must be in [0, 1]")
	}
	if c.TrimFraction < 0 || c.TrimFraction >= 0.5 {
		return fmt.Errorf("config: trim_fraction must be in [0, 0.5)")
	}
	switch c.O2Unit {
	case "mg_l", "percent_as":
	default:
		return fmt.Errorf("config: o2_unit must be mg_l or percent_as, got %q", c.O2Unit)
	}
	switch c.Background.Mode {
	case "", "none":
	case "pre":
		if c.Background.PreFile == "" {
			return fmt.Errorf("config: background mode pre requires pre_file")
		}
	case "post":
		if c.Background.PostFile == "" {
			return fmt.Errorf("config: background mode post requires post_file")
		}
	case "linear":
		if c.Background.PreFile == "" || c.Background.PostFile == "" {
			return fmt.Errorf("config: background mode linear requires pre_file and post_file")
		}
	default:
		return fmt.Errorf("config: unknown background mode %q", c.Background.Mode)
	}
	switch c.Background.Summary {
	case "", "mean", "median":
	default:
		return fmt.Errorf("config: background summary must be mean or median, got %q", c.Background.Summary)
	}
	return nil
}
