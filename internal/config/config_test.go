package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Input = "trial.csv"
	cfg.Chambers = []ChamberConfig{{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}}
	return cfg
}

func TestDefaultConfigValidatesWithInputAndChambers(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no input", func(c *Config) { c.Input = "" }},
		{"no chambers", func(c *Config) { c.Chambers = nil }},
		{"empty cycle", func(c *Config) { c.Cycle = nil }},
		{"unknown phase type", func(c *Config) { c.Cycle[0].Type = "soak" }},
		{"zero duration", func(c *Config) { c.Cycle[0].Duration = 0 }},
		{"no measure phase", func(c *Config) {
			c.Cycle = []PhaseSpec{{Type: "flush", Duration: time.Minute}}
		}},
		{"chamber without id", func(c *Config) { c.Chambers[0].ID = "" }},
		{"non-positive mass", func(c *Config) { c.Chambers[0].MassKg = 0 }},
		{"non-positive volume", func(c *Config) { c.Chambers[0].VolumeL = 0 }},
		{"bad dedup policy", func(c *Config) { c.DedupPolicy = "newest" }},
		{"tolerance above one", func(c *Config) { c.TruncationTolerance = 1.1 }},
		{"negative r squared", func(c *Config) { c.RSquaredMin = -0.1 }},
		{"trim half", func(c *Config) { c.TrimFraction = 0.5 }},
		{"bad o2 unit", func(c *Config) { c.O2Unit = "umol_l" }},
		{"pre mode without file", func(c *Config) { c.Background.Mode = "pre" }},
		{"linear mode without post file", func(c *Config) {
			c.Background.Mode = "linear"
			c.Background.PreFile = "pre.csv"
		}},
		{"bad background mode", func(c *Config) { c.Background.Mode = "quadratic" }},
		{"bad background summary", func(c *Config) { c.Background.Summary = "mode" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	yaml := `
input: trial.csv
vendor: firesting
output_dir: results
cycle:
  - {type: flush, duration: 3m}
  - {type: wait, duration: 60}
  - {type: measure, duration: 600s}
chambers:
  - {id: CH1, mass_kg: 0.02, volume_l: 5, animal_volume_l: 0.05}
salinity_psu: 35
o2_unit: percent_as
dedup_policy: first
trim_fraction: 0.1
background:
  mode: pre
  pre_file: pre.csv
  summary: median
`
	path := filepath.Join(t.TempDir(), "respiro.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Vendor != "firesting" || cfg.Input != "trial.csv" || cfg.OutputDir != "results" {
		t.Errorf("basic fields not loaded: %+v", cfg)
	}
	// Durations parse as Go strings or bare integer seconds.
	want := []time.Duration{3 * time.Minute, time.Minute, 10 * time.Minute}
	for i, p := range cfg.Cycle {
		if p.Duration != want[i] {
			t.Errorf("cycle[%d] duration = %v, want %v", i, p.Duration, want[i])
		}
	}
	if cfg.DedupPolicy != "first" || cfg.TrimFraction != 0.1 {
		t.Errorf("thresholds not loaded: %+v", cfg)
	}
	if cfg.Background.Mode != "pre" || cfg.Background.Summary != "median" {
		t.Errorf("background not loaded: %+v", cfg.Background)
	}
	// Unset fields keep their defaults.
	if cfg.RSquaredMin != 0.95 || cfg.SMRQuantile != 0.2 {
		t.Errorf("defaults lost on load: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing explicit path: want error")
	}
}

func TestLoadNoFileReturnsDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vendor != "generic" || cfg.OutputFile != "metabolic_rates.csv" {
		t.Errorf("got %+v, want defaults", cfg)
	}
}
