/*
PURPOSE:
  Defines the core data structures used throughout Respiro.
  These models represent raw samples, measurement phases, fitted slopes,
  background rates and final metabolic-rate records.

REQUIREMENTS:
  User-specified:
  - One record per chamber per accepted measure phase.
  - Keep every stage's output immutable so downstream stages can be re-run
    with different parameters without re-importing.

  Implementation-discovered:
  - Need JSON tags for the JSON Lines output.
  - Placeholder rows inserted by the normalizer must be distinguishable
    from real readings (Filled flag, NaN oxygen).

ARCHITECTURE INTEGRATION:
  - Used by: internal/importer, internal/engine, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs plus small derived accessors).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Time and time.Duration for high precision.
  - No stage mutates an upstream record in place.

USAGE:
  s := model.Sample{Chamber: "CH1", Time: t, O2: 9.87, TempC: 15.0}

SELF-HEALING INSTRUCTIONS:
  - If new per-phase metrics are needed, add field and update the CSV/JSON
    writers.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go

MAINTENANCE:
  - Update when adding new metrics to capture.
*/

package model

import (
	"fmt"
	"time"
)

// PhaseType identifies the operational mode of a respirometry phase.
type PhaseType string

const (
	PhaseFlush   PhaseType = "flush"
	PhaseWait    PhaseType = "wait"
	PhaseMeasure PhaseType = "measure"
)

// Letter returns the single-letter code used in phase labels (F, W, M).
func (t PhaseType) Letter() string {
	switch t {
	case PhaseFlush:
		return "F"
	case PhaseWait:
		return "W"
	case PhaseMeasure:
		return "M"
	}
	return "?"
}

// Sample is a single timestamped oxygen reading from one chamber.
// Filled marks a placeholder row inserted by the time normalizer for a
// missing second; placeholder rows carry NaN oxygen and the previous
// real temperature.
type Sample struct {
	Chamber string    `json:"chamber"`
	Time    time.Time `json:"time"`
	O2      float64   `json:"o2"`
	TempC   float64   `json:"temp_c"`
	Filled  bool      `json:"filled,omitempty"`
}

// Phase is a contiguous fixed-length window of samples assigned to one
// slot of the flush/wait/measure cycle. Index is 1-based per chamber and
// phase type, so labels read M1, M2, ... F1, ... like the source logs.
type Phase struct {
	Chamber  string        `json:"chamber"`
	Type     PhaseType     `json:"type"`
	Index    int           `json:"index"`
	Start    time.Time     `json:"start"`
	Declared time.Duration `json:"declared"`
	Samples  []Sample      `json:"-"`
}

// Label returns the conventional phase label, e.g. "M3".
func (p *Phase) Label() string {
	return fmt.Sprintf("%s%d", p.Type.Letter(), p.Index)
}

// Actual returns the covered length of the phase assuming 1 Hz sampling.
// Placeholder rows count: they keep elapsed-seconds arithmetic valid.
func (p *Phase) Actual() time.Duration {
	return time.Duration(len(p.Samples)) * time.Second
}

// Coverage returns actual length over declared length.
func (p *Phase) Coverage() float64 {
	if p.Declared <= 0 {
		return 0
	}
	return p.Actual().Seconds() / p.Declared.Seconds()
}

// Midpoint returns the wall-clock middle of the declared window. Background
// rates are evaluated here.
func (p *Phase) Midpoint() time.Time {
	return p.Start.Add(p.Declared / 2)
}

// QualityFlag marks whether a fitted slope passed the quality threshold.
type QualityFlag string

const (
	QualityAccepted QualityFlag = "accepted"
	QualityRejected QualityFlag = "rejected"
)

// SlopeResult is the fitted oxygen trend of one measure phase. Slope is in
// input oxygen units per second; negative values mean consumption.
type SlopeResult struct {
	Chamber      string      `json:"chamber"`
	Phase        string      `json:"phase"`
	PhaseIndex   int         `json:"phase_index"`
	Start        time.Time   `json:"start"`
	Mid          time.Time   `json:"mid"`
	Slope        float64     `json:"slope"`
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r_squared"`
	N            int         `json:"n"`
	MeanTempC    float64     `json:"mean_temp_c"`
	Flag         QualityFlag `json:"flag"`
	Filtered     bool        `json:"filtered"`
	KeptFraction float64     `json:"kept_fraction"`
}

// BackgroundRate holds the chamber's microbial respiration rates derived
// from the pre- and post-tests, in the same raw units as SlopeResult.Slope.
type BackgroundRate struct {
	Chamber    string    `json:"chamber"`
	Mode       string    `json:"mode"`
	RateBefore float64   `json:"rate_before"`
	RateAfter  float64   `json:"rate_after"`
	Before     time.Time `json:"before"`
	After      time.Time `json:"after"`
}

// At returns the background rate interpolated to time t. The linear mode
// clamps outside [Before, After]; constant modes ignore t; the zero value
// (no correction) returns 0.
func (b BackgroundRate) At(t time.Time) float64 {
	switch b.Mode {
	case "pre":
		return b.RateBefore
	case "post":
		return b.RateAfter
	case "linear":
		if !t.After(b.Before) {
			return b.RateBefore
		}
		if !t.Before(b.After) {
			return b.RateAfter
		}
		span := b.After.Sub(b.Before).Seconds()
		frac := t.Sub(b.Before).Seconds() / span
		return b.RateBefore + frac*(b.RateAfter-b.RateBefore)
	}
	return 0
}

// RateRecord is the final per-phase output: slopes in mgO2/L/s after unit
// conversion, AbsoluteRate in mgO2/h and MassSpecificRate in mgO2/h/kg.
// Rates are reported positive for consumption (MO2 convention).
type RateRecord struct {
	Chamber          string    `json:"chamber"`
	Phase            string    `json:"phase"`
	PhaseIndex       int       `json:"phase_index"`
	Mid              time.Time `json:"mid"`
	RawSlope         float64   `json:"raw_slope"`
	BackgroundSlope  float64   `json:"background_slope"`
	CorrectedSlope   float64   `json:"corrected_slope"`
	AbsoluteRate     float64   `json:"absolute_rate_mgo2_h"`
	MassSpecificRate float64   `json:"mass_specific_rate_mgo2_h_kg"`
	MeanTempC        float64   `json:"mean_temp_c"`
	R2               float64   `json:"r_squared"`
}

// Exclusion records one phase (or chamber) removed from the analysis and
// why, so data loss is auditable rather than silent.
type Exclusion struct {
	Chamber string `json:"chamber"`
	Stage   string `json:"stage"`
	Phase   string `json:"phase,omitempty"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// ChamberSummary is one QC row per individual: standard metabolic rate
// (low quantile), maximum metabolic rate (post-trim extremum) and the
// spread of accepted mass-specific rates.
type ChamberSummary struct {
	RunID        string  `json:"run_id"`
	Chamber      string  `json:"chamber"`
	MassKg       float64 `json:"mass_kg"`
	NetVolumeL   float64 `json:"net_volume_l"`
	Accepted     int     `json:"accepted"`
	Excluded     int     `json:"excluded"`
	SMR          float64 `json:"smr"`
	MMR          float64 `json:"mmr"`
	MeanRate     float64 `json:"mean_rate"`
	MinRate      float64 `json:"min_rate"`
	MaxRate      float64 `json:"max_rate"`
	SMRQuantile  float64 `json:"smr_quantile"`
	TrimFraction float64 `json:"trim_fraction"`
}

// ChamberMeta is the per-chamber experiment metadata: animal mass and the
// chamber/animal volumes that determine the effective water volume.
type ChamberMeta struct {
	ID            string  `json:"id"`
	MassKg        float64 `json:"mass_kg"`
	VolumeL       float64 `json:"volume_l"`
	AnimalVolumeL float64 `json:"animal_volume_l"`
}

// Experiment aggregates all chambers of one run. It is constructed once
// from import plus configuration and never mutated afterwards; every
// downstream record is derived from it.
type Experiment struct {
	Chambers    []ChamberMeta
	Samples     map[string][]Sample
	SalinityPSU float64
}

// Meta returns the metadata for a chamber ID.
func (e *Experiment) Meta(id string) (ChamberMeta, bool) {
	for _, m := range e.Chambers {
		if m.ID == id {
			return m, true
		}
	}
	return ChamberMeta{}, false
}
