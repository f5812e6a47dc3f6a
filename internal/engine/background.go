/*
PURPOSE:
  Derives per-chamber microbial background-respiration rates from the
  pre-test and post-test recordings and packages them as time-interpolable
  BackgroundRate values. The rate stage subtracts the interpolated value
  at each phase midpoint.

REQUIREMENTS:
  User-specified:
  - Representative rate per test = mean or median of its accepted
    measure-phase slopes (configurable).
  - Linear interpolation between the pre-test and post-test rates across
    elapsed experiment time; constant pre or post modes for runs with
    only one test.
  - Requesting a correction without the required test is fatal.

  Implementation-discovered:
  - Background recordings go through the exact same normalize, segment
    and slope stages as the animal data; bacteria do not get a different
    pipeline.
  - Subtraction happens in raw slope units, before any solubility
    conversion, so percent-saturation runs stay consistent.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Uses: internal/importer, Normalize, Segment, ExtractSlopes
  - Dependencies: gonum stat (mean/median)

ERROR HANDLING:
  - ErrMissingBackgroundTest wrapped with which file/chamber is missing.
  - A chamber present in the main run but absent from a required test is
    reported per chamber by the runner, not here.

IMPLEMENTATION RULES:
  - Each test's timestamp is the midpoint of its recording span.

USAGE:
  rates, err := engine.BackgroundRates(cfg)

SELF-HEALING INSTRUCTIONS:
  - An empty rate map with a non-none mode means every background phase
    was excluded; check the test recording length against the cycle.

RELATED FILES:
  - internal/engine/rate.go
  - internal/model/types.go (BackgroundRate.At)

MAINTENANCE:
  - Update if background tests ever use their own cycle definition.
*/

package engine

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/importer"
	"github.com/marlab/respiro/internal/model"
)

// bgPoint is one background test's summary for one chamber.
type bgPoint struct {
	rate float64
	at   time.Time
}

// BackgroundRates computes the configured background correction inputs.
// Returns nil with no error when correction is disabled.
func BackgroundRates(cfg *config.Config) (map[string]model.BackgroundRate, error) {
	mode := cfg.Background.Mode
	if mode == "" || mode == "none" {
		return nil, nil
	}

	var pre, post map[string]bgPoint
	var err error
	if mode == "pre" || mode == "linear" {
		pre, err = backgroundFromFile(cfg, cfg.Background.PreFile, "pre-test")
		if err != nil {
			return nil, err
		}
	}
	if mode == "post" || mode == "linear" {
		post, err = backgroundFromFile(cfg, cfg.Background.PostFile, "post-test")
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]model.BackgroundRate)
	for id, p := range pre {
		out[id] = model.BackgroundRate{
			Chamber:    id,
			Mode:       mode,
			RateBefore: p.rate,
			Before:     p.at,
		}
	}
	for id, p := range post {
		b := out[id]
		b.Chamber = id
		b.Mode = mode
		b.RateAfter = p.rate
		b.After = p.at
		out[id] = b
	}

	// Linear interpolation needs both ends; drop half-covered chambers so
	// the runner reports them as missing.
	if mode == "linear" {
		for id, b := range out {
			if b.Before.IsZero() || b.After.IsZero() {
				delete(out, id)
			}
		}
	}

	return out, nil
}

// backgroundFromFile runs one test recording through the pipeline's front
// stages and summarises each chamber's accepted measure slopes.
func backgroundFromFile(cfg *config.Config, path, kind string) (map[string]bgPoint, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no %s file configured", ErrMissingBackgroundTest, kind)
	}

	rd, err := importer.NewFile(cfg, path)
	if err != nil {
		return nil, err
	}
	byChamber, err := rd.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingBackgroundTest, kind, err)
	}

	// Background tests are short standalone recordings; the experiment's
	// start/stop boundaries do not apply to them.
	bgCfg := *cfg
	bgCfg.Start = nil
	bgCfg.Stop = nil
	bgCfg.Boundaries = nil

	out := make(map[string]bgPoint, len(byChamber))
	for id, samples := range byChamber {
		norm, _, err := Normalize(samples, &bgCfg)
		if err != nil {
			return nil, fmt.Errorf("%s chamber %s: %w", kind, id, err)
		}
		phases, _ := Segment(norm, &bgCfg)
		slopes, _ := ExtractSlopes(phases, &bgCfg)

		var rates []float64
		for _, s := range slopes {
			if s.Flag == model.QualityAccepted {
				rates = append(rates, s.Slope)
			}
		}
		if len(rates) == 0 {
			continue
		}

		out[id] = bgPoint{
			rate: summarize(rates, cfg.Background.Summary),
			at:   midpointOf(norm),
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s %s produced no usable measure phases", ErrMissingBackgroundTest, kind, path)
	}
	return out, nil
}

// summarize reduces a test's slopes to one representative rate.
func summarize(rates []float64, how string) float64 {
	if how == "median" {
		sorted := slices.Clone(rates)
		sort.Float64s(sorted)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	return stat.Mean(rates, nil)
}

// midpointOf returns the wall-clock middle of a recording.
func midpointOf(samples []model.Sample) time.Time {
	if len(samples) == 0 {
		return time.Time{}
	}
	first := samples[0].Time
	last := samples[len(samples)-1].Time
	return first.Add(last.Sub(first) / 2)
}
