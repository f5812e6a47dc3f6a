/*
PURPOSE:
  Splits one chamber's normalized series into flush/wait/measure phases by
  walking the declared cycle as fixed-length windows, restarting the cycle
  at configured boundaries and dropping truncated phases.

REQUIREMENTS:
  User-specified:
  - Ordered cycle of {type, duration} slots, repeated over the run.
  - Cycle restarts at boundary timestamps with a declared entry phase
    (covers measure-to-flush and measure-to-wait transitions at day
    cutoffs in multi-day runs).
  - A phase shorter than truncation_tolerance of its declared length is
    dropped entirely. This is how under-filled head phases (late start)
    and tail phases (early stop) are excluded.

  Implementation-discovered:
  - Phases are numbered per chamber and type across ALL emitted windows,
    dropped ones included, so exclusion-report labels match the lab's
    phase numbering.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go, internal/cli/segment.go
  - Consumes: Normalize output
  - Produces: []model.Phase + exclusions for dropped windows.

ERROR HANDLING:
  - None fatal. Truncation is recovered by exclusion, not by error.

IMPLEMENTATION RULES:
  - Windows are [start, start+duration); a sample on the boundary second
    belongs to the next phase.
  - Coverage counts placeholder rows; they represent elapsed seconds.

USAGE:
  phases, excl := engine.Segment(norm, cfg)

SELF-HEALING INSTRUCTIONS:
  - If boundary entries reference a type missing from the cycle, the walk
    falls back to the first slot; check the config first.

RELATED FILES:
  - internal/engine/normalize.go
  - internal/engine/slope.go

MAINTENANCE:
  - Update if cycles ever vary per chamber.
*/

package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// Segment assigns normalized samples to successive cycle windows.
func Segment(samples []model.Sample, cfg *config.Config) ([]model.Phase, []model.Exclusion) {
	if len(samples) == 0 {
		return nil, nil
	}
	chamber := samples[0].Chamber

	// The declared start wins even when logging began late: the walk stays
	// anchored to the planned cycle and the under-filled head windows fall
	// to the truncation rule.
	start := samples[0].Time
	if cfg.Start != nil {
		start = *cfg.Start
	}
	stop := samples[len(samples)-1].Time.Add(time.Second)
	if cfg.Stop != nil && cfg.Stop.Before(stop) {
		stop = *cfg.Stop
	}

	bounds := make([]config.Boundary, 0, len(cfg.Boundaries))
	for _, b := range cfg.Boundaries {
		if b.At.After(start) && b.At.Before(stop) {
			bounds = append(bounds, b)
		}
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].At.Before(bounds[j].At) })

	var (
		phases []model.Phase
		excl   []model.Exclusion
		counts = map[model.PhaseType]int{}
	)

	si := 0
	for si < len(samples) && samples[si].Time.Before(start) {
		si++
	}

	ci := 0 // index into the cycle
	bi := 0 // index into bounds
	t0 := start
	for t0.Before(stop) && si < len(samples) {
		// A boundary aligned with the window grid still restarts the cycle:
		// it cuts nothing, but the next window must use its entry phase.
		for bi < len(bounds) && bounds[bi].At.Equal(t0) {
			ci = entryIndex(cfg.Cycle, bounds[bi].Entry)
			bi++
		}

		spec := cfg.Cycle[ci%len(cfg.Cycle)]
		end := t0.Add(spec.Duration)

		var cut *config.Boundary
		if bi < len(bounds) && bounds[bi].At.After(t0) && bounds[bi].At.Before(end) {
			cut = &bounds[bi]
			end = cut.At
		}
		if end.After(stop) {
			end = stop
		}
		// A non-positive slot duration makes no progress; Validate rejects
		// such cycles, but callers that skip it must not loop forever.
		if !end.After(t0) {
			break
		}

		first := si
		for si < len(samples) && samples[si].Time.Before(end) {
			si++
		}

		pt := model.PhaseType(spec.Type)
		counts[pt]++
		ph := model.Phase{
			Chamber:  chamber,
			Type:     pt,
			Index:    counts[pt],
			Start:    t0,
			Declared: spec.Duration,
			Samples:  samples[first:si],
		}

		if ph.Coverage() < cfg.TruncationTolerance {
			excl = append(excl, model.Exclusion{
				Chamber: chamber,
				Stage:   "segment",
				Phase:   ph.Label(),
				Reason:  "short_phase",
				Detail: fmt.Sprintf("coverage %.0f%% of declared %s is below %.0f%%",
					ph.Coverage()*100, spec.Duration, cfg.TruncationTolerance*100),
			})
		} else {
			phases = append(phases, ph)
		}

		if cut != nil {
			t0 = cut.At
			ci = entryIndex(cfg.Cycle, cut.Entry)
			bi++
		} else {
			t0 = end
			ci = (ci + 1) % len(cfg.Cycle)
		}
	}

	return phases, excl
}

// entryIndex locates the cycle slot a boundary restarts with.
func entryIndex(cycle []config.PhaseSpec, entry string) int {
	for i, p := range cycle {
		if p.Type == entry {
			return i
		}
	}
	return 0
}

// MeasurePhases filters a phase list down to the measure windows.
func MeasurePhases(phases []model.Phase) []model.Phase {
	out := make([]model.Phase, 0, len(phases))
	for _, p := range phases {
		if p.Type == model.PhaseMeasure {
			out = append(out, p)
		}
	}
	return out
}
