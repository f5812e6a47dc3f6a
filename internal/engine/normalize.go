/*
PURPOSE:
  Repairs one chamber's raw sample sequence into a gap-free,
  duplicate-free, strictly increasing per-second series. All later
  phase-length arithmetic assumes this stage's output.

REQUIREMENTS:
  User-specified:
  - Duplicate timestamps resolved by configurable first/last policy.
  - Missing seconds filled with placeholder rows so elapsed-seconds
    arithmetic stays valid.
  - Clock resets are unrecoverable for that chamber.

  Implementation-discovered:
  - Small backwards jitter (NTP steps of a second or two) is repaired by
    the sort; only jumps beyond clock_tolerance are treated as resets.
  - Placeholders carry the previous real temperature so per-phase mean
    temperature stays meaningful.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go, internal/engine/background.go
  - Consumes: model.Sample from internal/importer
  - Produces: normalized []model.Sample + repair counters.

ERROR HANDLING:
  - ErrMalformedTimeseries on backwards jumps beyond tolerance.
  - Gaps and duplicates are repairs, not errors; counts are logged so the
    user can audit instrument drift.

IMPLEMENTATION RULES:
  - Stable sort; the dedup policy decides between rows sharing a second.
  - Never mutate the input slice.

USAGE:
  norm, stats, err := engine.Normalize(samples, cfg)

SELF-HEALING INSTRUCTIONS:
  - If a logger samples at other than 1 Hz, gap filling needs a cadence
    parameter before this stage is reused.

RELATED FILES:
  - internal/engine/segment.go

MAINTENANCE:
  - Keep repair counters in sync with what the runner logs.
*/

package engine

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// NormalizeStats counts the repairs applied to one chamber's series.
type NormalizeStats struct {
	Duplicates int // rows dropped by the dedup policy
	Filled     int // placeholder rows inserted for missing seconds
}

// Normalize sorts, deduplicates and gap-fills one chamber's samples.
func Normalize(samples []model.Sample, cfg *config.Config) ([]model.Sample, NormalizeStats, error) {
	var stats NormalizeStats
	if len(samples) == 0 {
		return nil, stats, nil
	}

	// Clock-reset check runs on the logged order, before sorting hides it.
	for i := 1; i < len(samples); i++ {
		back := samples[i-1].Time.Sub(samples[i].Time)
		if back > cfg.ClockTolerance {
			return nil, stats, fmt.Errorf("%w: chamber %s: timestamp %s precedes %s by %s",
				ErrMalformedTimeseries, samples[i].Chamber,
				samples[i].Time.Format("2006-01-02 15:04:05"),
				samples[i-1].Time.Format("2006-01-02 15:04:05"), back)
		}
	}

	sorted := slices.Clone(samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	// Duplicate seconds: keep one row per timestamp according to policy.
	dedup := sorted[:0:0]
	for _, s := range sorted {
		if n := len(dedup); n > 0 && dedup[n-1].Time.Equal(s.Time) {
			stats.Duplicates++
			if cfg.DedupPolicy == "last" {
				dedup[n-1] = s
			}
			continue
		}
		dedup = append(dedup, s)
	}

	// Fill interior gaps with placeholder rows, one per missing second.
	out := make([]model.Sample, 0, len(dedup))
	for i, s := range dedup {
		if i > 0 {
			prev := out[len(out)-1]
			missing := int(s.Time.Sub(prev.Time).Seconds()) - 1
			for g := 1; g <= missing; g++ {
				out = append(out, model.Sample{
					Chamber: s.Chamber,
					Time:    prev.Time.Add(time.Duration(g) * time.Second),
					O2:      math.NaN(),
					TempC:   prev.TempC,
					Filled:  true,
				})
				stats.Filled++
			}
		}
		out = append(out, s)
	}

	return out, stats, nil
}
