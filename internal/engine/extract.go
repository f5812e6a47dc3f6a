/*
PURPOSE:
  QC/extraction layer: reduces one chamber's accepted rate records to a
  summary row (standard and maximum metabolic rate with the usual spread
  statistics) after configurable outlier trimming, and returns the
  filtered record set so the extraction is auditable.

REQUIREMENTS:
  User-specified:
  - SMR = configurable low quantile of the mass-specific rates.
  - MMR = extremum after trimming the top and bottom trim_fraction.
  - Trim of zero must be the identity: same records, same min/max.

  Implementation-discovered:
  - The filtered set is re-ordered chronologically after the rate-sorted
    trim so it reads like the original output table.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Dependencies: gonum stat (Quantile, Mean)
  - Produces: model.ChamberSummary + the filtered records.

ERROR HANDLING:
  - None. An empty record set yields a summary with zero accepted phases.

IMPLEMENTATION RULES:
  - Trim count is floor(n * trim_fraction) off each end, clamped so at
    least one record survives.

USAGE:
  ext := engine.Extract(records, meta, cfg, runID, excluded)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/rate.go
  - internal/output/summary.go

MAINTENANCE:
  - Update when adding new summary statistics.
*/

package engine

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// Extraction pairs a chamber's QC summary with the exact record set the
// summary was computed from.
type Extraction struct {
	Summary  model.ChamberSummary
	Filtered []model.RateRecord
}

// Extract summarises one chamber's accepted rate records.
func Extract(records []model.RateRecord, meta model.ChamberMeta, cfg *config.Config, runID string, excluded int) Extraction {
	summary := model.ChamberSummary{
		RunID:        runID,
		Chamber:      meta.ID,
		MassKg:       meta.MassKg,
		NetVolumeL:   meta.VolumeL - meta.AnimalVolumeL,
		Excluded:     excluded,
		SMRQuantile:  cfg.SMRQuantile,
		TrimFraction: cfg.TrimFraction,
	}
	summary.Accepted = len(records)
	if len(records) == 0 {
		return Extraction{Summary: summary}
	}

	byRate := slices.Clone(records)
	sort.Slice(byRate, func(i, j int) bool {
		return byRate[i].MassSpecificRate < byRate[j].MassSpecificRate
	})

	k := int(float64(len(byRate)) * cfg.TrimFraction)
	if 2*k >= len(byRate) {
		k = (len(byRate) - 1) / 2
	}
	trimmed := byRate[k : len(byRate)-k]

	rates := make([]float64, len(trimmed))
	for i, r := range trimmed {
		rates[i] = r.MassSpecificRate
	}

	summary.SMR = stat.Quantile(cfg.SMRQuantile, stat.Empirical, rates, nil)
	summary.MMR = rates[len(rates)-1]
	summary.MeanRate = stat.Mean(rates, nil)
	summary.MinRate = rates[0]
	summary.MaxRate = rates[len(rates)-1]

	filtered := slices.Clone(trimmed)
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Mid.Before(filtered[j].Mid) })

	return Extraction{Summary: summary, Filtered: filtered}
}
