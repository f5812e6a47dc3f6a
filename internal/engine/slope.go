/*
PURPOSE:
  Fits the oxygen decline of each measure phase as a linear trend over
  elapsed seconds, optionally after the mixture-model residual filter, and
  quality-flags the fit by R-squared.

REQUIREMENTS:
  User-specified:
  - Phases with fewer than 2 usable samples are excluded before the
    regression step, silently by exclusion rather than by error.
  - Slope sign convention: negative for consumption.
  - R-squared below threshold marks the phase rejected; rejected phases
    propagate as missing rate records, never as failures.

  Implementation-discovered:
  - Placeholder rows and NaN readings must be filtered out before the fit;
    they exist only for phase-length arithmetic.
  - A perfectly flat trace makes the R-squared denominator zero; a flat
    line explained by slope 0 is a perfect fit, not an invalid one.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go, internal/engine/background.go
  - Dependencies: gonum stat (LinearRegression, RSquaredFrom)
  - Produces: model.SlopeResult per valid measure phase.

ERROR HANDLING:
  - No fatal errors. Degenerate phases and rejected fits become
    model.Exclusion records.

IMPLEMENTATION RULES:
  - x is seconds since phase start; slope is oxygen units per second.
  - The mixture filter only replaces the plain fit when it keeps at least
    mixture_keep_min of the points and 2 or more of them.

USAGE:
  slopes, excl := engine.ExtractSlopes(phases, cfg)

SELF-HEALING INSTRUCTIONS:
  - If fits look biased on disturbed traces, enable mixture_filter before
    touching the regression.

RELATED FILES:
  - internal/engine/mixture.go
  - internal/engine/background.go

MAINTENANCE:
  - Keep the quality flag semantics in sync with the rate stage.
*/

package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// minFilterPoints is the smallest phase the mixture filter attempts;
// below this the two-component fit is meaningless.
const minFilterPoints = 8

// ExtractSlopes fits every measure phase and returns one SlopeResult per
// phase that survives the degenerate-phase check.
func ExtractSlopes(phases []model.Phase, cfg *config.Config) ([]model.SlopeResult, []model.Exclusion) {
	var (
		results []model.SlopeResult
		excl    []model.Exclusion
	)

	for i := range phases {
		ph := &phases[i]
		if ph.Type != model.PhaseMeasure {
			continue
		}

		xs, ys, meanTemp := phaseSeries(ph)
		if len(xs) < 2 {
			excl = append(excl, model.Exclusion{
				Chamber: ph.Chamber,
				Stage:   "slope",
				Phase:   ph.Label(),
				Reason:  "degenerate_phase",
				Detail:  fmt.Sprintf("%d usable samples, need 2", len(xs)),
			})
			continue
		}

		slope, intercept, r2 := fitLine(xs, ys)
		res := model.SlopeResult{
			Chamber:      ph.Chamber,
			Phase:        ph.Label(),
			PhaseIndex:   ph.Index,
			Start:        ph.Start,
			Mid:          ph.Midpoint(),
			Slope:        slope,
			Intercept:    intercept,
			R2:           r2,
			N:            len(xs),
			MeanTempC:    meanTemp,
			Flag:         model.QualityAccepted,
			KeptFraction: 1,
		}

		if cfg.MixtureFilter && len(xs) >= minFilterPoints {
			if kept, ok := dominantCluster(xs, ys, slope, intercept, cfg.MixtureKeepMin); ok {
				fx := make([]float64, len(kept))
				fy := make([]float64, len(kept))
				for j, idx := range kept {
					fx[j] = xs[idx]
					fy[j] = ys[idx]
				}
				res.Slope, res.Intercept, res.R2 = fitLine(fx, fy)
				res.N = len(kept)
				res.Filtered = true
				res.KeptFraction = float64(len(kept)) / float64(len(xs))
			}
		}

		if res.R2 < cfg.RSquaredMin {
			res.Flag = model.QualityRejected
			excl = append(excl, model.Exclusion{
				Chamber: ph.Chamber,
				Stage:   "slope",
				Phase:   ph.Label(),
				Reason:  "low_r_squared",
				Detail:  fmt.Sprintf("R2 %.4f below threshold %.4f", res.R2, cfg.RSquaredMin),
			})
		}

		results = append(results, res)
	}

	return results, excl
}

// phaseSeries extracts the regression inputs from a phase: elapsed seconds,
// oxygen readings and the mean temperature of the usable samples.
func phaseSeries(ph *model.Phase) (xs, ys []float64, meanTemp float64) {
	var tempSum float64
	var tempN int
	for _, s := range ph.Samples {
		if s.Filled || math.IsNaN(s.O2) {
			continue
		}
		xs = append(xs, s.Time.Sub(ph.Start).Seconds())
		ys = append(ys, s.O2)
		if !math.IsNaN(s.TempC) {
			tempSum += s.TempC
			tempN++
		}
	}
	meanTemp = math.NaN()
	if tempN > 0 {
		meanTemp = tempSum / float64(tempN)
	}
	return xs, ys, meanTemp
}

// fitLine runs ordinary least squares y = intercept + slope*x and reports
// the coefficient of determination.
func fitLine(xs, ys []float64) (slope, intercept, r2 float64) {
	intercept, slope = stat.LinearRegression(xs, ys, nil, false)

	est := make([]float64, len(xs))
	for i, x := range xs {
		est[i] = intercept + slope*x
	}
	r2 = stat.RSquaredFrom(est, ys, nil)
	if math.IsNaN(r2) {
		// Zero-variance trace: the flat fit explains it exactly.
		r2 = 1
	}
	return slope, intercept, r2
}
