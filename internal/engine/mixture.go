/*
PURPOSE:
  Residual filter for disturbed measure phases. Models the OLS residuals
  as a two-component Gaussian mixture (tight linear cluster + wide
  disturbance cluster), fitted by EM, and keeps the points the tight
  component claims. Organism movement and bubble artefacts land in the
  wide component and drop out of the refit.

REQUIREMENTS:
  User-specified:
  - The filter is a pluggable strategy; any robust technique is
    acceptable as long as it is deterministic and exposes a usable
    confidence score. Here: deterministic quantile-based initialisation,
    kept-fraction as the score.
  - Never keep less than mixture_keep_min of the phase; below that the
    phase is likely globally nonlinear and filtering would fabricate a
    slope. Falls back to the unfiltered fit.

  Implementation-discovered:
  - Component variances need a floor or EM collapses on near-perfect
    linear segments.
  - When both components converge to similar spread there is no outlier
    cluster; keep everything.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/slope.go
  - Dependencies: gonum stat (quantiles), gonum distuv (normal densities)

ERROR HANDLING:
  - None. The filter either returns a kept subset or reports not-ok.

IMPLEMENTATION RULES:
  - Initialise the tight component from the interquartile residuals, the
    wide one from the full spread.
  - Fixed iteration cap; convergence on log-likelihood delta.

USAGE:
  kept, ok := dominantCluster(xs, ys, slope, intercept, keepMin)

SELF-HEALING INSTRUCTIONS:
  - If clean phases lose too many tail points, raise sigmaRatioFloor
    before touching the EM loop.

RELATED FILES:
  - internal/engine/slope.go

MAINTENANCE:
  - Revisit the two-component assumption if traces show multi-modal
    disturbances.
*/

package engine

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	emMaxIter = 100
	emTol     = 1e-9
	sigmaMin  = 1e-9
	// sigmaRatioFloor keeps the wide component at least this much wider
	// than the tight one, so it cannot collapse onto a single outlier and
	// masquerade as the linear cluster.
	sigmaRatioFloor = 3.0
)

// dominantCluster returns the indices of the points assigned to the tight
// residual component. ok is false when filtering should not be applied:
// no separable outlier cluster, or the kept fraction fell below keepMin.
func dominantCluster(xs, ys []float64, slope, intercept, keepMin float64) ([]int, bool) {
	n := len(xs)
	res := make([]float64, n)
	for i := range xs {
		res[i] = ys[i] - (intercept + slope*xs[i])
	}

	sorted := slices.Clone(res)
	sort.Float64s(sorted)

	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)

	var core []float64
	for _, r := range res {
		if r >= q1 && r <= q3 {
			core = append(core, r)
		}
	}
	tight := distuv.Normal{Mu: med, Sigma: math.Max(stat.StdDev(core, nil), sigmaMin)}
	wide := distuv.Normal{
		Mu:    med,
		Sigma: math.Max(stat.StdDev(res, nil), math.Max(3*tight.Sigma, sigmaMin)),
	}
	wTight, wWide := 0.75, 0.25

	gamma := make([]float64, n) // responsibility of the tight component
	prevLL := math.Inf(-1)
	for iter := 0; iter < emMaxIter; iter++ {
		// E-step.
		var ll float64
		for i, r := range res {
			pt := wTight * tight.Prob(r)
			pw := wWide * wide.Prob(r)
			sum := pt + pw
			if sum <= 0 || math.IsNaN(sum) {
				gamma[i] = 0.5
				continue
			}
			gamma[i] = pt / sum
			ll += math.Log(sum)
		}
		if math.Abs(ll-prevLL) < emTol {
			break
		}
		prevLL = ll

		// M-step.
		tight = updateComponent(res, gamma, tight, true)
		wide = updateComponent(res, gamma, wide, false)
		if wide.Sigma < sigmaRatioFloor*tight.Sigma {
			wide.Sigma = sigmaRatioFloor * tight.Sigma
		}
		var sumG float64
		for _, g := range gamma {
			sumG += g
		}
		wTight = sumG / float64(n)
		wWide = 1 - wTight
	}

	var kept []int
	for i, g := range gamma {
		if g >= 0.5 {
			kept = append(kept, i)
		}
	}
	frac := float64(len(kept)) / float64(n)
	if len(kept) < 2 || frac < keepMin || len(kept) == n {
		return nil, false
	}
	return kept, true
}

// updateComponent recomputes one component's weighted mean and spread.
// forTight uses gamma directly, the wide component uses its complement.
func updateComponent(res, gamma []float64, prev distuv.Normal, forTight bool) distuv.Normal {
	var sumW, sumWR float64
	for i, r := range res {
		w := gamma[i]
		if !forTight {
			w = 1 - w
		}
		sumW += w
		sumWR += w * r
	}
	if sumW <= 0 {
		return prev
	}
	mu := sumWR / sumW

	var sumWD float64
	for i, r := range res {
		w := gamma[i]
		if !forTight {
			w = 1 - w
		}
		d := r - mu
		sumWD += w * d * d
	}
	sigma := math.Sqrt(sumWD / sumW)
	if sigma < sigmaMin {
		sigma = sigmaMin
	}
	return distuv.Normal{Mu: mu, Sigma: sigma}
}
