/*
PURPOSE:
  Converts background-corrected slopes into absolute (mgO2/h) and
  mass-specific (mgO2/h/kg) metabolic rates using the chamber geometry,
  the animal mass and the oxygen solubility at the experiment's
  temperature and salinity.

REQUIREMENTS:
  User-specified:
  - absolute_rate = corrected_slope * (chamber_volume - animal_volume)
    with unit conversion; mass_specific_rate = absolute_rate / mass.
  - Unit conversion must be parameterised: solubility depends on the
    experiment's salinity and each phase's temperature.
  - chamber_volume <= animal_volume is a fatal configuration error.

  Implementation-discovered:
  - Correction is applied in raw slope units; conversion to mg/L happens
    afterwards so percent-air-saturation inputs stay consistent with
    their background tests.
  - Rejected slopes are skipped here (they already carry an exclusion);
    only accepted fits become rate records.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Consumes: SlopeResult + BackgroundRate + ChamberMeta
  - Produces: model.RateRecord per accepted phase.

ERROR HANDLING:
  - ErrInvalidChamberGeometry aborts the chamber (config error).
  - A percent-saturation phase without a temperature reading cannot be
    converted; it degrades to an exclusion, not an abort.

IMPLEMENTATION RULES:
  - Rates are reported positive for consumption (MO2 convention); the
    sign flip happens exactly once, here.
  - Solubility via Garcia and Gordon (1992), Benson-Krause coefficients,
    overridable with a fixed saturation_mgl.

USAGE:
  records, excl, err := engine.ComputeRates(slopes, bg, meta, cfg)

SELF-HEALING INSTRUCTIONS:
  - If absolute rates look off by ~3 orders of magnitude, check the
    o2_unit setting before suspecting the arithmetic.

RELATED FILES:
  - internal/engine/background.go
  - internal/engine/extract.go

MAINTENANCE:
  - Keep coefficient table in sync with the cited solubility fit.
*/

package engine

import (
	"fmt"
	"math"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// Garcia & Gordon (1992) refit of the Benson & Krause oxygen solubility
// data. Yields umol/kg at 100% air saturation.
var ggA = [...]float64{5.80871, 3.20291, 4.17887, 5.10006, -0.0986643, 3.80369}
var ggB = [...]float64{-0.00701577, -0.00770028, -0.0113864, -0.00951519}

const ggC0 = -2.75915e-7

// o2MolarMassMg converts umol O2 to mg (31.9988 g/mol).
const o2MolarMassMg = 0.0319988

// O2SaturationMgL returns the dissolved-oxygen concentration in mg/L at
// 100% air saturation for the given temperature and salinity, assuming
// unit water density.
func O2SaturationMgL(tempC, salinityPSU float64) float64 {
	ts := math.Log((298.15 - tempC) / (273.15 + tempC))

	lnC := ggC0 * salinityPSU * salinityPSU
	tp := 1.0
	for i, a := range ggA {
		lnC += a * tp
		if i < len(ggB) {
			lnC += salinityPSU * ggB[i] * tp
		}
		tp *= ts
	}
	return math.Exp(lnC) * o2MolarMassMg
}

// ComputeRates turns one chamber's accepted slopes into rate records.
func ComputeRates(slopes []model.SlopeResult, bg model.BackgroundRate, meta model.ChamberMeta, cfg *config.Config) ([]model.RateRecord, []model.Exclusion, error) {
	netVol := meta.VolumeL - meta.AnimalVolumeL
	if netVol <= 0 {
		return nil, nil, fmt.Errorf("%w: chamber %s: volume %.3f L does not exceed animal volume %.3f L",
			ErrInvalidChamberGeometry, meta.ID, meta.VolumeL, meta.AnimalVolumeL)
	}

	var (
		records []model.RateRecord
		excl    []model.Exclusion
	)
	for _, s := range slopes {
		if s.Flag != model.QualityAccepted {
			continue
		}

		bgSlope := bg.At(s.Mid)
		corrected := s.Slope - bgSlope

		mgPerLs, err := toMgPerLitreSecond(corrected, s.MeanTempC, cfg)
		if err != nil {
			excl = append(excl, model.Exclusion{
				Chamber: meta.ID,
				Stage:   "rate",
				Phase:   s.Phase,
				Reason:  "unit_conversion",
				Detail:  err.Error(),
			})
			continue
		}

		abs := -mgPerLs * netVol * 3600 // mgO2/h, positive = consumption
		records = append(records, model.RateRecord{
			Chamber:          meta.ID,
			Phase:            s.Phase,
			PhaseIndex:       s.PhaseIndex,
			Mid:              s.Mid,
			RawSlope:         s.Slope,
			BackgroundSlope:  bgSlope,
			CorrectedSlope:   mgPerLs,
			AbsoluteRate:     abs,
			MassSpecificRate: abs / meta.MassKg,
			MeanTempC:        s.MeanTempC,
			R2:               s.R2,
		})
	}

	return records, excl, nil
}

// toMgPerLitreSecond converts a raw slope to mg/L/s according to the
// configured oxygen unit.
func toMgPerLitreSecond(slope, tempC float64, cfg *config.Config) (float64, error) {
	if cfg.O2Unit != "percent_as" {
		return slope, nil
	}
	sat := cfg.SaturationMgL
	if sat <= 0 {
		if math.IsNaN(tempC) {
			return 0, fmt.Errorf("percent saturation needs a temperature reading or a fixed saturation_mgl")
		}
		sat = O2SaturationMgL(tempC, cfg.SalinityPSU)
	}
	return slope * sat / 100, nil
}
