package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/marlab/respiro/internal/model"
)

func acceptedSlope(slope float64) model.SlopeResult {
	return model.SlopeResult{
		Chamber:   "CH1",
		Phase:     "M1",
		Mid:       t0,
		Slope:     slope,
		R2:        0.999,
		N:         300,
		MeanTempC: 15,
		Flag:      model.QualityAccepted,
	}
}

func TestComputeRates_ReferenceArithmetic(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	slopes := []model.SlopeResult{acceptedSlope(-0.01)}

	records, excl, err := ComputeRates(slopes, model.BackgroundRate{}, meta, testConfig())
	if err != nil || len(excl) != 0 {
		t.Fatalf("ComputeRates: records=%d excl=%v err=%v", len(records), excl, err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]

	// -(-0.01 mg/L/s) * 4.95 L * 3600 s/h = 178.2 mgO2/h
	if math.Abs(r.AbsoluteRate-178.2) > 1e-9 {
		t.Errorf("AbsoluteRate = %v, want 178.2", r.AbsoluteRate)
	}
	// 178.2 / 0.02 kg = 8910 mgO2/h/kg
	if math.Abs(r.MassSpecificRate-8910) > 1e-9 {
		t.Errorf("MassSpecificRate = %v, want 8910", r.MassSpecificRate)
	}
}

func TestComputeRates_InvalidGeometry(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 0.05, AnimalVolumeL: 0.05}
	_, _, err := ComputeRates([]model.SlopeResult{acceptedSlope(-0.01)}, model.BackgroundRate{}, meta, testConfig())
	if !errors.Is(err, ErrInvalidChamberGeometry) {
		t.Fatalf("err = %v, want ErrInvalidChamberGeometry", err)
	}
}

func TestComputeRates_BackgroundSubtracted(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	bg := model.BackgroundRate{Mode: "pre", RateBefore: -0.002}

	records, _, err := ComputeRates([]model.SlopeResult{acceptedSlope(-0.01)}, bg, meta, testConfig())
	if err != nil || len(records) != 1 {
		t.Fatalf("ComputeRates: %v, %d records", err, len(records))
	}
	r := records[0]
	if math.Abs(r.CorrectedSlope-(-0.008)) > 1e-12 {
		t.Errorf("CorrectedSlope = %v, want -0.008", r.CorrectedSlope)
	}
	if math.Abs(r.AbsoluteRate-(0.008*4.95*3600)) > 1e-9 {
		t.Errorf("AbsoluteRate = %v, want background-corrected value", r.AbsoluteRate)
	}
	if r.BackgroundSlope != -0.002 {
		t.Errorf("BackgroundSlope = %v, want -0.002", r.BackgroundSlope)
	}
}

func TestComputeRates_RejectedSlopesSkipped(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	rejected := acceptedSlope(-0.01)
	rejected.Flag = model.QualityRejected

	records, _, err := ComputeRates([]model.SlopeResult{rejected}, model.BackgroundRate{}, meta, testConfig())
	if err != nil {
		t.Fatalf("ComputeRates: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("rejected slope produced %d records, want 0", len(records))
	}
}

func TestComputeRates_PercentSaturation(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	cfg := testConfig()
	cfg.O2Unit = "percent_as"
	cfg.SaturationMgL = 10 // fixed override: -0.1 %AS/s -> -0.01 mg/L/s

	records, _, err := ComputeRates([]model.SlopeResult{acceptedSlope(-0.1)}, model.BackgroundRate{}, meta, cfg)
	if err != nil || len(records) != 1 {
		t.Fatalf("ComputeRates: %v, %d records", err, len(records))
	}
	if math.Abs(records[0].CorrectedSlope-(-0.01)) > 1e-12 {
		t.Errorf("CorrectedSlope = %v, want -0.01 mg/L/s", records[0].CorrectedSlope)
	}
}

func TestComputeRates_PercentSaturationNeedsTemperature(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	cfg := testConfig()
	cfg.O2Unit = "percent_as"

	s := acceptedSlope(-0.1)
	s.MeanTempC = math.NaN()

	records, excl, err := ComputeRates([]model.SlopeResult{s}, model.BackgroundRate{}, meta, cfg)
	if err != nil {
		t.Fatalf("ComputeRates: %v", err)
	}
	if len(records) != 0 || len(excl) != 1 || excl[0].Reason != "unit_conversion" {
		t.Errorf("records=%d excl=%+v, want one unit_conversion exclusion", len(records), excl)
	}
}

func TestO2SaturationMgL(t *testing.T) {
	cases := []struct {
		tempC, salinity float64
		want            float64 // published air-saturation values
	}{
		{15, 0, 10.08},
		{25, 0, 8.26},
		{25, 35, 6.62},
	}
	for _, tc := range cases {
		got := O2SaturationMgL(tc.tempC, tc.salinity)
		if math.Abs(got-tc.want) > 0.1 {
			t.Errorf("O2SaturationMgL(%v, %v) = %v, want ~%v", tc.tempC, tc.salinity, got, tc.want)
		}
	}
}
