package engine

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/marlab/respiro/internal/model"
)

func rateRecords(rates ...float64) []model.RateRecord {
	out := make([]model.RateRecord, len(rates))
	for i, r := range rates {
		out[i] = model.RateRecord{
			Chamber:          "CH1",
			Phase:            fmt.Sprintf("M%d", i+1),
			PhaseIndex:       i + 1,
			Mid:              t0.Add(time.Duration(i) * 15 * time.Minute),
			MassSpecificRate: r,
		}
	}
	return out
}

func TestExtract_TrimZeroIsIdentity(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	records := rateRecords(5, 3, 9, 1, 7)

	ext := Extract(records, meta, testConfig(), "run-1", 0)
	if ext.Summary.Accepted != 5 {
		t.Errorf("Accepted = %d, want 5", ext.Summary.Accepted)
	}
	if len(ext.Filtered) != len(records) {
		t.Fatalf("trim 0 dropped records: got %d, want %d", len(ext.Filtered), len(records))
	}
	// Chronological order restored; input was already chronological.
	for i := range records {
		if ext.Filtered[i].Phase != records[i].Phase {
			t.Errorf("Filtered[%d] = %s, want %s", i, ext.Filtered[i].Phase, records[i].Phase)
		}
	}
	if ext.Summary.MinRate != 1 || ext.Summary.MaxRate != 9 {
		t.Errorf("Min/Max = %v/%v, want 1/9", ext.Summary.MinRate, ext.Summary.MaxRate)
	}
}

func TestExtract_TrimmedMMRAndSMR(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	records := rateRecords(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	cfg := testConfig()
	cfg.TrimFraction = 0.1 // one record off each end

	ext := Extract(records, meta, cfg, "run-1", 2)
	if len(ext.Filtered) != 8 {
		t.Fatalf("got %d filtered records, want 8", len(ext.Filtered))
	}
	if ext.Summary.MMR != 9 {
		t.Errorf("MMR = %v, want 9 after trimming the extremum", ext.Summary.MMR)
	}
	if ext.Summary.MinRate != 2 {
		t.Errorf("MinRate = %v, want 2", ext.Summary.MinRate)
	}
	if ext.Summary.Excluded != 2 {
		t.Errorf("Excluded = %d, want 2", ext.Summary.Excluded)
	}
	if math.Abs(ext.Summary.MeanRate-5.5) > 1e-12 {
		t.Errorf("MeanRate = %v, want 5.5", ext.Summary.MeanRate)
	}
}

func TestExtract_SMRQuantile(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	records := rateRecords(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	ext := Extract(records, meta, testConfig(), "run-1", 0)
	if ext.Summary.SMR != 2 {
		t.Errorf("SMR = %v, want 2 (0.2 quantile of 1..10)", ext.Summary.SMR)
	}
}

func TestExtract_Empty(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	ext := Extract(nil, meta, testConfig(), "run-1", 3)
	if ext.Summary.Accepted != 0 || ext.Summary.Excluded != 3 {
		t.Errorf("summary = %+v, want zero accepted, 3 excluded", ext.Summary)
	}
	if len(ext.Filtered) != 0 {
		t.Errorf("got %d filtered records from empty input", len(ext.Filtered))
	}
}

func TestExtract_TrimClampKeepsOneRecord(t *testing.T) {
	meta := model.ChamberMeta{ID: "CH1", MassKg: 0.02, VolumeL: 5, AnimalVolumeL: 0.05}
	cfg := testConfig()
	cfg.TrimFraction = 0.5

	ext := Extract(rateRecords(4, 8), meta, cfg, "run-1", 0)
	if len(ext.Filtered) == 0 {
		t.Fatal("trim clamp removed every record")
	}
}
