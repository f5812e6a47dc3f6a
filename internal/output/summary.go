/*
PURPOSE:
  Writes the per-individual QC summary table and the exclusion report.
  The summary is one row per chamber; the exclusion report enumerates
  every dropped or rejected phase with its cause so data loss is
  auditable.

REQUIREMENTS:
  User-specified:
  - A final report enumerates all per-chamber/per-phase exclusions and
    their causes; no invisible silent failures.
  - Summary rows carry the run ID so re-runs stay attributable.

  Implementation-discovered:
  - Same flush-per-row discipline as the rates writer.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Consumes: model.ChamberSummary, model.Exclusion

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv, mirror csv.go's structure.

USAGE:
  sw, err := output.NewSummaryWriter("qc_summary.csv")
  ew, err := output.NewExclusionWriter("exclusions.csv")

SELF-HEALING INSTRUCTIONS:
  - If the summary format changes, update header and record conversion.

RELATED FILES:
  - internal/output/csv.go

MAINTENANCE:
  - Update when ChamberSummary or Exclusion grows fields.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/marlab/respiro/internal/model"
)

// SummaryWriter writes one QC row per chamber.
type SummaryWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewSummaryWriter creates a new SummaryWriter, overwriting the file.
func NewSummaryWriter(path string) (*SummaryWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	header := []string{
		"run_id", "chamber", "mass_kg", "net_volume_l",
		"accepted", "excluded",
		"smr", "mmr", "mean_rate", "min_rate", "max_rate",
		"smr_quantile", "trim_fraction",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &SummaryWriter{file: f, writer: w}, nil
}

// Write writes one chamber summary row.
func (sw *SummaryWriter) Write(s model.ChamberSummary) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	record := []string{
		s.RunID,
		s.Chamber,
		fmt.Sprintf("%.4f", s.MassKg),
		fmt.Sprintf("%.4f", s.NetVolumeL),
		fmt.Sprintf("%d", s.Accepted),
		fmt.Sprintf("%d", s.Excluded),
		fmt.Sprintf("%.3f", s.SMR),
		fmt.Sprintf("%.3f", s.MMR),
		fmt.Sprintf("%.3f", s.MeanRate),
		fmt.Sprintf("%.3f", s.MinRate),
		fmt.Sprintf("%.3f", s.MaxRate),
		fmt.Sprintf("%.2f", s.SMRQuantile),
		fmt.Sprintf("%.2f", s.TrimFraction),
	}
	if err := sw.writer.Write(record); err != nil {
		return err
	}
	sw.writer.Flush()
	return sw.writer.Error()
}

// Close closes the underlying file.
func (sw *SummaryWriter) Close() error {
	sw.writer.Flush()
	return sw.file.Close()
}

// ExclusionWriter writes the exclusion report. Rows carry the run ID so
// reports from re-runs stay attributable, same as the summary.
type ExclusionWriter struct {
	file   *os.File
	writer *csv.Writer
	runID  string
	mu     sync.Mutex
}

// NewExclusionWriter creates a new ExclusionWriter, overwriting the file.
func NewExclusionWriter(path, runID string) (*ExclusionWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"run_id", "chamber", "stage", "phase", "reason", "detail"}); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &ExclusionWriter{file: f, writer: w, runID: runID}, nil
}

// Write writes one exclusion row.
func (ew *ExclusionWriter) Write(e model.Exclusion) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if err := ew.writer.Write([]string{ew.runID, e.Chamber, e.Stage, e.Phase, e.Reason, e.Detail}); err != nil {
		return err
	}
	ew.writer.Flush()
	return ew.writer.Error()
}

// Close closes the underlying file.
func (ew *ExclusionWriter) Close() error {
	ew.writer.Flush()
	return ew.file.Close()
}
