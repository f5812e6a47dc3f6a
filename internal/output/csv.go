/*
PURPOSE:
  Writes metabolic-rate records to a CSV file.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - One row per chamber per accepted measure phase.
  - Keep file handle open for flushing, so a crash mid-experiment loses
    at most the current row.

  Implementation-discovered:
  - Rates carry enough precision that %.6f is needed for the slopes while
    %.3f reads better for the converted rates.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Consumes: internal/model.RateRecord

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).
  - Use Mutex if concurrent writes are expected (chamber fan-out).

USAGE:
  w, err := output.NewRatesWriter("metabolic_rates.csv")
  w.Write(rec)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If the CSV format changes, update header and record conversion.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update Write() mapping when RateRecord changes.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/marlab/respiro/internal/model"
)

// RatesWriter handles writing rate records to a CSV file.
type RatesWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewRatesWriter creates a new RatesWriter.
// It overwrites the file if it exists.
func NewRatesWriter(path string) (*RatesWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)

	header := []string{
		"chamber", "phase", "phase_index", "mid_time",
		"raw_slope", "background_slope", "corrected_slope_mgl_s",
		"absolute_rate_mgo2_h", "mass_specific_rate_mgo2_h_kg",
		"mean_temp_c", "r_squared",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &RatesWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single rate record to the CSV file.
// It is thread-safe.
func (rw *RatesWriter) Write(r model.RateRecord) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	record := []string{
		r.Chamber,
		r.Phase,
		fmt.Sprintf("%d", r.PhaseIndex),
		r.Mid.Format("2006-01-02T15:04:05Z07:00"),
		fmt.Sprintf("%.6f", r.RawSlope),
		fmt.Sprintf("%.6f", r.BackgroundSlope),
		fmt.Sprintf("%.6f", r.CorrectedSlope),
		fmt.Sprintf("%.3f", r.AbsoluteRate),
		fmt.Sprintf("%.3f", r.MassSpecificRate),
		fmt.Sprintf("%.2f", r.MeanTempC),
		fmt.Sprintf("%.4f", r.R2),
	}

	if err := rw.writer.Write(record); err != nil {
		return err
	}
	rw.writer.Flush()
	return rw.writer.Error()
}

// Close closes the underlying file.
func (rw *RatesWriter) Close() error {
	rw.writer.Flush()
	return rw.file.Close()
}
