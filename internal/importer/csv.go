/*
PURPOSE:
  Reads a CSV export into per-chamber sample sequences using a resolved
  column map. The inverse of the output writers: header row first, one
  sample per line.

REQUIREMENTS:
  User-specified:
  - CSV-like flat-file input, columns located by name, not position.

  Implementation-discovered:
  - Vendor exports contain unreadable oxygen cells ("---", empty) when the
    optode drops out; those become NaN readings rather than import errors
    so the normalizer/segmenter can account for them.
  - Temperature column is optional on some loggers.

ARCHITECTURE INTEGRATION:
  - Implements: importer.Reader
  - Consumes: config.ColumnMap

ERROR HANDLING:
  - Missing file, missing header columns and unparsable timestamps are
    errors (a wrong time layout would corrupt every phase boundary).
  - Unparsable numeric cells degrade to NaN, counted by the caller's
    normalize stats.

IMPLEMENTATION RULES:
  - Use encoding/csv with FieldsPerRecord = -1; vendor files pad ragged
    tails.

USAGE:
  r := &importer.CSVReader{Path: "run.csv", Columns: cols}
  byChamber, err := r.Read()

SELF-HEALING INSTRUCTIONS:
  - If a vendor export adds a BOM or comment lines, strip them here, not
    in the pipeline.

RELATED FILES:
  - internal/importer/importer.go

MAINTENANCE:
  - Update when supporting non-CSV tabular inputs.
*/

package importer

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// CSVReader reads one CSV export file.
type CSVReader struct {
	Path    string
	Columns config.ColumnMap
}

// Read parses the file into per-chamber sample sequences.
func (r *CSVReader) Read() (map[string][]model.Sample, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importer: reading %s: %w", r.Path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("importer: %s is empty", r.Path)
	}

	header := rows[0]
	// Some loggers prepend a UTF-8 BOM to the first header cell.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	idx := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	chamberIdx := idx(r.Columns.Chamber)
	timeIdx := idx(r.Columns.Time)
	o2Idx := idx(r.Columns.O2)
	tempIdx := idx(r.Columns.Temp) // optional

	if chamberIdx < 0 || timeIdx < 0 || o2Idx < 0 {
		return nil, fmt.Errorf("importer: %s: missing required columns (%s, %s, %s) in header %v",
			r.Path, r.Columns.Chamber, r.Columns.Time, r.Columns.O2, header)
	}

	out := make(map[string][]model.Sample)
	for line, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		need := max(chamberIdx, max(timeIdx, o2Idx))
		if len(row) <= need {
			continue // ragged tail line
		}

		ts, err := parseTime(row[timeIdx], r.Columns.TimeLayout)
		if err != nil {
			return nil, fmt.Errorf("importer: %s line %d: %w", r.Path, line+2, err)
		}

		s := model.Sample{
			Chamber: strings.TrimSpace(row[chamberIdx]),
			Time:    ts,
			O2:      parseFloat(row[o2Idx]),
			TempC:   math.NaN(),
		}
		if tempIdx >= 0 && tempIdx < len(row) {
			s.TempC = parseFloat(row[tempIdx])
		}
		out[s.Chamber] = append(out[s.Chamber], s)
	}

	return out, nil
}

func parseTime(cell, layout string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	t, err := time.Parse(layout, cell)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q does not match layout %q", cell, layout)
	}
	return t, nil
}

// parseFloat is tolerant: dropout markers and decimal commas both occur in
// vendor exports. Unparsable cells become NaN.
func parseFloat(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == "---" || cell == "NA" {
		return math.NaN()
	}
	cell = strings.ReplaceAll(cell, ",", ".")
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
