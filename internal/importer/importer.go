/*
PURPOSE:
  Defines the tabular-reader boundary between vendor export files and the
  pipeline. Every vendor format is just a column/time-layout preset behind
  one Reader interface; the pipeline never branches on vendor.

REQUIREMENTS:
  User-specified:
  - Field names configurable to accommodate multiple vendor export formats.
  - Import delivers data already shaped into per-chamber sample sequences.

  Implementation-discovered:
  - Presets must be overridable field by field, so a near-generic export
    only needs the one column renamed.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (runner, background), internal/cli
  - Produces: model.Sample sequences keyed by chamber ID.

ERROR HANDLING:
  - Unknown vendor or missing columns are configuration errors, returned
    immediately.

IMPLEMENTATION RULES:
  - Selection by preset lookup, not by conditional branching deep in the
    pipeline.

USAGE:
  r, err := importer.New(cfg)
  byChamber, err := r.Read()

SELF-HEALING INSTRUCTIONS:
  - New vendor = new preset entry. No other code changes.

RELATED FILES:
  - internal/importer/csv.go

MAINTENANCE:
  - Keep preset layouts in sync with vendor firmware exports.
*/

package importer

import (
	"fmt"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

// Reader delivers raw samples grouped by chamber, ordered as logged.
type Reader interface {
	Read() (map[string][]model.Sample, error)
}

// presets maps vendor names to their export column layouts.
var presets = map[string]config.ColumnMap{
	"generic": {
		Chamber:    "chamber",
		Time:       "time",
		O2:         "o2",
		Temp:       "temp",
		TimeLayout: "2006-01-02 15:04:05",
	},
	"firesting": {
		Chamber:    "Channel",
		Time:       "Date_Time",
		O2:         "Oxygen",
		Temp:       "Temp",
		TimeLayout: "02.01.2006 15:04:05",
	},
	"witrox": {
		Chamber:    "Chamber",
		Time:       "Date_Time",
		O2:         "O2_mg_L",
		Temp:       "Temp_C",
		TimeLayout: "1/2/2006 15:04:05",
	},
}

// New returns a Reader for the experiment's main input file.
func New(cfg *config.Config) (Reader, error) {
	return NewFile(cfg, cfg.Input)
}

// NewFile returns a Reader for an arbitrary file sharing the experiment's
// vendor layout (used for background pre/post test recordings).
func NewFile(cfg *config.Config, path string) (Reader, error) {
	cols, err := resolveColumns(cfg.Vendor, cfg.Columns)
	if err != nil {
		return nil, err
	}
	return &CSVReader{Path: path, Columns: cols}, nil
}

// resolveColumns merges explicit column overrides over the vendor preset.
func resolveColumns(vendor string, override config.ColumnMap) (config.ColumnMap, error) {
	if vendor == "" {
		vendor = "generic"
	}
	cols, ok := presets[vendor]
	if !ok {
		return config.ColumnMap{}, fmt.Errorf("importer: unknown vendor %q", vendor)
	}
	if override.Chamber != "" {
		cols.Chamber = override.Chamber
	}
	if override.Time != "" {
		cols.Time = override.Time
	}
	if override.O2 != "" {
		cols.O2 = override.O2
	}
	if override.Temp != "" {
		cols.Temp = override.Temp
	}
	if override.TimeLayout != "" {
		cols.TimeLayout = override.TimeLayout
	}
	return cols, nil
}
