/*
PURPOSE:
  High-level runner that orchestrates the analysis.
  Import -> background rates -> per chamber: normalize, segment, fit,
  correct, convert, extract -> CSV/JSON outputs plus exclusion report.

REQUIREMENTS:
  User-specified:
  - Process every configured chamber; one chamber's fatal error must not
    abort the rest.
  - Write the rate table, the per-individual QC summary and a report of
    every exclusion with its cause.

  Implementation-discovered:
  - Needs to report per-chamber progress to the CLI.
  - Chambers are processed in config order so output files are stable
    across runs.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/importer, the stage functions in this package,
    internal/output
  - Dependencies: google/uuid for the run ID.

ERROR HANDLING:
  - Config/import/background failures abort the run (experiment-level).
  - Per-chamber errors are logged, recorded as exclusions and skipped
    (resilience).

IMPLEMENTATION RULES:
  - Stages are pure functions over immutable records; the runner owns all
    I/O and all continues/aborts decisions.

USAGE:
  err := engine.Run(cfg)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/normalize.go .. extract.go
  - internal/output/*.go

MAINTENANCE:
  - Update iteration logic if chamber-parallel fan-out is introduced;
    stages are already safe for it.
*/

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/importer"
	"github.com/marlab/respiro/internal/model"
	"github.com/marlab/respiro/internal/output"
)

// chamberResult is everything one chamber contributes to the output files.
// records holds every accepted phase; extraction.Filtered is the post-trim
// subset the summary statistics were computed from.
type chamberResult struct {
	records    []model.RateRecord
	extraction Extraction
	exclusions []model.Exclusion
}

// Run executes the full analysis for one experiment configuration.
func Run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	output.Logger.Info("Starting analysis", "run_id", runID, "input", cfg.Input)

	rd, err := importer.New(cfg)
	if err != nil {
		return err
	}
	byChamber, err := rd.Read()
	if err != nil {
		return err
	}

	exp := buildExperiment(cfg, byChamber)

	bgRates, err := BackgroundRates(cfg)
	if err != nil {
		return fmt.Errorf("background correction: %w", err)
	}
	if bgRates != nil {
		output.Logger.Info("Background rates computed", "mode", cfg.Background.Mode, "chambers", len(bgRates))
	}

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	ratesCSV, err := output.NewRatesWriter(filepath.Join(cfg.OutputDir, cfg.OutputFile))
	if err != nil {
		return fmt.Errorf("failed to init rates writer: %w", err)
	}
	defer ratesCSV.Close()

	jsonName := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".jsonl"
	ratesJSON, err := output.NewJSONWriter(filepath.Join(cfg.OutputDir, jsonName))
	if err != nil {
		return fmt.Errorf("failed to init JSON writer: %w", err)
	}
	defer ratesJSON.Close()

	summaryW, err := output.NewSummaryWriter(filepath.Join(cfg.OutputDir, "qc_summary.csv"))
	if err != nil {
		return fmt.Errorf("failed to init summary writer: %w", err)
	}
	defer summaryW.Close()

	exclW, err := output.NewExclusionWriter(filepath.Join(cfg.OutputDir, "exclusions.csv"), runID)
	if err != nil {
		return fmt.Errorf("failed to init exclusion writer: %w", err)
	}
	defer exclW.Close()

	failed := 0
	for _, meta := range exp.Chambers {
		samples, ok := exp.Samples[meta.ID]
		if !ok || len(samples) == 0 {
			output.Logger.Warn("No data for configured chamber", "chamber", meta.ID)
			writeExclusions(exclW, []model.Exclusion{{
				Chamber: meta.ID, Stage: "import", Reason: "no_data",
				Detail: "chamber configured but absent from input",
			}})
			failed++
			continue
		}

		output.Logger.Info("Processing chamber", "chamber", meta.ID, "samples", len(samples))

		res, err := analyzeChamber(meta, samples, bgRates, cfg, runID)
		writeExclusions(exclW, res.exclusions)
		if err != nil {
			output.Logger.Error("Chamber failed", "chamber", meta.ID, "error", err)
			writeExclusions(exclW, []model.Exclusion{{
				Chamber: meta.ID, Stage: "chamber", Reason: "fatal", Detail: err.Error(),
			}})
			failed++
			continue
		}

		for _, rec := range res.records {
			if err := ratesCSV.Write(rec); err != nil {
				output.Logger.Error("Failed to write rate row to CSV", "error", err)
			}
			if err := ratesJSON.Write(rec); err != nil {
				output.Logger.Error("Failed to write rate row to JSON", "error", err)
			}
		}
		if err := summaryW.Write(res.extraction.Summary); err != nil {
			output.Logger.Error("Failed to write summary row", "error", err)
		}

		output.Logger.Info("Chamber complete",
			"chamber", meta.ID,
			"accepted", res.extraction.Summary.Accepted,
			"excluded", res.extraction.Summary.Excluded,
			"smr", fmt.Sprintf("%.3f", res.extraction.Summary.SMR),
			"mmr", fmt.Sprintf("%.3f", res.extraction.Summary.MMR),
		)
	}

	output.Logger.Info("Analysis complete",
		"run_id", runID,
		"chambers", len(exp.Chambers),
		"failed", failed,
	)
	return nil
}

// analyzeChamber runs the full stage sequence for one chamber. All
// recoverable losses come back as exclusions; the returned error is fatal
// for this chamber only.
func analyzeChamber(meta model.ChamberMeta, samples []model.Sample, bgRates map[string]model.BackgroundRate, cfg *config.Config, runID string) (chamberResult, error) {
	var res chamberResult

	norm, nstats, err := Normalize(samples, cfg)
	if err != nil {
		return res, err
	}
	if nstats.Duplicates > 0 || nstats.Filled > 0 {
		output.Logger.Info("Timeseries repaired",
			"chamber", meta.ID,
			"duplicates_dropped", nstats.Duplicates,
			"seconds_filled", nstats.Filled,
		)
	}

	phases, segExcl := Segment(norm, cfg)
	res.exclusions = append(res.exclusions, segExcl...)

	slopes, slopeExcl := ExtractSlopes(phases, cfg)
	res.exclusions = append(res.exclusions, slopeExcl...)

	var bg model.BackgroundRate
	if mode := cfg.Background.Mode; mode != "" && mode != "none" {
		var ok bool
		bg, ok = bgRates[meta.ID]
		if !ok {
			return res, fmt.Errorf("%w: chamber %s has no usable %s background data",
				ErrMissingBackgroundTest, meta.ID, mode)
		}
	}

	records, rateExcl, err := ComputeRates(slopes, bg, meta, cfg)
	res.exclusions = append(res.exclusions, rateExcl...)
	if err != nil {
		return res, err
	}

	res.records = records
	res.extraction = Extract(records, meta, cfg, runID, measureLosses(res.exclusions))
	return res, nil
}

// measureLosses counts the exclusions that cost a measure phase. Dropped
// flush and wait windows are audit rows, not lost measurements, and must
// not inflate the summary's excluded column.
func measureLosses(excl []model.Exclusion) int {
	n := 0
	for _, e := range excl {
		if e.Stage == "segment" && !strings.HasPrefix(e.Phase, "M") {
			continue
		}
		n++
	}
	return n
}

// buildExperiment freezes the configuration and imported samples into the
// immutable experiment aggregate.
func buildExperiment(cfg *config.Config, byChamber map[string][]model.Sample) *model.Experiment {
	exp := &model.Experiment{
		Samples:     byChamber,
		SalinityPSU: cfg.SalinityPSU,
	}
	for _, ch := range cfg.Chambers {
		exp.Chambers = append(exp.Chambers, model.ChamberMeta{
			ID:            ch.ID,
			MassKg:        ch.MassKg,
			VolumeL:       ch.VolumeL,
			AnimalVolumeL: ch.AnimalVolumeL,
		})
	}
	return exp
}

func writeExclusions(w *output.ExclusionWriter, excl []model.Exclusion) {
	for _, e := range excl {
		if err := w.Write(e); err != nil {
			output.Logger.Error("Failed to write exclusion row", "error", err)
		}
	}
}
