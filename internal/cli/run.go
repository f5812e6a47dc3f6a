/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the full analysis pipeline.

REQUIREMENTS:
  User-specified:
  - Run the analysis.
  - Specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails or engine run fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Engine.Run.

USAGE:
  respiro run --input run03.csv -o ./results

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"github.com/spf13/cobra"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/engine"
)

var (
	inputOverride  string
	outputOverride string
	vendorOverride string
	mixtureFlag    bool
	trimOverride   float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis pipeline",
	Long: `Executes the full respirometry analysis for one experiment.
The process follows a strict order:
1. Import: reads the vendor CSV into per-chamber sample sequences.
2. Repair: deduplicates timestamps and fills missing seconds.
3. Segmentation: assigns samples to the declared flush/wait/measure cycle.
4. Slope fitting: linear regression per measure phase, optionally with the
   mixture-model residual filter.
5. Correction: subtracts interpolated background respiration.
6. Rates: converts to absolute and mass-specific metabolic rate.
7. Extraction: derives SMR/MMR per individual.

Results are written as CSV and JSON Lines, together with a QC summary and
an exclusion report listing every dropped phase and its cause.`,
	Example: `  # Run with defaults (uses respiro.yaml)
  respiro run

  # Override the input log and output directory
  respiro run --input run03.csv -o ./results

  # Analyse a FireSting export with the movement filter on
  respiro run --vendor firesting --mixture-filter

  # Trim the top/bottom 5% before SMR/MMR extraction
  respiro run --trim 0.05`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// 2. Overrides
		if inputOverride != "" {
			cfg.Input = inputOverride
		}
		if outputOverride != "" {
			cfg.OutputDir = outputOverride
		}
		if vendorOverride != "" {
			cfg.Vendor = vendorOverride
		}
		if cmd.Flags().Changed("mixture-filter") {
			cfg.MixtureFilter = mixtureFlag
		}
		if cmd.Flags().Changed("trim") {
			cfg.TrimFraction = trimOverride
		}

		// 3. Execution
		return engine.Run(cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&inputOverride, "input", "i", "", "Input CSV log (overrides config)")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for results")
	runCmd.Flags().StringVar(&vendorOverride, "vendor", "", "Vendor column preset (generic, firesting, witrox)")
	runCmd.Flags().BoolVar(&mixtureFlag, "mixture-filter", false, "Enable the mixture-model residual filter")
	runCmd.Flags().Float64Var(&trimOverride, "trim", 0, "Fraction trimmed from each end before SMR/MMR extraction")
}
