/*
PURPOSE:
  Defines the 'segment' subcommand: a pre-analysis audit that prints the
  phase table (chamber, label, start, coverage, kept/dropped) without
  running the slope and rate stages. Used to sanity-check cycle and
  boundary settings against a new log before committing to an analysis.

REQUIREMENTS:
  User-specified:
  - A way to audit segmentation and data loss before the full run.

  Implementation-discovered:
  - Reuses config loading and the input override; a wrong cycle config is
    the single most common support question.

ARCHITECTURE INTEGRATION:
  - Calls: internal/importer, engine.Normalize, engine.Segment
  - Uses: internal/config

ERROR HANDLING:
  - The configuration is validated before import, same as the run command.
  - A malformed chamber is reported and skipped; remaining chambers are
    still printed.

IMPLEMENTATION RULES:
  - Plain stdout table via fmt; this is terminal output, not a result
    file.

USAGE:
  respiro segment --input run03.csv

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/cli/run.go

MAINTENANCE:
  - Keep columns in sync with what Segment records in exclusions.
*/

package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/engine"
	"github.com/marlab/respiro/internal/importer"
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Print the phase segmentation without analysing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if inputOverride != "" {
			cfg.Input = inputOverride
		}
		if vendorOverride != "" {
			cfg.Vendor = vendorOverride
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		rd, err := importer.New(cfg)
		if err != nil {
			return err
		}
		byChamber, err := rd.Read()
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(byChamber))
		for id := range byChamber {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			norm, _, err := engine.Normalize(byChamber[id], cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: chamber %s: %v\n", id, err)
				continue
			}
			phases, excl := engine.Segment(norm, cfg)

			fmt.Printf("Chamber %s: %d phases kept, %d dropped\n", id, len(phases), len(excl))
			for i := range phases {
				p := &phases[i]
				fmt.Printf("  %-4s %-7s %s  %4.0fs of %4.0fs (%.0f%%)\n",
					p.Label(), p.Type, p.Start.Format("2006-01-02 15:04:05"),
					p.Actual().Seconds(), p.Declared.Seconds(), p.Coverage()*100)
			}
			for _, e := range excl {
				fmt.Printf("  %-4s dropped: %s\n", e.Phase, e.Detail)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(segmentCmd)
	segmentCmd.Flags().StringVarP(&inputOverride, "input", "i", "", "Input CSV log (overrides config)")
	segmentCmd.Flags().StringVar(&vendorOverride, "vendor", "", "Vendor column preset")
}
