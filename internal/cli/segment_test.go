package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSegmentRejectsInvalidConfig(t *testing.T) {
	// A cycle slot without a duration parses to zero and must be caught by
	// validation before any data is read.
	yaml := `
input: run.csv
cycle:
  - {type: measure}
chambers:
  - {id: CH1, mass_kg: 0.02, volume_l: 5}
`
	path := filepath.Join(t.TempDir(), "respiro.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SetArgs([]string{"segment", "--config", path})
	if err := rootCmd.Execute(); err == nil {
		t.Error("segment accepted a zero-duration cycle slot")
	}
}
