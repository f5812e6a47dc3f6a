package engine

import (
	"testing"
	"time"

	"github.com/marlab/respiro/internal/config"
	"github.com/marlab/respiro/internal/model"
)

func measureOnlyConfig(duration time.Duration) *config.Config {
	cfg := testConfig()
	cfg.Cycle = []config.PhaseSpec{{Type: "measure", Duration: duration}}
	return cfg
}

func TestSegment_TruncationBoundary(t *testing.T) {
	cases := []struct {
		name    string
		seconds int
		kept    bool
	}{
		{"89 percent dropped", 89, false},
		{"91 percent kept", 91, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := measureOnlyConfig(100 * time.Second)
			samples := linearSamples("CH1", t0, tc.seconds, 10, -0.01)

			phases, excl := Segment(samples, cfg)
			if tc.kept {
				if len(phases) != 1 || len(excl) != 0 {
					t.Fatalf("got %d phases, %d exclusions, want 1 phase kept", len(phases), len(excl))
				}
				return
			}
			if len(phases) != 0 || len(excl) != 1 {
				t.Fatalf("got %d phases, %d exclusions, want phase dropped", len(phases), len(excl))
			}
			if excl[0].Reason != "short_phase" || excl[0].Phase != "M1" {
				t.Errorf("exclusion = %+v, want short_phase for M1", excl[0])
			}
		})
	}
}

func TestSegment_CycleWalk(t *testing.T) {
	cfg := testConfig()
	cfg.Cycle = []config.PhaseSpec{
		{Type: "flush", Duration: 10 * time.Second},
		{Type: "wait", Duration: 5 * time.Second},
		{Type: "measure", Duration: 20 * time.Second},
	}
	samples := linearSamples("CH1", t0, 70, 10, -0.01)

	phases, excl := Segment(samples, cfg)
	if len(excl) != 0 {
		t.Fatalf("unexpected exclusions: %+v", excl)
	}

	wantLabels := []string{"F1", "W1", "M1", "F2", "W2", "M2"}
	wantLens := []int{10, 5, 20, 10, 5, 20}
	if len(phases) != len(wantLabels) {
		t.Fatalf("got %d phases, want %d", len(phases), len(wantLabels))
	}
	for i := range phases {
		if phases[i].Label() != wantLabels[i] {
			t.Errorf("phase %d label = %s, want %s", i, phases[i].Label(), wantLabels[i])
		}
		if len(phases[i].Samples) != wantLens[i] {
			t.Errorf("phase %s has %d samples, want %d", phases[i].Label(), len(phases[i].Samples), wantLens[i])
		}
	}
}

func TestSegment_BoundaryRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Cycle = []config.PhaseSpec{
		{Type: "flush", Duration: 10 * time.Second},
		{Type: "wait", Duration: 10 * time.Second},
		{Type: "measure", Duration: 30 * time.Second},
	}
	cfg.Boundaries = []config.Boundary{
		{At: t0.Add(25 * time.Second), Entry: "measure"},
	}
	samples := linearSamples("CH1", t0, 85, 10, -0.01)

	phases, excl := Segment(samples, cfg)

	var kept []string
	for i := range phases {
		kept = append(kept, phases[i].Label())
	}
	// M1 is cut to 5 of 30 seconds by the boundary and dropped; the cycle
	// restarts at the measure slot; the tail flush/wait survive, the final
	// measure window does not.
	want := []string{"F1", "W1", "M2", "F2", "W2"}
	if len(kept) != len(want) {
		t.Fatalf("kept phases %v, want %v", kept, want)
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Fatalf("kept phases %v, want %v", kept, want)
		}
	}

	dropped := map[string]bool{}
	for _, e := range excl {
		dropped[e.Phase] = true
	}
	if !dropped["M1"] || !dropped["M3"] {
		t.Errorf("exclusions %v, want M1 and M3 dropped", dropped)
	}
}

func TestSegment_BoundaryOnWindowEdge(t *testing.T) {
	cfg := testConfig()
	cfg.Cycle = []config.PhaseSpec{
		{Type: "flush", Duration: 10 * time.Second},
		{Type: "wait", Duration: 10 * time.Second},
		{Type: "measure", Duration: 20 * time.Second},
	}
	// The boundary coincides with the end of F1: it cuts nothing, but the
	// cycle must still restart at the declared entry phase.
	cfg.Boundaries = []config.Boundary{
		{At: t0.Add(10 * time.Second), Entry: "measure"},
	}
	samples := linearSamples("CH1", t0, 70, 10, -0.01)

	phases, excl := Segment(samples, cfg)
	if len(excl) != 0 {
		t.Fatalf("unexpected exclusions: %+v", excl)
	}
	want := []string{"F1", "M1", "F2", "W1", "M2"}
	if len(phases) != len(want) {
		t.Fatalf("got %d phases, want %d", len(phases), len(want))
	}
	for i := range want {
		if phases[i].Label() != want[i] {
			t.Fatalf("phase %d = %s, want %s", i, phases[i].Label(), want[i])
		}
	}
}

func TestSegment_ZeroDurationSlotTerminates(t *testing.T) {
	cfg := measureOnlyConfig(0)
	samples := linearSamples("CH1", t0, 30, 10, -0.01)

	phases, excl := Segment(samples, cfg)
	if len(phases) != 0 || len(excl) != 0 {
		t.Errorf("got %d phases, %d exclusions from a zero-duration cycle", len(phases), len(excl))
	}
}

func TestSegment_StopClampsTail(t *testing.T) {
	cfg := measureOnlyConfig(60 * time.Second)
	stop := t0.Add(80 * time.Second)
	cfg.Stop = &stop
	samples := linearSamples("CH1", t0, 200, 10, -0.01)

	phases, excl := Segment(samples, cfg)
	if len(phases) != 1 || phases[0].Label() != "M1" {
		t.Fatalf("got %d phases, want only M1 before the stop", len(phases))
	}
	if len(excl) != 1 || excl[0].Phase != "M2" {
		t.Fatalf("exclusions = %+v, want truncated M2", excl)
	}
}

func TestSegment_DeclaredStartAnchorsWindows(t *testing.T) {
	cfg := measureOnlyConfig(60 * time.Second)
	start := t0.Add(-30 * time.Second) // logging began 30s late
	cfg.Start = &start
	samples := linearSamples("CH1", t0, 120, 10, -0.01)

	phases, excl := Segment(samples, cfg)
	// First window [start, start+60) holds only 30s of data: dropped.
	if len(excl) == 0 || excl[0].Phase != "M1" {
		t.Fatalf("exclusions = %+v, want under-filled head M1", excl)
	}
	if len(phases) != 1 || phases[0].Label() != "M2" {
		t.Fatalf("phases = %d, want only M2 kept", len(phases))
	}
	if !phases[0].Start.Equal(start.Add(60 * time.Second)) {
		t.Errorf("M2 starts %v, want anchored to declared start", phases[0].Start)
	}
}

func TestMeasurePhases(t *testing.T) {
	phases := []model.Phase{
		{Type: model.PhaseFlush},
		{Type: model.PhaseMeasure},
		{Type: model.PhaseWait},
		{Type: model.PhaseMeasure},
	}
	if got := len(MeasurePhases(phases)); got != 2 {
		t.Errorf("MeasurePhases kept %d, want 2", got)
	}
}
