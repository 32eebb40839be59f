package watch

import (
	"net/http/httptest"
	"testing"

	"github.com/talgya/amphoreus/internal/api"
	"github.com/talgya/amphoreus/internal/engine"
	"github.com/talgya/amphoreus/internal/world"
)

func activeObservation(gen uint64, entropy []float64, speed float64) *Observation {
	return &Observation{
		State: StateSnapshot{
			Generation:        gen,
			TimeConceptActive: true,
		},
		Entropy: entropy,
		Status:  Status{Speed: speed},
	}
}

func flatSeries(n int, value float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = value
	}
	return s
}

func rampSeries(n int, start, step float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = start + float64(i)*step
	}
	return s
}

func TestStewardLeavesHealthyWorldAlone(t *testing.T) {
	st := NewSteward()
	// Moderate climb: below the steep threshold, above the glacial one.
	obs := activeObservation(0, rampSeries(40, 0.1, 0.001), 1.0)

	d := st.Decide(obs)
	if d.Action != ActionNone {
		t.Fatalf("action = %q (%s), want none", d.Action, d.Rationale)
	}
}

func TestStewardDrownsStalledWorld(t *testing.T) {
	st := NewSteward()
	obs := activeObservation(0, rampSeries(40, 0.1, 0.001), 1.0)
	obs.State.TimeConceptActive = false

	for i := 0; i < st.StallPatience-1; i++ {
		if d := st.Decide(obs); d.Action == ActionBlackTide {
			t.Fatalf("black tide after %d observations, patience is %d", i+1, st.StallPatience)
		}
	}
	if d := st.Decide(obs); d.Action != ActionBlackTide {
		t.Fatalf("action = %q, want black_tide after %d stalled observations", d.Action, st.StallPatience)
	}
}

func TestStewardStallCounterResetsOnRecovery(t *testing.T) {
	st := NewSteward()
	stalled := activeObservation(0, rampSeries(40, 0.1, 0.001), 1.0)
	stalled.State.TimeConceptActive = false
	recovered := activeObservation(0, rampSeries(40, 0.1, 0.001), 1.0)

	for i := 0; i < st.StallPatience-1; i++ {
		st.Decide(stalled)
	}
	st.Decide(recovered)

	// Full patience applies again after recovery.
	for i := 0; i < st.StallPatience-1; i++ {
		if d := st.Decide(stalled); d.Action == ActionBlackTide {
			t.Fatal("stall counter did not reset on recovery")
		}
	}
}

func TestStewardChecksOnceNearCeiling(t *testing.T) {
	st := NewSteward()
	obs := activeObservation(0, rampSeries(40, 0.92, 0.0005), 1.0)

	d := st.Decide(obs)
	if d.Action != ActionCheckpoint {
		t.Fatalf("action = %q, want checkpoint near ceiling", d.Action)
	}
	// Same generation: no second checkpoint request.
	if d := st.Decide(obs); d.Action == ActionCheckpoint {
		t.Fatal("checkpoint requested twice in one generation")
	}

	// Next generation clears the latch.
	next := activeObservation(1, rampSeries(40, 0.92, 0.0005), 1.0)
	if d := st.Decide(next); d.Action != ActionCheckpoint {
		t.Fatalf("action = %q, want checkpoint again in new generation", d.Action)
	}
}

func TestStewardSlowsRunawayWorld(t *testing.T) {
	st := NewSteward()
	obs := activeObservation(0, rampSeries(40, 0.1, 0.01), 2.0)

	d := st.Decide(obs)
	if d.Action != ActionSetSpeed {
		t.Fatalf("action = %q, want set_speed for steep climb", d.Action)
	}
	if d.Speed != 1.0 {
		t.Errorf("speed = %v, want halved to 1.0", d.Speed)
	}
}

func TestStewardSpeedsUpGlacialWorld(t *testing.T) {
	st := NewSteward()
	obs := activeObservation(0, flatSeries(40, 0.3), 1.0)

	d := st.Decide(obs)
	if d.Action != ActionSetSpeed {
		t.Fatalf("action = %q, want set_speed for flat series", d.Action)
	}
	if d.Speed != 2.0 {
		t.Errorf("speed = %v, want doubled to 2.0", d.Speed)
	}
}

func TestStewardSpeedStaysInBounds(t *testing.T) {
	st := NewSteward()

	fast := activeObservation(0, flatSeries(40, 0.3), st.MaxSpeed)
	if d := st.Decide(fast); d.Action == ActionSetSpeed && d.Speed > st.MaxSpeed {
		t.Errorf("speed = %v exceeds max %v", d.Speed, st.MaxSpeed)
	}

	slow := activeObservation(1, rampSeries(40, 0.1, 0.01), st.MinSpeed)
	if d := st.Decide(slow); d.Action == ActionSetSpeed {
		t.Errorf("slowed below the floor: %v", d.Speed)
	}
}

func TestStewardIgnoresShortHistory(t *testing.T) {
	st := NewSteward()
	obs := activeObservation(0, flatSeries(5, 0.3), 1.0)

	if d := st.Decide(obs); d.Action != ActionNone {
		t.Fatalf("action = %q with 5 samples of history, want none", d.Action)
	}
}

func TestMeanSlope(t *testing.T) {
	if _, ok := meanSlope(flatSeries(10, 0.5), 20); ok {
		t.Error("meanSlope reported ok with insufficient history")
	}
	slope, ok := meanSlope(rampSeries(30, 0.0, 0.01), 20)
	if !ok {
		t.Fatal("meanSlope not ok with 30 samples")
	}
	if slope < 0.0099 || slope > 0.0101 {
		t.Errorf("slope = %v, want ~0.01", slope)
	}
}

// End-to-end: observer and actor against the real API surface.
func TestObserveAndActAgainstAPI(t *testing.T) {
	wcfg := world.DefaultConfig(19)
	wcfg.StepRate = 0.05
	wcfg.Roster = world.SeedConfig{Citizens: 40, Titans: 6, ChrysosHeirs: 4}
	eng, err := engine.New(engine.Config{World: wcfg, SeriesCapacity: 50})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	for i := 0; i < 30; i++ {
		eng.Step()
	}

	srv := &api.Server{Eng: eng, AdminKey: "watch-key"}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	obs, err := NewObserver(ts.URL).Observe()
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs.State.CycleCount != 30 {
		t.Errorf("cycle_count = %d, want 30", obs.State.CycleCount)
	}
	if len(obs.Entropy) == 0 {
		t.Error("no entropy history observed")
	}
	if obs.Status.Name != "Amphoreus" {
		t.Errorf("status name = %q", obs.Status.Name)
	}

	actor := NewActor(ts.URL, "watch-key")
	if err := actor.Act(Decision{Action: ActionBlackTide}); err != nil {
		t.Fatalf("Act(black_tide): %v", err)
	}
	eng.Step()
	if got := eng.ReadGlobalState().Generation; got != 1 {
		t.Errorf("generation after steward black tide = %d, want 1", got)
	}

	if err := actor.Act(Decision{Action: ActionNone}); err != nil {
		t.Errorf("Act(none): %v", err)
	}

	bad := NewActor(ts.URL, "wrong-key")
	if err := bad.Act(Decision{Action: ActionBlackTide}); err == nil {
		t.Error("Act with wrong admin key should fail")
	}
}
