package engine

import (
	"testing"
	"time"
)

func TestNewRunnerRejectsBadRate(t *testing.T) {
	e := mustNew(t, testConfig(1))
	for _, hz := range []int{0, -60} {
		if _, err := NewRunner(e, hz); err == nil {
			t.Fatalf("expected error for %d hz", hz)
		}
	}
}

func TestSetSpeedBounds(t *testing.T) {
	e := mustNew(t, testConfig(3))
	r, err := NewRunner(e, 60)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := r.SetSpeed(-1); err == nil {
		t.Fatal("expected error for negative speed")
	}
	if err := r.SetSpeed(1001); err == nil {
		t.Fatal("expected error for speed past the cap")
	}
	if err := r.SetSpeed(2.5); err != nil {
		t.Fatalf("SetSpeed(2.5): %v", err)
	}
	if got := r.Speed(); got != 2.5 {
		t.Fatalf("Speed() = %v, want 2.5", got)
	}
}

func TestRunnerStepsAndStops(t *testing.T) {
	e := mustNew(t, testConfig(5))
	r, err := NewRunner(e, 1000)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.Steps() == 0 {
		select {
		case <-deadline:
			t.Fatal("runner took no steps within 2s")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	r.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop within 2s")
	}

	if e.ReadGlobalState().CycleCount == 0 && e.ReadGlobalState().Generation == 0 {
		t.Fatal("engine did not advance under the runner")
	}
}

func TestRunnerPausedTakesNoSteps(t *testing.T) {
	e := mustNew(t, testConfig(7))
	r, err := NewRunner(e, 1000)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := r.SetSpeed(0); err != nil {
		t.Fatalf("SetSpeed(0): %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	time.Sleep(250 * time.Millisecond)
	if got := r.Steps(); got != 0 {
		t.Fatalf("paused runner took %d steps", got)
	}

	r.Stop()
	<-done
}

func TestRunnerCheckpointCallback(t *testing.T) {
	e := mustNew(t, testConfig(9))
	r, err := NewRunner(e, 1000)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	got := make(chan Checkpoint, 64)
	r.CheckpointEvery = 10
	r.OnCheckpoint = func(cp Checkpoint) {
		select {
		case got <- cp:
		default:
		}
	}

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	select {
	case cp := <-got:
		if len(cp.World.Roster) == 0 {
			t.Error("checkpoint missing roster")
		}
	case <-time.After(2 * time.Second):
		t.Error("no checkpoint within 2s")
	}

	r.Stop()
	<-done
}
