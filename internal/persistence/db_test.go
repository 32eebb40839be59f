package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/amphoreus/internal/engine"
	"github.com/talgya/amphoreus/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "amphoreus.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T, seed int64) *engine.Engine {
	t.Helper()
	cfg := engine.DefaultConfig(seed)
	cfg.World.StepRate = 0.05
	cfg.World.Roster = world.SeedConfig{Citizens: 30, Titans: 4, ChrysosHeirs: 3}
	cfg.SeriesCapacity = 40
	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

func TestChronicleAppendAndQuery(t *testing.T) {
	db := openTestDB(t)
	e := testEngine(t, 3)

	e.OnChronicle = func(c engine.Chronicle) {
		if err := db.AppendChronicle(c); err != nil {
			t.Fatalf("AppendChronicle: %v", err)
		}
	}

	for len(e.Chronicles()) < 3 {
		e.Step()
	}

	got, err := db.Chronicles(10)
	if err != nil {
		t.Fatalf("Chronicles: %v", err)
	}
	want := e.Chronicles()
	if len(got) != len(want) {
		t.Fatalf("expected %d chronicles, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Generation != want[i].Generation {
			t.Fatalf("chronicle %d generation: %d vs %d", i, got[i].Generation, want[i].Generation)
		}
		if got[i].FinalEntropy != want[i].FinalEntropy {
			t.Fatalf("chronicle %d entropy: %v vs %v", i, got[i].FinalEntropy, want[i].FinalEntropy)
		}
		if got[i].Trigger != want[i].Trigger {
			t.Fatalf("chronicle %d trigger: %q vs %q", i, got[i].Trigger, want[i].Trigger)
		}
		if len(got[i].Survivors) != len(want[i].Survivors) {
			t.Fatalf("chronicle %d survivors: %d vs %d", i, len(got[i].Survivors), len(want[i].Survivors))
		}
		if !got[i].ArchivedAt.Equal(want[i].ArchivedAt) {
			t.Fatalf("chronicle %d archived_at: %v vs %v", i, got[i].ArchivedAt, want[i].ArchivedAt)
		}
	}
}

func TestChroniclesLimitKeepsMostRecent(t *testing.T) {
	db := openTestDB(t)

	for gen := uint64(0); gen < 5; gen++ {
		err := db.AppendChronicle(engine.Chronicle{
			Generation:      gen,
			FinalCycleCount: 100 + gen,
			FinalEntropy:    1.0,
			Trigger:         engine.TriggerCeiling,
			ArchivedAt:      time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("AppendChronicle %d: %v", gen, err)
		}
	}

	got, err := db.Chronicles(2)
	if err != nil {
		t.Fatalf("Chronicles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chronicles, got %d", len(got))
	}
	if got[0].Generation != 3 || got[1].Generation != 4 {
		t.Fatalf("expected generations [3 4], got [%d %d]", got[0].Generation, got[1].Generation)
	}
}

func TestAppendChronicleRejectsDuplicateGeneration(t *testing.T) {
	db := openTestDB(t)

	record := engine.Chronicle{Generation: 7, Trigger: engine.TriggerDriver, ArchivedAt: time.Now().UTC()}
	if err := db.AppendChronicle(record); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := db.AppendChronicle(record); err == nil {
		t.Fatal("expected duplicate generation to be rejected")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := openTestDB(t)
	e := testEngine(t, 42)

	if db.HasCheckpoint() {
		t.Fatal("fresh database reports a checkpoint")
	}

	for i := 0; i < 120; i++ {
		e.Step()
	}

	saved := e.Checkpoint()
	if err := db.SaveCheckpoint(saved, 42); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if !db.HasCheckpoint() {
		t.Fatal("HasCheckpoint false after save")
	}

	seed, err := db.SavedSeed()
	if err != nil {
		t.Fatalf("SavedSeed: %v", err)
	}
	if seed != 42 {
		t.Fatalf("saved seed = %d, want 42", seed)
	}

	loaded, err := db.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.Generation != saved.Generation {
		t.Fatalf("generation: %d vs %d", loaded.Generation, saved.Generation)
	}
	if loaded.World.CycleCount != saved.World.CycleCount {
		t.Fatalf("cycle count: %d vs %d", loaded.World.CycleCount, saved.World.CycleCount)
	}
	if loaded.World.DestructionEntropy != saved.World.DestructionEntropy {
		t.Fatalf("entropy: %v vs %v", loaded.World.DestructionEntropy, saved.World.DestructionEntropy)
	}
	if loaded.World.Memory != saved.World.Memory {
		t.Fatalf("memory: %+v vs %+v", loaded.World.Memory, saved.World.Memory)
	}
	if loaded.World.Flamebearer != saved.World.Flamebearer {
		t.Fatal("flamebearer id lost")
	}
	if len(loaded.World.Roster) != len(saved.World.Roster) {
		t.Fatalf("roster size: %d vs %d", len(loaded.World.Roster), len(saved.World.Roster))
	}
	for i := range saved.World.Roster {
		if loaded.World.Roster[i] != saved.World.Roster[i] {
			t.Fatalf("entity %d mismatch: %+v vs %+v", i, loaded.World.Roster[i], saved.World.Roster[i])
		}
	}
	if len(loaded.Samples) != len(saved.Samples) {
		t.Fatalf("samples: %d vs %d", len(loaded.Samples), len(saved.Samples))
	}
	for i := range saved.Samples {
		if loaded.Samples[i] != saved.Samples[i] {
			t.Fatalf("sample %d mismatch: %v vs %v", i, loaded.Samples[i], saved.Samples[i])
		}
	}

	// And the engine accepts it back.
	restored := testEngine(t, 42)
	if err := restored.Restore(loaded); err != nil {
		t.Fatalf("engine.Restore: %v", err)
	}
	if restored.ReadGlobalState() != e.ReadGlobalState() {
		t.Fatalf("restored snapshot mismatch: %+v vs %+v",
			restored.ReadGlobalState(), e.ReadGlobalState())
	}
}

func TestSaveCheckpointIsFullReplace(t *testing.T) {
	db := openTestDB(t)
	e := testEngine(t, 11)

	for i := 0; i < 20; i++ {
		e.Step()
	}
	if err := db.SaveCheckpoint(e.Checkpoint(), 11); err != nil {
		t.Fatalf("first save: %v", err)
	}
	for i := 0; i < 20; i++ {
		e.Step()
	}
	second := e.Checkpoint()
	if err := db.SaveCheckpoint(second, 11); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := db.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.World.CycleCount != second.World.CycleCount {
		t.Fatalf("expected latest cycle %d, got %d", second.World.CycleCount, loaded.World.CycleCount)
	}
	if len(loaded.World.Roster) != len(second.World.Roster) {
		t.Fatalf("stale entities left behind: %d vs %d", len(loaded.World.Roster), len(second.World.Roster))
	}
}
