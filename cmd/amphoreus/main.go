// Command amphoreus runs the Amphoreus cycle simulation daemon.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/talgya/amphoreus/internal/api"
	"github.com/talgya/amphoreus/internal/engine"
	"github.com/talgya/amphoreus/internal/entropy"
	"github.com/talgya/amphoreus/internal/persistence"
	"github.com/talgya/amphoreus/internal/series"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		seedFlag        = flag.Int64("seed", 0, "world seed (0 = draw one at boot)")
		dbPath          = flag.String("db", "data/amphoreus.db", "sqlite database path (empty disables persistence)")
		apiPort         = flag.Int("port", 8080, "HTTP API port")
		hz              = flag.Int("hz", 60, "simulation steps per second at speed 1.0")
		samples         = flag.Int("samples", series.DefaultCapacity, "entropy history capacity")
		ceiling         = flag.Float64("ceiling", 1.0, "entropy ceiling that fires the black tide")
		maxCycles       = flag.Uint64("max-cycles", 0, "cycle budget per generation (0 = unbounded)")
		checkpointEvery = flag.Uint64("checkpoint-every", 600, "steps between automatic checkpoints (0 disables)")
	)
	flag.Parse()

	slog.Info("Amphoreus — cycle simulation")

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if *dbPath != "" {
		if dir := filepath.Dir(*dbPath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		var err error
		db, err = persistence.Open(*dbPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", *dbPath)
	} else {
		slog.Warn("persistence disabled — chronicles and checkpoints will not survive restarts")
	}

	// ── Seed ──────────────────────────────────────────────────────────
	resume := db != nil && db.HasCheckpoint()
	seed := *seedFlag
	switch {
	case resume:
		saved, err := db.SavedSeed()
		if err != nil {
			slog.Error("failed to read saved seed", "error", err)
			os.Exit(1)
		}
		if seed != 0 && seed != saved {
			slog.Warn("-seed ignored: resuming a saved world", "saved_seed", saved)
		}
		seed = saved
	case seed == 0:
		source := entropy.NewClient(os.Getenv("RANDOM_ORG_KEY"))
		seed = source.Seed()
	}
	slog.Info("world seed", "seed", seed, "resume", resume)

	// ── Engine ────────────────────────────────────────────────────────
	cfg := engine.DefaultConfig(seed)
	cfg.SeriesCapacity = *samples
	cfg.World.Ceiling = *ceiling
	cfg.World.MaxCycles = *maxCycles

	eng, err := engine.New(cfg)
	if err != nil {
		slog.Error("engine construction failed", "error", err)
		os.Exit(1)
	}

	if resume {
		cp, err := db.LoadCheckpoint()
		if err != nil {
			slog.Error("failed to load checkpoint", "error", err)
			os.Exit(1)
		}
		if err := eng.Restore(cp); err != nil {
			slog.Error("failed to restore checkpoint", "error", err)
			os.Exit(1)
		}
		snap := eng.ReadGlobalState()
		slog.Info("world restored",
			"generation", snap.Generation,
			"cycle_count", snap.CycleCount,
			"destruction_entropy", fmt.Sprintf("%.4f", snap.DestructionEntropy),
		)
	}

	if db != nil {
		eng.OnChronicle = func(c engine.Chronicle) {
			if err := db.AppendChronicle(c); err != nil {
				slog.Error("chronicle archive failed", "generation", c.Generation, "error", err)
			}
		}
	}

	// ── Runner ────────────────────────────────────────────────────────
	runner, err := engine.NewRunner(eng, *hz)
	if err != nil {
		slog.Error("runner construction failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		runner.CheckpointEvery = *checkpointEvery
		runner.OnCheckpoint = func(cp engine.Checkpoint) {
			if err := db.SaveCheckpoint(cp, seed); err != nil {
				slog.Error("checkpoint save failed", "error", err)
			}
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("AMPHOREUS_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("AMPHOREUS_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}
	streamKey := os.Getenv("AMPHOREUS_STREAM_KEY")
	if streamKey == "" {
		slog.Warn("AMPHOREUS_STREAM_KEY not set — websocket stream will be disabled")
	}

	apiServer := &api.Server{
		Eng:       eng,
		Runner:    runner,
		DB:        db,
		Port:      *apiPort,
		AdminKey:  adminKey,
		StreamKey: streamKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		runner.Stop()
	}()

	stats := eng.Stats()
	fmt.Printf("\nAmphoreus turns: %d entities under a sky where time is a concept.\n", stats.Entities)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", *apiPort)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runner.Run()

	if db != nil {
		slog.Info("final checkpoint...")
		if err := db.SaveCheckpoint(eng.Checkpoint(), seed); err != nil {
			slog.Error("final checkpoint failed", "error", err)
		}
	}

	fmt.Println("Simulation stopped.")
}
