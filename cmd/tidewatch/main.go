// Command tidewatch runs the external steward for an Amphoreus daemon.
// It polls the public API on an interval and intervenes through the admin
// endpoints: drowning stalled worlds, archiving before imminent resets,
// and keeping the simulation speed in a sane band.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/amphoreus/internal/watch"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := envOrDefault("AMPHOREUS_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("AMPHOREUS_ADMIN_KEY")
	intervalSec := envIntOrDefault("TIDEWATCH_INTERVAL", 30)

	if adminKey == "" {
		slog.Error("AMPHOREUS_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second
	slog.Info("tide watch starting", "api_url", apiURL, "interval", interval)

	observer := watch.NewObserver(apiURL)
	actor := watch.NewActor(apiURL, adminKey)
	steward := watch.NewSteward()

	// Process supervision only guarantees the daemon started, not that
	// its HTTP surface is up yet.
	slog.Info("waiting for simulation API...")
	waitForAPI(apiURL)

	runPass(observer, steward, actor)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runPass(observer, steward, actor)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Tide watch stopped.")
			return
		}
	}
}

// runPass executes one observe → decide → act pass.
func runPass(observer *watch.Observer, steward *watch.Steward, actor *watch.Actor) {
	obs, err := observer.Observe()
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	slog.Info("observed",
		"generation", obs.State.Generation,
		"cycle_count", obs.State.CycleCount,
		"entropy", fmt.Sprintf("%.4f", obs.State.DestructionEntropy),
		"time_concept", obs.State.TimeConceptActive,
	)

	decision := steward.Decide(obs)
	if decision.Action == watch.ActionNone {
		return
	}
	slog.Info("intervening", "action", decision.Action, "rationale", decision.Rationale)

	if err := actor.Act(decision); err != nil {
		slog.Error("intervention failed", "action", decision.Action, "error", err)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("simulation API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("simulation API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("simulation not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
