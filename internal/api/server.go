// Package api provides the HTTP bridge polled by the observer dashboard.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/amphoreus/internal/engine"
	"github.com/talgya/amphoreus/internal/persistence"
)

// Server serves engine snapshots over HTTP.
type Server struct {
	Eng       *engine.Engine
	Runner    *engine.Runner
	DB        *persistence.DB // optional; enables the full chronicle archive and checkpoints
	Port      int
	AdminKey  string // Bearer token for POST endpoints. Empty = POST disabled.
	StreamKey string // Token for the websocket stream. Empty = streaming disabled.

	started time.Time
}

// Handler builds the route table. Split from Start so tests can drive it
// with httptest.
func (s *Server) Handler() http.Handler {
	chronicleLimiter := NewRateLimiter(120, time.Hour)

	mux := http.NewServeMux()

	// Observer read contract.
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/entropy", s.handleEntropy)

	// Supporting read endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/entities", s.handleEntities)
	mux.HandleFunc("/api/v1/chronicles", RateLimitMiddleware(chronicleLimiter, s.handleChronicles))

	// Websocket push for dashboards that prefer not to poll.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/blacktide", s.adminOnly(s.handleBlackTide))
	mux.HandleFunc("/api/v1/checkpoint", s.adminOnly(s.handleCheckpoint))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.started = time.Now()
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream_auth", s.StreamKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleState returns the snapshot fields the dashboard displays.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Eng.ReadGlobalState())
}

// handleEntropy returns the rolling entropy history, oldest first.
func (s *Server) handleEntropy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Eng.ReadEntropySeries())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Eng.ReadGlobalState()
	stats := s.Eng.Stats()

	status := map[string]any{
		"name":               "Amphoreus",
		"generation":         snap.Generation,
		"cycle_count":        snap.CycleCount,
		"time_concept":       snap.TimeConceptActive,
		"entities":           stats.Entities,
		"entities_pretty":    humanize.Comma(int64(stats.Entities)),
		"avg_corruption":     stats.AvgCorruption,
		"flamebearer_trauma": stats.FlamebearerTrauma,
		"retained_cycles":    stats.RetainedCycles,
		"uptime":             time.Since(s.started).Round(time.Second).String(),
	}
	if s.Runner != nil {
		status["speed"] = s.Runner.Speed()
		status["steps"] = s.Runner.Steps()
	}
	if chronicles := s.Eng.Chronicles(); len(chronicles) > 0 {
		last := chronicles[len(chronicles)-1]
		status["last_black_tide"] = humanize.Time(last.ArchivedAt)
	}
	writeJSON(w, status)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	stats := s.Eng.Stats()
	writeJSON(w, stats)
}

// handleChronicles returns the archived generations. When a database is
// wired the full archive is served; otherwise only the log accumulated
// since the process started.
func (s *Server) handleChronicles(w http.ResponseWriter, r *http.Request) {
	const limit = 100

	if s.DB != nil {
		chronicles, err := s.DB.Chronicles(limit)
		if err != nil {
			slog.Error("chronicle query failed", "error", err)
			http.Error(w, "chronicle query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, chronicles)
		return
	}

	chronicles := s.Eng.Chronicles()
	if len(chronicles) > limit {
		chronicles = chronicles[len(chronicles)-limit:]
	}
	writeJSON(w, chronicles)
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no AMPHOREUS_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		http.Error(w, "no runner attached", http.StatusServiceUnavailable)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Runner.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Runner.Speed()})
}

// handleBlackTide requests a reset; it fires on the driver's next step.
func (s *Server) handleBlackTide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	s.Eng.TriggerBlackTide()
	slog.Info("black tide requested by observer")
	writeJSON(w, map[string]any{
		"triggered":  true,
		"generation": s.Eng.ReadGlobalState().Generation,
	})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.Runner == nil || s.DB == nil {
		http.Error(w, "checkpointing not configured", http.StatusServiceUnavailable)
		return
	}

	// The capture runs on the driver goroutine; this only flags it.
	s.Runner.RequestCheckpoint()
	slog.Info("checkpoint requested by observer")

	snap := s.Eng.ReadGlobalState()
	writeJSON(w, map[string]any{
		"requested":  true,
		"generation": snap.Generation,
		"cycle":      snap.CycleCount,
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
