// Package watch implements the tide watch: an external steward that
// observes the simulation over its public API and intervenes through the
// admin endpoints when a world stalls or runs away.
package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StateSnapshot mirrors GET /api/v1/state.
type StateSnapshot struct {
	Generation         uint64  `json:"generation"`
	CycleCount         uint64  `json:"cycle_count"`
	DestructionEntropy float64 `json:"destruction_entropy"`
	TimeConceptActive  bool    `json:"time_concept_active"`
}

// Status mirrors the fields of GET /api/v1/status the steward reads.
type Status struct {
	Name              string  `json:"name"`
	Speed             float64 `json:"speed"`
	Steps             uint64  `json:"steps"`
	AvgCorruption     float64 `json:"avg_corruption"`
	FlamebearerTrauma float64 `json:"flamebearer_trauma"`
}

// Observation is one full read of the simulation surface.
type Observation struct {
	State   StateSnapshot
	Entropy []float64
	Status  Status
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches the state, entropy history, and status endpoints.
func (o *Observer) Observe() (*Observation, error) {
	obs := &Observation{}

	if err := o.fetchJSON("/api/v1/state", &obs.State); err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}
	if err := o.fetchJSON("/api/v1/entropy", &obs.Entropy); err != nil {
		return nil, fmt.Errorf("fetch entropy: %w", err)
	}
	if err := o.fetchJSON("/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}

	return obs, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
