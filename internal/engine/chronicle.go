package engine

import (
	"time"

	"github.com/talgya/amphoreus/internal/world"
)

// Reset triggers recorded in chronicle entries.
const (
	TriggerCeiling   = "entropy_ceiling"
	TriggerMaxCycles = "max_cycles"
	TriggerObserver  = "observer"
	TriggerDriver    = "driver"
)

// Chronicle is the immutable archival record of a completed generation.
// Entries are created only at reset and never mutated afterwards.
type Chronicle struct {
	Generation      uint64         `json:"generation"`
	FinalCycleCount uint64         `json:"final_cycle_count"`
	FinalEntropy    float64        `json:"final_entropy"`
	Trigger         string         `json:"trigger"`
	ArchivedAt      time.Time      `json:"archived_at"`
	Survivors       []world.Entity `json:"survivors"`
}
