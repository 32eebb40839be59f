// Package world provides the per-generation simulation state: the entity
// roster, the destruction entropy accumulator, and the advance rule.
package world

import (
	"fmt"

	"github.com/google/uuid"
)

// Path is an entity's metaphysical alignment.
type Path uint8

const (
	PathNone Path = iota
	PathErudition
	PathDestruction
	PathRemembrance
)

// PathName returns a human-readable path name.
func PathName(p Path) string {
	switch p {
	case PathErudition:
		return "Erudition"
	case PathDestruction:
		return "Destruction"
	case PathRemembrance:
		return "Remembrance"
	default:
		return "None"
	}
}

// EntityClass is an entity's population group.
type EntityClass uint8

const (
	ClassCitizen EntityClass = iota
	ClassTitan
	ClassChrysosHeir
)

// ClassName returns a human-readable class name.
func ClassName(c EntityClass) string {
	switch c {
	case ClassCitizen:
		return "citizen"
	case ClassTitan:
		return "titan"
	case ClassChrysosHeir:
		return "chrysos_heir"
	default:
		return "unknown"
	}
}

// Entity is one inhabitant of the world. IDs are stable for the life of
// the entity, including across resets for survivors.
type Entity struct {
	ID             uuid.UUID   `json:"id"`
	Class          EntityClass `json:"class"`
	Path           Path        `json:"path"`
	Power          float64     `json:"power"`
	Corruption     float64     `json:"corruption"` // golden blood, 0–1
	Trauma         float64     `json:"trauma"`     // 0–1
	RetainedCycles uint64      `json:"retained_cycles"`
}

// MemoryLog is the flamebearer's persistent memory, the one piece of
// state deliberately carried through every Black Tide.
type MemoryLog struct {
	RetainedCycles uint64  `json:"retained_cycles"`
	Trauma         float64 `json:"trauma"`
}

// SeedConfig sets the population group sizes for a fresh generation.
type SeedConfig struct {
	Citizens     int `json:"citizens"`
	Titans       int `json:"titans"`
	ChrysosHeirs int `json:"chrysos_heirs"`
}

// DefaultSeedConfig returns the canonical population mix.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Citizens:     12_000,
		Titans:       320,
		ChrysosHeirs: 64,
	}
}

// Config holds the tunables governing one world's evolution. All values
// are fixed at construction; the reset predicate is entropy >= Ceiling,
// cycle count >= MaxCycles (when set), or an external Black Tide trigger.
type Config struct {
	Seed int64 `json:"seed"`

	// Ceiling is the raw entropy at which the Black Tide fires.
	Ceiling float64 `json:"ceiling"`

	// MaxCycles ends a generation by cycle count alone. 0 disables it.
	MaxCycles uint64 `json:"max_cycles"`

	// StepRate is the maximum raw entropy gained per cycle at full
	// destruction pressure.
	StepRate float64 `json:"step_rate"`

	// TimeBreakFraction is the normalized entropy at which the time
	// concept breaks down for the rest of the generation.
	TimeBreakFraction float64 `json:"time_break_fraction"`

	Roster SeedConfig `json:"roster"`
}

// DefaultConfig returns a Config with documented defaults: ceiling 1.0,
// no cycle cap, time breaking at 85% of ceiling.
func DefaultConfig(seed int64) Config {
	return Config{
		Seed:              seed,
		Ceiling:           1.0,
		MaxCycles:         0,
		StepRate:          0.002,
		TimeBreakFraction: 0.85,
		Roster:            DefaultSeedConfig(),
	}
}

// Validate rejects configurations that could never satisfy the state
// invariants or whose reset predicate could never fire.
func (c Config) Validate() error {
	if c.Ceiling <= 0 {
		return fmt.Errorf("ceiling must be positive, got %v", c.Ceiling)
	}
	if c.StepRate <= 0 {
		return fmt.Errorf("step rate must be positive, got %v", c.StepRate)
	}
	if c.TimeBreakFraction <= 0 || c.TimeBreakFraction > 1 {
		return fmt.Errorf("time break fraction must be in (0, 1], got %v", c.TimeBreakFraction)
	}
	if c.Roster.Citizens < 0 || c.Roster.Titans < 0 || c.Roster.ChrysosHeirs < 0 {
		return fmt.Errorf("roster counts must be non-negative: %+v", c.Roster)
	}
	return nil
}
