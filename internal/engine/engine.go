// Package engine orchestrates the cycle simulation: stepping the world,
// recording entropy history, and running the Black Tide reset protocol.
// See design doc Sections 3 and 5.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/amphoreus/internal/series"
	"github.com/talgya/amphoreus/internal/world"
)

// Config holds engine construction parameters.
type Config struct {
	World world.Config `json:"world"`

	// SeriesCapacity bounds the entropy history buffer.
	SeriesCapacity int `json:"series_capacity"`
}

// DefaultConfig returns an engine Config with documented defaults.
func DefaultConfig(seed int64) Config {
	return Config{
		World:          world.DefaultConfig(seed),
		SeriesCapacity: series.DefaultCapacity,
	}
}

// StepResult reports what one Step did, mirroring the three outcomes an
// observer can distinguish.
type StepResult uint8

const (
	StepAdvanced StepResult = iota
	StepTimeBypassed
	StepBlackTide
)

// Snapshot is the immutable read contract polled by the observer layer.
type Snapshot struct {
	Generation         uint64  `json:"generation"`
	CycleCount         uint64  `json:"cycle_count"`
	DestructionEntropy float64 `json:"destruction_entropy"`
	TimeConceptActive  bool    `json:"time_concept_active"`
}

// published is one immutable post-step view, swapped in atomically so a
// reader always sees a complete pre- or post-step state, never a torn one.
type published struct {
	snap    Snapshot
	stats   world.RosterStats
	samples []float64
}

// Engine owns exactly one WorldState and one entropy Series. A single
// driver goroutine calls Step/Reset/Checkpoint; any number of readers may
// call the Read methods concurrently.
type Engine struct {
	cfg        Config
	world      *world.State
	series     *series.Series
	generation uint64

	// blackTide is the external reset trigger, consumed at the next step.
	blackTide atomic.Bool

	published atomic.Pointer[published]

	mu         sync.RWMutex // guards chronicles
	chronicles []Chronicle

	// OnChronicle, when set, runs on the driver goroutine after each
	// reset with the newly archived record.
	OnChronicle func(Chronicle)
}

// New constructs an engine and its first generation.
func New(cfg Config) (*Engine, error) {
	hist, err := series.New(cfg.SeriesCapacity)
	if err != nil {
		return nil, fmt.Errorf("entropy series: %w", err)
	}
	w, err := world.NewState(cfg.World, world.Carryover{})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		world:  w,
		series: hist,
	}
	e.publish()
	return e, nil
}

// Step advances the simulation by one cycle. If the reset predicate holds
// after the advance, the Black Tide runs inside the same call: by the time
// Step returns, the published snapshot already shows the next generation.
func (e *Engine) Step() StepResult {
	out := e.world.Advance()
	e.series.Push(out.Sample)

	result := StepAdvanced
	if out.TimeBypassed {
		result = StepTimeBypassed
	}

	external := e.blackTide.Swap(false)
	if out.ResetDue || external {
		e.reset(e.resetTrigger(external))
		result = StepBlackTide
	}

	e.publish()
	return result
}

// Reset ends the current generation immediately. Driver goroutine only;
// remote observers use TriggerBlackTide instead.
func (e *Engine) Reset() {
	e.reset(TriggerDriver)
	e.publish()
}

// TriggerBlackTide requests a reset from outside the driver. It is safe
// to call from any goroutine; the reset happens on the next Step.
func (e *Engine) TriggerBlackTide() {
	e.blackTide.Store(true)
}

func (e *Engine) resetTrigger(external bool) string {
	switch {
	case e.world.DestructionEntropy >= e.cfg.World.Ceiling:
		return TriggerCeiling
	case e.cfg.World.MaxCycles > 0 && e.world.CycleCount >= e.cfg.World.MaxCycles:
		return TriggerMaxCycles
	case external:
		return TriggerObserver
	default:
		return TriggerDriver
	}
}

// reset archives the outgoing generation and seeds the next one with the
// explicit survivor set and captured memory. The entropy series persists
// across resets: the observer chart is a continuous record.
func (e *Engine) reset(trigger string) {
	old := e.world

	record := Chronicle{
		Generation:      e.generation,
		FinalCycleCount: old.CycleCount,
		FinalEntropy:    old.DestructionEntropy,
		Trigger:         trigger,
		ArchivedAt:      time.Now().UTC(),
		Survivors:       old.Survivors(),
	}

	carry := world.Carryover{
		Survivors: record.Survivors,
		Memory:    old.CaptureMemory(),
	}
	next, err := world.NewState(e.cfg.World, carry)
	if err != nil {
		// Config was validated at construction.
		panic(fmt.Sprintf("reseed after black tide: %v", err))
	}

	e.world = next
	e.generation++

	e.mu.Lock()
	e.chronicles = append(e.chronicles, record)
	e.mu.Unlock()

	slog.Info("black tide",
		"generation", record.Generation,
		"final_cycle", record.FinalCycleCount,
		"final_entropy", fmt.Sprintf("%.6f", record.FinalEntropy),
		"trigger", trigger,
		"survivors", len(record.Survivors),
	)

	if e.OnChronicle != nil {
		e.OnChronicle(record)
	}
}

func (e *Engine) publish() {
	e.published.Store(&published{
		snap: Snapshot{
			Generation:         e.generation,
			CycleCount:         e.world.CycleCount,
			DestructionEntropy: e.world.DestructionEntropy,
			TimeConceptActive:  e.world.TimeConceptActive,
		},
		stats:   e.world.Stats(),
		samples: e.series.Snapshot(),
	})
}

// ReadGlobalState returns the latest published snapshot. Safe to call at
// any time from any goroutine.
func (e *Engine) ReadGlobalState() Snapshot {
	return e.published.Load().snap
}

// ReadEntropySeries returns a copy of the published entropy history,
// insertion order, most-recent-last, length bounded by the capacity.
func (e *Engine) ReadEntropySeries() []float64 {
	samples := e.published.Load().samples
	out := make([]float64, len(samples))
	copy(out, samples)
	return out
}

// Stats returns the latest published roster aggregates.
func (e *Engine) Stats() world.RosterStats {
	return e.published.Load().stats
}

// Chronicles returns a copy of the in-memory chronicle log, oldest first.
func (e *Engine) Chronicles() []Chronicle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Chronicle, len(e.chronicles))
	copy(out, e.chronicles)
	return out
}

// Config returns the construction-time configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Checkpoint captures the full resumable state. Driver goroutine only:
// it reads the live world, not the published snapshot.
func (e *Engine) Checkpoint() Checkpoint {
	return Checkpoint{
		Generation: e.generation,
		World: world.RestoreData{
			CycleCount:         e.world.CycleCount,
			DestructionEntropy: e.world.DestructionEntropy,
			Memory:             e.world.CaptureMemory(),
			Flamebearer:        e.world.FlamebearerID(),
			Roster:             e.world.Roster(),
		},
		Samples: e.series.Snapshot(),
	}
}

// Restore rebuilds the engine from a checkpoint. Call before the driver
// loop starts.
func (e *Engine) Restore(cp Checkpoint) error {
	w, err := world.Restore(e.cfg.World, cp.World)
	if err != nil {
		return fmt.Errorf("restore world: %w", err)
	}
	e.world = w
	e.generation = cp.Generation
	e.series.Restore(cp.Samples)
	e.publish()
	return nil
}

// Checkpoint is the resumable engine state handed to persistence.
type Checkpoint struct {
	Generation uint64
	World      world.RestoreData
	Samples    []float64
}
