package world

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Per-cycle evolution constants.
const (
	// noiseFrequency scales cycle count into noise-space for the smooth
	// component of the entropy delta.
	noiseFrequency = 0.0137

	// memoryTraumaRate is how fast the flamebearer's trauma grows with
	// normalized entropy each cycle.
	memoryTraumaRate = 0.02

	// Corruption spread: entities at or past the threshold gain
	// corruption with entropy and bleed power as it consumes them.
	corruptionThreshold  = 0.6
	corruptionSpreadRate = 0.05
	corruptionPowerDrain = 0.03

	// Time exploit predicate over Remembrance entities.
	exploitTraumaFloor = 0.85
	exploitPowerFloor  = 1.0
)

// StepOutcome is the result of one Advance call.
type StepOutcome struct {
	// Sample is the entropy normalized to [0, 1] against the ceiling,
	// ready for the history buffer.
	Sample float64

	// ResetDue reports whether the reset predicate now holds.
	ResetDue bool

	// TimeBypassed reports whether the time concept was inactive for
	// this cycle.
	TimeBypassed bool
}

// Carryover is the state explicitly transferred into a new generation:
// the survivor set reported by the outgoing world and the flamebearer's
// persistent memory. The zero value seeds a first generation.
type Carryover struct {
	Survivors []Entity
	Memory    MemoryLog
}

// State is one generation's mutable simulation state. It is owned by a
// single driver; concurrent observation goes through the engine's
// published snapshots, never through State directly.
type State struct {
	// CycleCount strictly increases between Advance calls within a
	// generation and starts at 0 for a fresh one.
	CycleCount uint64

	// DestructionEntropy is a purely additive accumulator: it never
	// decreases within a generation.
	DestructionEntropy float64

	// TimeConceptActive is a pure monotone predicate over state: once
	// false it stays false until the next reset.
	TimeConceptActive bool

	cfg         Config
	roster      []Entity
	flamebearer int  // roster index of the memory keeper
	memory      MemoryLog
	seedExploit bool // time exploit present from seeding

	rng   *rand.Rand
	noise opensimplex.Noise
}

// NewState seeds a fresh generation from cfg, carrying forward the given
// survivor set and flamebearer memory.
func NewState(cfg Config, carry Carryover) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}

	s := &State{
		TimeConceptActive: true,
		cfg:               cfg,
		memory:            carry.Memory,
		rng:               rand.New(rand.NewSource(cfg.Seed)),
		noise:             opensimplex.NewNormalized(cfg.Seed),
	}
	s.seedRoster(carry.Survivors)
	s.seedExploit = s.findTimeExploit()
	s.TimeConceptActive = !s.seedExploit
	return s, nil
}

// seedRoster populates the three population groups with deterministic
// per-index ramps, then overlays survivors onto the chrysos heir slots so
// their identity and memory persist.
func (s *State) seedRoster(survivors []Entity) {
	total := s.cfg.Roster.Citizens + s.cfg.Roster.Titans + s.cfg.Roster.ChrysosHeirs + 1
	s.roster = make([]Entity, 0, total)

	for i := 0; i < s.cfg.Roster.Citizens; i++ {
		s.roster = append(s.roster, Entity{
			ID:         uuid.New(),
			Class:      ClassCitizen,
			Path:       PathErudition,
			Power:      clampRange(0.28+float64(i%97)*0.004, 0, 1),
			Corruption: clampRange(float64(i%37)*0.008, 0, 0.45),
			Trauma:     0.05,
		})
	}

	for i := 0; i < s.cfg.Roster.Titans; i++ {
		s.roster = append(s.roster, Entity{
			ID:             uuid.New(),
			Class:          ClassTitan,
			Path:           PathDestruction,
			Power:          clampRange(1.2+float64(i%13)*0.07, 0, 3),
			Corruption:     0.72,
			Trauma:         0.65,
			RetainedCycles: 2,
		})
	}

	heirStart := len(s.roster)
	for i := 0; i < s.cfg.Roster.ChrysosHeirs; i++ {
		s.roster = append(s.roster, Entity{
			ID:             uuid.New(),
			Class:          ClassChrysosHeir,
			Path:           PathRemembrance,
			Power:          clampRange(0.9+float64(i%11)*0.05, 0, 2),
			Corruption:     0.48,
			Trauma:         clampRange(0.2+float64(i%7)*0.1, 0, 0.95),
			RetainedCycles: 1,
		})
	}

	// Survivors reclaim heir slots one-for-one; any overflow joins the
	// roster as-is.
	for i, sv := range survivors {
		slot := heirStart + i
		if slot < len(s.roster) {
			s.roster[slot] = sv
		} else {
			s.roster = append(s.roster, sv)
		}
	}

	// The flamebearer holds the cross-generation memory.
	s.flamebearer = len(s.roster)
	s.roster = append(s.roster, Entity{
		ID:             uuid.New(),
		Class:          ClassChrysosHeir,
		Path:           PathRemembrance,
		Power:          1.65,
		Corruption:     0.52,
		Trauma:         s.memory.Trauma,
		RetainedCycles: s.memory.RetainedCycles,
	})
}

// findTimeExploit reports whether any Remembrance entity is strong and
// scarred enough to bypass the time concept for the whole generation.
func (s *State) findTimeExploit() bool {
	for i := range s.roster {
		e := &s.roster[i]
		if e.Path == PathRemembrance && e.Trauma >= exploitTraumaFloor && e.Power >= exploitPowerFloor {
			return true
		}
	}
	return false
}

// Advance applies exactly one discrete update. It is total: there is no
// failure mode for a valid State.
func (s *State) Advance() StepOutcome {
	s.CycleCount++
	s.DestructionEntropy += s.entropyDelta()

	sample := s.NormalizedEntropy()
	s.advanceMemory(sample)
	s.spreadCorruption(sample)

	// Monotone within a generation: seedExploit is fixed at seeding and
	// the normalized entropy never decreases.
	s.TimeConceptActive = !s.seedExploit && sample < s.cfg.TimeBreakFraction

	return StepOutcome{
		Sample:       sample,
		ResetDue:     s.ResetDue(),
		TimeBypassed: !s.TimeConceptActive,
	}
}

// ResetDue reports whether the configured reset predicate holds.
func (s *State) ResetDue() bool {
	if s.DestructionEntropy >= s.cfg.Ceiling {
		return true
	}
	return s.cfg.MaxCycles > 0 && s.CycleCount >= s.cfg.MaxCycles
}

// NormalizedEntropy returns the accumulator scaled against the ceiling
// and clamped to [0, 1].
func (s *State) NormalizedEntropy() float64 {
	return clamp01(s.DestructionEntropy / s.cfg.Ceiling)
}

// entropyDelta computes the non-negative entropy gained this cycle:
// destruction pressure shaped by smooth seeded noise plus a small seeded
// jitter. Deterministic for a fixed seed and cycle sequence.
func (s *State) entropyDelta() float64 {
	pressure := destructionPressure(len(s.roster), s.averageCorruption(), s.memory.Trauma)
	shaped := pressureFloor + (1-pressureFloor)*pressure

	smooth := s.noise.Eval2(float64(s.CycleCount)*noiseFrequency, 0)
	jitter := s.rng.Float64() * 0.1

	return s.cfg.StepRate * shaped * clamp01(0.25+0.65*smooth+jitter)
}

// advanceMemory grows the flamebearer's persistent memory with entropy
// and writes it through to the roster entity.
func (s *State) advanceMemory(normEntropy float64) {
	s.memory.RetainedCycles++
	s.memory.Trauma = clamp01(s.memory.Trauma + normEntropy*memoryTraumaRate)

	fb := &s.roster[s.flamebearer]
	fb.Trauma = s.memory.Trauma
	fb.RetainedCycles = s.memory.RetainedCycles
}

// spreadCorruption applies the golden-blood rule: entities past the
// corruption threshold corrupt further with entropy, lose power, and
// fall to the Destruction path.
func (s *State) spreadCorruption(normEntropy float64) {
	for i := range s.roster {
		e := &s.roster[i]
		if e.Corruption < corruptionThreshold {
			continue
		}
		e.Corruption = clamp01(e.Corruption + normEntropy*corruptionSpreadRate)
		e.Power *= 1 - e.Corruption*corruptionPowerDrain
		if e.Power < 0 {
			e.Power = 0
		}
		e.Path = PathDestruction
	}
}

// Survivors returns copies of the entities that persist through a Black
// Tide: Remembrance entities with retained cycles. The caller owns the
// returned slice; nothing references the old roster.
func (s *State) Survivors() []Entity {
	var out []Entity
	for i := range s.roster {
		e := s.roster[i]
		if e.Path == PathRemembrance && e.RetainedCycles > 0 && i != s.flamebearer {
			out = append(out, e)
		}
	}
	return out
}

// CaptureMemory returns the flamebearer's memory for carryover into the
// next generation.
func (s *State) CaptureMemory() MemoryLog {
	return s.memory
}

// FlamebearerID returns the stable identity of the current memory keeper.
func (s *State) FlamebearerID() uuid.UUID {
	return s.roster[s.flamebearer].ID
}

// Roster returns a copy of the full entity roster.
func (s *State) Roster() []Entity {
	out := make([]Entity, len(s.roster))
	copy(out, s.roster)
	return out
}

// Config returns the construction-time configuration.
func (s *State) Config() Config {
	return s.cfg
}

func (s *State) averageCorruption() float64 {
	if len(s.roster) == 0 {
		return 0
	}
	total := 0.0
	for i := range s.roster {
		total += s.roster[i].Corruption
	}
	return total / float64(len(s.roster))
}

// RosterStats is an aggregate view of the roster for observers.
type RosterStats struct {
	Entities          int            `json:"entities"`
	ByPath            map[string]int `json:"by_path"`
	AvgCorruption     float64        `json:"avg_corruption"`
	FlamebearerTrauma float64        `json:"flamebearer_trauma"`
	RetainedCycles    uint64         `json:"retained_cycles"`
}

// Stats computes the current aggregate view.
func (s *State) Stats() RosterStats {
	byPath := make(map[string]int, 4)
	for i := range s.roster {
		byPath[PathName(s.roster[i].Path)]++
	}
	return RosterStats{
		Entities:          len(s.roster),
		ByPath:            byPath,
		AvgCorruption:     s.averageCorruption(),
		FlamebearerTrauma: s.memory.Trauma,
		RetainedCycles:    s.memory.RetainedCycles,
	}
}

// RestoreData is a mid-generation checkpoint of a State.
type RestoreData struct {
	CycleCount         uint64
	DestructionEntropy float64
	Memory             MemoryLog
	Flamebearer        uuid.UUID
	Roster             []Entity
}

// Restore rebuilds a State from checkpoint data. The stochastic jitter
// stream is reseeded from the seed and cycle count, so a restored world
// follows a reproducible (though not bitwise-identical) trajectory.
func Restore(cfg Config, data RestoreData) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	if len(data.Roster) == 0 {
		return nil, fmt.Errorf("restore: empty roster")
	}

	flamebearer := -1
	for i := range data.Roster {
		if data.Roster[i].ID == data.Flamebearer {
			flamebearer = i
			break
		}
	}
	if flamebearer < 0 {
		return nil, fmt.Errorf("restore: flamebearer %s not in roster", data.Flamebearer)
	}

	s := &State{
		CycleCount:         data.CycleCount,
		DestructionEntropy: data.DestructionEntropy,
		cfg:                cfg,
		roster:             append([]Entity(nil), data.Roster...),
		flamebearer:        flamebearer,
		memory:             data.Memory,
		rng:                rand.New(rand.NewSource(cfg.Seed + int64(data.CycleCount))),
		noise:              opensimplex.NewNormalized(cfg.Seed),
	}
	s.seedExploit = s.findTimeExploit()
	s.TimeConceptActive = !s.seedExploit && s.NormalizedEntropy() < cfg.TimeBreakFraction
	return s, nil
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
