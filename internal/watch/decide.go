package watch

import (
	"fmt"
)

// Actions the steward can take, in descending priority.
const (
	ActionNone       = "none"
	ActionBlackTide  = "black_tide"
	ActionCheckpoint = "checkpoint"
	ActionSetSpeed   = "set_speed"
)

// Decision is the outcome of one steward pass.
type Decision struct {
	Action    string
	Speed     float64 // meaningful only for ActionSetSpeed
	Rationale string
}

// Steward applies intervention policy across observations. It keeps just
// enough memory to distinguish a stalled world from a momentary dip.
type Steward struct {
	// StallPatience is how many consecutive observations a world may sit
	// outside time before the steward drowns it.
	StallPatience int

	// CheckpointAt is the normalized entropy level that prompts an
	// archive request ahead of the imminent reset.
	CheckpointAt float64

	// Speed bounds for the slope controller.
	MinSpeed float64
	MaxSpeed float64

	stalled        int
	lastGeneration uint64
	checkpointed   bool // one checkpoint request per generation
}

// NewSteward returns a Steward with the default policy.
func NewSteward() *Steward {
	return &Steward{
		StallPatience: 5,
		CheckpointAt:  0.9,
		MinSpeed:      0.25,
		MaxSpeed:      8.0,
	}
}

// Decide examines an observation and picks at most one intervention.
func (s *Steward) Decide(obs *Observation) Decision {
	if obs.State.Generation != s.lastGeneration {
		// New generation: the tide already came, clear per-generation memory.
		s.lastGeneration = obs.State.Generation
		s.stalled = 0
		s.checkpointed = false
	}

	// A world outside time still accrues entropy, but slowly; left alone
	// it can squat in its generation far past the point of interest.
	if !obs.State.TimeConceptActive {
		s.stalled++
		if s.stalled >= s.StallPatience {
			s.stalled = 0
			return Decision{
				Action:    ActionBlackTide,
				Rationale: fmt.Sprintf("time concept inactive for %d consecutive observations", s.StallPatience),
			}
		}
	} else {
		s.stalled = 0
	}

	if n := len(obs.Entropy); n > 0 && !s.checkpointed {
		if latest := obs.Entropy[n-1]; latest >= s.CheckpointAt {
			s.checkpointed = true
			return Decision{
				Action:    ActionCheckpoint,
				Rationale: fmt.Sprintf("entropy %.3f approaching ceiling, archiving before the tide", latest),
			}
		}
	}

	if target, reason, ok := s.speedAdjustment(obs); ok {
		return Decision{Action: ActionSetSpeed, Speed: target, Rationale: reason}
	}

	return Decision{Action: ActionNone}
}

// speedAdjustment keeps the wall-clock cadence of generations in a band:
// halve the speed when entropy climbs steeply, double it when the climb
// has gone glacial.
func (s *Steward) speedAdjustment(obs *Observation) (float64, string, bool) {
	const window = 20
	const steep = 0.004 // per-sample climb that reads as a runaway
	const glacial = 0.0002

	slope, ok := meanSlope(obs.Entropy, window)
	if !ok {
		return 0, "", false
	}

	switch {
	case slope > steep && obs.Status.Speed > s.MinSpeed:
		target := obs.Status.Speed / 2
		if target < s.MinSpeed {
			target = s.MinSpeed
		}
		return target, fmt.Sprintf("entropy climbing %.5f per sample, slowing down", slope), true
	case slope < glacial && slope >= 0 && obs.Status.Speed > 0 && obs.Status.Speed < s.MaxSpeed:
		target := obs.Status.Speed * 2
		if target > s.MaxSpeed {
			target = s.MaxSpeed
		}
		return target, fmt.Sprintf("entropy nearly flat at %.5f per sample, speeding up", slope), true
	}
	return 0, "", false
}

// meanSlope returns the average per-sample change over the most recent
// window samples. Reports false when the history is too short to judge.
func meanSlope(samples []float64, window int) (float64, bool) {
	if len(samples) < window+1 {
		return 0, false
	}
	recent := samples[len(samples)-window-1:]
	return (recent[len(recent)-1] - recent[0]) / float64(window), true
}
