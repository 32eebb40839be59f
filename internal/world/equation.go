// Destruction pressure equation. Per-cycle entropy gain is driven by
// three terms: how crowded the world is, how corrupted it is on average,
// and how much the flamebearer remembers.
package world

// Weights of the destruction terms.
const (
	// entityCountScale is the population at which the count term saturates.
	entityCountScale = 1_000_000

	entityCountWeight = 0.35
	conflictWeight    = 0.5

	// Amplifiers applied on top of the base terms.
	corruptionAmplifier = 0.35
	memoryAmplifier     = 0.25
	multiplierCeiling   = 4.0

	// pressureFloor keeps a young, quiet world creeping toward the tide.
	pressureFloor = 0.1
)

// destructionPressure evaluates the normalized destruction pressure in
// [0, 1] from the current world aggregates.
func destructionPressure(entityCount int, avgCorruption, memoryTrauma float64) float64 {
	crowding := clamp01(float64(entityCount) / entityCountScale)
	conflict := clamp01(avgCorruption)

	base := crowding*entityCountWeight + conflict*conflictWeight

	multiplier := (1 + conflict*corruptionAmplifier) * (1 + clamp01(memoryTrauma)*memoryAmplifier)
	if multiplier > multiplierCeiling {
		multiplier = multiplierCeiling
	}

	return clamp01(base * multiplier)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
