// Fixed-timestep driver loop. One Runner goroutine is the engine's only
// writer; pause and speed changes arrive from other goroutines through
// atomics.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// maxCatchUpSteps clamps catch-up after long stalls so a descheduled
// process does not spiral through hundreds of cycles in one frame.
const maxCatchUpSteps = 8

// Runner drives an Engine at a fixed tick rate.
type Runner struct {
	eng      *Engine
	interval time.Duration // base step interval at speed 1.0

	speed      atomic.Uint64 // float64 bits; 0 = paused
	stopping   atomic.Bool
	checkpoint atomic.Bool // one-shot checkpoint request
	total      uint64      // steps taken this process lifetime

	// CheckpointEvery, when positive, invokes OnCheckpoint every N steps
	// from the driver goroutine.
	CheckpointEvery uint64
	OnCheckpoint    func(Checkpoint)
}

// NewRunner creates a Runner stepping at hz cycles per second.
func NewRunner(eng *Engine, hz int) (*Runner, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", hz)
	}
	r := &Runner{
		eng:      eng,
		interval: time.Second / time.Duration(hz),
	}
	r.SetSpeed(1.0)
	return r, nil
}

// Speed returns the current speed multiplier.
func (r *Runner) Speed() float64 {
	return math.Float64frombits(r.speed.Load())
}

// SetSpeed changes the speed multiplier: 0 pauses, 1.0 is real-time.
func (r *Runner) SetSpeed(speed float64) error {
	if speed < 0 || speed > 1000 {
		return fmt.Errorf("speed must be in [0, 1000], got %v", speed)
	}
	r.speed.Store(math.Float64bits(speed))
	return nil
}

// Steps returns the number of steps taken since the Runner started.
func (r *Runner) Steps() uint64 {
	return atomic.LoadUint64(&r.total)
}

// RequestCheckpoint asks the driver loop to capture a checkpoint on its
// next frame. Safe from any goroutine; a no-op if OnCheckpoint is unset.
func (r *Runner) RequestCheckpoint() {
	r.checkpoint.Store(true)
}

// Run starts the fixed-timestep loop. Blocks until Stop is called.
func (r *Runner) Run() {
	slog.Info("simulation runner started", "interval", r.interval, "speed", r.Speed())

	previous := time.Now()
	var accumulator time.Duration

	for !r.stopping.Load() {
		if r.checkpoint.Swap(false) && r.OnCheckpoint != nil {
			r.OnCheckpoint(r.eng.Checkpoint())
		}

		speed := r.Speed()
		if speed <= 0 {
			// Paused — drop accumulated time so resume does not burst.
			time.Sleep(100 * time.Millisecond)
			previous = time.Now()
			accumulator = 0
			continue
		}

		dt := time.Duration(float64(r.interval) / speed)
		if dt <= 0 {
			dt = time.Nanosecond
		}

		now := time.Now()
		frame := now.Sub(previous)
		previous = now
		if frame > dt*maxCatchUpSteps {
			frame = dt * maxCatchUpSteps
		}
		accumulator += frame

		steps := 0
		for accumulator >= dt && steps < maxCatchUpSteps {
			r.eng.Step()
			accumulator -= dt
			steps++

			taken := atomic.AddUint64(&r.total, 1)
			if r.CheckpointEvery > 0 && taken%r.CheckpointEvery == 0 && r.OnCheckpoint != nil {
				r.OnCheckpoint(r.eng.Checkpoint())
			}
		}

		if steps == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	slog.Info("simulation runner stopped", "steps", r.Steps())
}

// Stop halts the loop. Safe to call from any goroutine; Run returns after
// finishing the step in flight.
func (r *Runner) Stop() {
	r.stopping.Store(true)
}
