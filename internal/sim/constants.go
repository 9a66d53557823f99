package sim

import "time"

const (
	// TickRate is the fixed simulation frequency shared by client and
	// server. Prediction replay is only correct when both sides integrate
	// at the same rate.
	TickRate     = 60
	TickInterval = time.Second / TickRate

	// Dt is the fixed per-tick delta in seconds. Every call to Integrate
	// uses this value; a variable dt would make replay diverge from the
	// live application of the same inputs.
	Dt = 1.0 / float32(TickRate)

	MoveSpeed  = 200.0 // pixels per second
	MaxHealth  = 100.0
	EntityHalf = 14.0
)

// DefaultWorld returns the standard 800x600 playfield.
func DefaultWorld() World {
	return World{Width: 800, Height: 600}
}
