package sim

import "math"

// Integrate advances an entity by one fixed tick of movement. This is the
// single movement function shared by server authority, client prediction,
// and reconciliation replay; the three stay convergent only because they
// all run this exact step with the fixed Dt.
func Integrate(e *EntityState, in Input, w World) {
	var dx, dy float32
	if in.Left {
		dx -= 1
	}
	if in.Right {
		dx += 1
	}
	if in.Up {
		dy -= 1
	}
	if in.Down {
		dy += 1
	}

	// Normalize diagonals so speed is direction-independent.
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length != 0 {
		dx /= length
		dy /= length
	}

	e.VX = dx * MoveSpeed
	e.VY = dy * MoveSpeed

	e.X = clamp(e.X+e.VX*Dt, EntityHalf, w.Width-EntityHalf)
	e.Y = clamp(e.Y+e.VY*Dt, EntityHalf, w.Height-EntityHalf)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
