package sim

import "math"

const (
	spawnRingStep  = EntityHalf * 2
	spawnRingCount = 8
	spawnAngles    = 8
)

// DefaultSpawn returns the unchecked fallback spawn position.
func DefaultSpawn(w World) (float32, float32) {
	return w.Width / 2, w.Height / 2
}

// FindSpawn searches for a free spawn position, walking outward from the
// world center in expanding rings of candidate angles. blocked is supplied
// by the collision collaborator; a nil probe accepts the default spawn.
// When every candidate within the search bound is blocked the search fails
// closed: the caller gets the unchecked default and ok=false so it can log
// the degraded placement.
func FindSpawn(w World, blocked func(x, y float32) bool) (x, y float32, ok bool) {
	cx, cy := DefaultSpawn(w)
	if blocked == nil {
		return cx, cy, true
	}
	if !blocked(cx, cy) {
		return cx, cy, true
	}

	for ring := 1; ring <= spawnRingCount; ring++ {
		radius := float32(ring) * spawnRingStep
		for i := 0; i < spawnAngles; i++ {
			angle := 2 * math.Pi * float64(i) / spawnAngles
			px := clamp(cx+radius*float32(math.Cos(angle)), EntityHalf, w.Width-EntityHalf)
			py := clamp(cy+radius*float32(math.Sin(angle)), EntityHalf, w.Height-EntityHalf)
			if !blocked(px, py) {
				return px, py, true
			}
		}
	}

	return cx, cy, false
}
