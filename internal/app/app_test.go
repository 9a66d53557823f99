package app

import (
	"testing"

	"emberfall/internal/sim"
)

func TestWanderer(t *testing.T) {
	t.Run("inputs carry no sequence of their own", func(t *testing.T) {
		w := newWanderer()
		for i := 0; i < 500; i++ {
			if in := w.next(); in.Sequence != 0 {
				t.Fatalf("wanderer stamped sequence %d; stamping belongs to the prediction engine", in.Sequence)
			}
		}
	})

	t.Run("directions are held for at least half a second", func(t *testing.T) {
		w := newWanderer()
		prev := w.next()
		changes := 0
		const draws = 600
		for i := 1; i < draws; i++ {
			in := w.next()
			if in != prev {
				changes++
				prev = in
			}
		}
		// Each hold period lasts at least TickRate/2 draws, so changes
		// are bounded by draws divided by the minimum period.
		if max := draws / (sim.TickRate / 2); changes > max {
			t.Fatalf("direction changed %d times in %d draws, max %d", changes, draws, max)
		}
	})
}
