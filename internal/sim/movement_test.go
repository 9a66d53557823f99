package sim

import (
	"math"
	"testing"
)

func closeTo(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestIntegrate(t *testing.T) {
	world := DefaultWorld()

	t.Run("cardinal movement covers speed times dt", func(t *testing.T) {
		e := EntityState{X: 400, Y: 300, Health: MaxHealth}
		Integrate(&e, Input{Right: true}, world)
		if !closeTo(e.X, 400+MoveSpeed*Dt) {
			t.Fatalf("expected x %v, got %v", 400+MoveSpeed*Dt, e.X)
		}
		if !closeTo(e.Y, 300) {
			t.Fatalf("expected y unchanged, got %v", e.Y)
		}
		if !closeTo(e.VX, MoveSpeed) || !closeTo(e.VY, 0) {
			t.Fatalf("unexpected velocity (%v, %v)", e.VX, e.VY)
		}
	})

	t.Run("diagonal movement is normalized", func(t *testing.T) {
		e := EntityState{X: 400, Y: 300, Health: MaxHealth}
		Integrate(&e, Input{Right: true, Down: true}, world)
		speed := math.Hypot(float64(e.VX), float64(e.VY))
		if math.Abs(speed-MoveSpeed) > 1e-2 {
			t.Fatalf("expected diagonal speed %v, got %v", float64(MoveSpeed), speed)
		}
	})

	t.Run("opposing flags cancel", func(t *testing.T) {
		e := EntityState{X: 400, Y: 300, Health: MaxHealth}
		Integrate(&e, Input{Left: true, Right: true}, world)
		if !closeTo(e.X, 400) || !closeTo(e.VX, 0) {
			t.Fatalf("expected no movement, got x=%v vx=%v", e.X, e.VX)
		}
	})

	t.Run("no input zeroes velocity", func(t *testing.T) {
		e := EntityState{X: 400, Y: 300, VX: MoveSpeed, VY: -MoveSpeed, Health: MaxHealth}
		Integrate(&e, Input{}, world)
		if e.VX != 0 || e.VY != 0 {
			t.Fatalf("expected velocity reset, got (%v, %v)", e.VX, e.VY)
		}
	})

	t.Run("position clamps at world edge", func(t *testing.T) {
		e := EntityState{X: EntityHalf + 1, Y: 300, Health: MaxHealth}
		for i := 0; i < 10; i++ {
			Integrate(&e, Input{Left: true}, world)
		}
		if e.X != EntityHalf {
			t.Fatalf("expected clamp at %v, got %v", float32(EntityHalf), e.X)
		}

		e = EntityState{X: 400, Y: world.Height - EntityHalf - 1, Health: MaxHealth}
		for i := 0; i < 10; i++ {
			Integrate(&e, Input{Down: true}, world)
		}
		if e.Y != world.Height-EntityHalf {
			t.Fatalf("expected clamp at %v, got %v", world.Height-EntityHalf, e.Y)
		}
	})

	t.Run("replay from same start is deterministic", func(t *testing.T) {
		inputs := []Input{
			{Right: true}, {Right: true, Down: true}, {Down: true}, {}, {Left: true, Up: true},
		}
		a := EntityState{X: 400, Y: 300, Health: MaxHealth}
		b := EntityState{X: 400, Y: 300, Health: MaxHealth}
		for _, in := range inputs {
			Integrate(&a, in, world)
		}
		for _, in := range inputs {
			Integrate(&b, in, world)
		}
		if a.X != b.X || a.Y != b.Y || a.VX != b.VX || a.VY != b.VY {
			t.Fatalf("replay diverged: %+v vs %+v", a, b)
		}
	})
}

func TestInputBits(t *testing.T) {
	t.Run("all sixteen bitsets round-trip", func(t *testing.T) {
		for bits := 0; bits < 16; bits++ {
			in := InputFromBits(7, uint8(bits))
			if got := in.Bits(); got != uint8(bits) {
				t.Fatalf("bits %04b round-tripped to %04b", bits, got)
			}
			if in.Sequence != 7 {
				t.Fatalf("sequence lost: %d", in.Sequence)
			}
		}
	})

	t.Run("unknown high bits are ignored", func(t *testing.T) {
		in := InputFromBits(1, 0xF0)
		if in.Left || in.Right || in.Up || in.Down {
			t.Fatalf("high bits decoded as movement: %+v", in)
		}
	})
}

func TestFindSpawn(t *testing.T) {
	world := DefaultWorld()

	t.Run("free center is preferred", func(t *testing.T) {
		x, y, ok := FindSpawn(world, func(x, y float32) bool { return false })
		cx, cy := DefaultSpawn(world)
		if !ok || x != cx || y != cy {
			t.Fatalf("expected center spawn (%v, %v), got (%v, %v) ok=%v", cx, cy, x, y, ok)
		}
	})

	t.Run("blocked center falls back to a ring candidate", func(t *testing.T) {
		cx, cy := DefaultSpawn(world)
		x, y, ok := FindSpawn(world, func(x, y float32) bool {
			return x == cx && y == cy
		})
		if !ok {
			t.Fatalf("expected a free ring candidate")
		}
		if x == cx && y == cy {
			t.Fatalf("returned the blocked center")
		}
	})

	t.Run("fully blocked world fails closed to the default", func(t *testing.T) {
		x, y, ok := FindSpawn(world, func(x, y float32) bool { return true })
		cx, cy := DefaultSpawn(world)
		if ok {
			t.Fatalf("expected ok=false when everything is blocked")
		}
		if x != cx || y != cy {
			t.Fatalf("expected default fallback (%v, %v), got (%v, %v)", cx, cy, x, y)
		}
	})

	t.Run("candidates stay inside the playable bounds", func(t *testing.T) {
		seen := 0
		FindSpawn(world, func(x, y float32) bool {
			seen++
			if x < EntityHalf || x > world.Width-EntityHalf || y < EntityHalf || y > world.Height-EntityHalf {
				t.Fatalf("candidate (%v, %v) outside bounds", x, y)
			}
			return true
		})
		if seen == 0 {
			t.Fatalf("probe never called")
		}
	})
}
