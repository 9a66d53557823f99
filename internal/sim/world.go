package sim

// World holds the playable bounds entities are clamped to.
type World struct {
	Width  float32
	Height float32
}

// EntityState is the synchronized state of one player or AI entity. The
// wire protocol carries exactly these fields, so they use wire-width types.
type EntityState struct {
	ID     uint32
	X, Y   float32
	VX, VY float32
	Health float32
	Color  [3]uint8

	// LastInputSeq is the highest input sequence the authority has applied
	// to this entity. Only meaningful on the server's copy; snapshots echo
	// it back so clients know which history entries are acknowledged.
	LastInputSeq uint32
}

// Alive reports whether the entity can still act.
func (e EntityState) Alive() bool {
	return e.Health > 0
}

// Input is one tick's worth of movement intent.
type Input struct {
	Sequence uint32
	Left     bool
	Right    bool
	Up       bool
	Down     bool
}

// Movement bitset layout, stable wire values.
const (
	BitLeft  = 0x01
	BitRight = 0x02
	BitUp    = 0x04
	BitDown  = 0x08
)

// Bits packs the movement flags into the wire bitset.
func (in Input) Bits() uint8 {
	var b uint8
	if in.Left {
		b |= BitLeft
	}
	if in.Right {
		b |= BitRight
	}
	if in.Up {
		b |= BitUp
	}
	if in.Down {
		b |= BitDown
	}
	return b
}

// InputFromBits unpacks a wire bitset into movement flags.
func InputFromBits(sequence uint32, bits uint8) Input {
	return Input{
		Sequence: sequence,
		Left:     bits&BitLeft != 0,
		Right:    bits&BitRight != 0,
		Up:       bits&BitUp != 0,
		Down:     bits&BitDown != 0,
	}
}
