// Package protocol implements the fixed-layout little-endian wire format.
// Every packet starts with a one-byte type discriminant; encoding and
// decoding are pure functions and decode(encode(p)) == p for every valid
// packet value.
package protocol

import (
	"emberfall/internal/sim"
)

// PacketType is the leading discriminant byte of every packet. Values are
// stable wire constants.
type PacketType uint8

const (
	PacketClientInput     PacketType = 1
	PacketStateUpdate     PacketType = 2
	PacketPlayerJoined    PacketType = 3
	PacketPlayerLeft      PacketType = 4
	PacketPlayerDied      PacketType = 5
	PacketPlayerRespawned PacketType = 6
)

// MaxSnapshotEntities is the most entity records one StateUpdate can
// carry: the count field is a single byte.
const MaxSnapshotEntities = 255

// Fixed packet sizes in bytes. StateUpdate is variable: header plus one
// entity record per player.
const (
	ClientInputSize       = 6
	StateUpdateHeaderSize = 6
	EntityRecordSize      = 31
	PlayerJoinedSize      = 8
	PlayerLeftSize        = 5
	PlayerDiedSize        = 5
	PlayerRespawnedSize   = 13
)

// ClientInputPacket carries one tick of movement intent from a client.
type ClientInputPacket struct {
	Sequence uint32
	Bits     uint8
}

// Input converts the packet into a simulation input.
func (p ClientInputPacket) Input() sim.Input {
	return sim.InputFromBits(p.Sequence, p.Bits)
}

// StateUpdatePacket is the authoritative full-world snapshot for one tick.
// Each entity record echoes the last input sequence the server applied for
// that entity, which is what reconciliation correlates against.
type StateUpdatePacket struct {
	ServerTick uint32
	Entities   []sim.EntityState
}

// PlayerJoinedPacket announces a new entity and its cosmetic color.
type PlayerJoinedPacket struct {
	ID    uint32
	Color [3]uint8
}

// PlayerLeftPacket announces an entity removal.
type PlayerLeftPacket struct {
	ID uint32
}

// PlayerDiedPacket is broadcast by the combat collaborator hook.
type PlayerDiedPacket struct {
	ID uint32
}

// PlayerRespawnedPacket carries the fresh spawn position after a death.
type PlayerRespawnedPacket struct {
	ID   uint32
	X, Y float32
}

// Kind reads the discriminant without decoding the payload. It fails on
// empty input or an unknown discriminant.
func Kind(data []byte) (PacketType, error) {
	if len(data) == 0 {
		return 0, errMalformed("empty packet")
	}
	t := PacketType(data[0])
	switch t {
	case PacketClientInput, PacketStateUpdate, PacketPlayerJoined,
		PacketPlayerLeft, PacketPlayerDied, PacketPlayerRespawned:
		return t, nil
	default:
		return 0, errMalformed("unknown packet type %d", data[0])
	}
}
