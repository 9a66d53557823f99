package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"emberfall/internal/sim"
)

// ErrMalformedPacket reports decode-time size or discriminant mismatches.
// The offending packet is dropped; the connection survives.
var ErrMalformedPacket = errors.New("malformed packet")

func errMalformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPacket, fmt.Sprintf(format, args...))
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// checkHeader validates the minimum size and discriminant shared by every
// decoder.
func checkHeader(data []byte, want PacketType, minSize int) error {
	if len(data) < minSize {
		return errMalformed("packet type %d needs %d bytes, got %d", want, minSize, len(data))
	}
	if PacketType(data[0]) != want {
		return errMalformed("expected packet type %d, got %d", want, data[0])
	}
	return nil
}

// EncodeClientInput renders a 6-byte input packet.
func EncodeClientInput(p ClientInputPacket) []byte {
	buf := make([]byte, ClientInputSize)
	buf[0] = byte(PacketClientInput)
	binary.LittleEndian.PutUint32(buf[1:5], p.Sequence)
	buf[5] = p.Bits
	return buf
}

// DecodeClientInput parses a 6-byte input packet.
func DecodeClientInput(data []byte) (ClientInputPacket, error) {
	if err := checkHeader(data, PacketClientInput, ClientInputSize); err != nil {
		return ClientInputPacket{}, err
	}
	return ClientInputPacket{
		Sequence: binary.LittleEndian.Uint32(data[1:5]),
		Bits:     data[5],
	}, nil
}

// EncodeStateUpdate renders a snapshot: 6-byte header plus a 31-byte record
// per entity. Entities beyond MaxSnapshotEntities are dropped from the
// snapshot; the count byte always matches the records that follow.
func EncodeStateUpdate(p StateUpdatePacket) []byte {
	entities := p.Entities
	if len(entities) > MaxSnapshotEntities {
		entities = entities[:MaxSnapshotEntities]
	}

	buf := make([]byte, StateUpdateHeaderSize+len(entities)*EntityRecordSize)
	buf[0] = byte(PacketStateUpdate)
	binary.LittleEndian.PutUint32(buf[1:5], p.ServerTick)
	buf[5] = uint8(len(entities))

	off := StateUpdateHeaderSize
	for _, e := range entities {
		binary.LittleEndian.PutUint32(buf[off:], e.ID)
		putFloat32(buf[off+4:], e.X)
		putFloat32(buf[off+8:], e.Y)
		putFloat32(buf[off+12:], e.VX)
		putFloat32(buf[off+16:], e.VY)
		putFloat32(buf[off+20:], e.Health)
		buf[off+24] = e.Color[0]
		buf[off+25] = e.Color[1]
		buf[off+26] = e.Color[2]
		binary.LittleEndian.PutUint32(buf[off+27:], e.LastInputSeq)
		off += EntityRecordSize
	}
	return buf
}

// DecodeStateUpdate parses a snapshot, validating the declared entity count
// against the actual payload length before reading any record.
func DecodeStateUpdate(data []byte) (StateUpdatePacket, error) {
	if err := checkHeader(data, PacketStateUpdate, StateUpdateHeaderSize); err != nil {
		return StateUpdatePacket{}, err
	}
	count := int(data[5])
	if want := StateUpdateHeaderSize + count*EntityRecordSize; len(data) < want {
		return StateUpdatePacket{}, errMalformed("state update declares %d entities, needs %d bytes, got %d", count, want, len(data))
	}

	p := StateUpdatePacket{
		ServerTick: binary.LittleEndian.Uint32(data[1:5]),
		Entities:   make([]sim.EntityState, 0, count),
	}
	off := StateUpdateHeaderSize
	for i := 0; i < count; i++ {
		p.Entities = append(p.Entities, sim.EntityState{
			ID:           binary.LittleEndian.Uint32(data[off:]),
			X:            getFloat32(data[off+4:]),
			Y:            getFloat32(data[off+8:]),
			VX:           getFloat32(data[off+12:]),
			VY:           getFloat32(data[off+16:]),
			Health:       getFloat32(data[off+20:]),
			Color:        [3]uint8{data[off+24], data[off+25], data[off+26]},
			LastInputSeq: binary.LittleEndian.Uint32(data[off+27:]),
		})
		off += EntityRecordSize
	}
	return p, nil
}

// EncodePlayerJoined renders an 8-byte join packet.
func EncodePlayerJoined(p PlayerJoinedPacket) []byte {
	buf := make([]byte, PlayerJoinedSize)
	buf[0] = byte(PacketPlayerJoined)
	binary.LittleEndian.PutUint32(buf[1:5], p.ID)
	buf[5] = p.Color[0]
	buf[6] = p.Color[1]
	buf[7] = p.Color[2]
	return buf
}

// DecodePlayerJoined parses an 8-byte join packet.
func DecodePlayerJoined(data []byte) (PlayerJoinedPacket, error) {
	if err := checkHeader(data, PacketPlayerJoined, PlayerJoinedSize); err != nil {
		return PlayerJoinedPacket{}, err
	}
	return PlayerJoinedPacket{
		ID:    binary.LittleEndian.Uint32(data[1:5]),
		Color: [3]uint8{data[5], data[6], data[7]},
	}, nil
}

// EncodePlayerLeft renders a 5-byte leave packet.
func EncodePlayerLeft(p PlayerLeftPacket) []byte {
	buf := make([]byte, PlayerLeftSize)
	buf[0] = byte(PacketPlayerLeft)
	binary.LittleEndian.PutUint32(buf[1:5], p.ID)
	return buf
}

// DecodePlayerLeft parses a 5-byte leave packet.
func DecodePlayerLeft(data []byte) (PlayerLeftPacket, error) {
	if err := checkHeader(data, PacketPlayerLeft, PlayerLeftSize); err != nil {
		return PlayerLeftPacket{}, err
	}
	return PlayerLeftPacket{ID: binary.LittleEndian.Uint32(data[1:5])}, nil
}

// EncodePlayerDied renders a 5-byte death packet.
func EncodePlayerDied(p PlayerDiedPacket) []byte {
	buf := make([]byte, PlayerDiedSize)
	buf[0] = byte(PacketPlayerDied)
	binary.LittleEndian.PutUint32(buf[1:5], p.ID)
	return buf
}

// DecodePlayerDied parses a 5-byte death packet.
func DecodePlayerDied(data []byte) (PlayerDiedPacket, error) {
	if err := checkHeader(data, PacketPlayerDied, PlayerDiedSize); err != nil {
		return PlayerDiedPacket{}, err
	}
	return PlayerDiedPacket{ID: binary.LittleEndian.Uint32(data[1:5])}, nil
}

// EncodePlayerRespawned renders a 13-byte respawn packet.
func EncodePlayerRespawned(p PlayerRespawnedPacket) []byte {
	buf := make([]byte, PlayerRespawnedSize)
	buf[0] = byte(PacketPlayerRespawned)
	binary.LittleEndian.PutUint32(buf[1:5], p.ID)
	putFloat32(buf[5:9], p.X)
	putFloat32(buf[9:13], p.Y)
	return buf
}

// DecodePlayerRespawned parses a 13-byte respawn packet.
func DecodePlayerRespawned(data []byte) (PlayerRespawnedPacket, error) {
	if err := checkHeader(data, PacketPlayerRespawned, PlayerRespawnedSize); err != nil {
		return PlayerRespawnedPacket{}, err
	}
	return PlayerRespawnedPacket{
		ID: binary.LittleEndian.Uint32(data[1:5]),
		X:  getFloat32(data[5:9]),
		Y:  getFloat32(data[9:13]),
	}, nil
}
