// Package interp smooths rendering of remote entities by interpolating
// between the last two authoritative snapshots. It never feeds back into
// simulation; authority stays with the server.
package interp

import (
	"errors"

	"emberfall/internal/protocol"
	"emberfall/internal/sim"
)

// ErrUnknownEntity is returned when no snapshot state exists for an
// entity. Callers treat it as "not yet synchronized", not as a failure.
var ErrUnknownEntity = errors.New("interp: unknown entity")

// RingCapacity bounds the per-entity snapshot history. Two entries are
// needed to interpolate; one spare absorbs jitter.
const RingCapacity = 3

type record struct {
	x, y, vx, vy float32
	health       float32
	tick         uint32
}

type remoteEntity struct {
	color [3]uint8
	ring  []record // bounded FIFO, newest last
}

// Buffer holds the interpolation state for every known remote entity.
type Buffer struct {
	entities map[uint32]*remoteEntity
}

// NewBuffer returns an empty interpolation buffer.
func NewBuffer() *Buffer {
	return &Buffer{entities: make(map[uint32]*remoteEntity)}
}

// Track registers an entity announced by a join packet. Tracking alone
// does not make the entity renderable; that takes its first snapshot.
func (b *Buffer) Track(id uint32, color [3]uint8) {
	if _, ok := b.entities[id]; ok {
		return
	}
	b.entities[id] = &remoteEntity{color: color}
}

// Forget drops an entity and its snapshot history.
func (b *Buffer) Forget(id uint32) {
	delete(b.entities, id)
}

// Reset discards an entity's snapshot history but keeps it tracked. Used
// on respawn: interpolating across a teleport would sweep the entity
// through the map.
func (b *Buffer) Reset(id uint32) {
	if ent, ok := b.entities[id]; ok {
		ent.ring = ent.ring[:0]
	}
}

// Tracked reports whether the entity has been announced.
func (b *Buffer) Tracked(id uint32) bool {
	_, ok := b.entities[id]
	return ok
}

// Observe ingests one snapshot, pushing a record for every tracked entity
// except the local one. States for entities whose join packet has not
// arrived yet are skipped; they become renderable once Track is called and
// their next snapshot lands.
func (b *Buffer) Observe(snap protocol.StateUpdatePacket, localID uint32) {
	for _, e := range snap.Entities {
		if e.ID == localID {
			continue
		}
		ent, ok := b.entities[e.ID]
		if !ok {
			continue
		}
		ent.ring = append(ent.ring, record{
			x: e.X, y: e.Y, vx: e.VX, vy: e.VY,
			health: e.Health,
			tick:   snap.ServerTick,
		})
		if len(ent.ring) > RingCapacity {
			ent.ring = ent.ring[1:]
		}
	}
}

// At returns the render state for an entity at interpolation factor t,
// where t is the sub-tick fraction in [0,1] supplied by the render loop.
// t=0 yields the older of the two latest records, t=1 the newest. A single
// record is returned as-is; an entity with no records reports
// ErrUnknownEntity.
func (b *Buffer) At(id uint32, t float32) (sim.EntityState, error) {
	ent, ok := b.entities[id]
	if !ok || len(ent.ring) == 0 {
		return sim.EntityState{}, ErrUnknownEntity
	}

	if len(ent.ring) == 1 {
		return ent.state(id, ent.ring[0]), nil
	}

	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	from := ent.ring[len(ent.ring)-2]
	to := ent.ring[len(ent.ring)-1]
	return ent.state(id, record{
		x:      lerp(from.x, to.x, t),
		y:      lerp(from.y, to.y, t),
		vx:     lerp(from.vx, to.vx, t),
		vy:     lerp(from.vy, to.vy, t),
		health: lerp(from.health, to.health, t),
		tick:   to.tick,
	}), nil
}

// IDs lists every tracked entity.
func (b *Buffer) IDs() []uint32 {
	ids := make([]uint32, 0, len(b.entities))
	for id := range b.entities {
		ids = append(ids, id)
	}
	return ids
}

func (ent *remoteEntity) state(id uint32, r record) sim.EntityState {
	return sim.EntityState{
		ID: id,
		X:  r.x, Y: r.y,
		VX: r.vx, VY: r.vy,
		Health: r.health,
		Color:  ent.color,
	}
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
