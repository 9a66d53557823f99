// Package predict applies local input immediately and reconciles the
// result against authoritative snapshots, replaying unacknowledged inputs
// so the player never waits on the network round trip.
package predict

import (
	"math"

	"go.uber.org/zap"

	"emberfall/internal/protocol"
	"emberfall/internal/sim"
)

// historyCapacity bounds the input history to one second of ticks.
const historyCapacity = sim.TickRate

// correctionThreshold is the prediction error, in pixels, above which a
// reconciliation is logged as a correction event. Corrections are
// expected under load; they are never fatal.
const correctionThreshold = 50.0

// Engine owns the locally predicted entity and its unacknowledged input
// history.
type Engine struct {
	log   *zap.SugaredLogger
	world sim.World

	local    sim.EntityState
	history  []sim.Input
	nextSeq  uint32
	lastTick uint32
	seenTick bool
}

// New returns an engine with the local entity at the default spawn. The
// entity's real identity arrives with the client's own join packet via
// SetIdentity.
func New(log *zap.SugaredLogger, world sim.World) *Engine {
	x, y := sim.DefaultSpawn(world)
	return &Engine{
		log:   log,
		world: world,
		local: sim.EntityState{
			X: x, Y: y,
			Health: sim.MaxHealth,
			Color:  [3]uint8{255, 255, 255},
		},
		nextSeq: 1,
	}
}

// SetIdentity adopts the server-assigned entity ID and color.
func (e *Engine) SetIdentity(id uint32, color [3]uint8) {
	e.local.ID = id
	e.local.Color = color
}

// Local returns the current predicted entity state.
func (e *Engine) Local() sim.EntityState {
	return e.local
}

// ApplyLocalInput stamps the input with the next sequence number,
// integrates it immediately, and records it for reconciliation replay.
// The returned packet is ready to encode and send. Input is suppressed
// while the local entity is dead.
func (e *Engine) ApplyLocalInput(in sim.Input) (protocol.ClientInputPacket, bool) {
	if !e.local.Alive() {
		return protocol.ClientInputPacket{}, false
	}

	in.Sequence = e.nextSeq
	e.nextSeq++

	sim.Integrate(&e.local, in, e.world)

	e.history = append(e.history, in)
	if len(e.history) > historyCapacity {
		e.history = e.history[1:]
	}

	return protocol.ClientInputPacket{Sequence: in.Sequence, Bits: in.Bits()}, true
}

// OnSnapshot reconciles the predicted entity against an authoritative
// snapshot: rewind to the server's state, replay every input the server
// has not acknowledged, prune the acknowledged prefix. Convergence is
// unconditional; at worst the player sees a position snap.
func (e *Engine) OnSnapshot(snap protocol.StateUpdatePacket) {
	// No time travel: stale or duplicate snapshots are ignored.
	if e.seenTick && !tickNewer(snap.ServerTick, e.lastTick) {
		return
	}

	auth, ok := findEntity(snap.Entities, e.local.ID)
	if !ok {
		// Not yet admitted to the session.
		return
	}
	e.lastTick = snap.ServerTick
	e.seenTick = true

	dx := float64(e.local.X - auth.X)
	dy := float64(e.local.Y - auth.Y)
	if dist := math.Sqrt(dx*dx + dy*dy); dist > correctionThreshold {
		e.log.Infow("prediction correction",
			"entityId", e.local.ID,
			"errorPixels", dist,
			"serverTick", snap.ServerTick,
		)
	}

	// Full-state rewind to the authoritative values.
	e.local.X = auth.X
	e.local.Y = auth.Y
	e.local.VX = auth.VX
	e.local.VY = auth.VY
	e.local.Health = auth.Health
	e.local.Color = auth.Color

	// Replay everything the server has not processed, oldest first, with
	// the same integration step the live path used.
	for _, in := range e.history {
		if in.Sequence > auth.LastInputSeq {
			sim.Integrate(&e.local, in, e.world)
		}
	}

	// Acknowledged inputs will never be replayed again.
	kept := e.history[:0]
	for _, in := range e.history {
		if in.Sequence > auth.LastInputSeq {
			kept = append(kept, in)
		}
	}
	e.history = kept
}

// ClearHistory discards all buffered inputs. Used when the local entity
// teleports (respawn): replaying pre-teleport movement would fight the
// new position.
func (e *Engine) ClearHistory() {
	e.history = e.history[:0]
}

// Teleport moves the local entity to a server-chosen position with full
// health and a cleared input history.
func (e *Engine) Teleport(x, y float32) {
	e.local.X = x
	e.local.Y = y
	e.local.VX = 0
	e.local.VY = 0
	e.local.Health = sim.MaxHealth
	e.ClearHistory()
}

// HistoryLen reports the number of unacknowledged inputs.
func (e *Engine) HistoryLen() int {
	return len(e.history)
}

// LastServerTick reports the newest snapshot tick reconciled so far.
func (e *Engine) LastServerTick() (uint32, bool) {
	return e.lastTick, e.seenTick
}

func tickNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

func findEntity(entities []sim.EntityState, id uint32) (sim.EntityState, bool) {
	for _, e := range entities {
		if e.ID == id {
			return e, true
		}
	}
	return sim.EntityState{}, false
}
