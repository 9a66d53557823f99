// Package hub runs the authoritative simulation: it owns every connected
// session, applies validated client input, and broadcasts world snapshots
// at a fixed tick rate. Clients predict; the hub decides.
package hub

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"emberfall/internal/protocol"
	"emberfall/internal/sim"
	"emberfall/internal/transport"
)

// respawnDelayTicks is how long a dead entity waits before the hub moves
// it to a fresh spawn with full health.
const respawnDelayTicks = 3 * sim.TickRate

// palette is the join-order color cycle.
var palette = [][3]uint8{
	{255, 0, 0},
	{0, 255, 0},
	{0, 0, 255},
	{255, 255, 0},
}

type session struct {
	clientID uint32
	entity   sim.EntityState
	diedTick uint32
}

// Hub owns all live sessions and the server tick counter.
type Hub struct {
	log   *zap.SugaredLogger
	tr    transport.Server
	world sim.World

	mu       sync.Mutex
	sessions map[uint32]*session
	joined   int
	tick     uint32
}

// New creates a hub driving the given server transport.
func New(log *zap.SugaredLogger, tr transport.Server, world sim.World) *Hub {
	return &Hub{
		log:      log,
		tr:       tr,
		world:    world,
		sessions: make(map[uint32]*session),
	}
}

// Run steps the simulation at the fixed tick rate until stop closes.
func (h *Hub) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(sim.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Step()
		}
	}
}

// Step executes one server tick: drain transport events, advance the
// world, broadcast the snapshot. Exposed so tests can drive the hub
// without real time.
func (h *Hub) Step() {
	for {
		ev, ok := h.tr.Poll()
		if !ok {
			break
		}
		switch ev.Type {
		case transport.EventConnect:
			h.handleConnect(ev.ClientID)
		case transport.EventReceive:
			h.handleMessage(ev.ClientID, ev.Data)
		case transport.EventDisconnect:
			h.handleDisconnect(ev.ClientID)
		}
	}

	h.mu.Lock()
	h.tick++
	due := h.respawnsDueLocked()
	h.mu.Unlock()

	for _, id := range due {
		h.Respawn(id)
	}

	h.mu.Lock()
	snap := h.snapshotLocked()
	h.mu.Unlock()

	h.tr.Broadcast(protocol.EncodeStateUpdate(snap))
}

// Tick returns the current server tick.
func (h *Hub) Tick() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tick
}

// Entity returns a copy of a session's entity state.
func (h *Hub) Entity(clientID uint32) (sim.EntityState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[clientID]
	if !ok {
		return sim.EntityState{}, false
	}
	return s.entity, true
}

// handleConnect admits a new session, places its entity on a free spawn,
// and announces it. The new client always hears about itself before any
// peer, so the first join packet it sees is its own identity.
func (h *Hub) handleConnect(clientID uint32) {
	h.mu.Lock()
	if _, ok := h.sessions[clientID]; ok {
		h.mu.Unlock()
		return
	}

	color := palette[h.joined%len(palette)]
	h.joined++

	x, y, ok := sim.FindSpawn(h.world, h.occupiedLocked)
	if !ok {
		h.log.Warnw("no free spawn point, using default", "clientId", clientID)
	}

	s := &session{
		clientID: clientID,
		entity: sim.EntityState{
			ID: clientID,
			X:  x, Y: y,
			Health: sim.MaxHealth,
			Color:  color,
		},
	}
	h.sessions[clientID] = s

	peers := make([]*session, 0, len(h.sessions)-1)
	for id, peer := range h.sessions {
		if id != clientID {
			peers = append(peers, peer)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].clientID < peers[j].clientID })
	h.mu.Unlock()

	h.log.Infow("player joined", "clientId", clientID, "x", x, "y", y)

	selfJoin := protocol.EncodePlayerJoined(protocol.PlayerJoinedPacket{ID: clientID, Color: color})
	h.sendTo(clientID, selfJoin)
	for _, peer := range peers {
		h.sendTo(clientID, protocol.EncodePlayerJoined(protocol.PlayerJoinedPacket{
			ID:    peer.clientID,
			Color: peer.entity.Color,
		}))
		h.sendTo(peer.clientID, selfJoin)
	}
}

// handleMessage validates and applies one client packet. Malformed
// packets and stale input sequences are dropped without touching state.
func (h *Hub) handleMessage(clientID uint32, data []byte) {
	kind, err := protocol.Kind(data)
	if err != nil {
		h.log.Debugw("dropping malformed packet", "clientId", clientID, "err", err)
		return
	}
	if kind != protocol.PacketClientInput {
		h.log.Debugw("dropping unexpected packet type", "clientId", clientID, "type", kind)
		return
	}

	in, err := protocol.DecodeClientInput(data)
	if err != nil {
		h.log.Debugw("dropping malformed input", "clientId", clientID, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[clientID]
	if !ok {
		return
	}
	// Inputs at or below the last processed sequence are stale duplicates
	// or replays; applying them would double-move the entity.
	if in.Sequence <= s.entity.LastInputSeq {
		return
	}
	if !s.entity.Alive() {
		s.entity.LastInputSeq = in.Sequence
		return
	}

	sim.Integrate(&s.entity, in.Input(), h.world)
	s.entity.LastInputSeq = in.Sequence
}

// handleDisconnect removes the session and announces the departure.
func (h *Hub) handleDisconnect(clientID uint32) {
	h.mu.Lock()
	_, ok := h.sessions[clientID]
	if ok {
		delete(h.sessions, clientID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	h.log.Infow("player left", "clientId", clientID)
	h.tr.Broadcast(protocol.EncodePlayerLeft(protocol.PlayerLeftPacket{ID: clientID}))
}

// SetHealth pins a session's health to an absolute value, clamped to
// [0, MaxHealth]. This is the mutation hook for combat collaborators.
// Crossing into zero kills the entity: velocity stops, a death packet is
// broadcast, and an automatic respawn is scheduled.
func (h *Hub) SetHealth(clientID uint32, hp float32) {
	if hp < 0 {
		hp = 0
	}
	if hp > sim.MaxHealth {
		hp = sim.MaxHealth
	}

	h.mu.Lock()
	s, ok := h.sessions[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	wasAlive := s.entity.Alive()
	s.entity.Health = hp
	died := wasAlive && !s.entity.Alive()
	if died {
		s.entity.VX = 0
		s.entity.VY = 0
		s.diedTick = h.tick
	}
	h.mu.Unlock()

	if died {
		h.log.Infow("player died", "clientId", clientID)
		h.tr.Broadcast(protocol.EncodePlayerDied(protocol.PlayerDiedPacket{ID: clientID}))
	}
}

// ApplyDamage subtracts health from a living session's entity.
func (h *Hub) ApplyDamage(clientID uint32, amount float32) {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	if !ok || !s.entity.Alive() {
		h.mu.Unlock()
		return
	}
	hp := s.entity.Health - amount
	h.mu.Unlock()

	h.SetHealth(clientID, hp)
}

// Respawn moves a dead entity to a free spawn with full health and
// announces the new position.
func (h *Hub) Respawn(clientID uint32) {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	if !ok || s.entity.Alive() {
		h.mu.Unlock()
		return
	}
	x, y, spawnOK := sim.FindSpawn(h.world, h.occupiedLocked)
	if !spawnOK {
		h.log.Warnw("no free spawn point for respawn, using default", "clientId", clientID)
	}
	s.entity.X = x
	s.entity.Y = y
	s.entity.VX = 0
	s.entity.VY = 0
	s.entity.Health = sim.MaxHealth
	h.mu.Unlock()

	h.log.Infow("player respawned", "clientId", clientID, "x", x, "y", y)
	h.tr.Broadcast(protocol.EncodePlayerRespawned(protocol.PlayerRespawnedPacket{ID: clientID, X: x, Y: y}))
}

// respawnsDueLocked lists sessions whose respawn delay elapsed this tick.
// The actual respawn runs after the lock is released.
func (h *Hub) respawnsDueLocked() []uint32 {
	var due []uint32
	for id, s := range h.sessions {
		if !s.entity.Alive() && h.tick-s.diedTick >= respawnDelayTicks {
			due = append(due, id)
		}
	}
	return due
}

// occupiedLocked reports whether a candidate spawn overlaps a live entity.
func (h *Hub) occupiedLocked(x, y float32) bool {
	for _, s := range h.sessions {
		dx := s.entity.X - x
		dy := s.entity.Y - y
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx < 2*sim.EntityHalf && dy < 2*sim.EntityHalf {
			return true
		}
	}
	return false
}

// snapshotLocked builds the tick's state update with entities in ID order
// so the wire image is deterministic.
func (h *Hub) snapshotLocked() protocol.StateUpdatePacket {
	entities := make([]sim.EntityState, 0, len(h.sessions))
	for _, s := range h.sessions {
		entities = append(entities, s.entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return protocol.StateUpdatePacket{ServerTick: h.tick, Entities: entities}
}

func (h *Hub) sendTo(clientID uint32, data []byte) {
	if err := h.tr.Send(clientID, data); err != nil {
		h.log.Warnw("send failed", "clientId", clientID, "err", err)
	}
}
