package hub

import (
	"testing"

	"emberfall/internal/protocol"
	"emberfall/internal/sim"
	"emberfall/internal/telemetry"
	"emberfall/internal/transport"
)

// scriptedServer feeds the hub a canned event sequence and captures
// everything it sends back.
type scriptedServer struct {
	events     []transport.Event
	sent       map[uint32][][]byte
	broadcasts [][]byte
}

func newScriptedServer() *scriptedServer {
	return &scriptedServer{sent: make(map[uint32][][]byte)}
}

func (s *scriptedServer) push(ev transport.Event) { s.events = append(s.events, ev) }

func (s *scriptedServer) Listen(host string, port int) error { return nil }

func (s *scriptedServer) Poll() (transport.Event, bool) {
	if len(s.events) == 0 {
		return transport.Event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}

func (s *scriptedServer) Send(clientID uint32, data []byte) error {
	s.sent[clientID] = append(s.sent[clientID], append([]byte(nil), data...))
	return nil
}

func (s *scriptedServer) Broadcast(data []byte) {
	s.broadcasts = append(s.broadcasts, append([]byte(nil), data...))
}

func (s *scriptedServer) Stop() {}

func newTestHub() (*Hub, *scriptedServer) {
	tr := newScriptedServer()
	return New(telemetry.Nop(), tr, sim.DefaultWorld()), tr
}

func connect(h *Hub, tr *scriptedServer, clientID uint32) {
	tr.push(transport.Event{Type: transport.EventConnect, ClientID: clientID})
	h.Step()
}

func sendInput(h *Hub, tr *scriptedServer, clientID uint32, seq uint32, bits uint8) {
	data := protocol.EncodeClientInput(protocol.ClientInputPacket{Sequence: seq, Bits: bits})
	tr.push(transport.Event{Type: transport.EventReceive, ClientID: clientID, Data: data})
	h.Step()
}

func lastSnapshot(t *testing.T, tr *scriptedServer) protocol.StateUpdatePacket {
	t.Helper()
	for i := len(tr.broadcasts) - 1; i >= 0; i-- {
		kind, err := protocol.Kind(tr.broadcasts[i])
		if err != nil {
			t.Fatalf("malformed broadcast: %v", err)
		}
		if kind != protocol.PacketStateUpdate {
			continue
		}
		snap, err := protocol.DecodeStateUpdate(tr.broadcasts[i])
		if err != nil {
			t.Fatalf("malformed snapshot: %v", err)
		}
		return snap
	}
	t.Fatalf("no snapshot broadcast")
	return protocol.StateUpdatePacket{}
}

func TestJoin(t *testing.T) {
	t.Run("new client hears its own join first", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		connect(h, tr, 2)

		if len(tr.sent[2]) < 2 {
			t.Fatalf("expected at least 2 unicasts to client 2, got %d", len(tr.sent[2]))
		}
		first, err := protocol.DecodePlayerJoined(tr.sent[2][0])
		if err != nil {
			t.Fatalf("first unicast not a join: %v", err)
		}
		if first.ID != 2 {
			t.Fatalf("first join should be the client's own identity, got %d", first.ID)
		}
		second, err := protocol.DecodePlayerJoined(tr.sent[2][1])
		if err != nil {
			t.Fatalf("second unicast not a join: %v", err)
		}
		if second.ID != 1 {
			t.Fatalf("expected existing peer 1, got %d", second.ID)
		}
	})

	t.Run("existing clients hear the newcomer", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		connect(h, tr, 2)

		var announced bool
		for _, data := range tr.sent[1] {
			if p, err := protocol.DecodePlayerJoined(data); err == nil && p.ID == 2 {
				announced = true
			}
		}
		if !announced {
			t.Fatalf("client 1 never heard about client 2")
		}
	})

	t.Run("colors cycle in join order", func(t *testing.T) {
		h, tr := newTestHub()
		for id := uint32(1); id <= 5; id++ {
			connect(h, tr, id)
		}
		for i, id := range []uint32{1, 2, 3, 4, 5} {
			e, ok := h.Entity(id)
			if !ok {
				t.Fatalf("entity %d missing", id)
			}
			if want := palette[i%len(palette)]; e.Color != want {
				t.Fatalf("entity %d expected color %v, got %v", id, want, e.Color)
			}
		}
	})

	t.Run("second spawn avoids the first", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		connect(h, tr, 2)
		a, _ := h.Entity(1)
		b, _ := h.Entity(2)
		if a.X == b.X && a.Y == b.Y {
			t.Fatalf("both entities spawned at (%v, %v)", a.X, a.Y)
		}
	})

	t.Run("duplicate connect is ignored", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		before, _ := h.Entity(1)
		connect(h, tr, 1)
		after, _ := h.Entity(1)
		if before != after {
			t.Fatalf("duplicate connect changed the entity: %+v vs %+v", before, after)
		}
	})
}

func TestInput(t *testing.T) {
	t.Run("fresh input moves the entity and is echoed in the snapshot", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		before, _ := h.Entity(1)

		sendInput(h, tr, 1, 1, sim.BitRight)

		after, _ := h.Entity(1)
		if after.X <= before.X {
			t.Fatalf("input did not move the entity: %v -> %v", before.X, after.X)
		}
		if after.LastInputSeq != 1 {
			t.Fatalf("expected last input seq 1, got %d", after.LastInputSeq)
		}

		snap := lastSnapshot(t, tr)
		if len(snap.Entities) != 1 || snap.Entities[0].LastInputSeq != 1 {
			t.Fatalf("snapshot does not echo the input seq: %+v", snap.Entities)
		}
	})

	t.Run("stale sequence is dropped without moving the entity", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		sendInput(h, tr, 1, 5, sim.BitRight)
		after, _ := h.Entity(1)

		sendInput(h, tr, 1, 5, sim.BitRight) // duplicate
		sendInput(h, tr, 1, 3, sim.BitRight) // older replay

		final, _ := h.Entity(1)
		if final.X != after.X || final.Y != after.Y {
			t.Fatalf("stale input moved the entity: (%v, %v) -> (%v, %v)", after.X, after.Y, final.X, final.Y)
		}
		if final.LastInputSeq != 5 {
			t.Fatalf("expected last input seq 5, got %d", final.LastInputSeq)
		}
	})

	t.Run("malformed packets are dropped", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		before, _ := h.Entity(1)

		tr.push(transport.Event{Type: transport.EventReceive, ClientID: 1, Data: []byte{0xFF, 1, 2}})
		tr.push(transport.Event{Type: transport.EventReceive, ClientID: 1, Data: []byte{byte(protocol.PacketClientInput)}})
		h.Step()

		after, _ := h.Entity(1)
		if before.X != after.X || before.Y != after.Y {
			t.Fatalf("malformed packet moved the entity")
		}
	})

	t.Run("input from unknown clients is ignored", func(t *testing.T) {
		h, tr := newTestHub()
		sendInput(h, tr, 42, 1, sim.BitRight)
		if _, ok := h.Entity(42); ok {
			t.Fatalf("unknown client acquired an entity")
		}
	})

	t.Run("ticks advance even when idle", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		t1 := lastSnapshot(t, tr).ServerTick
		h.Step()
		t2 := lastSnapshot(t, tr).ServerTick
		if t2 != t1+1 {
			t.Fatalf("expected tick %d, got %d", t1+1, t2)
		}
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("departure removes the entity and is announced", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		connect(h, tr, 2)

		tr.push(transport.Event{Type: transport.EventDisconnect, ClientID: 1})
		h.Step()

		if _, ok := h.Entity(1); ok {
			t.Fatalf("entity 1 survived disconnect")
		}
		var announced bool
		for _, data := range tr.broadcasts {
			if p, err := protocol.DecodePlayerLeft(data); err == nil && p.ID == 1 {
				announced = true
			}
		}
		if !announced {
			t.Fatalf("no leave broadcast for client 1")
		}

		snap := lastSnapshot(t, tr)
		for _, e := range snap.Entities {
			if e.ID == 1 {
				t.Fatalf("departed entity still in snapshot")
			}
		}
	})
}

func TestDeathAndRespawn(t *testing.T) {
	t.Run("lethal damage stops the entity and is announced", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		sendInput(h, tr, 1, 1, sim.BitRight)

		h.ApplyDamage(1, sim.MaxHealth)

		e, _ := h.Entity(1)
		if e.Alive() {
			t.Fatalf("entity survived lethal damage: health %v", e.Health)
		}
		if e.VX != 0 || e.VY != 0 {
			t.Fatalf("dead entity kept velocity (%v, %v)", e.VX, e.VY)
		}
		var announced bool
		for _, data := range tr.broadcasts {
			if p, err := protocol.DecodePlayerDied(data); err == nil && p.ID == 1 {
				announced = true
			}
		}
		if !announced {
			t.Fatalf("no death broadcast")
		}
	})

	t.Run("dead entities ignore movement but advance the input seq", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		h.ApplyDamage(1, sim.MaxHealth)
		before, _ := h.Entity(1)

		sendInput(h, tr, 1, 1, sim.BitRight)
		after, _ := h.Entity(1)
		if after.X != before.X || after.Y != before.Y {
			t.Fatalf("dead entity moved")
		}
		if after.LastInputSeq != 1 {
			t.Fatalf("dead entity should still consume sequences, got %d", after.LastInputSeq)
		}
	})

	t.Run("set health clamps to the valid range", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)

		h.SetHealth(1, 500)
		e, _ := h.Entity(1)
		if e.Health != sim.MaxHealth {
			t.Fatalf("expected clamp at %v, got %v", float32(sim.MaxHealth), e.Health)
		}

		h.SetHealth(1, -10)
		e, _ = h.Entity(1)
		if e.Health != 0 || e.Alive() {
			t.Fatalf("expected clamp at zero and death, got %v", e.Health)
		}
	})

	t.Run("set health on an unknown client is a no-op", func(t *testing.T) {
		h, _ := newTestHub()
		h.SetHealth(42, 10)
		if _, ok := h.Entity(42); ok {
			t.Fatalf("unknown client acquired an entity")
		}
	})

	t.Run("partial damage leaves the entity alive", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		h.ApplyDamage(1, 30)
		e, _ := h.Entity(1)
		if !e.Alive() || e.Health != sim.MaxHealth-30 {
			t.Fatalf("unexpected health %v", e.Health)
		}
		for _, data := range tr.broadcasts {
			if _, err := protocol.DecodePlayerDied(data); err == nil {
				t.Fatalf("non-lethal damage broadcast a death")
			}
		}
	})

	t.Run("respawn restores health at a fresh position", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		h.ApplyDamage(1, sim.MaxHealth)

		h.Respawn(1)

		e, _ := h.Entity(1)
		if e.Health != sim.MaxHealth {
			t.Fatalf("expected full health, got %v", e.Health)
		}
		var announced *protocol.PlayerRespawnedPacket
		for _, data := range tr.broadcasts {
			if p, err := protocol.DecodePlayerRespawned(data); err == nil {
				announced = &p
			}
		}
		if announced == nil {
			t.Fatalf("no respawn broadcast")
		}
		if announced.X != e.X || announced.Y != e.Y {
			t.Fatalf("respawn broadcast position (%v, %v) does not match entity (%v, %v)",
				announced.X, announced.Y, e.X, e.Y)
		}
	})

	t.Run("respawn of a living entity is a no-op", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		before, _ := h.Entity(1)
		h.Respawn(1)
		after, _ := h.Entity(1)
		if before != after {
			t.Fatalf("respawn changed a living entity")
		}
	})

	t.Run("respawn happens automatically after the delay", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 1)
		h.ApplyDamage(1, sim.MaxHealth)

		for i := 0; i < respawnDelayTicks+1; i++ {
			h.Step()
		}

		e, _ := h.Entity(1)
		if !e.Alive() {
			t.Fatalf("entity not respawned after delay: health %v", e.Health)
		}
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("entities appear in id order", func(t *testing.T) {
		h, tr := newTestHub()
		connect(h, tr, 3)
		connect(h, tr, 1)
		connect(h, tr, 2)

		snap := lastSnapshot(t, tr)
		if len(snap.Entities) != 3 {
			t.Fatalf("expected 3 entities, got %d", len(snap.Entities))
		}
		for i := 1; i < len(snap.Entities); i++ {
			if snap.Entities[i-1].ID >= snap.Entities[i].ID {
				t.Fatalf("snapshot not sorted: %+v", snap.Entities)
			}
		}
	})
}
