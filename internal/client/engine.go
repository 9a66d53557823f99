// Package client assembles the player-facing side of a session: a
// transport, a prediction engine for the local entity, and an
// interpolation buffer for everyone else.
package client

import (
	"fmt"

	"go.uber.org/zap"

	"emberfall/internal/interp"
	"emberfall/internal/predict"
	"emberfall/internal/protocol"
	"emberfall/internal/sim"
	"emberfall/internal/transport"
)

// Engine drives one client session. It is not safe for concurrent use;
// call Update and RenderState from the same goroutine.
type Engine struct {
	log *zap.SugaredLogger
	tr  transport.Client

	predict *predict.Engine
	interp  *interp.Buffer

	identified bool
	localID    uint32
}

// New wires a client engine to a transport.
func New(log *zap.SugaredLogger, tr transport.Client, world sim.World) *Engine {
	return &Engine{
		log:     log,
		tr:      tr,
		predict: predict.New(log, world),
		interp:  interp.NewBuffer(),
	}
}

// Connect establishes the transport session. Identity arrives
// asynchronously with the first join packet.
func (e *Engine) Connect(host string, port int) error {
	if err := e.tr.Connect(host, port); err != nil {
		return fmt.Errorf("client connect: %w", err)
	}
	return nil
}

// Disconnect tears down the transport session.
func (e *Engine) Disconnect() {
	e.tr.Disconnect()
}

// Connected reports whether the transport session is live.
func (e *Engine) Connected() bool {
	return e.tr.Connected()
}

// Update runs one client tick: drain incoming events, then predict and
// send the frame's input. Dead frames send nothing.
func (e *Engine) Update(in sim.Input) {
	for {
		ev, ok := e.tr.Poll()
		if !ok {
			break
		}
		switch ev.Type {
		case transport.EventConnect:
			e.log.Infow("connected, waiting for identity")
		case transport.EventReceive:
			e.dispatch(ev.Data)
		case transport.EventDisconnect:
			e.log.Infow("disconnected from server")
			e.identified = false
		}
	}

	if !e.identified || !e.tr.Connected() {
		return
	}

	pkt, ok := e.predict.ApplyLocalInput(in)
	if !ok {
		return
	}
	if err := e.tr.Send(protocol.EncodeClientInput(pkt), false); err != nil {
		e.log.Warnw("input send failed", "seq", pkt.Sequence, "err", err)
	}
}

func (e *Engine) dispatch(data []byte) {
	kind, err := protocol.Kind(data)
	if err != nil {
		e.log.Debugw("dropping malformed packet", "err", err)
		return
	}

	switch kind {
	case protocol.PacketPlayerJoined:
		p, err := protocol.DecodePlayerJoined(data)
		if err != nil {
			e.log.Debugw("dropping malformed join", "err", err)
			return
		}
		e.onPlayerJoined(p)

	case protocol.PacketStateUpdate:
		p, err := protocol.DecodeStateUpdate(data)
		if err != nil {
			e.log.Debugw("dropping malformed state update", "err", err)
			return
		}
		e.predict.OnSnapshot(p)
		e.interp.Observe(p, e.localID)

	case protocol.PacketPlayerLeft:
		p, err := protocol.DecodePlayerLeft(data)
		if err != nil {
			e.log.Debugw("dropping malformed leave", "err", err)
			return
		}
		e.log.Infow("player left", "entityId", p.ID)
		e.interp.Forget(p.ID)

	case protocol.PacketPlayerDied:
		p, err := protocol.DecodePlayerDied(data)
		if err != nil {
			e.log.Debugw("dropping malformed death", "err", err)
			return
		}
		e.log.Infow("player died", "entityId", p.ID)

	case protocol.PacketPlayerRespawned:
		p, err := protocol.DecodePlayerRespawned(data)
		if err != nil {
			e.log.Debugw("dropping malformed respawn", "err", err)
			return
		}
		e.onPlayerRespawned(p)

	default:
		e.log.Debugw("dropping unexpected packet type", "type", kind)
	}
}

// onPlayerJoined resolves identity: the server guarantees the first join
// packet a client receives describes its own entity.
func (e *Engine) onPlayerJoined(p protocol.PlayerJoinedPacket) {
	if !e.identified {
		e.identified = true
		e.localID = p.ID
		e.predict.SetIdentity(p.ID, p.Color)
		e.log.Infow("identity assigned", "entityId", p.ID)
		return
	}
	if p.ID == e.localID {
		return
	}
	e.log.Infow("player joined", "entityId", p.ID)
	e.interp.Track(p.ID, p.Color)
}

func (e *Engine) onPlayerRespawned(p protocol.PlayerRespawnedPacket) {
	e.log.Infow("player respawned", "entityId", p.ID, "x", p.X, "y", p.Y)
	if e.identified && p.ID == e.localID {
		e.predict.Teleport(p.X, p.Y)
		return
	}
	e.interp.Reset(p.ID)
}

// LocalID returns the server-assigned entity ID, once known.
func (e *Engine) LocalID() (uint32, bool) {
	return e.localID, e.identified
}

// Local returns the predicted local entity state.
func (e *Engine) Local() sim.EntityState {
	return e.predict.Local()
}

// RenderState returns everything to draw this frame: the predicted local
// entity followed by every remote entity interpolated at fraction t.
// Remotes with no snapshot data yet are omitted.
func (e *Engine) RenderState(t float32) []sim.EntityState {
	out := make([]sim.EntityState, 0, 1+len(e.interp.IDs()))
	if e.identified {
		out = append(out, e.predict.Local())
	}
	for _, id := range e.interp.IDs() {
		st, err := e.interp.At(id, t)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
