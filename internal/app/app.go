// Package app wires configuration, telemetry, transport, and the game
// loops into runnable server and client processes.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"emberfall/internal/client"
	"emberfall/internal/config"
	"emberfall/internal/hub"
	"emberfall/internal/sim"
	"emberfall/internal/telemetry"
	"emberfall/internal/transport"
)

// RunServer hosts an authoritative session until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Server) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	log := telemetry.NewLogger(cfg.LogPath, cfg.Debug)
	defer log.Sync()

	var tr transport.Server
	switch cfg.Transport {
	case config.TransportUDP:
		tr = transport.NewUDPServer(log)
	case config.TransportWS:
		tr = transport.NewWSServer(log)
	default:
		return fmt.Errorf("transport %q cannot host a standalone server", cfg.Transport)
	}

	if err := tr.Listen(cfg.Host, cfg.Port); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer tr.Stop()

	log.Infow("server up",
		"transport", cfg.Transport,
		"host", cfg.Host,
		"port", cfg.Port,
		"tickRate", sim.TickRate,
	)

	h := hub.New(log, tr, cfg.World())
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	h.Run(stop)
	return nil
}

// RunClient runs a headless client session until ctx is cancelled. With
// the memory transport it also hosts an in-process hub, which gives a
// complete session in one binary for soak testing.
func RunClient(ctx context.Context, cfg config.Client) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	log := telemetry.NewLogger(cfg.LogPath, cfg.Debug)
	defer log.Sync()

	var tr transport.Client
	var embedded *hub.Hub
	switch cfg.Transport {
	case config.TransportUDP:
		tr = transport.NewUDPClient(log)
	case config.TransportWS:
		tr = transport.NewWSClient(log)
	case config.TransportMemory:
		mc, ms := transport.NewMemoryPair()
		if err := ms.Listen(cfg.Host, cfg.Port); err != nil {
			return fmt.Errorf("embedded listen: %w", err)
		}
		tr = mc
		embedded = hub.New(log, ms, sim.DefaultWorld())
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	eng := client.New(log, tr, sim.DefaultWorld())
	if err := eng.Connect(cfg.Host, cfg.Port); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer eng.Disconnect()

	log.Infow("client up", "transport", cfg.Transport, "host", cfg.Host, "port", cfg.Port)

	ticker := time.NewTicker(sim.TickInterval)
	defer ticker.Stop()

	wander := newWanderer()
	var frame int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if embedded != nil {
				embedded.Step()
			}
			eng.Update(wander.next())
			frame++
			if frame%sim.TickRate == 0 {
				logRenderState(log, eng)
			}
		}
	}
}

// wanderer produces drifting directional input so a headless client keeps
// the prediction and reconciliation paths busy.
type wanderer struct {
	rng     *rand.Rand
	current sim.Input
	left    int
}

func newWanderer() *wanderer {
	return &wanderer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (w *wanderer) next() sim.Input {
	if w.left <= 0 {
		// Sequence 0 here; ApplyLocalInput stamps the real one.
		w.current = sim.InputFromBits(0, uint8(w.rng.Intn(16)))
		w.left = sim.TickRate/2 + w.rng.Intn(sim.TickRate)
	}
	w.left--
	return w.current
}

func logRenderState(log *zap.SugaredLogger, eng *client.Engine) {
	states := eng.RenderState(1)
	local := eng.Local()
	log.Infow("session state",
		"entities", len(states),
		"x", local.X,
		"y", local.Y,
		"health", local.Health,
	)
}
