// Package config holds the runtime settings for the server and client
// binaries. Values come from defaults, then environment variables, then
// flags, later sources winning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"emberfall/internal/sim"
)

// Transport selection names. TransportMemory wires client and server
// in-process and only makes sense when both run in the same binary.
const (
	TransportUDP    = "udp"
	TransportWS     = "ws"
	TransportMemory = "memory"
)

// Server configures the authoritative server binary.
type Server struct {
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	Transport   string  `json:"transport" jsonschema:"enum=udp,enum=ws,enum=memory"`
	WorldWidth  float32 `json:"worldWidth"`
	WorldHeight float32 `json:"worldHeight"`
	LogPath     string  `json:"logPath"`
	Debug       bool    `json:"debug"`
}

// Client configures the player-facing client binary.
type Client struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Transport string `json:"transport" jsonschema:"enum=udp,enum=ws,enum=memory"`
	LogPath   string `json:"logPath"`
	Debug     bool   `json:"debug"`
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Host:        "0.0.0.0",
		Port:        7777,
		Transport:   TransportUDP,
		WorldWidth:  800,
		WorldHeight: 600,
		LogPath:     "server.log",
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		Host:      "127.0.0.1",
		Port:      7777,
		Transport: TransportUDP,
		LogPath:   "client.log",
	}
}

// World builds the simulation bounds from the configured dimensions.
func (c Server) World() sim.World {
	return sim.World{Width: c.WorldWidth, Height: c.WorldHeight}
}

// Validate rejects configurations the binaries cannot run with.
func (c Server) Validate() error {
	if err := validateEndpoint(c.Transport, c.Port); err != nil {
		return err
	}
	if c.WorldWidth < 4*sim.EntityHalf || c.WorldHeight < 4*sim.EntityHalf {
		return fmt.Errorf("world %gx%g too small to hold an entity", c.WorldWidth, c.WorldHeight)
	}
	return nil
}

// Validate rejects configurations the binaries cannot run with.
func (c Client) Validate() error {
	if c.Transport != TransportMemory && strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("host must not be empty")
	}
	return validateEndpoint(c.Transport, c.Port)
}

func validateEndpoint(transport string, port int) error {
	switch transport {
	case TransportUDP, TransportWS, TransportMemory:
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
	if transport != TransportMemory && (port < 1 || port > 65535) {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}

// ApplyEnv overlays EMBERFALL_* environment variables.
func (c *Server) ApplyEnv() {
	applyEnvString("EMBERFALL_HOST", &c.Host)
	applyEnvInt("EMBERFALL_PORT", &c.Port)
	applyEnvString("EMBERFALL_TRANSPORT", &c.Transport)
	applyEnvFloat("EMBERFALL_WORLD_WIDTH", &c.WorldWidth)
	applyEnvFloat("EMBERFALL_WORLD_HEIGHT", &c.WorldHeight)
	applyEnvString("EMBERFALL_LOG", &c.LogPath)
	applyEnvBool("EMBERFALL_DEBUG", &c.Debug)
}

// ApplyEnv overlays EMBERFALL_* environment variables.
func (c *Client) ApplyEnv() {
	applyEnvString("EMBERFALL_HOST", &c.Host)
	applyEnvInt("EMBERFALL_PORT", &c.Port)
	applyEnvString("EMBERFALL_TRANSPORT", &c.Transport)
	applyEnvString("EMBERFALL_LOG", &c.LogPath)
	applyEnvBool("EMBERFALL_DEBUG", &c.Debug)
}

func applyEnvString(key string, dst *string) {
	if raw := os.Getenv(key); raw != "" {
		*dst = raw
	}
}

func applyEnvInt(key string, dst *int) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func applyEnvFloat(key string, dst *float32) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 32); err == nil {
			*dst = float32(v)
		}
	}
}

func applyEnvBool(key string, dst *bool) {
	if raw := os.Getenv(key); raw != "" {
		*dst = raw == "1" || strings.EqualFold(raw, "true")
	}
}
