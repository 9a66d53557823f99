// Package transport provides the pluggable message transports the netcode
// runs over: a UDP host with reliable and unreliable channels, a
// same-process queue pair for embedded play and tests, a no-op stub, and a
// WebSocket host. All implementations share one event model and
// non-blocking Poll semantics.
package transport

import (
	"errors"
	"sync"
)

// EventType tags a transport event.
type EventType int

const (
	// EventConnect announces a new peer. On the server the event carries
	// the freshly assigned client ID.
	EventConnect EventType = iota + 1
	// EventReceive carries one inbound message payload.
	EventReceive
	// EventDisconnect announces that a peer went away.
	EventDisconnect
)

// Event is the uniform notification surfaced by Poll. ClientID is only
// meaningful on server transports; it stays stable for the lifetime of the
// connection and is never reassigned to a different peer.
type Event struct {
	Type     EventType
	ClientID uint32
	Data     []byte
}

// Client is the connecting side of a transport.
type Client interface {
	// Connect establishes the connection. An error is fatal to client
	// startup.
	Connect(host string, port int) error
	// Disconnect tears the connection down. Safe to call at any time.
	Disconnect()
	// Send transmits one message. The reliable hint is advisory:
	// transports without distinct reliability classes treat every send as
	// reliable.
	Send(data []byte, reliable bool) error
	// Poll returns at most one pending event without blocking. Callers
	// drain it in a loop each tick.
	Poll() (Event, bool)
	// Connected reports whether the transport believes the link is up.
	Connected() bool
}

// Server is the listening side of a transport.
type Server interface {
	// Listen binds the transport. An error is fatal to server startup.
	Listen(host string, port int) error
	// Poll returns at most one pending event without blocking.
	Poll() (Event, bool)
	// Send transmits one message to a single client.
	Send(clientID uint32, data []byte) error
	// Broadcast transmits one message to every connected client.
	Broadcast(data []byte)
	// Stop releases the listener and drops all peers.
	Stop()
}

// ErrNotConnected is returned by sends on a transport whose link is down.
var ErrNotConnected = errors.New("transport: not connected")

// ErrUnknownClient is returned when a server send names a client ID with no
// live connection behind it.
var ErrUnknownClient = errors.New("transport: unknown client")

// eventQueue is the mutex-guarded FIFO every implementation feeds. Only
// push and pop touch the slice inside the critical section; no iteration
// ever crosses the lock boundary.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}
