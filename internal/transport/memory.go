package transport

import "sync"

// EmbeddedClientID is the fixed client ID the in-memory server assigns to
// its single embedded peer.
const EmbeddedClientID uint32 = 1

// memoryChannel is the shared state between the two halves of a pair: one
// FIFO per direction, each guarded by its own mutex. Push and pop are the
// only operations performed under the locks.
type memoryChannel struct {
	toServerMu sync.Mutex
	toServer   [][]byte

	toClientMu sync.Mutex
	toClient   [][]byte

	stateMu         sync.Mutex
	clientConnected bool
	clientClosed    bool
	serverRunning   bool
}

func (c *memoryChannel) pushToServer(data []byte) {
	c.toServerMu.Lock()
	c.toServer = append(c.toServer, append([]byte(nil), data...))
	c.toServerMu.Unlock()
}

func (c *memoryChannel) popToServer() ([]byte, bool) {
	c.toServerMu.Lock()
	defer c.toServerMu.Unlock()
	if len(c.toServer) == 0 {
		return nil, false
	}
	msg := c.toServer[0]
	c.toServer = c.toServer[1:]
	return msg, true
}

func (c *memoryChannel) pushToClient(data []byte) {
	c.toClientMu.Lock()
	c.toClient = append(c.toClient, append([]byte(nil), data...))
	c.toClientMu.Unlock()
}

func (c *memoryChannel) popToClient() ([]byte, bool) {
	c.toClientMu.Lock()
	defer c.toClientMu.Unlock()
	if len(c.toClient) == 0 {
		return nil, false
	}
	msg := c.toClient[0]
	c.toClient = c.toClient[1:]
	return msg, true
}

// MemoryClient is the client half of an in-memory pair. Every send is
// reliable; the reliable hint is ignored.
type MemoryClient struct {
	channel       *memoryChannel
	announcedSelf bool
}

// MemoryServer is the server half of an in-memory pair.
type MemoryServer struct {
	channel             *memoryChannel
	announcedConnect    bool
	announcedDisconnect bool
}

// NewMemoryPair returns a linked client and server sharing one channel,
// for same-process embedding and deterministic tests.
func NewMemoryPair() (*MemoryClient, *MemoryServer) {
	ch := &memoryChannel{}
	return &MemoryClient{channel: ch}, &MemoryServer{channel: ch}
}

// Connect marks the embedded link up. Host and port are ignored.
func (c *MemoryClient) Connect(host string, port int) error {
	c.channel.stateMu.Lock()
	c.channel.clientConnected = true
	c.channel.clientClosed = false
	c.channel.stateMu.Unlock()
	c.announcedSelf = false
	return nil
}

// Disconnect marks the embedded link down.
func (c *MemoryClient) Disconnect() {
	c.channel.stateMu.Lock()
	if c.channel.clientConnected {
		c.channel.clientConnected = false
		c.channel.clientClosed = true
	}
	c.channel.stateMu.Unlock()
}

// Send queues one message for the server half.
func (c *MemoryClient) Send(data []byte, reliable bool) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	c.channel.pushToServer(data)
	return nil
}

// Poll surfaces a Connect event once after Connect, then drains inbound
// messages.
func (c *MemoryClient) Poll() (Event, bool) {
	if !c.Connected() {
		return Event{}, false
	}
	if !c.announcedSelf {
		c.announcedSelf = true
		return Event{Type: EventConnect}, true
	}
	if msg, ok := c.channel.popToClient(); ok {
		return Event{Type: EventReceive, Data: msg}, true
	}
	return Event{}, false
}

// Connected reports the embedded link state.
func (c *MemoryClient) Connected() bool {
	c.channel.stateMu.Lock()
	defer c.channel.stateMu.Unlock()
	return c.channel.clientConnected
}

// Listen marks the server half running. Addr and port are ignored.
func (s *MemoryServer) Listen(host string, port int) error {
	s.channel.stateMu.Lock()
	s.channel.serverRunning = true
	s.channel.stateMu.Unlock()
	return nil
}

// Poll announces the embedded client's connect and disconnect transitions,
// then drains inbound messages.
func (s *MemoryServer) Poll() (Event, bool) {
	s.channel.stateMu.Lock()
	running := s.channel.serverRunning
	connected := s.channel.clientConnected
	closed := s.channel.clientClosed
	s.channel.stateMu.Unlock()
	if !running {
		return Event{}, false
	}

	if connected && !s.announcedConnect {
		s.announcedConnect = true
		s.announcedDisconnect = false
		return Event{Type: EventConnect, ClientID: EmbeddedClientID}, true
	}
	if msg, ok := s.channel.popToServer(); ok {
		return Event{Type: EventReceive, ClientID: EmbeddedClientID, Data: msg}, true
	}
	if closed && s.announcedConnect && !s.announcedDisconnect {
		s.announcedDisconnect = true
		s.announcedConnect = false
		return Event{Type: EventDisconnect, ClientID: EmbeddedClientID}, true
	}
	return Event{}, false
}

// Send queues one message for the embedded client.
func (s *MemoryServer) Send(clientID uint32, data []byte) error {
	if clientID != EmbeddedClientID {
		return ErrUnknownClient
	}
	s.channel.pushToClient(data)
	return nil
}

// Broadcast queues one message for the embedded client.
func (s *MemoryServer) Broadcast(data []byte) {
	s.channel.pushToClient(data)
}

// Stop halts the server half.
func (s *MemoryServer) Stop() {
	s.channel.stateMu.Lock()
	s.channel.serverRunning = false
	s.channel.stateMu.Unlock()
}
