package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Datagram layout: flags u8, packetSeq u32, ack u32, ackBits u32, then
// (reliable only) reliableSeq u32, then the payload.
const (
	udpHeaderSize     = 13
	udpReliableExtra  = 4
	udpFlagReliable   = 0x01
	udpMaxDatagram    = 65507
	udpConnectTimeout = 5 * time.Second
	udpPeerTimeout    = 10 * time.Second
	udpMaintainEvery  = 50 * time.Millisecond
)

// Control payloads live above the game protocol's discriminant space so the
// two can never collide.
const (
	ctrlHello   = 0xF0
	ctrlWelcome = 0xF1
	ctrlBye     = 0xF2
)

func writeUDPHeader(buf []byte, flags uint8, packetSeq, ack, ackBits uint32) {
	buf[0] = flags
	binary.LittleEndian.PutUint32(buf[1:5], packetSeq)
	binary.LittleEndian.PutUint32(buf[5:9], ack)
	binary.LittleEndian.PutUint32(buf[9:13], ackBits)
}

// UDPClient is the connecting half of the UDP host. A background reader
// feeds the event queue; Poll never blocks.
type UDPClient struct {
	log *zap.SugaredLogger

	mu        sync.Mutex
	conn      *net.UDPConn
	connected bool
	clientID  uint32
	outbox    *reliableOutbox
	inbox     *reliableInbox

	queue   eventQueue
	welcome chan uint32
	done    chan struct{}
}

// NewUDPClient returns an unconnected UDP client transport.
func NewUDPClient(log *zap.SugaredLogger) *UDPClient {
	return &UDPClient{log: log}
}

// Connect dials the server and performs the hello/welcome handshake. It
// fails after five seconds without a welcome.
func (c *UDPClient) Connect(host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", host, port, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.outbox = newReliableOutbox()
	c.inbox = newReliableInbox()
	c.welcome = make(chan uint32, 1)
	c.done = make(chan struct{})
	c.mu.Unlock()

	trace := uuid.NewString()
	c.log.Infow("udp client connecting", "addr", addr.String(), "trace", trace)

	go c.readLoop(conn)
	go c.maintainLoop(conn)

	c.mu.Lock()
	c.writeLocked(conn, []byte{ctrlHello}, true)
	c.mu.Unlock()

	select {
	case id := <-c.welcome:
		c.log.Infow("udp client connected", "clientId", id, "trace", trace)
		return nil
	case <-time.After(udpConnectTimeout):
		c.Disconnect()
		return fmt.Errorf("connect %s:%d: no welcome within %s", host, port, udpConnectTimeout)
	}
}

// writeLocked frames and transmits one payload. Callers hold c.mu.
func (c *UDPClient) writeLocked(conn *net.UDPConn, payload []byte, reliable bool) {
	ack, ackBits := c.inbox.ackFields()
	if reliable {
		seq := c.outbox.add(payload)
		c.sendReliableLocked(conn, seq, payload, ack, ackBits)
		return
	}
	buf := make([]byte, udpHeaderSize+len(payload))
	writeUDPHeader(buf, 0, c.outbox.packetSeq(), ack, ackBits)
	copy(buf[udpHeaderSize:], payload)
	conn.Write(buf)
}

func (c *UDPClient) sendReliableLocked(conn *net.UDPConn, seq uint32, payload []byte, ack, ackBits uint32) {
	buf := make([]byte, udpHeaderSize+udpReliableExtra+len(payload))
	writeUDPHeader(buf, udpFlagReliable, c.outbox.packetSeq(), ack, ackBits)
	binary.LittleEndian.PutUint32(buf[udpHeaderSize:], seq)
	copy(buf[udpHeaderSize+udpReliableExtra:], payload)
	conn.Write(buf)
	c.outbox.markSent(seq, time.Now())
}

func (c *UDPClient) readLoop(conn *net.UDPConn) {
	buf := make([]byte, udpMaxDatagram)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n < udpHeaderSize {
			continue
		}

		flags := buf[0]
		ack := binary.LittleEndian.Uint32(buf[5:9])
		ackBits := binary.LittleEndian.Uint32(buf[9:13])
		payload := buf[udpHeaderSize:n]

		c.mu.Lock()
		c.outbox.ack(ack, ackBits)
		if flags&udpFlagReliable != 0 {
			if len(payload) < udpReliableExtra {
				c.mu.Unlock()
				continue
			}
			seq := binary.LittleEndian.Uint32(payload[:udpReliableExtra])
			payload = payload[udpReliableExtra:]
			if !c.inbox.observe(seq) {
				c.mu.Unlock()
				continue
			}
		}
		c.mu.Unlock()

		c.dispatch(append([]byte(nil), payload...))
	}
}

func (c *UDPClient) dispatch(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case ctrlWelcome:
		if len(payload) < 5 {
			return
		}
		id := binary.LittleEndian.Uint32(payload[1:5])
		c.mu.Lock()
		first := !c.connected
		c.connected = true
		c.clientID = id
		welcome := c.welcome
		c.mu.Unlock()
		if first {
			select {
			case welcome <- id:
			default:
			}
			c.queue.push(Event{Type: EventConnect, ClientID: id})
		}
	case ctrlBye:
		c.mu.Lock()
		wasConnected := c.connected
		c.connected = false
		c.mu.Unlock()
		if wasConnected {
			c.queue.push(Event{Type: EventDisconnect})
		}
	case ctrlHello:
		// Clients never receive hellos; drop.
	default:
		c.queue.push(Event{Type: EventReceive, Data: payload})
	}
}

func (c *UDPClient) maintainLoop(conn *net.UDPConn) {
	ticker := time.NewTicker(udpMaintainEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			ack, ackBits := c.inbox.ackFields()
			for _, p := range c.outbox.due(now) {
				c.sendReliableLocked(conn, p.seq, p.payload, ack, ackBits)
			}
			c.mu.Unlock()
		}
	}
}

// Disconnect sends a best-effort bye and tears the socket down.
func (c *UDPClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn == nil {
		return
	}
	// Bye rides the unreliable channel; the server also times peers out.
	buf := make([]byte, udpHeaderSize+1)
	writeUDPHeader(buf, 0, 0, 0, 0)
	buf[udpHeaderSize] = ctrlBye
	conn.Write(buf)
	conn.Close()
	if done != nil {
		close(done)
	}
	if wasConnected {
		c.queue.push(Event{Type: EventDisconnect})
	}
}

// Send transmits one message on the requested channel.
func (c *UDPClient) Send(data []byte, reliable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return ErrNotConnected
	}
	c.writeLocked(c.conn, data, reliable)
	return nil
}

// Poll pops at most one queued event.
func (c *UDPClient) Poll() (Event, bool) { return c.queue.pop() }

// Connected reports whether the handshake completed and the link is up.
func (c *UDPClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

type udpPeer struct {
	id       uint32
	trace    string
	addr     *net.UDPAddr
	outbox   *reliableOutbox
	inbox    *reliableInbox
	lastSeen time.Time
}

// UDPServer is the listening half of the UDP host. Client IDs are assigned
// from a monotonic counter and never reused.
type UDPServer struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	conn    *net.UDPConn
	peers   map[string]*udpPeer
	byID    map[uint32]*udpPeer
	nextID  uint32
	running bool

	queue eventQueue
	done  chan struct{}
}

// NewUDPServer returns an unbound UDP server transport.
func NewUDPServer(log *zap.SugaredLogger) *UDPServer {
	return &UDPServer{log: log, nextID: 1}
}

// Listen binds the UDP socket and starts the reader and maintenance
// goroutines.
func (s *UDPServer) Listen(host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s:%d: %w", host, port, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.peers = make(map[string]*udpPeer)
	s.byID = make(map[uint32]*udpPeer)
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Infow("udp server listening", "addr", conn.LocalAddr().String())

	go s.readLoop(conn)
	go s.maintainLoop(conn)
	return nil
}

func (s *UDPServer) readLoop(conn *net.UDPConn) {
	buf := make([]byte, udpMaxDatagram)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < udpHeaderSize {
			continue
		}

		flags := buf[0]
		ack := binary.LittleEndian.Uint32(buf[5:9])
		ackBits := binary.LittleEndian.Uint32(buf[9:13])
		payload := buf[udpHeaderSize:n]

		var reliableSeq uint32
		reliable := flags&udpFlagReliable != 0
		if reliable {
			if len(payload) < udpReliableExtra {
				continue
			}
			reliableSeq = binary.LittleEndian.Uint32(payload[:udpReliableExtra])
			payload = payload[udpReliableExtra:]
		}
		if len(payload) == 0 {
			continue
		}

		key := raddr.String()
		s.mu.Lock()
		peer, known := s.peers[key]
		if !known {
			// Only a hello admits a new peer; anything else from an
			// unknown address is dropped.
			if !reliable || payload[0] != ctrlHello {
				s.mu.Unlock()
				continue
			}
			peer = s.admitLocked(conn, raddr, reliableSeq)
			s.mu.Unlock()
			s.log.Infow("client connected", "clientId", peer.id, "addr", key, "trace", peer.trace)
			s.queue.push(Event{Type: EventConnect, ClientID: peer.id})
			continue
		}

		peer.lastSeen = time.Now()
		peer.outbox.ack(ack, ackBits)
		fresh := true
		if reliable {
			fresh = peer.inbox.observe(reliableSeq)
		}
		s.mu.Unlock()

		if !fresh {
			continue
		}
		switch payload[0] {
		case ctrlHello:
			// Repeat hello after admission; the welcome retransmits on
			// its own.
		case ctrlBye:
			s.dropPeer(peer, "bye")
		default:
			s.queue.push(Event{Type: EventReceive, ClientID: peer.id, Data: append([]byte(nil), payload...)})
		}
	}
}

// admitLocked registers a new peer and queues its reliable welcome.
func (s *UDPServer) admitLocked(conn *net.UDPConn, raddr *net.UDPAddr, helloSeq uint32) *udpPeer {
	peer := &udpPeer{
		id:       s.nextID,
		trace:    uuid.NewString(),
		addr:     raddr,
		outbox:   newReliableOutbox(),
		inbox:    newReliableInbox(),
		lastSeen: time.Now(),
	}
	s.nextID++
	peer.inbox.observe(helloSeq)
	s.peers[raddr.String()] = peer
	s.byID[peer.id] = peer

	welcome := make([]byte, 5)
	welcome[0] = ctrlWelcome
	binary.LittleEndian.PutUint32(welcome[1:5], peer.id)
	seq := peer.outbox.add(welcome)
	s.transmitLocked(conn, peer, seq, welcome)
	return peer
}

// transmitLocked frames and sends one reliable payload to a peer. Callers
// hold s.mu.
func (s *UDPServer) transmitLocked(conn *net.UDPConn, peer *udpPeer, seq uint32, payload []byte) {
	ack, ackBits := peer.inbox.ackFields()
	buf := make([]byte, udpHeaderSize+udpReliableExtra+len(payload))
	writeUDPHeader(buf, udpFlagReliable, peer.outbox.packetSeq(), ack, ackBits)
	binary.LittleEndian.PutUint32(buf[udpHeaderSize:], seq)
	copy(buf[udpHeaderSize+udpReliableExtra:], payload)
	conn.WriteToUDP(buf, peer.addr)
	peer.outbox.markSent(seq, time.Now())
}

func (s *UDPServer) dropPeer(peer *udpPeer, reason string) {
	s.mu.Lock()
	if _, ok := s.byID[peer.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.byID, peer.id)
	delete(s.peers, peer.addr.String())
	s.mu.Unlock()

	s.log.Infow("client disconnected", "clientId", peer.id, "reason", reason, "trace", peer.trace)
	s.queue.push(Event{Type: EventDisconnect, ClientID: peer.id})
}

func (s *UDPServer) maintainLoop(conn *net.UDPConn) {
	ticker := time.NewTicker(udpMaintainEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			var stale []*udpPeer
			s.mu.Lock()
			for _, peer := range s.byID {
				if now.Sub(peer.lastSeen) > udpPeerTimeout {
					stale = append(stale, peer)
					continue
				}
				for _, p := range peer.outbox.due(now) {
					s.transmitLocked(conn, peer, p.seq, p.payload)
				}
			}
			s.mu.Unlock()
			for _, peer := range stale {
				s.dropPeer(peer, "timeout")
			}
		}
	}
}

// Poll pops at most one queued event.
func (s *UDPServer) Poll() (Event, bool) { return s.queue.pop() }

// Send transmits one reliable message to a single client.
func (s *UDPServer) Send(clientID uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotConnected
	}
	peer, ok := s.byID[clientID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, clientID)
	}
	seq := peer.outbox.add(data)
	s.transmitLocked(s.conn, peer, seq, data)
	return nil
}

// Broadcast transmits one reliable message to every connected client.
func (s *UDPServer) Broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	for _, peer := range s.byID {
		seq := peer.outbox.add(data)
		s.transmitLocked(s.conn, peer, seq, data)
	}
}

// Stop closes the socket and notifies every peer.
func (s *UDPServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	conn := s.conn
	done := s.done
	for _, peer := range s.byID {
		buf := make([]byte, udpHeaderSize+1)
		writeUDPHeader(buf, 0, peer.outbox.packetSeq(), 0, 0)
		buf[udpHeaderSize] = ctrlBye
		conn.WriteToUDP(buf, peer.addr)
	}
	s.peers = make(map[string]*udpPeer)
	s.byID = make(map[uint32]*udpPeer)
	s.mu.Unlock()

	close(done)
	conn.Close()
	s.log.Infow("udp server stopped")
}
