package transport

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket transport: every send is reliable and ordered, so the
// reliable hint is ignored. Useful behind proxies and for browser-hosted
// clients where raw UDP is unavailable.

const wsWriteWait = 10 * time.Second

// WSClient dials a WebSocket server transport.
type WSClient struct {
	log *zap.SugaredLogger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	queue eventQueue
}

// NewWSClient returns an unconnected WebSocket client transport.
func NewWSClient(log *zap.SugaredLogger) *WSClient {
	return &WSClient{log: log}
}

// Connect dials ws://host:port/ws.
func (c *WSClient) Connect(host string, port int) error {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log.Infow("ws client connected", "url", u.String(), "trace", uuid.NewString())
	c.queue.push(Event{Type: EventConnect})
	go c.readLoop(conn)
	return nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			c.mu.Unlock()
			if wasConnected {
				c.queue.push(Event{Type: EventDisconnect})
			}
			return
		}
		c.queue.push(Event{Type: EventReceive, Data: payload})
	}
}

// Disconnect closes the socket.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		conn.Close()
	}
}

// Send transmits one binary message. The reliable hint is ignored.
func (c *WSClient) Send(data []byte, reliable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("ws send: %w", err)
	}
	return nil
}

// Poll pops at most one queued event.
func (c *WSClient) Poll() (Event, bool) { return c.queue.pop() }

// Connected reports whether the socket is open.
func (c *WSClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

type wsPeer struct {
	id    uint32
	trace string
	conn  *websocket.Conn
	mu    sync.Mutex // guards writes; gorilla allows one writer at a time
}

func (p *wsPeer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

// WSServer accepts WebSocket clients on /ws.
type WSServer struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	peers   map[uint32]*wsPeer
	nextID  uint32
	running bool
	httpSrv *http.Server

	queue eventQueue
}

// NewWSServer returns an unbound WebSocket server transport.
func NewWSServer(log *zap.SugaredLogger) *WSServer {
	return &WSServer{log: log, nextID: 1}
}

// Listen binds the HTTP listener and serves /ws upgrades in the
// background.
func (s *WSServer) Listen(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warnw("ws upgrade failed", "err", err)
			return
		}
		s.accept(conn)
	})

	s.mu.Lock()
	s.peers = make(map[uint32]*wsPeer)
	s.running = true
	s.httpSrv = &http.Server{Handler: mux}
	srv := s.httpSrv
	s.mu.Unlock()

	s.log.Infow("ws server listening", "addr", ln.Addr().String())
	go srv.Serve(ln)
	return nil
}

func (s *WSServer) accept(conn *websocket.Conn) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		conn.Close()
		return
	}
	peer := &wsPeer{id: s.nextID, trace: uuid.NewString(), conn: conn}
	s.nextID++
	s.peers[peer.id] = peer
	s.mu.Unlock()

	s.log.Infow("client connected", "clientId", peer.id, "remote", conn.RemoteAddr().String(), "trace", peer.trace)
	s.queue.push(Event{Type: EventConnect, ClientID: peer.id})

	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				s.drop(peer)
				return
			}
			s.queue.push(Event{Type: EventReceive, ClientID: peer.id, Data: payload})
		}
	}()
}

func (s *WSServer) drop(peer *wsPeer) {
	s.mu.Lock()
	if _, ok := s.peers[peer.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.peers, peer.id)
	s.mu.Unlock()

	peer.conn.Close()
	s.log.Infow("client disconnected", "clientId", peer.id, "trace", peer.trace)
	s.queue.push(Event{Type: EventDisconnect, ClientID: peer.id})
}

// Poll pops at most one queued event.
func (s *WSServer) Poll() (Event, bool) { return s.queue.pop() }

// Send transmits one message to a single client.
func (s *WSServer) Send(clientID uint32, data []byte) error {
	s.mu.Lock()
	peer, ok := s.peers[clientID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, clientID)
	}
	if err := peer.write(data); err != nil {
		s.drop(peer)
		return fmt.Errorf("ws send to %d: %w", clientID, err)
	}
	return nil
}

// Broadcast transmits one message to every connected client, dropping
// peers whose write fails.
func (s *WSServer) Broadcast(data []byte) {
	s.mu.Lock()
	peers := make([]*wsPeer, 0, len(s.peers))
	for _, peer := range s.peers {
		peers = append(peers, peer)
	}
	s.mu.Unlock()

	for _, peer := range peers {
		if err := peer.write(data); err != nil {
			s.drop(peer)
		}
	}
}

// Stop closes the listener and every peer connection.
func (s *WSServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	srv := s.httpSrv
	peers := make([]*wsPeer, 0, len(s.peers))
	for _, peer := range s.peers {
		peers = append(peers, peer)
	}
	s.peers = make(map[uint32]*wsPeer)
	s.mu.Unlock()

	for _, peer := range peers {
		peer.conn.Close()
	}
	if srv != nil {
		srv.Close()
	}
	s.log.Infow("ws server stopped")
}
