package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WireFrame mirrors the socket wire wrapper without importing the socket
// package, so white-box socket tests can use this server.
type WireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SocketServer is a fake push endpoint: it accepts websocket upgrades,
// records every frame the client sends and can push events back.
type SocketServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []WireFrame
	upgrades int
	requests int
	refuse   bool
}

func NewSocketServer() *SocketServer {
	s := &SocketServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// address clients dial.
func (s *SocketServer) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Refuse makes subsequent upgrade attempts fail.
func (s *SocketServer) Refuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// Requests returns how many connection attempts were seen, refused included.
func (s *SocketServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Upgrades returns how many connections were accepted.
func (s *SocketServer) Upgrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgrades
}

// Received returns a copy of the frames sent by clients, in arrival order.
func (s *SocketServer) Received() []WireFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WireFrame, len(s.received))
	copy(out, s.received)
	return out
}

// Push writes an event to every live connection.
func (s *SocketServer) Push(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame := WireFrame{Event: event, Data: data}

	s.mu.Lock()
	conns := make([]*websocket.Conn, len(s.conns))
	copy(conns, s.conns)
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(frame); err != nil {
			return err
		}
	}
	return nil
}

// CloseConns drops every live connection, simulating a transport failure.
func (s *SocketServer) CloseConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *SocketServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	refuse := s.refuse
	s.mu.Unlock()
	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.upgrades++
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		var frame WireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			s.drop(conn)
			return
		}
		s.mu.Lock()
		s.received = append(s.received, frame)
		s.mu.Unlock()
	}
}

func (s *SocketServer) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	_ = conn.Close()
}
