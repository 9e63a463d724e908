package debugger

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// traceEvent is one instruction's worth of live trace data, published to
// every connected client as a JSON text message.
type traceEvent struct {
	IP       int    `json:"ip"`
	Op       string `json:"op"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// traceClient wraps one accepted websocket connection, mirroring the
// teacher's WebSocketConn (ID plus a mutex guarding the conn and a closed
// flag so a write failure on one client never blocks the broadcast to
// others).
type traceClient struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// TraceServer accepts websocket clients over HTTP and broadcasts every
// published instruction event to all of them, adapted from the teacher's
// WebSocketBroadcast (internal/network/websocket_server.go): iterate a
// snapshot of clients under RLock, write under each client's own lock, drop
// any client whose write errors.
type TraceServer struct {
	listener net.Listener
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.RWMutex
	clients map[string]*traceClient
}

func newTraceServer(addr string) (*TraceServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("trace server listen: %w", err)
	}
	ts := &TraceServer{
		listener: ln,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[string]*traceClient),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/trace", ts.handleUpgrade)
	ts.server = &http.Server{Handler: mux}
	go ts.server.Serve(ln)
	return ts, nil
}

func (ts *TraceServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &traceClient{id: uuid.NewString(), conn: conn}
	ts.mu.Lock()
	ts.clients[client.id] = client
	ts.mu.Unlock()

	// Drain and discard inbound frames; this is a push-only trace feed, but
	// the read loop must run so the connection's close is detected.
	go func() {
		defer ts.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (ts *TraceServer) drop(c *traceClient) {
	ts.mu.Lock()
	delete(ts.clients, c.id)
	ts.mu.Unlock()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// publish encodes ev once and fans it out to every connected client.
func (ts *TraceServer) publish(ev traceEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ts.mu.RLock()
	clients := make([]*traceClient, 0, len(ts.clients))
	for _, c := range ts.clients {
		clients = append(clients, c)
	}
	ts.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.closed = true
			}
		}
		c.mu.Unlock()
	}
}

func (ts *TraceServer) close() {
	ts.mu.Lock()
	for _, c := range ts.clients {
		c.mu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.closed = true
		c.mu.Unlock()
	}
	ts.clients = make(map[string]*traceClient)
	ts.mu.Unlock()
	ts.server.Close()
}
