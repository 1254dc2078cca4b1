// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fxengine/internal/control"
	"fxengine/internal/log"
)

// ControlPath is the route of the control endpoint.
const ControlPath = "/control"

const (
	broadcastBuffer = 256
	writeWait       = time.Second
	maxMessageSize  = 64 << 10
)

// client serialises writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// WebSocketTransport serves the control protocol. Requests from any client
// go to the Surface; every reply the Surface receives is broadcast to all
// clients. Requests that fail validation are answered with an error message
// to the sender only.
type WebSocketTransport struct {
	addr      string
	surface   *control.Surface
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]*client
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	listener  net.Listener

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewWebSocketTransport creates a transport for s that will listen on addr
// once started. The broadcast loop runs until Close.
func NewWebSocketTransport(addr string, s *control.Surface) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr:    addr,
		surface: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]*client),
		broadcast: make(chan any, broadcastBuffer),
		done:      make(chan struct{}),
	}
	wst.unsubscribe = Forward(s, wst)

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving ControlPath.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ControlPath, wst.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("WebSocketTransport: listening on ws://%s%s", ln.Addr(), ControlPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn}
	wst.clientsMu.Lock()
	wst.clients[conn] = c
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: client %s connected, total: %d", conn.RemoteAddr(), n)

	go wst.readLoop(c)
}

// readLoop handles requests from one client until it disconnects.
func (wst *WebSocketTransport) readLoop(c *client) {
	defer wst.drop(c.conn)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("WebSocketTransport: read error: %v", err)
			}
			return
		}

		req, err := control.DecodeRequest(msg)
		if err == nil {
			err = wst.surface.Handle(req)
		}
		if err != nil {
			log.Debugf("WebSocketTransport: rejected %s: %v", req.Type, err)
			reply := control.ErrorReply{Type: control.TypeError, Request: req.Type, Error: err.Error()}
			if werr := c.write(reply); werr != nil {
				return
			}
		}
	}
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	n := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		log.Infof("WebSocketTransport: client disconnected, total: %d", n)
	}
}

// handleBroadcasts writes queued messages to every client.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for conn, c := range wst.clients {
				if err := c.write(data); err != nil {
					log.Warnf("WebSocketTransport: error sending to client: %v", err)
					conn.Close()
					delete(wst.clients, conn)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for every client. Messages are dropped when the queue is
// full.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		log.Debugf("WebSocketTransport: broadcast queue full, dropping %T", data)
	}
	return nil
}

// Close disconnects every client and stops the server.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Infof("WebSocketTransport: closing")
		wst.unsubscribe()
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for conn := range wst.clients {
			conn.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
