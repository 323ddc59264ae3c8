package livereload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/themesmith/internal/logging"
)

const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// client is one connected browser.
type client struct {
	id     string
	seq    int64
	conn   *websocket.Conn
	send   chan []byte
	closed bool
	url    string
}

// ClientInfo describes a connected browser.
type ClientInfo struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Hub is the registry of connected browsers. Browsers are added when they
// connect and removed when they disconnect; a broadcast reaches every
// browser registered at that moment.
//
// The clients map is guarded by mu. A client's send channel is closed
// exactly once, under mu, when it leaves the map. Client goroutines are
// added to wg under mu and only while the hub is running, so Shutdown's
// wait never races an Add.
type Hub struct {
	clients map[*websocket.Conn]*client
	mu      sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	logger     logging.Logger
	serverName string
	nextID     atomic.Int64

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
	wg           sync.WaitGroup
}

// NewHub creates a hub and starts its goroutine.
func NewHub(serverName string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client, 32),
		unregister: make(chan *websocket.Conn, 32),
		logger:     logger.WithComponent("livereload"),
		serverName: serverName,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go h.run()

	return h
}

// ServeHTTP upgrades the request to a websocket and registers the browser.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Pages are served from any local origin (PHP server, file://).
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	seq := h.nextID.Add(1)
	c := &client{
		id:   fmt.Sprintf("client-%d", seq),
		seq:  seq,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		h.wg.Done()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.handleClient(c)
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)

		case conn := <-h.unregister:
			h.unregisterClient(conn)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(c *client) {
	h.mu.Lock()
	h.clients[c.conn] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug(h.ctx, "Browser connected", "client", c.id, "clients", total)
}

func (h *Hub) unregisterClient(conn *websocket.Conn) {
	h.mu.Lock()
	c, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
		c.closed = true
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "Browser disconnected", "client", c.id, "clients", total)
	}
}

func (h *Hub) broadcastToClients(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, c := range h.clients {
		select {
		case c.send <- message:
		default:
			// Browser is not keeping up; drop it.
			go func(conn *websocket.Conn) {
				select {
				case h.unregister <- conn:
				case <-h.ctx.Done():
				}
			}(conn)
		}
	}
}

func (h *Hub) handleClient(c *client) {
	defer h.wg.Done()
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeToClient(c)
	}()

	h.readFromClient(c)
	<-writerDone
}

func (h *Hub) readFromClient(c *client) {
	defer func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		ctx, cancel := context.WithTimeout(h.ctx, readTimeout)
		_, data, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug(h.ctx, "Ignoring malformed message", "client", c.id, "error", err.Error())
			continue
		}

		switch msg.Command {
		case CommandHello:
			h.reply(c, HelloMessage{
				Command:    CommandHello,
				Protocols:  []string{ProtocolOfficial7},
				ServerName: h.serverName,
			})
		case CommandInfo:
			h.mu.Lock()
			c.url = msg.URL
			h.mu.Unlock()
		}
	}
}

func (h *Hub) reply(c *client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writeToClient(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast sends v as JSON to every connected browser.
func (h *Hub) Broadcast(v interface{}) error {
	if err := h.ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// Clients returns the connected browsers ordered by connection.
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })

	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, ClientInfo{ID: c.id, URL: c.url})
	}
	return infos
}

// Count returns the number of connected browsers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every browser and stops the hub. It waits for the
// client goroutines until ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.cancel()
		<-h.done

		h.mu.Lock()
		for conn, c := range h.clients {
			c.closed = true
			close(c.send)
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.clients = make(map[*websocket.Conn]*client)
		h.mu.Unlock()
	})

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
