// Package notify pushes job progress to websocket clients.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

const writeWait = 5 * time.Second

// Update is the message sent to clients for every job transition.
type Update struct {
	Type string `json:"type"`
	models.Snapshot
	Timestamp time.Time `json:"timestamp"`
}

type message struct {
	jobID string
	data  []byte
}

// Hub fans job snapshots out to connected websocket clients. A client may
// restrict itself to one job with the "id" query parameter.
type Hub struct {
	clients    map[*websocket.Conn]string
	broadcast  chan message
	register   chan subscription
	unregister chan *websocket.Conn
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

type subscription struct {
	conn  *websocket.Conn
	jobID string
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan message, 64),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Start runs the hub loop until Stop is called.
func (h *Hub) Start() {
	go func() {
		for {
			select {
			case sub := <-h.register:
				h.mu.Lock()
				h.clients[sub.conn] = sub.jobID
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Debug("Websocket client connected", "job_id", sub.jobID, "clients", total)
			case conn := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[conn]; ok {
					delete(h.clients, conn)
					conn.Close()
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Debug("Websocket client disconnected", "clients", total)
			case msg := <-h.broadcast:
				h.send(msg)
			case <-h.stop:
				h.mu.Lock()
				for conn := range h.clients {
					conn.Close()
					delete(h.clients, conn)
				}
				h.mu.Unlock()
				return
			}
		}
	}()
}

// Stop disconnects every client and ends the hub loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) send(msg message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, jobID := range h.clients {
		if jobID != "" && jobID != msg.jobID {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
			h.logger.Warn("Error sending message to client", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Publish queues a snapshot for delivery. It never blocks the caller; when
// the queue is full the update is dropped since clients can always poll.
func (h *Hub) Publish(snap models.Snapshot) {
	data, err := json.Marshal(Update{
		Type:      "job_update",
		Snapshot:  snap,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal job update", "job_id", snap.JobID, "error", err)
		return
	}

	select {
	case h.broadcast <- message{jobID: snap.JobID, data: data}:
	case <-h.stop:
	default:
		h.logger.Warn("Dropping job update, notification queue full", "job_id", snap.JobID)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", "error", err)
		return
	}

	select {
	case h.register <- subscription{conn: conn, jobID: r.URL.Query().Get("id")}:
	case <-h.stop:
		conn.Close()
		return
	}

	// Clients only listen; reading detects the close frame.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.stop:
	}
}
