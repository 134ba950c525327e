package livepage

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
)

// maxHistory is the number of notifications replayed to a page when it
// connects, so a fresh display is not empty.
const maxHistory = 13

// Message is one entry on the live page stream.
type Message struct {
	Type         string              `json:"type"`
	Feed         string              `json:"feed"`
	Notification models.Notification `json:"notification,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// Hub maintains the connected live pages, keyed by the feed they
// display, and fans notifications out to them. Each feed keeps a short
// history that is replayed, oldest first, before any live notification
// reaches a newly connected page.
type Hub struct {
	logger logging.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	mutex   sync.RWMutex
	clients map[*Client]bool
	history map[string][]*Message
	pages   *prometheus.GaugeVec
}

// Client is one connected live page.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	feed   string
	logger logging.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a hub. Run must be started for it to do anything.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		clients:    make(map[*Client]bool),
		history:    make(map[string][]*Message),
	}
}

// SetMetrics attaches the connected-pages gauge, labeled by feed.
func (h *Hub) SetMetrics(pages *prometheus.GaugeVec) {
	h.mutex.Lock()
	h.pages = pages
	h.mutex.Unlock()
}

func (h *Hub) trackPage(feed string, delta float64) {
	if h.pages == nil {
		return
	}
	h.pages.WithLabelValues(feed).Add(delta)
}

// Run is the hub's main loop. Registration and broadcast run on the
// same goroutine, so a page always sees the history before anything
// that arrives after it connected.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.trackPage(client.feed, 1)
			replayed := len(h.history[client.feed])
			for _, msg := range h.history[client.feed] {
				h.deliver(client, msg)
			}
			h.mutex.Unlock()

			h.logger.WithFields(logging.Fields{
				"feed":         client.feed,
				"client_count": h.clientCount(),
				"replayed":     replayed,
			}).Info("Live page connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.trackPage(client.feed, -1)
			}
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"feed":         client.feed,
				"client_count": h.clientCount(),
			}).Info("Live page disconnected")

		case msg := <-h.broadcast:
			h.mutex.Lock()
			entries := append(h.history[msg.Feed], msg)
			if len(entries) > maxHistory {
				entries = entries[len(entries)-maxHistory:]
			}
			h.history[msg.Feed] = entries

			for client := range h.clients {
				if client.feed != msg.Feed {
					continue
				}
				h.deliver(client, msg)
			}
			h.mutex.Unlock()
		}
	}
}

// deliver marshals and queues one message; a page that cannot keep up
// is dropped.
func (h *Hub) deliver(client *Client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal live page message")
		return
	}
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
		h.trackPage(client.feed, -1)
	}
}

func (h *Hub) clientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Notify pushes notifications onto the feed's live stream.
func (h *Hub) Notify(feed string, notifications []models.Notification) {
	for _, n := range notifications {
		msg := &Message{
			Type:         "notification",
			Feed:         feed,
			Notification: n,
			Timestamp:    time.Now().UTC(),
		}
		select {
		case h.broadcast <- msg:
		default:
			h.logger.WithFields(logging.Fields{
				"feed": feed,
			}).Warn("Live page broadcast queue full, dropping notification")
		}
	}
}

// Stats reports connected pages and history depth per feed.
func (h *Hub) Stats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	perFeed := make(map[string]int)
	for client := range h.clients {
		perFeed[client.feed]++
	}
	return map[string]interface{}{
		"total_clients": len(h.clients),
		"feed_clients":  perFeed,
	}
}

// ServeWS upgrades a live page connection. The feed handle comes from
// the feed query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	feed := r.URL.Query().Get("feed")
	if feed == "" {
		http.Error(w, "missing feed parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade live page connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		feed:   feed,
		logger: h.logger,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// readPump drains the connection; live pages are display-only, so
// anything inbound besides pongs is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("Live page connection error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
