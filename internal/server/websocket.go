package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nodegate-io/nodegate/internal/eventbus"
)

// Message is the JSON frame sent to event feed clients.
type Message struct {
	Type          string    `json:"type"`
	Source        string    `json:"source,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Data          any       `json:"data,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// feedTopics are the bus topics mirrored onto /events.
var feedTopics = []eventbus.Topic{
	eventbus.TopicLifecycleState,
	eventbus.TopicNetReconnect,
	eventbus.TopicTagsAdmitted,
	eventbus.TopicPortalScanned,
	eventbus.TopicPortalSubmitted,
	eventbus.TopicNotifyResult,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans bus events out to connected WebSocket clients. Clients are
// read-only watchers; inbound frames beyond ping control traffic are
// discarded.
type Hub struct {
	bus        *eventbus.Bus
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	upgrader   websocket.Upgrader
	mu         sync.RWMutex

	lifecycle eventbus.ServiceLifecycle
}

// NewHub creates an event feed hub backed by the bus.
func NewHub(bus *eventbus.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			// The node lives on a private LAN and carries no browser
			// credentials, so cross-origin reads are harmless.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Start launches the hub loop and the bus mirror workers.
func (h *Hub) Start(ctx context.Context) error {
	h.lifecycle.Start(ctx)
	h.lifecycle.Go(h.run)

	for _, topic := range feedTopics {
		sub := h.bus.Subscribe(topic, eventbus.WithSubscriptionName("events-feed"))
		h.lifecycle.AddSubscriptions(sub)
		h.lifecycle.Go(func(ctx context.Context) {
			h.pump(ctx, sub)
		})
	}
	return nil
}

// Shutdown stops the hub and disconnects all clients.
func (h *Hub) Shutdown(ctx context.Context) error {
	err := h.lifecycle.Shutdown(ctx)

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()

	return err
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			log.Printf("[server] event client %s connected", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			log.Printf("[server] event client %s disconnected", c.id)

		case payload := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow client, skip this frame.
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) pump(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			h.forward(ctx, env)
		}
	}
}

func (h *Hub) forward(ctx context.Context, env eventbus.Envelope) {
	payload, err := json.Marshal(Message{
		Type:          string(env.Topic),
		Source:        string(env.Source),
		CorrelationID: env.CorrelationID,
		Data:          env.Payload,
		Timestamp:     env.Timestamp,
	})
	if err != nil {
		log.Printf("[server] encode event %s: %v", env.Topic, err)
		return
	}

	select {
	case h.broadcast <- payload:
	case <-ctx.Done():
	}
}

// HandleEvents upgrades the request and registers the client.
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	select {
	case h.register <- c:
	case <-h.lifecycle.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.lifecycle.Context().Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[server] websocket read: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
