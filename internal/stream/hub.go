package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

// Hub pushes every mutation committed on this node, local or replicated,
// to connected websocket clients. The feed is read-only; client frames are
// drained and discarded.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.FeedEvent
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	server     *http.Server
	stopChan   chan struct{}
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan models.FeedEvent
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan models.FeedEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		stopChan:   make(chan struct{}),
	}
}

// Publish hands one committed event to the hub. Never blocks: when the
// broadcast buffer is full the event is dropped.
func (h *Hub) Publish(event models.FeedEvent) {
	select {
	case h.broadcast <- event:
	case <-h.stopChan:
	default:
		log.Printf("[Stream] broadcast channel full, dropping event")
	}
}

// Start serves the /ws endpoint on the given port and runs the hub loop.
func (h *Hub) Start(address string, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)

	h.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", address, port),
		Handler: mux,
	}

	go h.run()
	go func() {
		log.Printf("[Stream] live feed listening on %s/ws", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Stream] feed server error: %v", err)
		}
	}()
	return nil
}

// Stop closes the feed server and disconnects every client.
func (h *Hub) Stop() {
	close(h.stopChan)
	if h.server != nil {
		h.server.Close()
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stopChan:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[Stream] client connected, total clients: %d", h.GetClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[Stream] client disconnected, total clients: %d", h.GetClientCount())

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Stream] failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan models.FeedEvent, 256),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

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
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Stream] error reading message: %v", err)
			}
			break
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
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("[Stream] failed to marshal event: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
