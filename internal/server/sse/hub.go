package sse

import (
	"encoding/json"
	"sync"

	"lookout/internal/pipeline"

	log "github.com/sirupsen/logrus"
)

// Client is a single connected SSE subscriber.
type Client chan []byte

// Hub manages the set of active clients and fans broadcasts out to them.
type Hub struct {
	// Registered clients
	clients map[Client]bool

	// Inbound messages from the application
	broadcast chan []byte

	// Registration requests from clients
	register chan Client

	// Unregistration requests from clients
	unregister chan Client

	// Protects concurrent access to the clients map
	mu sync.Mutex
}

// NewHub creates a new hub instance.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run starts the hub's processing loop. It should run on its own goroutine.
func (h *Hub) Run() {
	log.Info("SSE hub started and running")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				clientCount := len(h.clients)
				log.Infof("SSE client unregistered. Total clients: %d", clientCount)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting message to %d SSE clients", len(h.clients))

			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Client channel is full or closed
					log.Warn("SSE client channel full or closed, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client to the hub.
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast queues a message for all registered clients. If the broadcast
// channel is full the message is dropped rather than blocking the caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// BroadcastEvent serializes a pipeline event and broadcasts it.
func (h *Hub) BroadcastEvent(ev pipeline.Event) {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Failed to marshal event for SSE: %v", err)
		return
	}
	h.Broadcast(jsonData)
}
