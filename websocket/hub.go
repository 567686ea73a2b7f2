package websocket

import (
	"sync"

	"github.com/charmbracelet/log"

	"encore/types"
)

// AllKeys is the subscription key that receives stage events for every
// in-flight resolution.
const AllKeys = "all"

// Hub interface defines the methods for managing WebSocket connections. It
// also satisfies the pipeline's progress sink, so stage events flow straight
// from pipeline runs to subscribed clients.
type Hub interface {
	Run()
	Publish(event types.StageEvent)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
}

// hub maintains the set of active clients and broadcasts stage events to them
type hub struct {
	// Registered clients mapped by cache key
	clients map[string]map[*Client]bool

	// Broadcast channel for sending events to all clients of a key
	broadcast chan types.StageEvent

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	logger *log.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *log.Logger) Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.StageEvent, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With("component", "ws"),
	}
}

// Run starts the hub's main event loop
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.key] == nil {
				h.clients[client.key] = make(map[*Client]bool)
			}
			h.clients[client.key][client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", "key", client.key)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.key]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.key)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "key", client.key)

		case event := <-h.broadcast:
			h.mu.RLock()
			// Send to clients subscribed to this cache key
			if clients, ok := h.clients[event.Key]; ok {
				for client := range clients {
					select {
					case client.send <- event:
					default:
						close(client.send)
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, event.Key)
				}
			}

			// Also send to firehose subscribers
			if allClients, ok := h.clients[AllKeys]; ok {
				for client := range allClients {
					select {
					case client.send <- event:
					default:
						close(client.send)
						delete(allClients, client)
					}
				}
				if len(allClients) == 0 {
					delete(h.clients, AllKeys)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues a stage event for broadcast. Events are dropped rather than
// blocking a pipeline run when the hub cannot keep up.
func (h *hub) Publish(event types.StageEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "key", event.Key, "stage", event.Stage)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
