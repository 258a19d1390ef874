package websocket

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Registry maps each identity to its single live connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[primitive.ObjectID]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[primitive.ObjectID]*Client),
	}
}

// Register makes client the connection for its identity and returns the
// client it replaced, if any.
func (r *Registry) Register(client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.clients[client.UserID]
	r.clients[client.UserID] = client
	if replaced == client {
		return nil
	}
	return replaced
}

func (r *Registry) Lookup(userID primitive.ObjectID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[userID]
	return client, ok
}

// Unregister removes client only while it is still the registered
// connection for its identity. A replaced client leaves its successor alone.
func (r *Registry) Unregister(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.clients[client.UserID]; ok && current == client {
		delete(r.clients, client.UserID)
		return true
	}
	return false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Clients returns a snapshot of the registered connections.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}
