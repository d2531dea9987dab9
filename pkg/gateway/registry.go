package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/daisy/internal/observability"
)

// ClientRegistry tracks connected websocket clients and keeps the
// gateway_clients_active gauge current.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	r.clients[client.ID] = client
	n := len(r.clients)
	r.mu.Unlock()

	observability.SetGatewayClients(n)
}

func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	n := len(r.clients)
	r.mu.Unlock()

	observability.SetGatewayClients(n)
}

func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	return client, ok
}

// GetAll returns the connected clients in no particular order.
func (r *ClientRegistry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Snapshot returns client info ordered by connection time.
func (r *ClientRegistry) Snapshot() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(r.clients))
	for _, client := range r.clients {
		infos = append(infos, ClientInfo{
			ID:            client.ID,
			Authenticated: client.Authenticated,
			ConnectedAt:   client.ConnectedAt,
			LastActivity:  client.LastActivity,
			IPAddress:     client.IPAddress,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ConnectedAt.Before(infos[j].ConnectedAt) })
	return infos
}

func (r *ClientRegistry) UpdateActivity(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[clientID]; ok {
		client.LastActivity = time.Now()
	}
}
