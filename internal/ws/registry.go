package ws

import (
	"log"
	"sort"
	"sync"
)

// Registry is the process-wide presence map from user id to live
// connections. A user may hold several connections at once (multi-device);
// the user is online while at least one remains.
//
// Register and Unregister run from connection callbacks that may race for
// the same user, so every map mutation happens under the mutex.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]map[*Client]struct{})}
}

// Register binds a connection to a user and announces the updated online set
// to every connection. Idempotent per client.
func (r *Registry) Register(userID string, c *Client) {
	r.mu.Lock()
	set, ok := r.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.clients[userID] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	r.broadcastOnline()
}

// Unregister removes the binding for whichever user owns this client.
// Removing the last connection transitions the user offline. Safe to call
// for a client that never registered; only an actual removal broadcasts.
func (r *Registry) Unregister(c *Client) {
	if c == nil {
		return
	}
	removed := false
	r.mu.Lock()
	if set, ok := r.clients[c.userID]; ok {
		if _, bound := set[c]; bound {
			delete(set, c)
			removed = true
			if len(set) == 0 {
				delete(r.clients, c.userID)
			}
		}
	}
	r.mu.Unlock()

	if removed {
		r.broadcastOnline()
	}
}

// Resolve returns the live connections for a user. Absence is not an error;
// an offline user resolves to an empty slice.
func (r *Registry) Resolve(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.clients[userID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// Online returns the sorted set of currently online user ids.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) all() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, set := range r.clients {
		for c := range set {
			clients = append(clients, c)
		}
	}
	return clients
}

func (r *Registry) broadcastOnline() {
	payload, err := OnlineUsersEvent(r.Online()).Encode()
	if err != nil {
		log.Printf("ws: encode online users: %v", err)
		return
	}
	for _, c := range r.all() {
		c.enqueue(payload)
	}
}
