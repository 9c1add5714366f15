package server

import (
	"sync"
)

// Registry tracks live connections and which user each one is bound to.
// A connection appears in at most one user's set; a user is online iff
// its set is non-empty. Guests are tracked as connections only.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	users    map[int]map[string]*Client
	connUser map[string]int
	// onChange runs after every effective mutation, outside the lock.
	onChange func()
}

func NewRegistry(onChange func()) *Registry {
	if onChange == nil {
		onChange = func() {}
	}
	return &Registry{
		clients:  make(map[string]*Client),
		users:    make(map[int]map[string]*Client),
		connUser: make(map[string]int),
		onChange: onChange,
	}
}

// Register tracks a new connection. The connection is not bound to any
// user until Bind is called.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()

	r.onChange()
}

// Bind associates the connection with userId, clearing any previous
// binding first. Binding to the same user again is a no-op.
func (r *Registry) Bind(c *Client, userId int) {
	r.mu.Lock()

	if prev, ok := r.connUser[c.id]; ok {
		if prev == userId {
			r.mu.Unlock()
			return
		}
		r.dropBinding(c.id, prev)
	}

	r.clients[c.id] = c
	r.connUser[c.id] = userId
	if r.users[userId] == nil {
		r.users[userId] = make(map[string]*Client)
	}
	r.users[userId][c.id] = c

	r.mu.Unlock()
	r.onChange()
}

// Unbind removes the connection from whatever user set it belongs to.
// The connection itself stays registered. Safe to call repeatedly.
func (r *Registry) Unbind(connId string) {
	r.mu.Lock()

	userId, ok := r.connUser[connId]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.dropBinding(connId, userId)

	r.mu.Unlock()
	r.onChange()
}

// Deregister removes the connection entirely, unbinding it first.
func (r *Registry) Deregister(connId string) {
	r.mu.Lock()

	if userId, ok := r.connUser[connId]; ok {
		r.dropBinding(connId, userId)
	}

	if _, ok := r.clients[connId]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, connId)

	r.mu.Unlock()
	r.onChange()
}

// dropBinding is called with the lock held.
func (r *Registry) dropBinding(connId string, userId int) {
	delete(r.connUser, connId)
	if set, ok := r.users[userId]; ok {
		delete(set, connId)
		if len(set) == 0 {
			delete(r.users, userId)
		}
	}
}

func (r *Registry) ConnectionsFor(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.users[userId]))
	for _, c := range r.users[userId] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) OnlineUsers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// TotalConnections counts all live connections, guests included. A user
// with three tabs is one online user but three connections.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}
