package balancer

import (
	"log"
	"sync"
	"sync/atomic"
)

// Backend is one application node the balancer can route to.
type Backend struct {
	ID          string
	Address     string
	ServicePort int
	Active      bool
}

// Backends is the balancer's routing table plus the round-robin cursor.
// The list is mutated under a short lock; Next works on a snapshot of the
// active entries and advances the shared atomic counter exactly once per
// routed request.
type Backends struct {
	mu        sync.Mutex
	servers   []*Backend
	nextIndex atomic.Uint64
}

func NewBackends() *Backends {
	return &Backends{}
}

// Add registers a backend or refreshes an existing one, reactivating it.
func (b *Backends) Add(id, address string, servicePort int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, server := range b.servers {
		if server.ID == id {
			server.Address = address
			if servicePort > 0 {
				server.ServicePort = servicePort
			}
			server.Active = true
			log.Printf("[Balancer] server refreshed: %s at %s:%d", id, address, server.ServicePort)
			return
		}
	}

	b.servers = append(b.servers, &Backend{ID: id, Address: address, ServicePort: servicePort, Active: true})
	log.Printf("[Balancer] server added: %s at %s:%d", id, address, servicePort)
}

// Remove drops a backend from the table.
func (b *Backends) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, server := range b.servers {
		if server.ID == id {
			b.servers = append(b.servers[:i], b.servers[i+1:]...)
			log.Printf("[Balancer] server removed: %s", id)
			return
		}
	}
}

// SetActive updates a backend's availability flag.
func (b *Backends) SetActive(id string, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, server := range b.servers {
		if server.ID == id {
			if server.Active != active {
				server.Active = active
				state := "inactive"
				if active {
					state = "active"
				}
				log.Printf("[Balancer] server %s is now %s", id, state)
			}
			return
		}
	}
}

// Next selects the next active backend round-robin. Returns false when no
// backend is available.
func (b *Backends) Next() (Backend, bool) {
	b.mu.Lock()
	var active []Backend
	for _, server := range b.servers {
		if server.Active {
			active = append(active, *server)
		}
	}
	b.mu.Unlock()

	if len(active) == 0 {
		return Backend{}, false
	}

	index := (b.nextIndex.Add(1) - 1) % uint64(len(active))
	return active[index], true
}

// All returns a copy of the table.
func (b *Backends) All() []Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Backend, 0, len(b.servers))
	for _, server := range b.servers {
		out = append(out, *server)
	}
	return out
}
