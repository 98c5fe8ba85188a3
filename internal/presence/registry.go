// Package presence maps logical user identities to their currently
// connected signaling endpoint. The registry is an injected service
// object; it owns the only mutable map in the server.
package presence

import (
	"sort"
	"sync"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
)

// Endpoint is one live signaling connection bound to a single identity.
// Deliver must not block: implementations queue the envelope and report
// false when the queue is full or the connection is gone.
type Endpoint interface {
	Identity() string
	Deliver(env models.Envelope) bool
}

// Registry holds at most one endpoint per identity, last-connect-wins.
// A key present in the map means the endpoint is currently reachable.
type Registry struct {
	mu        sync.Mutex
	endpoints map[string]Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register binds identity to ep, overwriting any previous endpoint for the
// same identity. The displaced endpoint gets no eviction notice; its own
// disconnect is a no-op by then (see Unregister).
func (r *Registry) Register(identity string, ep Endpoint) {
	r.mu.Lock()
	r.endpoints[identity] = ep
	r.mu.Unlock()
}

// Unregister removes the mapping for identity, but only if ep is still the
// registered endpoint. A stale disconnect from an endpoint that was already
// displaced by a newer connection must not evict the newer one.
func (r *Registry) Unregister(identity string, ep Endpoint) {
	r.mu.Lock()
	if cur, ok := r.endpoints[identity]; ok && cur == ep {
		delete(r.endpoints, identity)
	}
	r.mu.Unlock()
}

// Lookup returns the endpoint for identity. A miss is not an error; it
// means the identity is offline.
func (r *Registry) Lookup(identity string) (Endpoint, bool) {
	r.mu.Lock()
	ep, ok := r.endpoints[identity]
	r.mu.Unlock()
	return ep, ok
}

// Online returns the sorted set of currently registered identities.
func (r *Registry) Online() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Endpoints returns a snapshot of every registered endpoint.
func (r *Registry) Endpoints() []Endpoint {
	r.mu.Lock()
	eps := make([]Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	r.mu.Unlock()
	return eps
}
