// Package relay routes call-control envelopes between connected endpoints.
// The relay keeps no per-call state: restarting it only drops in-flight
// envelopes, never an established call.
package relay

import (
	"log"
	"sync"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/presence"
)

// Relay forwards envelopes by presence lookup and broadcasts a presence
// snapshot whenever the registry changes.
type Relay struct {
	// eventMu serializes registry mutation with the paired snapshot
	// broadcast so two concurrent connects can never publish stale
	// online lists out of order.
	eventMu  sync.Mutex
	registry *presence.Registry
}

func New(registry *presence.Registry) *Relay {
	return &Relay{registry: registry}
}

// Bind registers ep under its identity and broadcasts the new online set.
func (r *Relay) Bind(ep presence.Endpoint) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	r.registry.Register(ep.Identity(), ep)
	r.broadcastSnapshot()
}

// Unbind removes ep and broadcasts the new online set. Safe to call for an
// endpoint that was already displaced by a newer connection.
func (r *Relay) Unbind(ep presence.Endpoint) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	r.registry.Unregister(ep.Identity(), ep)
	r.broadcastSnapshot()
}

// Route forwards env verbatim to its target endpoint. If the target is
// offline the relay synthesizes exactly one call-failed back to the sender.
// The payload is never inspected.
func (r *Relay) Route(env models.Envelope) {
	target, ok := r.registry.Lookup(env.To)
	if !ok {
		r.reportOffline(env)
		return
	}
	if !target.Deliver(env) {
		log.Printf("relay: dropped %s for %s, send queue full", env.Kind, env.To)
	}
}

func (r *Relay) reportOffline(env models.Envelope) {
	sender, ok := r.registry.Lookup(env.From)
	if !ok {
		return
	}
	// The bounce speaks for the unreachable peer, so it names the
	// original target as its sender.
	sender.Deliver(models.Envelope{
		Kind:    models.KindCallFailed,
		CallID:  env.CallID,
		From:    env.To,
		To:      env.From,
		Payload: models.EncodePayload(models.FailedPayload{Reason: models.ReasonOffline}),
	})
}

func (r *Relay) broadcastSnapshot() {
	snapshot := models.Envelope{
		Kind:    models.KindPresenceSnapshot,
		Payload: models.EncodePayload(models.SnapshotPayload{Online: r.registry.Online()}),
	}
	for _, ep := range r.registry.Endpoints() {
		ep.Deliver(snapshot)
	}
}
