// Package registry is the peer identity registry (C3): the mapping from
// identity to live channel, and the protected-identity collision policy.
package registry

import (
	"sync"

	"github.com/Ap3pp3rs94/signal-broker/internal/identity"
	"github.com/Ap3pp3rs94/signal-broker/internal/peer"
)

// Outcome classifies the result of a Register call.
type Outcome int

const (
	// Registered means the peer was installed; Evicted may also be set.
	Registered Outcome = iota
	// Rejected means a protected identity is already held; the caller must
	// reply already_connected and close the newcomer with 4003.
	Rejected
)

// RegisterResult is returned by Register.
type RegisterResult struct {
	Outcome Outcome
	// Evicted is the prior holder of an ordinary identity, already removed
	// from the registry; the caller must close it with 4002.
	Evicted *peer.Peer
	// Snapshot lists every identity registered immediately after this
	// registration succeeded (only meaningful when Outcome == Registered).
	Snapshot []string
}

// Registry is the single mutual-exclusion region guarding peer
// membership, matching the concurrency model's "registry is the only
// contended structure" requirement. Critical sections here only ever
// touch the map, never I/O.
type Registry struct {
	mu        sync.RWMutex
	peers     map[string]*peer.Peer
	protected *identity.ProtectedSet
}

func New(protected *identity.ProtectedSet) *Registry {
	return &Registry{
		peers:     make(map[string]*peer.Peer),
		protected: protected,
	}
}

// Register installs p under id, applying the protected-vs-ordinary
// collision policy described in the data model: a protected collision is
// rejected outright; an ordinary collision evicts the incumbent.
func (r *Registry) Register(id string, p *peer.Peer) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, held := r.peers[id]
	var evicted *peer.Peer
	if held {
		if r.protected.IsProtected(id) {
			return RegisterResult{Outcome: Rejected}
		}
		evicted = existing
	}

	r.peers[id] = p

	snapshot := make([]string, 0, len(r.peers))
	for k := range r.peers {
		snapshot = append(snapshot, k)
	}

	return RegisterResult{Outcome: Registered, Evicted: evicted, Snapshot: snapshot}
}

// Lookup returns the channel currently registered for id, if any.
func (r *Registry) Lookup(id string) (*peer.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Unregister removes id's record only if the currently-held channel is p
// itself, guarding against the race where a replaced peer's close arrives
// after its successor has already registered. Returns true if a record
// was removed.
func (r *Registry) Unregister(id string, p *peer.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.peers[id]
	if !ok || cur != p {
		return false
	}
	delete(r.peers, id)
	return true
}

// Snapshot returns every currently registered identity.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.peers))
	for k := range r.peers {
		out = append(out, k)
	}
	return out
}

// Count returns the number of currently registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Others returns a point-in-time snapshot of every registered peer except
// the ones named in exclude, used for broadcast and hybrid-relay observer
// fan-out. The snapshot is taken under the lock but delivery happens
// outside it, per the concurrency model's "writes occur without holding
// the registry lock" rule.
func (r *Registry) Others(exclude ...string) []*peer.Peer {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*peer.Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if _, excluded := skip[id]; excluded {
			continue
		}
		out = append(out, p)
	}
	return out
}
