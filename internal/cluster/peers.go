package cluster

import (
	"sort"
	"strings"
	"sync"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// IsBalancerID reports whether a node id names a balancer. Balancers take
// sync traffic but never receive replication fan-out.
func IsBalancerID(id string) bool {
	return id == "balancer" || strings.HasPrefix(id, "balancer")
}

// Peers is the table of nodes known to this one. Entries are inserted from
// the seed list at boot or on announcements and are never evicted; only the
// active flag moves.
type Peers struct {
	mu    sync.RWMutex
	self  string
	peers map[string]*models.PeerInfo

	// OnActiveChange, when set, is called outside the lock after an
	// entry's active flag actually flips.
	OnActiveChange func(id string, active bool)
}

func NewPeers(selfID string) *Peers {
	return &Peers{
		self:  selfID,
		peers: make(map[string]*models.PeerInfo),
	}
}

// SelfID returns the local node's id.
func (p *Peers) SelfID() string { return p.self }

// Upsert inserts or refreshes a peer entry. A zero ServicePort keeps any
// previously known one.
func (p *Peers) Upsert(info models.PeerInfo) {
	p.mu.Lock()
	existing, ok := p.peers[info.ID]
	var flipped bool
	if ok {
		if info.ServicePort == 0 {
			info.ServicePort = existing.ServicePort
		}
		flipped = existing.Active != info.Active
		*existing = info
	} else {
		copied := info
		p.peers[info.ID] = &copied
		flipped = info.Active
	}
	p.mu.Unlock()

	if flipped && p.OnActiveChange != nil {
		p.OnActiveChange(info.ID, info.Active)
	}
}

// Get returns a copy of the entry for id.
func (p *Peers) Get(id string) (models.PeerInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.peers[id]
	if !ok {
		return models.PeerInfo{}, false
	}
	return *info, true
}

// Known reports whether an entry for id exists.
func (p *Peers) Known(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.peers[id]
	return ok
}

// SetActive flips the active flag and reports whether the value changed.
func (p *Peers) SetActive(id string, active bool) bool {
	p.mu.Lock()
	info, ok := p.peers[id]
	changed := ok && info.Active != active
	if changed {
		info.Active = active
	}
	p.mu.Unlock()

	if changed && p.OnActiveChange != nil {
		p.OnActiveChange(id, active)
	}
	return changed
}

// Snapshot returns a copy of all entries, sorted by id for stable iteration.
func (p *Peers) Snapshot() []models.PeerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.PeerInfo, 0, len(p.peers))
	for _, info := range p.peers {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveIDs returns the ids of active peers, excluding self.
func (p *Peers) ActiveIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for id, info := range p.peers {
		if id != p.self && info.Active {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ActiveDataIDs returns the ids of active peers that host data, excluding
// self and balancers.
func (p *Peers) ActiveDataIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for id, info := range p.peers {
		if id != p.self && info.Active && !IsBalancerID(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
