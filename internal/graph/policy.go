package graph

import (
	"sync"

	"github.com/aptos-mm/arbdetect/internal/domain"
)

// PairPolicy is the detector.allowed_pairs gate: it restricts which
// assets the Cycle Engine may use as a cycle's start/end vertex.
// Disallowed pairs are still accepted into the graph for connectivity
// (a disallowed asset can still appear mid-cycle); only start/end
// selection is filtered.
type PairPolicy struct {
	mu      sync.RWMutex
	allowed map[domain.Asset]bool
}

// NewPairPolicy builds a policy. An empty allow-list means every
// asset is a permitted cycle start/end (the default, no restriction).
func NewPairPolicy(allowed []domain.Asset) *PairPolicy {
	p := &PairPolicy{}
	p.Update(allowed)
	return p
}

// Update replaces the allow-list wholesale.
func (p *PairPolicy) Update(allowed []domain.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(allowed) == 0 {
		p.allowed = nil
		return
	}
	m := make(map[domain.Asset]bool, len(allowed))
	for _, a := range allowed {
		m[a] = true
	}
	p.allowed = m
}

// AllowedStart reports whether asset may be used as a cycle's
// start/end vertex.
func (p *PairPolicy) AllowedStart(asset domain.Asset) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.allowed == nil {
		return true
	}
	return p.allowed[asset]
}
