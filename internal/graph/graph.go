// Package graph is the Price Graph: a directed labelled multigraph of
// assets and pool edges. Exactly one writer (the Block Scheduler)
// mutates it; any number of readers hold cheap-to-clone Snapshot
// values obtained via Snapshot(). The writer never blocks a reader:
// every mutation builds a fresh immutable snapshotData and swaps an
// atomic pointer, so a Snapshot in flight never observes a torn
// write.
package graph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/detectorerr"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/quote"
)

// PoolInput is what external callers submit. A pool upsert always
// installs two edges: the forward edge as given, and a reverse edge
// derived by inverting the pool math.
type PoolInput struct {
	Pair      domain.TradingPair
	Exchange  domain.ExchangeId
	Model     domain.PoolModel
	Timestamp time.Time
}

// RetentionPolicy gates prune_stale: an edge (and its mirrored
// direction) is only removed when every one of these conditions
// holds. Any single condition failing retains the pair.
type RetentionPolicy struct {
	MaxStaleAge       time.Duration
	MinTVL            decimal.Decimal
	OpportunityWindow time.Duration
	ProtectedPairs    map[domain.TradingPair]bool
}

type edgeKey struct {
	Pair     domain.TradingPair
	Exchange domain.ExchangeId
}

// snapshotData is the immutable value a Snapshot points at. Every
// mutation clones it, edits the clone, and republishes; the old
// value is never touched again, so concurrent readers holding it see
// a perfectly consistent view forever.
type snapshotData struct {
	byKey     map[edgeKey]domain.Edge
	adjacency map[domain.Asset][]domain.Edge
}

func emptySnapshotData() *snapshotData {
	return &snapshotData{byKey: map[edgeKey]domain.Edge{}, adjacency: map[domain.Asset][]domain.Edge{}}
}

func (s *snapshotData) clone() *snapshotData {
	nk := make(map[edgeKey]domain.Edge, len(s.byKey))
	for k, v := range s.byKey {
		nk[k] = v
	}
	return &snapshotData{byKey: nk}
}

func (s *snapshotData) rebuildAdjacency() {
	adj := make(map[domain.Asset][]domain.Edge, len(s.byKey))
	for _, e := range s.byKey {
		adj[e.Pair.AssetX] = append(adj[e.Pair.AssetX], e)
	}
	s.adjacency = adj
}

// Graph is the mutable, concurrency-safe multigraph.
type Graph struct {
	writeMu sync.Mutex // serializes the single writer's read-modify-write cycle
	cur     atomic.Pointer[snapshotData]
}

func New() *Graph {
	g := &Graph{}
	g.cur.Store(emptySnapshotData())
	return g
}

// UpsertPool inserts or replaces a pool's forward/reverse edge pair.
func (g *Graph) UpsertPool(p PoolInput) error {
	errs := g.IngestBatch([]PoolInput{p})
	return errs[0]
}

// IngestBatch applies a sequence of pool upserts as a single write
// scope: either all valid pools in the batch are visible to a
// subsequent Snapshot(), or none are (until this call returns).
// Invalid pools are skipped and reported at their input index; valid
// pools in the same batch still apply.
func (g *Graph) IngestBatch(pools []PoolInput) []error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	base := g.cur.Load()
	next := base.clone()
	errs := make([]error, len(pools))
	for i, p := range pools {
		if err := quote.ValidateModel(p.Model); err != nil {
			errs[i] = err
			continue
		}
		reverse, err := invert(p.Model)
		if err != nil {
			errs[i] = err
			continue
		}
		applyUpsert(next, p, reverse)
	}
	next.rebuildAdjacency()
	g.cur.Store(next)
	return errs
}

func applyUpsert(next *snapshotData, p PoolInput, reverseModel domain.PoolModel) {
	fwdKey := edgeKey{p.Pair, p.Exchange}
	revPair := p.Pair.Reversed()
	revKey := edgeKey{revPair, p.Exchange}

	ts := p.Timestamp
	var fwdActivity, revActivity domain.ActivityStats
	if old, ok := next.byKey[fwdKey]; ok {
		fwdActivity = old.Activity
		if old.LastUpdated.After(ts) {
			ts = old.LastUpdated // last_updated never moves backward for one identity
		}
	}
	if old, ok := next.byKey[revKey]; ok {
		revActivity = old.Activity
	}

	next.byKey[fwdKey] = domain.Edge{Pair: p.Pair, Exchange: p.Exchange, Model: p.Model, LastUpdated: ts, Activity: fwdActivity}
	next.byKey[revKey] = domain.Edge{Pair: revPair, Exchange: p.Exchange, Model: reverseModel, LastUpdated: ts, Activity: revActivity}
}

func invert(m domain.PoolModel) (domain.PoolModel, error) {
	switch m.Kind {
	case domain.KindConstantProduct:
		return quote.InvertCPMM(m), nil
	case domain.KindConcentratedLiquidity:
		return quote.InvertCLMM(m), nil
	default:
		return domain.PoolModel{}, detectorerr.New(detectorerr.GraphInvalidModel, "graph.invert", "unknown pool kind")
	}
}

// PruneStale removes edges (and their mirrored direction) that are
// all of: older than policy.MaxStaleAge, below policy.MinTVL, outside
// policy.OpportunityWindow since their last opportunity, and not in
// policy.ProtectedPairs. Any one of those failing retains the pair.
func (g *Graph) PruneStale(policy RetentionPolicy, now time.Time) int {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	base := g.cur.Load()
	next := base.clone()

	removedPairs := make(map[edgeKey]bool)
	for k, e := range base.byKey {
		revKey := edgeKey{k.Pair.Reversed(), k.Exchange}
		if removedPairs[k] || removedPairs[revKey] {
			continue
		}
		rev, hasRev := base.byKey[revKey]
		if !hasRev {
			rev = e
		}
		if edgePrunable(e, policy, now) && edgePrunable(rev, policy, now) {
			delete(next.byKey, k)
			delete(next.byKey, revKey)
			removedPairs[k] = true
			removedPairs[revKey] = true
		}
	}
	next.rebuildAdjacency()
	g.cur.Store(next)
	return len(removedPairs) / 2
}

func edgePrunable(e domain.Edge, policy RetentionPolicy, now time.Time) bool {
	if now.Sub(e.LastUpdated) < policy.MaxStaleAge {
		return false // (a) fails: not old enough
	}
	if !policy.MinTVL.IsZero() && e.Activity.TVLEstimate.GreaterThanOrEqual(policy.MinTVL) {
		return false // (b) fails: enough TVL
	}
	if !e.Activity.LastOpportunityAt.IsZero() && now.Sub(e.Activity.LastOpportunityAt) < policy.OpportunityWindow {
		return false // (c) fails: recent opportunity
	}
	if policy.ProtectedPairs[e.Pair] || policy.ProtectedPairs[e.Pair.Reversed()] {
		return false // (d) fails: protected
	}
	return true
}

// MarkOpportunity is the Cycle Engine feedback loop: called only by
// the Block Scheduler after a successful detection cycle. The Cycle
// Engine itself never mutates the graph.
func (g *Graph) MarkOpportunity(edges []domain.Edge, volume decimal.Decimal, now time.Time) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	base := g.cur.Load()
	next := base.clone()
	for _, e := range edges {
		k := edgeKey{e.Pair, e.Exchange}
		cur, ok := next.byKey[k]
		if !ok {
			continue
		}
		cur.Activity.OpportunityCount++
		cur.Activity.LastOpportunityAt = now
		cur.Activity.TotalVolume = cur.Activity.TotalVolume.Add(volume)
		next.byKey[k] = cur
	}
	next.rebuildAdjacency()
	g.cur.Store(next)
}

// Verify walks the live graph checking the structural invariants a
// healthy graph always satisfies: every edge has its mirrored
// direction present, and every CLMM edge's ticks are strictly
// increasing by price. A non-nil return is GraphCorruption; the
// caller drops the graph state via Reset and waits for the ingestor
// to repopulate it.
func (g *Graph) Verify() error {
	data := g.cur.Load()
	for k, e := range data.byKey {
		revKey := edgeKey{k.Pair.Reversed(), k.Exchange}
		if _, ok := data.byKey[revKey]; !ok {
			return detectorerr.New(detectorerr.GraphCorruption, "graph.Verify",
				"edge "+k.Pair.String()+"@"+string(k.Exchange)+" has no mirrored direction")
		}
		if e.Model.Kind == domain.KindConcentratedLiquidity {
			for i := 1; i < len(e.Model.Ticks); i++ {
				if !e.Model.Ticks[i-1].Price.LessThan(e.Model.Ticks[i].Price) {
					return detectorerr.New(detectorerr.GraphCorruption, "graph.Verify",
						"clmm ticks out of order on "+k.Pair.String()+"@"+string(k.Exchange))
				}
			}
		}
	}
	return nil
}

// Reset drops every edge. Used only on GraphCorruption: the next
// blocks' MarketUpdates rebuild the graph from the stream.
func (g *Graph) Reset() {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.cur.Store(emptySnapshotData())
}

// EdgeCount reports the live edge count, used to trigger a forced
// retention sweep against max_graph_edges.
func (g *Graph) EdgeCount() int {
	return len(g.cur.Load().byKey)
}

// Neighbors returns the live graph's current outgoing edges for
// asset. Prefer Snapshot().Neighbors for anything that needs a
// consistent multi-call view.
func (g *Graph) Neighbors(asset domain.Asset) []domain.Edge {
	return g.cur.Load().adjacency[asset]
}

// Snapshot takes an O(1) reference to the current immutable graph
// state. Mutations that follow never affect a Snapshot already taken.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{data: g.cur.Load()}
}

// Snapshot is an immutable, cheap-to-clone point-in-time view of the
// graph.
type Snapshot struct {
	data *snapshotData
}

// Neighbors returns the outgoing edges from asset. Order is
// unspecified but stable for the lifetime of this Snapshot.
func (s Snapshot) Neighbors(asset domain.Asset) []domain.Edge {
	return s.data.adjacency[asset]
}

// Assets returns every vertex with at least one outgoing edge.
func (s Snapshot) Assets() []domain.Asset {
	out := make([]domain.Asset, 0, len(s.data.adjacency))
	for a := range s.data.adjacency {
		out = append(out, a)
	}
	return out
}

// EdgeCount returns the number of directed edges in this snapshot.
func (s Snapshot) EdgeCount() int {
	return len(s.data.byKey)
}

// Lookup returns the edge stored for (pair, exchange), if any.
func (s Snapshot) Lookup(pair domain.TradingPair, exchange domain.ExchangeId) (domain.Edge, bool) {
	e, ok := s.data.byKey[edgeKey{pair, exchange}]
	return e, ok
}
