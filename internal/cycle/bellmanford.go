package cycle

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/graph"
	"github.com/aptos-mm/arbdetect/internal/quote"
)

const relaxEpsilon = 1e-12

// bellmanFord runs one multi-source negative-cycle search over snap at
// a fixed trial size. Every vertex is initialized to distance zero
// (equivalent to a virtual source connected to every vertex at weight
// zero), so a single run finds every negative cycle reachable from
// any vertex in the graph, rather than one run per candidate start
// asset. size == 0 weights edges by MarginalPrice; any other size
// weights them by the realized size-dependent rate.
//
// Returns the set of vertices relaxed on the mandatory |V|-th pass
// (each is the tail of some negative cycle) and the predecessor map
// needed to reconstruct them.
func bellmanFord(snap graph.Snapshot, vertices []domain.Asset, size decimal.Decimal) (relaxedFinal map[domain.Asset]bool, pred map[domain.Asset]domain.Edge) {
	n := len(vertices)
	dist := make(map[domain.Asset]float64, n)
	pred = make(map[domain.Asset]domain.Edge, n)
	for _, v := range vertices {
		dist[v] = 0
	}
	relaxedFinal = map[domain.Asset]bool{}

	for iter := 0; iter < n; iter++ {
		updated := false
		final := iter == n-1
		for _, u := range vertices {
			du := dist[u]
			if math.IsInf(du, 1) {
				continue
			}
			for _, e := range snap.Neighbors(u) {
				w, err := edgeWeight(e, size)
				if err != nil {
					continue // non-fatal: a broken edge just can't relax through
				}
				nd := du + w
				v := e.Pair.AssetY
				if nd < dist[v]-relaxEpsilon {
					dist[v] = nd
					pred[v] = e
					updated = true
					if final {
						relaxedFinal[v] = true
					}
				}
			}
		}
		if !updated {
			break // converged: no relaxation would occur on the |V|-th pass either
		}
	}
	return relaxedFinal, pred
}

func edgeWeight(e domain.Edge, size decimal.Decimal) (float64, error) {
	var rate decimal.Decimal
	if size.IsZero() {
		mp, err := quote.MarginalPrice(e.Model)
		if err != nil {
			return 0, err
		}
		rate = mp
	} else {
		out, err := quote.Quote(e.Pair, e.Model, e.Pair.AssetX, size)
		if err != nil {
			return 0, err
		}
		rate = out.Div(size)
	}
	return quote.EdgeWeight(rate)
}

// reconstructCycle walks pred backward |V| steps from v to guarantee
// landing inside the cycle (a vertex relaxed on the final pass may
// hang off the cycle rather than sit on it), then collects edges
// until the walk returns to its own start, reversing them into
// forward (start -> ... -> start) order.
func reconstructCycle(pred map[domain.Asset]domain.Edge, v domain.Asset, n int) ([]domain.Edge, bool) {
	cur := v
	for i := 0; i < n; i++ {
		e, ok := pred[cur]
		if !ok {
			return nil, false
		}
		cur = e.Pair.AssetX
	}
	cycleStart := cur

	var rev []domain.Edge
	node := cycleStart
	for {
		e, ok := pred[node]
		if !ok {
			return nil, false
		}
		rev = append(rev, e)
		node = e.Pair.AssetX
		if node == cycleStart {
			break
		}
		if len(rev) > n {
			return nil, false // defensive: predecessor chain didn't close, treat as not a cycle
		}
	}

	seq := make([]domain.Edge, len(rev))
	for i, e := range rev {
		seq[len(rev)-1-i] = e
	}
	return seq, true
}
