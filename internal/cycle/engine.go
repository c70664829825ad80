// Package cycle is the Cycle Engine: it runs log-space Bellman-Ford
// over a graph.Snapshot at a ladder of trial sizes, reconstructs any
// negative cycle found, re-evaluates it in forward amount space, and
// returns the surviving candidates deduplicated and ranked. Nothing
// in this package mutates the price graph; feedback (MarkOpportunity)
// is the Block Scheduler's job.
package cycle

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/graph"
	"github.com/aptos-mm/arbdetect/internal/infra/metrics"
)

var errRejected = errors.New("cycle: candidate rejected")

const defaultMaxConcurrentRuns = 8

// Engine is a stateless detector over whatever Snapshot it is given;
// all mutable state (sizing ladder, params, allow-list) is config
// passed in at construction. No hidden globals.
type Engine struct {
	sizing SizingConfig
	params Params
	policy *graph.PairPolicy
	logger zerolog.Logger
}

func New(sizing SizingConfig, params Params, policy *graph.PairPolicy, logger zerolog.Logger) *Engine {
	if params.MaxConcurrentRuns <= 0 {
		params.MaxConcurrentRuns = defaultMaxConcurrentRuns
	}
	if policy == nil {
		policy = graph.NewPairPolicy(nil)
	}
	return &Engine{sizing: sizing, params: params, policy: policy, logger: logger}
}

// Detect runs the full sizing ladder against snap and returns ranked,
// deduplicated PathQuote candidates. Each trial size is an
// independent, suspension-free Bellman-Ford pass on a bounded worker
// pool; no lock is held across any of it, since Detect only reads snap,
// which is itself an immutable value.
func (eng *Engine) Detect(snap graph.Snapshot) []domain.PathQuote {
	vertices := snap.Assets()
	if len(vertices) == 0 {
		return nil
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i] < vertices[j] })

	sizes := eng.candidateSizes(snap, vertices)

	sem := make(chan struct{}, eng.params.MaxConcurrentRuns)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []domain.PathQuote

	for _, size := range sizes {
		wg.Add(1)
		sem <- struct{}{}
		go func(size decimal.Decimal) {
			defer wg.Done()
			defer func() { <-sem }()
			found := eng.runForSize(snap, vertices, size)
			if len(found) == 0 {
				return
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
		}(size)
	}
	wg.Wait()

	return rankAndDedup(all)
}

// candidateSizes unions the per-start-asset sizing ladders across
// every allowed start asset, plus the mandatory zero-size marginal
// pass, deduplicated.
func (eng *Engine) candidateSizes(snap graph.Snapshot, vertices []domain.Asset) []decimal.Decimal {
	seen := map[string]decimal.Decimal{"0": decimal.Zero}
	for _, a := range vertices {
		if !eng.policy.AllowedStart(a) {
			continue
		}
		for _, s := range Sizes(snap, a, eng.sizing) {
			seen[s.String()] = s
		}
	}
	out := make([]decimal.Decimal, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

func (eng *Engine) runForSize(snap graph.Snapshot, vertices []domain.Asset, size decimal.Decimal) []domain.PathQuote {
	relaxedFinal, pred := bellmanFord(snap, vertices, size)
	if len(relaxedFinal) == 0 {
		return nil
	}
	if size.IsZero() {
		return nil // the zero-size marginal pass has no tradeable size; its cycles are discarded
	}

	n := len(vertices)
	var out []domain.PathQuote
	for v := range relaxedFinal {
		edges, ok := reconstructCycle(pred, v, n)
		if !ok {
			continue
		}
		if !eng.startAllowed(edges) {
			continue
		}
		pq, err := forwardEvaluate(edges, size, eng.params)
		if err != nil {
			if errors.Is(err, errSlippage) {
				metrics.DroppedBySlippageTotal.Inc()
			}
			if eng.logger.GetLevel() <= zerolog.DebugLevel {
				eng.logger.Debug().Err(err).Str("size", size.String()).Msg("candidate cycle rejected")
			}
			continue
		}
		out = append(out, pq)
	}
	return out
}

func (eng *Engine) startAllowed(edges []domain.Edge) bool {
	if len(edges) == 0 {
		return false
	}
	return eng.policy.AllowedStart(edges[0].Pair.AssetX)
}

// rankAndDedup groups candidates by their rotation-invariant canonical
// key, keeps the highest-ProfitPct candidate per key, and sorts the
// survivors descending by ProfitPct. Final ranking by net_profit (once
// gas is known) happens downstream in the evaluator/scheduler.
func rankAndDedup(all []domain.PathQuote) []domain.PathQuote {
	best := map[string]domain.PathQuote{}
	for _, pq := range all {
		key := pq.CanonicalKey()
		if cur, ok := best[key]; !ok || pq.ProfitPct.GreaterThan(cur.ProfitPct) {
			best[key] = pq
		}
	}
	out := make([]domain.PathQuote, 0, len(best))
	for _, pq := range best {
		out = append(out, pq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfitPct.GreaterThan(out[j].ProfitPct) })
	return out
}
