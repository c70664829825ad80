package cycle

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/graph"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func cpmmPool(x, y domain.Asset, ex domain.ExchangeId, rx, ry string, feeBps uint32) graph.PoolInput {
	return graph.PoolInput{
		Pair:      domain.TradingPair{AssetX: x, AssetY: y},
		Exchange:  ex,
		Model:     domain.PoolModel{Kind: domain.KindConstantProduct, ReserveX: d(rx), ReserveY: d(ry), FeeBps: feeBps},
		Timestamp: t0,
	}
}

func testParams() Params {
	return Params{
		MinProfitPct:   d("0"),
		SlippageCapPct: d("0.5"),
		MaxCycleLen:    6,
	}
}

func testSizing() SizingConfig {
	return SizingConfig{
		Ladder:       []decimal.Decimal{d("100")},
		SizeFraction: d("1"), // no clamp for these small fixture pools' purposes beyond the ladder itself
		Epsilon:      d("0.0001"),
	}
}

// Two-pool APT/USDC cycle, profitable. Toy reserves like (100/1000,
// 1010/99) carry the right price gap but are thin enough that a
// 100-unit probe is a double-digit percent of the pool and slippage
// erases the edge; the same ratios are used here at 100x depth so
// the probe size is realistic relative to liquidity and the marginal
// edge survives into the quoted size.
func TestDetect_ProfitableTwoPoolCycle(t *testing.T) {
	g := graph.New()
	// DEX A: APT/USDC reserves (10000, 100000), fee 30bps
	if err := g.UpsertPool(cpmmPool("APT", "USDC", "dexA", "10000", "100000", 30)); err != nil {
		t.Fatal(err)
	}
	// DEX B: USDC/APT reserves (101000, 9900), fee 30bps
	if err := g.UpsertPool(cpmmPool("USDC", "APT", "dexB", "101000", "9900", 30)); err != nil {
		t.Fatal(err)
	}

	eng := New(testSizing(), testParams(), nil, zerolog.Nop())
	found := eng.Detect(g.Snapshot())
	if len(found) == 0 {
		t.Fatalf("expected at least one profitable cycle, found none")
	}
	for _, pq := range found {
		if pq.AmountOut.LessThanOrEqual(pq.AmountIn) {
			t.Fatalf("expected gross_profit > 0, got in=%s out=%s", pq.AmountIn, pq.AmountOut)
		}
		if len(pq.Path) != 2 {
			t.Fatalf("expected a 2-hop cycle, got %d hops", len(pq.Path))
		}
	}
}

// Identical reserves on both legs: no arbitrage.
func TestDetect_NoArbitrageSymmetricReserves(t *testing.T) {
	g := graph.New()
	if err := g.UpsertPool(cpmmPool("APT", "USDC", "dexA", "100", "1000", 30)); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertPool(cpmmPool("USDC", "APT", "dexB", "1000", "100", 30)); err != nil {
		t.Fatal(err)
	}

	sizing := SizingConfig{
		Ladder:       []decimal.Decimal{d("1"), d("10"), d("100")},
		SizeFraction: d("1"),
		Epsilon:      d("0.0001"),
	}
	eng := New(sizing, testParams(), nil, zerolog.Nop())
	found := eng.Detect(g.Snapshot())
	if len(found) != 0 {
		t.Fatalf("expected zero opportunities with symmetric fee-laden reserves, got %d", len(found))
	}
}

// A triangle whose effective-rate product exceeds 1 is found
// regardless of which vertex the reconstruction starts from.
func TestDetect_TriangleCycleReconstructedAtCorrectLength(t *testing.T) {
	g := graph.New()
	if err := g.UpsertPool(cpmmPool("A", "B", "dex1", "100000", "100000", 0)); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertPool(cpmmPool("B", "C", "dex1", "100000", "110000", 0)); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertPool(cpmmPool("C", "A", "dex1", "110000", "105000", 0)); err != nil {
		t.Fatal(err)
	}

	eng := New(testSizing(), testParams(), nil, zerolog.Nop())
	found := eng.Detect(g.Snapshot())
	if len(found) == 0 {
		t.Fatalf("expected the constructed triangle to be found")
	}
	seenKeys := map[string]bool{}
	for _, pq := range found {
		if len(pq.Path) != 3 {
			t.Fatalf("expected a 3-hop cycle, got %d", len(pq.Path))
		}
		seenKeys[pq.CanonicalKey()] = true
	}
	if len(seenKeys) != 1 {
		t.Fatalf("expected exactly one distinct cycle (rotation-deduplicated), got %d", len(seenKeys))
	}
}

func TestDetect_EmptyGraphYieldsNoCandidates(t *testing.T) {
	g := graph.New()
	eng := New(testSizing(), testParams(), nil, zerolog.Nop())
	if found := eng.Detect(g.Snapshot()); len(found) != 0 {
		t.Fatalf("expected no candidates on an empty graph, got %d", len(found))
	}
}

func TestDetect_RespectsPairPolicyStartRestriction(t *testing.T) {
	g := graph.New()
	if err := g.UpsertPool(cpmmPool("APT", "USDC", "dexA", "10000", "100000", 30)); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertPool(cpmmPool("USDC", "APT", "dexB", "101000", "9900", 30)); err != nil {
		t.Fatal(err)
	}

	policy := graph.NewPairPolicy([]domain.Asset{"BTC"}) // neither APT nor USDC allowed as a start
	eng := New(testSizing(), testParams(), policy, zerolog.Nop())
	found := eng.Detect(g.Snapshot())
	if len(found) != 0 {
		t.Fatalf("expected zero candidates when no vertex is an allowed start, got %d", len(found))
	}
}

func TestDetect_MinProfitPctBoundary(t *testing.T) {
	g := graph.New()
	if err := g.UpsertPool(cpmmPool("APT", "USDC", "dexA", "10000", "100000", 30)); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertPool(cpmmPool("USDC", "APT", "dexB", "101000", "9900", 30)); err != nil {
		t.Fatal(err)
	}

	eng := New(testSizing(), testParams(), nil, zerolog.Nop())
	found := eng.Detect(g.Snapshot())
	if len(found) == 0 {
		t.Fatalf("setup assumption failed: expected a candidate to exist")
	}
	best := found[0].ProfitPct

	strictParams := testParams()
	strictParams.MinProfitPct = best.Add(d("0.0001"))
	engStrict := New(testSizing(), strictParams, nil, zerolog.Nop())
	if strict := engStrict.Detect(g.Snapshot()); len(strict) != 0 {
		t.Fatalf("expected threshold strictly above best profit_pct to drop all candidates, got %d", len(strict))
	}
}
