package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/capability"
	"github.com/aptos-mm/arbdetect/internal/cycle"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/evaluator"
	"github.com/aptos-mm/arbdetect/internal/graph"
	"github.com/aptos-mm/arbdetect/internal/strategy"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type zeroGasOracle struct{}

func (zeroGasOracle) Simulate(ctx context.Context, req capability.SimulationRequest) (capability.SimulationResult, error) {
	return capability.SimulationResult{GasUsed: decimal.Zero, Success: true}, nil
}

func (zeroGasOracle) GasUnitPrice(ctx context.Context) (decimal.Decimal, time.Time, error) {
	return decimal.Zero, time.Now(), nil
}

type onePriceOracle struct{}

func (onePriceOracle) Price(ctx context.Context, from, to domain.Asset) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *graph.Graph) {
	t.Helper()
	g := graph.New()
	strat, err := strategy.Build(strategy.CycleName, strategy.Config{
		Sizing: cycle.SizingConfig{
			Ladder:       []decimal.Decimal{d("100")},
			SizeFraction: d("1"),
			Epsilon:      d("0.0001"),
		},
		Params: cycle.Params{MinProfitPct: d("0"), SlippageCapPct: d("0.5"), MaxCycleLen: 6},
		Policy: graph.NewPairPolicy(nil),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	eval := evaluator.New(evaluator.DefaultConfig("APT"), zeroGasOracle{}, onePriceOracle{}, zerolog.Nop())
	return New(cfg, g, []strategy.Strategy{strat}, eval, zerolog.Nop()), g
}

// cpmmPool builds a deep-enough pool (scaled per the note in
// internal/cycle/engine_test.go) so a 100-unit probe realizes a
// genuine profit rather than losing it all to slippage.
func cpmmPool(x, y domain.Asset, ex domain.ExchangeId, rx, ry string, feeBps uint32) domain.MarketUpdate {
	return domain.MarketUpdate{
		PoolID:   string(ex) + ":" + string(x) + "/" + string(y),
		Exchange: ex,
		Pair:     domain.TradingPair{AssetX: x, AssetY: y},
		Model:    domain.PoolModel{Kind: domain.KindConstantProduct, ReserveX: d(rx), ReserveY: d(ry), FeeBps: feeBps},
	}
}

func profitablePools() []domain.MarketUpdate {
	return []domain.MarketUpdate{
		cpmmPool("APT", "USDC", "dexA", "10000", "100000", 30),
		cpmmPool("USDC", "APT", "dexB", "101000", "9900", 30),
	}
}

// Run one full block over a profitable pool pair and expect exactly
// one emitted Opportunity.
func TestRun_BlockCycleEmitsOpportunity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EntryConfirmRuns = 1
	s, _ := newTestScheduler(t, cfg)

	in := make(chan domain.DetectorMessage, 8)
	in <- domain.BlockStart{BlockNumber: 1}
	for _, u := range profitablePools() {
		in <- u
	}
	in <- domain.BlockEnd{BlockNumber: 1}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx, in); err == nil {
		t.Fatal("expected ChannelClosed error once input channel drains")
	}

	select {
	case opp := <-s.Opportunities():
		if !opp.ExpectedGross.GreaterThan(decimal.Zero) {
			t.Fatalf("expected positive gross profit, got %s", opp.ExpectedGross)
		}
	default:
		t.Fatal("expected one opportunity to have been emitted")
	}
}

// The same cycle detected on blocks n and n+1 within the dedup
// window yields a single emission.
func TestRun_DedupSuppressesSecondEmissionWithinWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EntryConfirmRuns = 1
	cfg.DedupWindow = time.Second
	s, g := newTestScheduler(t, cfg)

	runBlock := func(n uint64) {
		s.onBlockStart(domain.BlockStart{BlockNumber: n})
		for _, u := range profitablePools() {
			s.onMarketUpdate(u)
		}
		s.onBlockEnd(context.Background(), domain.BlockEnd{BlockNumber: n})
	}

	runBlock(1)
	runBlock(2) // identical pools, well within the 1s dedup window

	count := 0
	for {
		select {
		case <-s.Opportunities():
			count++
		default:
			if count != 1 {
				t.Fatalf("expected exactly one emission across both blocks, got %d", count)
			}
			if g.EdgeCount() == 0 {
				t.Fatal("expected pool upserts to have populated the graph")
			}
			return
		}
	}
}

// entry_confirm_runs gates the first emission of a brand-new cycle
// key: with the gate set to 2, the first block's detection must be
// suppressed and only the second block's emits.
func TestRun_EntryConfirmRunsGatesFirstEmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EntryConfirmRuns = 2
	cfg.DedupWindow = time.Nanosecond // don't let the dedup window itself suppress block 2
	s, _ := newTestScheduler(t, cfg)

	s.onBlockStart(domain.BlockStart{BlockNumber: 1})
	for _, u := range profitablePools() {
		s.onMarketUpdate(u)
	}
	s.onBlockEnd(context.Background(), domain.BlockEnd{BlockNumber: 1})

	select {
	case <-s.Opportunities():
		t.Fatal("expected first detection to be suppressed by entry_confirm_runs")
	default:
	}

	time.Sleep(2 * time.Millisecond)
	s.onBlockStart(domain.BlockStart{BlockNumber: 2})
	for _, u := range profitablePools() {
		s.onMarketUpdate(u)
	}
	s.onBlockEnd(context.Background(), domain.BlockEnd{BlockNumber: 2})

	select {
	case <-s.Opportunities():
	default:
		t.Fatal("expected second consecutive detection to clear the entry-confirm gate")
	}
}

// Waiting-state stray messages are logged and ignored, not fatal.
func TestRun_WaitingStateIgnoresStrayMessages(t *testing.T) {
	cfg := DefaultConfig()
	s, g := newTestScheduler(t, cfg)

	s.onMarketUpdate(profitablePools()[0]) // no BlockStart yet; scheduler is Waiting
	if g.EdgeCount() != 0 {
		t.Fatalf("expected stray MarketUpdate to be ignored while Waiting, got %d edges", g.EdgeCount())
	}

	s.onBlockEnd(context.Background(), domain.BlockEnd{BlockNumber: 1}) // also ignored
	select {
	case <-s.Opportunities():
		t.Fatal("expected no emission from a stray BlockEnd while Waiting")
	default:
	}
}

// BlockStart while InProgress resets the in-flight block's update
// count and starts fresh rather than erroring.
func TestRun_BlockStartWhileInProgressDiscardsAndRestarts(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := newTestScheduler(t, cfg)

	s.onBlockStart(domain.BlockStart{BlockNumber: 1})
	s.onMarketUpdate(profitablePools()[0])
	s.onBlockStart(domain.BlockStart{BlockNumber: 2}) // should warn + restart, not panic
	if s.currentBlock != 2 {
		t.Fatalf("expected currentBlock to advance to 2, got %d", s.currentBlock)
	}
	if s.updatesThisBlock != 0 {
		t.Fatalf("expected the in-flight update counter to reset, got %d", s.updatesThisBlock)
	}
}
