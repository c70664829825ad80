package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/capability"
	"github.com/aptos-mm/arbdetect/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeGasOracle struct {
	gasUsed     decimal.Decimal
	success     bool
	simErr      error
	unitPrice   decimal.Decimal
	lastUpdated time.Time
	priceErr    error
}

func (f *fakeGasOracle) Simulate(ctx context.Context, req capability.SimulationRequest) (capability.SimulationResult, error) {
	if f.simErr != nil {
		return capability.SimulationResult{}, f.simErr
	}
	return capability.SimulationResult{GasUsed: f.gasUsed, Success: f.success}, nil
}

func (f *fakeGasOracle) GasUnitPrice(ctx context.Context) (decimal.Decimal, time.Time, error) {
	if f.priceErr != nil {
		return decimal.Zero, time.Time{}, f.priceErr
	}
	return f.unitPrice, f.lastUpdated, nil
}

type fakePriceOracle struct {
	rate decimal.Decimal
	err  error
}

func (f *fakePriceOracle) Price(ctx context.Context, from, to domain.Asset) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rate, nil
}

func sampleOpportunity(amountIn, expectedGross string) domain.Opportunity {
	edge := domain.Edge{Pair: domain.TradingPair{AssetX: "USDC", AssetY: "APT"}, Exchange: "dexA"}
	return domain.Opportunity{
		ID:            "test-opp",
		Strategy:      "cycle",
		Path:          []domain.Edge{edge, edge},
		InputAmount:   d(amountIn),
		ExpectedGross: d(expectedGross),
	}
}

func TestEvaluate_ProfitableAfterGasSurvives(t *testing.T) {
	gas := &fakeGasOracle{gasUsed: d("1"), success: true, unitPrice: d("0.001"), lastUpdated: time.Now()}
	price := &fakePriceOracle{rate: d("1")} // 1 gas-token == 1 start-asset for simplicity
	ev := New(DefaultConfig("APT"), gas, price, zerolog.Nop())

	candidates := []domain.Opportunity{sampleOpportunity("100", "1")} // gross=1, gas cost=1*0.001*1=0.001
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if !out[0].Eval.NetProfit.GreaterThan(decimal.Zero) {
		t.Fatalf("expected positive net_profit, got %s", out[0].Eval.NetProfit)
	}
	if !out[0].Opportunity.GasEstimate.Equal(d("1")) {
		t.Fatalf("expected GasEstimate to be filled in on the returned Opportunity, got %s", out[0].Opportunity.GasEstimate)
	}
}

// Gas ruins a small gross profit: the candidate must be dropped.
func TestEvaluate_GasRuinsProfitIsDropped(t *testing.T) {
	gas := &fakeGasOracle{gasUsed: d("20"), success: true, unitPrice: d("0.001"), lastUpdated: time.Now()}
	price := &fakePriceOracle{rate: d("1")}
	ev := New(DefaultConfig("APT"), gas, price, zerolog.Nop())

	candidates := []domain.Opportunity{sampleOpportunity("100", "0.01")} // gross=0.01, gas cost=20*0.001*1=0.02
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != 0 {
		t.Fatalf("expected the candidate to be dropped once gas exceeds gross profit, got %d", len(out))
	}
}

func TestEvaluate_StaleGasPriceDropsEverything(t *testing.T) {
	gas := &fakeGasOracle{gasUsed: d("1"), success: true, unitPrice: d("0.001"), lastUpdated: time.Now().Add(-10 * time.Minute)}
	price := &fakePriceOracle{rate: d("1")}
	cfg := DefaultConfig("APT")
	cfg.GasStaleness = 5 * time.Minute
	ev := New(cfg, gas, price, zerolog.Nop())

	candidates := []domain.Opportunity{sampleOpportunity("100", "100")}
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != 0 {
		t.Fatalf("expected stale gas price to drop all candidates, got %d", len(out))
	}
}

func TestEvaluate_SimulationFailureDropsCandidateNonFatally(t *testing.T) {
	gas := &fakeGasOracle{simErr: errors.New("rpc unavailable"), unitPrice: d("0.001"), lastUpdated: time.Now()}
	price := &fakePriceOracle{rate: d("1")}
	ev := New(DefaultConfig("APT"), gas, price, zerolog.Nop())

	candidates := []domain.Opportunity{sampleOpportunity("100", "100")}
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != 0 {
		t.Fatalf("expected zero survivors when simulation errors, got %d", len(out))
	}
}

func TestEvaluate_MinNetProfitFilterBoundary(t *testing.T) {
	gas := &fakeGasOracle{gasUsed: d("1"), success: true, unitPrice: d("0.001"), lastUpdated: time.Now()}
	price := &fakePriceOracle{rate: d("1")}
	cfg := DefaultConfig("APT")
	cfg.MinNetProfit = d("0.5") // net_profit will be exactly 0.999 (1 - 0.001); above floor
	ev := New(cfg, gas, price, zerolog.Nop())

	candidates := []domain.Opportunity{sampleOpportunity("100", "1")}
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != 1 {
		t.Fatalf("expected candidate above min_net_profit to survive, got %d", len(out))
	}

	cfg.MinNetProfit = d("2") // above this candidate's net_profit
	ev2 := New(cfg, gas, price, zerolog.Nop())
	out2 := ev2.Evaluate(context.Background(), candidates)
	if len(out2) != 0 {
		t.Fatalf("expected candidate below min_net_profit to be dropped, got %d", len(out2))
	}
}

func TestEvaluate_BoundedFanOutStillEvaluatesEveryCandidate(t *testing.T) {
	gas := &fakeGasOracle{gasUsed: d("0"), success: true, unitPrice: d("0"), lastUpdated: time.Now()}
	price := &fakePriceOracle{rate: d("1")}
	cfg := DefaultConfig("APT")
	cfg.MaxConcurrent = 1
	cfg.SimulationTimeout = time.Second
	ev := New(cfg, gas, price, zerolog.Nop())

	candidates := make([]domain.Opportunity, 8)
	for i := range candidates {
		candidates[i] = sampleOpportunity("100", "1")
	}
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != len(candidates) {
		t.Fatalf("expected all %d candidates evaluated through the 1-wide semaphore, got %d", len(candidates), len(out))
	}
}

func TestEvaluate_RanksDescendingByNetProfit(t *testing.T) {
	gas := &fakeGasOracle{gasUsed: d("0"), success: true, unitPrice: d("0"), lastUpdated: time.Now()}
	price := &fakePriceOracle{rate: d("1")}
	ev := New(DefaultConfig("APT"), gas, price, zerolog.Nop())

	candidates := []domain.Opportunity{
		sampleOpportunity("100", "5"),
		sampleOpportunity("100", "10"),
		sampleOpportunity("100", "1"),
	}
	out := ev.Evaluate(context.Background(), candidates)
	if len(out) != 3 {
		t.Fatalf("expected all 3 to survive with zero gas cost, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Eval.NetProfit.GreaterThan(out[i-1].Eval.NetProfit) {
			t.Fatalf("expected descending net_profit order, got %v", out)
		}
	}
}
