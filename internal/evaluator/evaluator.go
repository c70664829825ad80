// Package evaluator is the Gas & Net-Profit Evaluator: for every
// surviving Opportunity (already carrying a Strategy's gross-profit
// path) it fires a bounded-parallel GasOracle.Simulate call, converts
// the gas cost into the cycle's start asset via a PriceOracle, and
// filters on min_net_profit.
package evaluator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/capability"
	"github.com/aptos-mm/arbdetect/internal/detectorerr"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/infra/metrics"
)

// Config is the evaluator's option table, fed from
// detector.min_net_profit, detector.gas_token and sim.*.
type Config struct {
	MinNetProfit      decimal.Decimal
	SimulationTimeout time.Duration // sim.timeout_ms; bounds the whole fan-out, default 50ms
	MaxConcurrent     int           // sim.max_concurrent simulation fan-out cap
	GasStaleness      time.Duration // default 5min; price older than this is untrusted
	GasToken          domain.Asset
}

func DefaultConfig(gasToken domain.Asset) Config {
	return Config{
		MinNetProfit:      decimal.Zero,
		SimulationTimeout: 50 * time.Millisecond,
		MaxConcurrent:     16,
		GasStaleness:      5 * time.Minute,
		GasToken:          gasToken,
	}
}

// Evaluated pairs a surviving Opportunity (with GasEstimate/ExpectedNet
// now filled in) with its CycleEval breakdown.
type Evaluated struct {
	Opportunity domain.Opportunity
	Eval        domain.CycleEval
}

type Evaluator struct {
	cfg    Config
	gas    capability.GasOracle
	price  capability.PriceOracle
	logger zerolog.Logger
}

func New(cfg Config, gas capability.GasOracle, price capability.PriceOracle, logger zerolog.Logger) *Evaluator {
	if cfg.SimulationTimeout <= 0 {
		cfg.SimulationTimeout = 50 * time.Millisecond
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.GasStaleness <= 0 {
		cfg.GasStaleness = 5 * time.Minute
	}
	return &Evaluator{cfg: cfg, gas: gas, price: price, logger: logger}
}

// Evaluate fires the simulations for all candidates of one detection
// cycle in parallel, capped at MaxConcurrent in flight with the whole
// fan-out bounded by one SimulationTimeout deadline, then computes
// net_profit, filters on min_net_profit, and returns survivors
// sorted descending by net_profit.
func (ev *Evaluator) Evaluate(ctx context.Context, candidates []domain.Opportunity) []Evaluated {
	if len(candidates) == 0 {
		return nil
	}

	gasPrice, gasUpdated, err := ev.gas.GasUnitPrice(ctx)
	if err != nil {
		ev.logger.Warn().Err(err).Msg("gas unit price unavailable; dropping all candidates this cycle")
		metrics.DroppedByGasTotal.Add(float64(len(candidates)))
		return nil
	}
	if time.Since(gasUpdated) > ev.cfg.GasStaleness {
		ev.logger.Warn().Time("gas_updated", gasUpdated).Msg("gas unit price stale; refusing results")
		metrics.DroppedByGasTotal.Add(float64(len(candidates)))
		return nil
	}

	simCtx, cancel := context.WithTimeout(ctx, ev.cfg.SimulationTimeout)
	defer cancel()

	sem := make(chan struct{}, ev.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []Evaluated

	for _, opp := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(opp domain.Opportunity) {
			defer wg.Done()
			defer func() { <-sem }()
			evald, err := ev.evaluateOne(simCtx, opp, gasPrice)
			if err != nil {
				if detectorerr.Is(err, detectorerr.SimulationTimeout) {
					metrics.SimTimeoutTotal.Inc()
				} else {
					metrics.DroppedByGasTotal.Inc()
				}
				if ev.logger.GetLevel() <= zerolog.DebugLevel {
					ev.logger.Debug().Err(err).Msg("candidate dropped by evaluator")
				}
				return
			}
			mu.Lock()
			out = append(out, evald)
			mu.Unlock()
		}(opp)
	}
	wg.Wait()

	filtered := out[:0]
	for _, e := range out {
		if e.Eval.NetProfit.GreaterThanOrEqual(ev.cfg.MinNetProfit) {
			filtered = append(filtered, e)
		}
	}
	sortByNetProfitDesc(filtered)
	return filtered
}

func (ev *Evaluator) evaluateOne(ctx context.Context, opp domain.Opportunity, gasPrice decimal.Decimal) (Evaluated, error) {
	req := capability.SimulationRequest{Hops: make([]capability.HopDescriptor, len(opp.Path))}
	for i, e := range opp.Path {
		req.Hops[i] = capability.HopDescriptor{Exchange: e.Exchange, PoolPair: e.Pair, AmountIn: opp.InputAmount}
	}

	res, err := ev.gas.Simulate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Evaluated{}, detectorerr.New(detectorerr.SimulationTimeout, "evaluator.Evaluate", "simulation exceeded budget")
		}
		return Evaluated{}, detectorerr.Wrap(detectorerr.SimulationFailed, "evaluator.Evaluate", "gas simulation failed", err)
	}
	if ctx.Err() != nil {
		return Evaluated{}, detectorerr.New(detectorerr.SimulationTimeout, "evaluator.Evaluate", "simulation exceeded budget")
	}
	if !res.Success {
		return Evaluated{}, detectorerr.New(detectorerr.SimulationFailed, "evaluator.Evaluate", "simulation reported failure")
	}

	startAsset := opportunityStartAsset(opp)
	pxGasToStart, err := ev.price.Price(ctx, ev.cfg.GasToken, startAsset)
	if err != nil {
		return Evaluated{}, detectorerr.Wrap(detectorerr.SimulationFailed, "evaluator.Evaluate", "price oracle lookup failed", err)
	}

	gasCost := res.GasUsed.Mul(gasPrice).Mul(pxGasToStart)
	netProfit := opp.ExpectedGross.Sub(gasCost)

	opp.GasEstimate = res.GasUsed
	opp.ExpectedNet = netProfit

	return Evaluated{
		Opportunity: opp,
		Eval: domain.CycleEval{
			GrossProfit:  opp.ExpectedGross,
			GasEstimate:  res.GasUsed,
			GasUnitPrice: gasPrice,
			NetProfit:    netProfit,
		},
	}, nil
}

func opportunityStartAsset(opp domain.Opportunity) domain.Asset {
	if len(opp.Path) == 0 {
		return ""
	}
	return opp.Path[0].Pair.AssetX
}

func sortByNetProfitDesc(evals []Evaluated) {
	sort.Slice(evals, func(i, j int) bool { return evals[i].Eval.NetProfit.GreaterThan(evals[j].Eval.NetProfit) })
}
