// Package quote is the Quote Kernel: pure pool math over the
// PoolModel tagged variant. No function in this package touches the
// network, a clock, or a lock.
package quote

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/detectorerr"
	"github.com/aptos-mm/arbdetect/internal/domain"
)

var (
	ten000 = decimal.NewFromInt(10_000)
	zero   = decimal.Zero
)

// ValidateModel rejects a PoolModel that is internally inconsistent:
// zero/negative CPMM reserves, or a CLMM with empty or unsorted
// ticks. Graph upserts call this before installing an edge.
func ValidateModel(m domain.PoolModel) error {
	if m.FeeBps >= 10_000 {
		return detectorerr.New(detectorerr.GraphInvalidModel, "quote.ValidateModel", "fee_bps out of range")
	}
	switch m.Kind {
	case domain.KindConstantProduct:
		if m.ReserveX.Sign() <= 0 || m.ReserveY.Sign() <= 0 {
			return detectorerr.New(detectorerr.GraphInvalidModel, "quote.ValidateModel", "cpmm reserves must be positive")
		}
		return nil
	case domain.KindConcentratedLiquidity:
		if len(m.Ticks) == 0 {
			return detectorerr.New(detectorerr.GraphInvalidModel, "quote.ValidateModel", "clmm ticks empty")
		}
		for i, t := range m.Ticks {
			if t.LiquidityGross.Sign() <= 0 {
				return detectorerr.New(detectorerr.GraphInvalidModel, "quote.ValidateModel", "clmm tick liquidity must be positive")
			}
			if i > 0 && !m.Ticks[i-1].Price.LessThan(t.Price) {
				return detectorerr.New(detectorerr.GraphInvalidModel, "quote.ValidateModel", "clmm ticks must be strictly increasing by price")
			}
		}
		return nil
	default:
		return detectorerr.New(detectorerr.GraphInvalidModel, "quote.ValidateModel", "unknown pool kind")
	}
}

// Quote computes the output amount for swapping amountIn of assetIn
// through model, oriented for pair. assetIn must equal pair.AssetX:
// the model is only ever evaluated in its own forward orientation;
// the reverse direction is a distinct Edge with an inverted model.
func Quote(pair domain.TradingPair, m domain.PoolModel, assetIn domain.Asset, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if assetIn != pair.AssetX {
		return zero, detectorerr.New(detectorerr.WrongDirection, "quote.Quote", "asset_in does not match pair.asset_x")
	}
	if amountIn.Sign() <= 0 {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.Quote", "amount_in must be positive")
	}
	switch m.Kind {
	case domain.KindConstantProduct:
		return quoteCPMM(m, amountIn)
	case domain.KindConcentratedLiquidity:
		return quoteCLMM(m, amountIn)
	default:
		return zero, detectorerr.New(detectorerr.GraphInvalidModel, "quote.Quote", "unknown pool kind")
	}
}

// MarginalPrice returns the instantaneous output-per-input rate at
// zero size, used to weight edges before any trade-size ladder is
// evaluated.
func MarginalPrice(m domain.PoolModel) (decimal.Decimal, error) {
	switch m.Kind {
	case domain.KindConstantProduct:
		if m.ReserveX.Sign() <= 0 {
			return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.MarginalPrice", "reserve_x is zero")
		}
		feeFactor := feeFactor(m.FeeBps)
		return m.ReserveY.Div(m.ReserveX).Mul(feeFactor), nil
	case domain.KindConcentratedLiquidity:
		if len(m.Ticks) == 0 {
			return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.MarginalPrice", "no ticks")
		}
		// A zero-size swap fills entirely at the best available rate,
		// which is the highest-priced tick (the last of the ascending
		// array). Price is already output-per-input; no inversion.
		feeFactor := feeFactor(m.FeeBps)
		return m.Ticks[len(m.Ticks)-1].Price.Mul(feeFactor), nil
	default:
		return zero, detectorerr.New(detectorerr.GraphInvalidModel, "quote.MarginalPrice", "unknown pool kind")
	}
}

func feeFactor(feeBps uint32) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(decimal.NewFromInt32(int32(feeBps)).Div(ten000))
}

// quoteCPMM applies the fee to the input, then the constant-product
// formula, rounding the output toward zero.
func quoteCPMM(m domain.PoolModel, amountIn decimal.Decimal) (decimal.Decimal, error) {
	dxPrime := amountIn.Mul(feeFactor(m.FeeBps))
	if dxPrime.Sign() <= 0 {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.quoteCPMM", "fee-adjusted input is zero")
	}
	denom := m.ReserveX.Add(dxPrime)
	if denom.Sign() <= 0 {
		return zero, detectorerr.New(detectorerr.Overflow, "quote.quoteCPMM", "reserve_x + dx' is non-positive")
	}
	num := m.ReserveY.Mul(dxPrime)
	dy, _ := num.QuoRem(denom, int32(decimal.DivisionPrecision))
	if dy.Sign() <= 0 {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.quoteCPMM", "output rounds to zero")
	}
	if dy.GreaterThanOrEqual(m.ReserveY) {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.quoteCPMM", "output would deplete reserve_y")
	}
	return dy, nil
}

// quoteCLMM consumes liquidity segments best-price-first: the
// highest-priced tick yields the most output per input, so a growing
// swap realizes diminishing returns as it spills into worse ticks.
// The ascending array is walked back-to-front; ticks are never
// re-sorted here, the graph guarantees they arrive pre-sorted.
func quoteCLMM(m domain.PoolModel, amountIn decimal.Decimal) (decimal.Decimal, error) {
	remaining := amountIn.Mul(feeFactor(m.FeeBps))
	if remaining.Sign() <= 0 {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.quoteCLMM", "fee-adjusted input is zero")
	}
	total := zero
	for i := len(m.Ticks) - 1; i >= 0; i-- {
		if remaining.Sign() <= 0 {
			break
		}
		t := m.Ticks[i]
		if t.Price.Sign() <= 0 {
			return zero, detectorerr.New(detectorerr.GraphInvalidModel, "quote.quoteCLMM", "tick price must be positive")
		}
		// liquidity_gross is the amount of the input asset available
		// at this tick's price.
		use := remaining
		if use.GreaterThan(t.LiquidityGross) {
			use = t.LiquidityGross
		}
		total = total.Add(use.Mul(t.Price))
		remaining = remaining.Sub(use)
	}
	if remaining.Sign() > 0 {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.quoteCLMM", "ticks exhausted before input consumed")
	}
	if total.Sign() <= 0 {
		return zero, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.quoteCLMM", "output rounds to zero")
	}
	return total, nil
}

// EdgeWeight is the log-space weight −ln(rate) the Cycle Engine
// relaxes over. rate is already the size-dependent realized rate,
// either MarginalPrice for the zero-size pass or quote(...)/S for a
// ladder size, and both of those already embed the fee discount
// once (MarginalPrice multiplies by feeFactor; quoteCPMM/quoteCLMM
// apply it to the input before dividing). Re-applying feeFactor here
// would discount the fee twice.
func EdgeWeight(rate decimal.Decimal) (float64, error) {
	if rate.Sign() <= 0 {
		return 0, detectorerr.New(detectorerr.InsufficientLiquidity, "quote.EdgeWeight", "non-positive rate")
	}
	f, _ := rate.Float64()
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, detectorerr.New(detectorerr.Overflow, "quote.EdgeWeight", "rate out of float64 range")
	}
	return -math.Log(f), nil
}

// InvertCPMM produces the reverse-direction pool model for a CPMM
// pool: swap the reserves, keep the fee.
func InvertCPMM(m domain.PoolModel) domain.PoolModel {
	return domain.PoolModel{
		Kind:     domain.KindConstantProduct,
		ReserveX: m.ReserveY,
		ReserveY: m.ReserveX,
		FeeBps:   m.FeeBps,
	}
}

// InvertCLMM produces the reverse-direction pool model for a CLMM
// pool: invert each tick price and reverse the order so the result
// stays sorted ascending; liquidity_gross and fee_bps are carried
// straight across (see DESIGN.md open question #1).
func InvertCLMM(m domain.PoolModel) domain.PoolModel {
	n := len(m.Ticks)
	ticks := make([]domain.Tick, n)
	one := decimal.NewFromInt(1)
	for i, t := range m.Ticks {
		ticks[n-1-i] = domain.Tick{
			Price:          one.Div(t.Price),
			LiquidityGross: t.LiquidityGross,
		}
	}
	return domain.PoolModel{
		Kind:   domain.KindConcentratedLiquidity,
		Ticks:  ticks,
		FeeBps: m.FeeBps,
	}
}
