package cycle

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/quote"
)

var errSlippage = errors.New("cycle: hop slippage exceeds cap")

// Params bounds which reconstructed cycles survive into a PathQuote.
type Params struct {
	MinProfitPct      decimal.Decimal
	SlippageCapPct    decimal.Decimal // per-hop cap; exceeding it rejects the candidate
	MaxCycleLen       int
	MaxConcurrentRuns int
}

// forwardEvaluate re-quotes a reconstructed cycle in forward amount
// space at size, hop by hop, rather than trusting the log-space
// weights that found it (those are a linear approximation; the real
// AMM curves are not). Any hop whose realized rate slips past
// params.SlippageCapPct against that edge's marginal rate rejects the
// whole candidate.
func forwardEvaluate(edges []domain.Edge, size decimal.Decimal, params Params) (domain.PathQuote, error) {
	if len(edges) == 0 || len(edges) > params.MaxCycleLen {
		return domain.PathQuote{}, errRejected
	}

	amount := size
	marginalProduct := decimal.NewFromInt(1)
	for _, e := range edges {
		out, err := quote.Quote(e.Pair, e.Model, e.Pair.AssetX, amount)
		if err != nil {
			return domain.PathQuote{}, err
		}
		realizedRate := out.Div(amount)

		marginal, err := quote.MarginalPrice(e.Model)
		if err == nil && marginal.Sign() > 0 {
			marginalProduct = marginalProduct.Mul(marginal)
			slip := decimal.NewFromInt(1).Sub(realizedRate.Div(marginal))
			if !params.SlippageCapPct.IsZero() && slip.GreaterThan(params.SlippageCapPct) {
				return domain.PathQuote{}, errSlippage
			}
		}
		amount = out
	}

	grossProfit := amount.Sub(size)
	profitPct := grossProfit.Div(size)
	if profitPct.LessThan(params.MinProfitPct) {
		return domain.PathQuote{}, errRejected
	}

	cycleSlippage := decimal.Zero
	if marginalProduct.Sign() > 0 {
		idealOut := size.Mul(marginalProduct)
		if idealOut.Sign() > 0 {
			cycleSlippage = decimal.NewFromInt(1).Sub(amount.Div(idealOut))
		}
	}

	path := make([]domain.Hop, len(edges))
	for i, e := range edges {
		path[i] = domain.Hop{Asset: e.Pair.AssetX, Exchange: e.Exchange}
	}

	return domain.PathQuote{
		Path:             path,
		Edges:            append([]domain.Edge(nil), edges...),
		AmountIn:         size,
		AmountOut:        amount,
		ProfitPct:        profitPct,
		CycleSlippagePct: cycleSlippage,
	}, nil
}
