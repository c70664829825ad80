// Package capability holds the external seams the evaluator depends
// on but never constructs: GasOracle and PriceOracle. Small,
// separately satisfiable interfaces rather than one fat collaborator.
package capability

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
)

// HopDescriptor is one leg of an opaque simulation payload. Gas
// payload encoding is chain-specific; this stays opaque beyond
// exchange/pool id/input amount.
type HopDescriptor struct {
	Exchange domain.ExchangeId
	PoolPair domain.TradingPair
	AmountIn decimal.Decimal
}

// SimulationRequest describes a candidate's multi-hop swap for gas
// estimation. Opaque beyond its hop list: a GasOracle implementation
// is free to encode it however its chain's simulator needs.
type SimulationRequest struct {
	Hops []HopDescriptor
}

// SimulationResult is what GasOracle.Simulate returns.
type SimulationResult struct {
	GasUsed decimal.Decimal
	Success bool
}

// GasOracle simulates a candidate swap bundle and reports the chain's
// current per-unit gas price. Both calls are asynchronous so the
// evaluator can bound them with a context timeout.
type GasOracle interface {
	Simulate(ctx context.Context, req SimulationRequest) (SimulationResult, error)
	GasUnitPrice(ctx context.Context) (price decimal.Decimal, lastUpdated time.Time, err error)
}

// PriceOracle converts between assets, used to express a gas cost
// (denominated in the chain's gas token) in the cycle's start asset.
type PriceOracle interface {
	Price(ctx context.Context, from, to domain.Asset) (decimal.Decimal, error)
}
