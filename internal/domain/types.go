// Package domain holds the data model shared by every layer of the
// detector: assets, pools, edges, snapshots and the messages that
// flow between the ingestor, the graph, the cycle engine and the
// evaluator. Nothing in here does I/O or holds a lock.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quantity is the arbitrary-precision fixed-point type all pool math
// and profit accounting use. Floating point is reserved for
// log-space edge weights only.
type Quantity = decimal.Decimal

// Asset is an opaque, hashable, totally ordered vertex identity.
type Asset string

// ExchangeId identifies a venue. Vendor-neutral by construction: the
// detector never special-cases a value of this type.
type ExchangeId string

// TradingPair is an ordered pair; a pool upsert always produces one
// Edge oriented AssetX->AssetY and a mirrored Edge AssetY->AssetX.
type TradingPair struct {
	AssetX Asset
	AssetY Asset
}

func (p TradingPair) Reversed() TradingPair {
	return TradingPair{AssetX: p.AssetY, AssetY: p.AssetX}
}

func (p TradingPair) String() string {
	return string(p.AssetX) + "/" + string(p.AssetY)
}

// PoolKind tags the PoolModel variant. Dispatch is a switch on this
// field, never a type hierarchy.
type PoolKind uint8

const (
	KindConstantProduct PoolKind = iota
	KindConcentratedLiquidity
)

func (k PoolKind) String() string {
	switch k {
	case KindConstantProduct:
		return "cpmm"
	case KindConcentratedLiquidity:
		return "clmm"
	default:
		return "unknown"
	}
}

// Tick is one price-indexed liquidity segment of a CLMM pool. Ticks
// stay sorted ascending by Price for the lifetime of a PoolModel;
// nothing downstream re-sorts them.
type Tick struct {
	Price          decimal.Decimal
	LiquidityGross decimal.Decimal
}

// PoolModel is the tagged-variant pool representation. For
// KindConstantProduct only ReserveX/ReserveY/FeeBps are meaningful;
// for KindConcentratedLiquidity only Ticks/FeeBps are. The model is
// always oriented for a specific swap direction: input asset is
// implicitly the pair's AssetX.
type PoolModel struct {
	Kind PoolKind

	ReserveX decimal.Decimal
	ReserveY decimal.Decimal

	Ticks []Tick

	FeeBps uint32
}

// ActivityStats is maintained by the Block Scheduler as feedback from
// the Cycle Engine; the Cycle Engine itself is read-only against it.
type ActivityStats struct {
	OpportunityCount  uint64
	LastOpportunityAt time.Time
	TotalVolume       decimal.Decimal
	TVLEstimate       decimal.Decimal
}

// Edge is one directed swap capability. Identity/equality is
// (Pair, Exchange, Model); LastUpdated and Activity are excluded so
// idempotent upserts and dedup are well-defined.
type Edge struct {
	Pair        TradingPair
	Exchange    ExchangeId
	Model       PoolModel
	LastUpdated time.Time
	Activity    ActivityStats
}

// IdentityEqual reports edge-identity equality: same pair, same
// exchange, mathematically equal model. LastUpdated and Activity are
// deliberately excluded.
func (e Edge) IdentityEqual(o Edge) bool {
	if e.Pair != o.Pair || e.Exchange != o.Exchange {
		return false
	}
	return modelEqual(e.Model, o.Model)
}

func modelEqual(a, b PoolModel) bool {
	if a.Kind != b.Kind || a.FeeBps != b.FeeBps {
		return false
	}
	switch a.Kind {
	case KindConstantProduct:
		return a.ReserveX.Equal(b.ReserveX) && a.ReserveY.Equal(b.ReserveY)
	case KindConcentratedLiquidity:
		if len(a.Ticks) != len(b.Ticks) {
			return false
		}
		for i := range a.Ticks {
			if !a.Ticks[i].Price.Equal(b.Ticks[i].Price) || !a.Ticks[i].LiquidityGross.Equal(b.Ticks[i].LiquidityGross) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Hop is one leg of a path: which asset/exchange edge was taken.
type Hop struct {
	Asset    Asset
	Exchange ExchangeId
}

// PathQuote is a candidate cycle re-evaluated in forward amount
// space by the Cycle Engine.
type PathQuote struct {
	Path             []Hop
	Edges            []Edge
	AmountIn         decimal.Decimal
	AmountOut        decimal.Decimal
	ProfitPct        decimal.Decimal
	CycleSlippagePct decimal.Decimal
}

// CanonicalKey returns a rotation-invariant identity for dedup and
// ranking: the lexicographically smallest rotation of the
// (asset,exchange) hop sequence.
func (q PathQuote) CanonicalKey() string {
	return CanonicalCycleKey(q.Path)
}

// CanonicalCycleKey computes the rotation-invariant key for an
// arbitrary hop sequence representing a cycle (path[0] == path[len-1]
// is not required in the input; the caller passes the deduplicated
// vertex sequence without the closing repeat).
func CanonicalCycleKey(hops []Hop) string {
	n := len(hops)
	if n == 0 {
		return ""
	}
	best := rotationString(hops, 0)
	for start := 1; start < n; start++ {
		if cand := rotationString(hops, start); cand < best {
			best = cand
		}
	}
	return best
}

func rotationString(hops []Hop, start int) string {
	n := len(hops)
	out := make([]byte, 0, n*24)
	for i := 0; i < n; i++ {
		h := hops[(start+i)%n]
		out = append(out, h.Asset...)
		out = append(out, '@')
		out = append(out, h.Exchange...)
		out = append(out, '|')
	}
	return string(out)
}

// CycleEval is the outcome of gas/net-profit evaluation for one
// PathQuote.
type CycleEval struct {
	GrossProfit  decimal.Decimal
	GasEstimate  decimal.Decimal
	GasUnitPrice decimal.Decimal
	NetProfit    decimal.Decimal
}

// Opportunity is the record emitted downstream to the Risk Manager.
type Opportunity struct {
	ID            string
	Strategy      string
	Path          []Edge
	InputAmount   decimal.Decimal
	ExpectedGross decimal.Decimal
	ExpectedNet   decimal.Decimal
	GasEstimate   decimal.Decimal
	BlockNumber   uint64
	DetectedAt    time.Time
}
