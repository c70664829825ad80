package cycle

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/graph"
)

// SizingConfig is the Cycle Engine's sizing policy (fed from
// detector.size_ladder and detector.size_fraction): a baseline
// ladder of trial sizes, clamped above by a fraction of the tightest
// outgoing edge's liquidity, optionally further clamped by an absolute
// ceiling (see DESIGN.md open question #2).
type SizingConfig struct {
	Ladder       []decimal.Decimal
	SizeFraction decimal.Decimal
	AbsoluteMax  decimal.Decimal // zero disables the clamp
	Epsilon      decimal.Decimal
}

// DefaultSizingConfig mirrors the baseline ladder [ε, 100, 500, 1000]
// clamped by 10% of liquidity.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		Ladder: []decimal.Decimal{
			decimal.NewFromFloat(0.0001),
			decimal.NewFromInt(100),
			decimal.NewFromInt(500),
			decimal.NewFromInt(1000),
		},
		SizeFraction: decimal.NewFromFloat(0.1),
		Epsilon:      decimal.NewFromFloat(0.0001),
	}
}

// Sizes returns the deduplicated, liquidity-clamped candidate sizes
// for startAsset. Deterministic: same snapshot and config always
// produce the same ordered list.
func Sizes(snap graph.Snapshot, startAsset domain.Asset, cfg SizingConfig) []decimal.Decimal {
	edges := snap.Neighbors(startAsset)
	if len(edges) == 0 {
		return nil
	}
	sMax := minLiquidity(edges).Mul(cfg.SizeFraction)
	if !cfg.AbsoluteMax.IsZero() && sMax.GreaterThan(cfg.AbsoluteMax) {
		sMax = cfg.AbsoluteMax
	}
	if sMax.Sign() <= 0 {
		return nil
	}

	seen := make(map[string]bool, len(cfg.Ladder))
	out := make([]decimal.Decimal, 0, len(cfg.Ladder))
	for _, s := range cfg.Ladder {
		capped := s
		if capped.GreaterThan(sMax) {
			capped = sMax
		}
		if capped.LessThan(cfg.Epsilon) {
			continue
		}
		key := capped.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, capped)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

func minLiquidity(edges []domain.Edge) decimal.Decimal {
	min := decimal.Zero
	first := true
	for _, e := range edges {
		l := edgeLiquidity(e)
		if first || l.LessThan(min) {
			min = l
			first = false
		}
	}
	return min
}

func edgeLiquidity(e domain.Edge) decimal.Decimal {
	switch e.Model.Kind {
	case domain.KindConstantProduct:
		return e.Model.ReserveX
	case domain.KindConcentratedLiquidity:
		total := decimal.Zero
		for _, t := range e.Model.Ticks {
			total = total.Add(t.LiquidityGross)
		}
		return total
	default:
		return decimal.Zero
	}
}
