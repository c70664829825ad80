// Package strategy is the Cycle Engine's plug-in surface: a small
// string-keyed registry of builders, each producing a Strategy
// capability set, instead of an inheritance hierarchy (design note).
package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/cycle"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/graph"
)

// View is the read-only context a Strategy runs against for one
// detection pass.
type View struct {
	Snapshot    graph.Snapshot
	BlockNumber uint64
}

// Strategy is a pluggable detector: a name, the graph view it needs,
// and a detect function. GasEstimate/ExpectedNet on the
// returned Opportunitys are left zero here; the Gas & Net-Profit
// Evaluator fills them in as a later pipeline stage; a Strategy never
// talks to a GasOracle or PriceOracle itself.
type Strategy interface {
	Name() string
	RequiredView() string
	Detect(view View) ([]domain.Opportunity, error)
}

// Builder constructs a Strategy from config. Registered builders are
// looked up by name at wiring time; Register/Build never walk a
// type hierarchy.
type Builder func(cfg Config) (Strategy, error)

// Config is the union of fields any registered strategy may need.
// Individual strategies read only what they use.
type Config struct {
	Sizing cycle.SizingConfig
	Params cycle.Params
	Policy *graph.PairPolicy
	Logger zerolog.Logger
}

var registry = map[string]Builder{}

// Register installs a builder under name, overwriting any prior
// registration. Call from an init() in the package that defines the
// strategy.
func Register(name string, b Builder) {
	registry[name] = b
}

// Build looks up name and constructs a Strategy from cfg.
func Build(name string, cfg Config) (Strategy, error) {
	b, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("strategy: no builder registered for %q", name)
	}
	return b(cfg)
}

// Registered lists every currently registered strategy name.
func Registered() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func pathQuoteToOpportunity(strategyName string, pq domain.PathQuote, blockNumber uint64, detectedAt time.Time) domain.Opportunity {
	edges := pq.Edges
	return domain.Opportunity{
		ID:            fmt.Sprintf("%s:%d:%s", strategyName, blockNumber, pq.CanonicalKey()),
		Strategy:      strategyName,
		Path:          append([]domain.Edge(nil), edges...),
		InputAmount:   pq.AmountIn,
		ExpectedGross: pq.AmountOut.Sub(pq.AmountIn),
		ExpectedNet:   decimal.Zero, // filled in by the evaluator
		GasEstimate:   decimal.Zero,
		BlockNumber:   blockNumber,
		DetectedAt:    detectedAt,
	}
}
