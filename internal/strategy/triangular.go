package strategy

import (
	"time"

	"github.com/aptos-mm/arbdetect/internal/cycle"
	"github.com/aptos-mm/arbdetect/internal/domain"
)

// name of the built-in strategy wrapping the Cycle Engine directly:
// any cycle length up to Params.MaxCycleLen, not just triangles.
const CycleName = "cycle"

func init() {
	Register(CycleName, buildCycleStrategy)
}

type cycleStrategy struct {
	engine *cycle.Engine
}

func buildCycleStrategy(cfg Config) (Strategy, error) {
	eng := cycle.New(cfg.Sizing, cfg.Params, cfg.Policy, cfg.Logger)
	return &cycleStrategy{engine: eng}, nil
}

func (s *cycleStrategy) Name() string         { return CycleName }
func (s *cycleStrategy) RequiredView() string { return "full_graph" }

func (s *cycleStrategy) Detect(view View) ([]domain.Opportunity, error) {
	candidates := s.engine.Detect(view.Snapshot)
	now := time.Now()
	out := make([]domain.Opportunity, 0, len(candidates))
	for _, pq := range candidates {
		out = append(out, pathQuoteToOpportunity(s.Name(), pq, view.BlockNumber, now))
	}
	return out, nil
}
