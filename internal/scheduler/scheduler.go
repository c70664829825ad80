// Package scheduler implements the block scheduler: the single task
// that owns the price graph's write capability, applies per-block
// MarketUpdates, and triggers the cycle engine + evaluator at
// BlockEnd. Updates are applied to the graph as they arrive; BlockEnd
// snapshots whatever the block delivered, so detection for block n
// always sees all of block n's updates.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/detectorerr"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/evaluator"
	"github.com/aptos-mm/arbdetect/internal/graph"
	"github.com/aptos-mm/arbdetect/internal/infra/metrics"
	"github.com/aptos-mm/arbdetect/internal/strategy"
)

type state int

const (
	stateWaiting state = iota
	stateInProgress
)

// Config is the detector.* / graph.* / dedup.* option table.
type Config struct {
	IntervalBudget time.Duration // detector.interval_ms, soft cap per block

	DedupWindow               time.Duration   // dedup.window_ms
	DedupProfitImprovementPct decimal.Decimal // re-emit if new net_profit is >= this many % higher

	EntryConfirmRuns int // detector.entry_confirm_runs; consecutive detections before first emission of a new key

	PruneIntervalBlocks uint64
	RetentionPolicy     graph.RetentionPolicy

	MaxGraphEdges            int             // graph.max_graph_edges
	ForcedSweepTVLMultiplier decimal.Decimal // tightens RetentionPolicy.MinTVL on a forced sweep

	OutputBufferSize int
}

func DefaultConfig() Config {
	return Config{
		IntervalBudget:            400 * time.Millisecond,
		DedupWindow:               time.Second,
		DedupProfitImprovementPct: decimal.NewFromInt(10),
		EntryConfirmRuns:          1,
		PruneIntervalBlocks:       20,
		MaxGraphEdges:             10000,
		ForcedSweepTVLMultiplier:  decimal.NewFromInt(2),
		OutputBufferSize:          1024,
	}
}

type dedupEntry struct {
	lastEmittedAt time.Time
	lastNetProfit decimal.Decimal
}

// Scheduler is the single writer of the Price Graph. It is driven by
// Run, which must be called from exactly one goroutine.
type Scheduler struct {
	cfg        Config
	g          *graph.Graph
	strategies []strategy.Strategy
	evaluator  *evaluator.Evaluator
	logger     zerolog.Logger

	outCh chan domain.Opportunity

	state            state
	currentBlock     uint64
	updatesThisBlock int
	blocksSincePrune uint64

	dedupState map[string]dedupEntry
	consec     map[string]int
}

func New(cfg Config, g *graph.Graph, strategies []strategy.Strategy, eval *evaluator.Evaluator, logger zerolog.Logger) *Scheduler {
	if cfg.OutputBufferSize <= 0 {
		cfg.OutputBufferSize = 1024
	}
	return &Scheduler{
		cfg:        cfg,
		g:          g,
		strategies: strategies,
		evaluator:  eval,
		logger:     logger,
		outCh:      make(chan domain.Opportunity, cfg.OutputBufferSize),
		state:      stateWaiting,
		dedupState: make(map[string]dedupEntry),
		consec:     make(map[string]int),
	}
}

// Opportunities is the bounded downstream channel consumers read from.
func (s *Scheduler) Opportunities() <-chan domain.Opportunity {
	return s.outCh
}

// Run consumes in until it closes or ctx is cancelled. Only
// ChannelClosed is surfaced as a return value; every other error
// kind is logged, counted and recovered locally.
func (s *Scheduler) Run(ctx context.Context, in <-chan domain.DetectorMessage) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				s.logger.Info().Msg("ingestor channel closed; draining and exiting")
				return detectorerr.New(detectorerr.ChannelClosed, "scheduler.Run", "ingestor channel closed")
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, msg domain.DetectorMessage) {
	switch m := msg.(type) {
	case domain.BlockStart:
		s.onBlockStart(m)
	case domain.MarketUpdate:
		s.onMarketUpdate(m)
	case domain.BlockEnd:
		s.onBlockEnd(ctx, m)
	default:
		s.logger.Warn().Msg("unknown detector message type; ignoring")
	}
}

func (s *Scheduler) onBlockStart(m domain.BlockStart) {
	if s.state == stateInProgress {
		s.logger.Warn().Uint64("discarded_block", s.currentBlock).Uint64("new_block", m.BlockNumber).
			Msg("BlockStart received while InProgress; restarting block (updates already applied stay in the graph)")
	}
	s.currentBlock = m.BlockNumber
	s.updatesThisBlock = 0
	s.state = stateInProgress
}

func (s *Scheduler) onMarketUpdate(m domain.MarketUpdate) {
	if s.state == stateWaiting {
		s.logger.Warn().Str("pool_id", m.PoolID).Msg("MarketUpdate received while Waiting; ignoring")
		return
	}
	err := s.g.UpsertPool(graph.PoolInput{
		Pair:      m.Pair,
		Exchange:  m.Exchange,
		Model:     m.Model,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("pool_id", m.PoolID).Msg("pool upsert rejected")
		return
	}
	s.updatesThisBlock++
	metrics.IngestedUpdatesTotal.Inc()
}

func (s *Scheduler) onBlockEnd(ctx context.Context, m domain.BlockEnd) {
	if s.state == stateWaiting {
		s.logger.Warn().Uint64("block", m.BlockNumber).Msg("BlockEnd received while Waiting; ignoring")
		return
	}

	started := time.Now()
	if err := s.g.Verify(); err != nil {
		// GraphCorruption is fatal to this block's detection only: drop
		// the graph state and let the ingestor's stream repopulate it.
		s.logger.Error().Err(err).Uint64("block", m.BlockNumber).Msg("graph corruption detected; dropping graph state")
		metrics.GraphCorruptionTotal.Inc()
		s.g.Reset()
		s.state = stateWaiting
		return
	}
	snap := s.g.Snapshot()
	metrics.EdgesActive.Set(float64(snap.EdgeCount()))

	opportunities := s.runStrategies(snap, m.BlockNumber)
	evaluated := s.evaluator.Evaluate(ctx, opportunities)

	seenThisBlock := make(map[string]bool, len(evaluated))
	now := time.Now()
	for _, e := range evaluated {
		key := canonicalKey(e.Opportunity)
		seenThisBlock[key] = true
		if !s.admitEntry(key) {
			metrics.DedupSuppressedTotal.Inc()
			continue
		}
		if !s.admitWindow(key, e.Eval.NetProfit, now) {
			metrics.DedupSuppressedTotal.Inc()
			continue
		}
		s.emit(e.Opportunity, now)
	}
	s.decayConsec(seenThisBlock)

	metrics.RunsTotal.Inc()
	metrics.DetectionMs.Observe(float64(time.Since(started).Milliseconds()))
	if s.cfg.IntervalBudget > 0 && time.Since(started) > s.cfg.IntervalBudget {
		s.logger.Warn().Dur("elapsed", time.Since(started)).Uint64("block", m.BlockNumber).
			Msg("detection cycle exceeded interval budget")
	}

	s.blocksSincePrune++
	if s.cfg.PruneIntervalBlocks > 0 && s.blocksSincePrune >= s.cfg.PruneIntervalBlocks {
		removed := s.g.PruneStale(s.cfg.RetentionPolicy, now)
		metrics.PruneRemovedTotal.Add(float64(removed))
		s.blocksSincePrune = 0
	}
	s.enforceEdgeCap(now)

	s.state = stateWaiting
}

func (s *Scheduler) runStrategies(snap graph.Snapshot, blockNumber uint64) []domain.Opportunity {
	view := strategy.View{Snapshot: snap, BlockNumber: blockNumber}
	var out []domain.Opportunity
	for _, strat := range s.strategies {
		found, err := strat.Detect(view)
		if err != nil {
			s.logger.Warn().Err(err).Str("strategy", strat.Name()).Msg("strategy run failed; other strategies continue")
			continue
		}
		out = append(out, found...)
	}
	return out
}

// admitEntry enforces the entry_confirm_runs gate: a brand-new cycle
// key must be detected this many consecutive blocks before its first
// emission. Keys that have already cleared the gate pass through.
func (s *Scheduler) admitEntry(key string) bool {
	if s.consec[key] < 0 {
		// already past the gate, marked by -1 sentinel
		return true
	}
	s.consec[key]++
	required := s.cfg.EntryConfirmRuns
	if required < 1 {
		required = 1
	}
	if s.consec[key] < required {
		return false
	}
	s.consec[key] = -1 // sentinel: gate cleared, never re-gate this key
	return true
}

func (s *Scheduler) decayConsec(seenThisBlock map[string]bool) {
	for key, v := range s.consec {
		if v >= 0 && !seenThisBlock[key] {
			delete(s.consec, key)
		}
	}
}

// admitWindow enforces the sliding dedup window: a key re-detected
// inside the window is suppressed unless net_profit improved by at
// least DedupProfitImprovementPct.
func (s *Scheduler) admitWindow(key string, netProfit decimal.Decimal, now time.Time) bool {
	prev, ok := s.dedupState[key]
	if !ok || now.Sub(prev.lastEmittedAt) >= s.cfg.DedupWindow {
		return true
	}
	if prev.lastNetProfit.IsZero() {
		return netProfit.GreaterThan(prev.lastNetProfit)
	}
	improvementPct := netProfit.Sub(prev.lastNetProfit).Div(prev.lastNetProfit.Abs()).Mul(decimal.NewFromInt(100))
	return improvementPct.GreaterThanOrEqual(s.cfg.DedupProfitImprovementPct)
}

func (s *Scheduler) emit(opp domain.Opportunity, now time.Time) {
	key := canonicalKey(opp)
	s.dedupState[key] = dedupEntry{lastEmittedAt: now, lastNetProfit: opp.ExpectedNet}

	select {
	case s.outCh <- opp:
	default:
		// drop oldest, then retry once (never block the detection loop)
		select {
		case <-s.outCh:
		default:
		}
		select {
		case s.outCh <- opp:
		default:
			metrics.BackpressureDropsTotal.Inc()
			return
		}
	}
	s.g.MarkOpportunity(opp.Path, opp.InputAmount, now)
	metrics.OpportunitiesTotal.Inc()
}

// enforceEdgeCap runs a tightened retention sweep when the live graph
// exceeds max_graph_edges, per the activity-weighted retention sweep
// supplement.
func (s *Scheduler) enforceEdgeCap(now time.Time) {
	if s.cfg.MaxGraphEdges <= 0 || s.g.EdgeCount() <= s.cfg.MaxGraphEdges {
		return
	}
	tightened := s.cfg.RetentionPolicy
	mult := s.cfg.ForcedSweepTVLMultiplier
	if mult.IsZero() {
		mult = decimal.NewFromInt(2)
	}
	tightened.MinTVL = tightened.MinTVL.Mul(mult)
	removed := s.g.PruneStale(tightened, now)
	metrics.PruneRemovedTotal.Add(float64(removed))
	s.logger.Warn().Int("edge_count", s.g.EdgeCount()).Int("max_graph_edges", s.cfg.MaxGraphEdges).
		Int("removed", removed).Msg("forced retention sweep on edge cap breach")
}

func canonicalKey(opp domain.Opportunity) string {
	hops := make([]domain.Hop, len(opp.Path))
	for i, e := range opp.Path {
		hops[i] = domain.Hop{Asset: e.Pair.AssetX, Exchange: e.Exchange}
	}
	return domain.CanonicalCycleKey(hops)
}
