// Command arbdetect wires the detector's five components (quote
// kernel, price graph, cycle engine, gas/net-profit evaluator, block
// scheduler) into a runnable binary: config load, logger,
// metrics/health/version HTTP mux behind an admin CIDR gate, a
// runner.Group supervising the long-running workers, signal-driven
// graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/backtest"
	"github.com/aptos-mm/arbdetect/internal/config"
	"github.com/aptos-mm/arbdetect/internal/cycle"
	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/evaluator"
	"github.com/aptos-mm/arbdetect/internal/graph"
	"github.com/aptos-mm/arbdetect/internal/infra/health"
	"github.com/aptos-mm/arbdetect/internal/infra/http/middleware"
	"github.com/aptos-mm/arbdetect/internal/infra/log"
	"github.com/aptos-mm/arbdetect/internal/infra/metrics"
	"github.com/aptos-mm/arbdetect/internal/infra/netutil"
	"github.com/aptos-mm/arbdetect/internal/infra/runner"
	"github.com/aptos-mm/arbdetect/internal/infra/vault"
	"github.com/aptos-mm/arbdetect/internal/infra/version"
	"github.com/aptos-mm/arbdetect/internal/ingestor"
	"github.com/aptos-mm/arbdetect/internal/oracle"
	"github.com/aptos-mm/arbdetect/internal/scheduler"
	"github.com/aptos-mm/arbdetect/internal/strategy"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := log.NewLogger(cfg)

	registry := metrics.Init(logger)
	mux := http.NewServeMux()
	adminCIDRs := netutil.ParseCIDRs(cfg.Server.AdminAllowCIDRs)
	mux.Handle("/metrics", middleware.AdminGate(adminCIDRs, metrics.Handler(registry)))
	mux.HandleFunc("/healthz", health.Healthz)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.HandleFunc("/version", version.Handler)
	if cfg.Server.Pprof {
		mux.Handle("/debug/pprof/", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Index)))
		mux.Handle("/debug/pprof/cmdline", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Profile)))
		mux.Handle("/debug/pprof/symbol", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Symbol)))
		mux.Handle("/debug/pprof/trace", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Trace)))
	}

	// /ingest is the boundary a DEX-adapter process pushes
	// already-normalized DetectorMessages across. Wire-format decoding
	// belongs to that process; this endpoint only accepts the
	// materialized message shape and fans it into the in-process
	// broadcaster the Scheduler reads from.
	in := ingestor.NewFake()
	mux.Handle("/ingest", middleware.AdminGate(adminCIDRs, ingestHandler(in, logger)))

	handler := middleware.RequestID(middleware.Logger(logger)(mux))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	g := graph.New()
	strat, err := wireStrategy(cfg, g, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build strategy registry")
		os.Exit(1)
	}
	eval := wireEvaluator(cfg, logger)
	sched := scheduler.New(wireSchedulerConfig(cfg), g, []strategy.Strategy{strat}, eval, logger)

	logger.Info().Str("region", cfg.Network.Region).Str("addr", cfg.Server.Addr).Msg("arbitrage detector started")

	runnerGroup := &runner.Group{}
	schedulerErrCh := runnerGroup.Go(ctx, func(ctx context.Context) error {
		return sched.Run(ctx, in.Subscribe(ctx))
	})
	consumerErrCh := runnerGroup.Go(ctx, func(ctx context.Context) error {
		return consumeOpportunities(ctx, sched, logger)
	})

	if rows, berr := backtest.RunSimpleCSV(in); berr != nil {
		logger.Error().Err(berr).Msg("backtest replay failed")
	} else if rows > 0 {
		logger.Info().Int("rows", rows).Msg("backtest replay complete")
	}

	health.SetReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case s := <-sigCh:
		logger.Info().Str("signal", s.String()).Msg("shutdown signal received")
	case err := <-schedulerErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
			health.SetReady(false)
		}
	case err := <-consumerErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("opportunity consumer stopped")
		}
	}

	health.SetReady(false)
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	runnerGroup.Wait()
	logger.Info().Msg("shutdown complete")
}

// wireStrategy translates the yaml/env detector.* option table into
// the Cycle Engine's typed SizingConfig/Params and registers it as
// the "cycle" strategy.
func wireStrategy(cfg config.Config, g *graph.Graph, logger zerolog.Logger) (strategy.Strategy, error) {
	sizing := cycle.DefaultSizingConfig()
	if len(cfg.Detector.SizeLadder) > 0 {
		ladder := make([]decimal.Decimal, 0, len(cfg.Detector.SizeLadder))
		for _, s := range cfg.Detector.SizeLadder {
			ladder = append(ladder, mustDecimal(s, decimal.Zero))
		}
		sizing.Ladder = ladder
	}
	sizing.SizeFraction = mustDecimal(cfg.Detector.SizeFraction, sizing.SizeFraction)

	params := cycle.Params{
		MinProfitPct:   mustDecimal(cfg.Detector.MinProfitPct, decimal.Zero),
		SlippageCapPct: mustDecimal(cfg.Detector.SlippageCapPct, decimal.NewFromInt(2)),
		MaxCycleLen:    cfg.Detector.MaxCycleLen,
	}

	allowed := make([]domain.Asset, 0, len(cfg.Detector.AllowedPairs))
	for _, a := range cfg.Detector.AllowedPairs {
		allowed = append(allowed, domain.Asset(a))
	}
	policy := graph.NewPairPolicy(allowed)

	return strategy.Build(strategy.CycleName, strategy.Config{
		Sizing: sizing,
		Params: params,
		Policy: policy,
		Logger: logger,
	})
}

// wireEvaluator builds the Gas & Net-Profit Evaluator against a real
// HTTP-backed oracle.Client. The gas/price base URLs and rate limits
// come from sim.*; API credentials come only from vault.SecretStore
// (EnvStore reads ARBDETECT_SECRET_<key>), never from the config file
// or the env overrides config.Load applies.
func wireEvaluator(cfg config.Config, logger zerolog.Logger) *evaluator.Evaluator {
	client := oracle.New(oracle.Config{
		GasBaseURL:      cfg.Sim.GasBaseURL,
		PriceBaseURL:    cfg.Sim.PriceBaseURL,
		RateLimitPerSec: cfg.Sim.RateLimitPerSec,
		RateLimitBurst:  cfg.Sim.RateLimitBurst,
		GasPriceRefresh: time.Duration(cfg.Sim.GasPriceRefreshSeconds) * time.Second,
		Secrets:         vault.EnvStore{},
		SecretKey:       cfg.Sim.SecretKey,
	})

	evalCfg := evaluator.DefaultConfig(domain.Asset(cfg.Detector.GasToken))
	evalCfg.MinNetProfit = mustDecimal(cfg.Detector.MinNetProfit, decimal.Zero)
	if cfg.Sim.TimeoutMs > 0 {
		evalCfg.SimulationTimeout = time.Duration(cfg.Sim.TimeoutMs) * time.Millisecond
	}
	if cfg.Sim.MaxConcurrent > 0 {
		evalCfg.MaxConcurrent = cfg.Sim.MaxConcurrent
	}
	if cfg.Sim.GasStalenessSeconds > 0 {
		evalCfg.GasStaleness = time.Duration(cfg.Sim.GasStalenessSeconds) * time.Second
	}

	return evaluator.New(evalCfg, client, client, logger)
}

// wireSchedulerConfig translates graph.*/dedup.* into scheduler.Config.
func wireSchedulerConfig(cfg config.Config) scheduler.Config {
	sc := scheduler.DefaultConfig()
	if cfg.Detector.IntervalMs > 0 {
		sc.IntervalBudget = time.Duration(cfg.Detector.IntervalMs) * time.Millisecond
	}
	if cfg.Dedup.WindowMs > 0 {
		sc.DedupWindow = time.Duration(cfg.Dedup.WindowMs) * time.Millisecond
	}
	sc.DedupProfitImprovementPct = mustDecimal(cfg.Dedup.ProfitImprovementPct, sc.DedupProfitImprovementPct)
	if cfg.Detector.EntryConfirmRuns > 0 {
		sc.EntryConfirmRuns = cfg.Detector.EntryConfirmRuns
	}
	if cfg.Graph.PruneIntervalBlocks > 0 {
		sc.PruneIntervalBlocks = cfg.Graph.PruneIntervalBlocks
	}
	if cfg.Graph.MaxGraphEdges > 0 {
		sc.MaxGraphEdges = cfg.Graph.MaxGraphEdges
	}
	sc.ForcedSweepTVLMultiplier = mustDecimal(cfg.Graph.ForcedSweepTVLFactor, sc.ForcedSweepTVLMultiplier)

	protected := make(map[domain.TradingPair]bool, len(cfg.Graph.Pruning.ProtectedPairs))
	for _, p := range cfg.Graph.Pruning.ProtectedPairs {
		if pair, ok := parsePair(p); ok {
			protected[pair] = true
		}
	}
	// graph.ttl and graph.pruning.max_stale_age are the same "older
	// than" test; a non-zero max_stale_age replaces the TTL, whether
	// it is shorter or longer.
	maxStaleAge := time.Duration(cfg.Graph.TTLSeconds) * time.Second
	if cfg.Graph.Pruning.MaxStaleAgeSeconds > 0 {
		maxStaleAge = time.Duration(cfg.Graph.Pruning.MaxStaleAgeSeconds) * time.Second
	}
	sc.RetentionPolicy = graph.RetentionPolicy{
		MaxStaleAge:       maxStaleAge,
		MinTVL:            mustDecimal(cfg.Graph.Pruning.MinTVL, decimal.Zero),
		OpportunityWindow: time.Duration(cfg.Graph.Pruning.OpportunityWindowSeconds) * time.Second,
		ProtectedPairs:    protected,
	}
	return sc
}

// consumeOpportunities is the default downstream stand-in: it logs
// every emitted Opportunity. A real deployment replaces this with a
// call into the actual risk/execution stage.
func consumeOpportunities(ctx context.Context, sched *scheduler.Scheduler, logger zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case opp, ok := <-sched.Opportunities():
			if !ok {
				return nil
			}
			logger.Info().
				Str("id", opp.ID).
				Str("strategy", opp.Strategy).
				Uint64("block", opp.BlockNumber).
				Str("expected_net", opp.ExpectedNet.String()).
				Msg("opportunity detected")
		}
	}
}

// ingestHandler decodes a JSON envelope into a domain.DetectorMessage
// and publishes it. Envelope shape: {"type":"block_start|market_update|block_end", ...}.
func ingestHandler(in *ingestor.Fake, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var envelope struct {
			Type        string          `json:"type"`
			BlockNumber uint64          `json:"block_number"`
			TimestampMs uint64          `json:"timestamp_ms"`
			PoolID      string          `json:"pool_id"`
			Exchange    string          `json:"exchange"`
			AssetX      string          `json:"asset_x"`
			AssetY      string          `json:"asset_y"`
			Model       domain.PoolModel `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var msg domain.DetectorMessage
		switch envelope.Type {
		case "block_start":
			msg = domain.BlockStart{BlockNumber: envelope.BlockNumber, TimestampMs: envelope.TimestampMs}
		case "block_end":
			msg = domain.BlockEnd{BlockNumber: envelope.BlockNumber}
		case "market_update":
			msg = domain.MarketUpdate{
				PoolID:   envelope.PoolID,
				Exchange: domain.ExchangeId(envelope.Exchange),
				Pair:     domain.TradingPair{AssetX: domain.Asset(envelope.AssetX), AssetY: domain.Asset(envelope.AssetY)},
				Model:    envelope.Model,
			}
		default:
			http.Error(w, "unknown message type", http.StatusBadRequest)
			return
		}

		in.Publish(msg)
		w.WriteHeader(http.StatusAccepted)
	})
}

func mustDecimal(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return v
}

func parsePair(s string) (domain.TradingPair, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return domain.TradingPair{AssetX: domain.Asset(s[:i]), AssetY: domain.Asset(s[i+1:])}, true
		}
	}
	return domain.TradingPair{}, false
}
