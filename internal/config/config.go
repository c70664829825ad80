// Package config loads the detector's YAML configuration file, with
// ARBDETECT_-prefixed environment variables overriding individual
// fields. Load order: compiled-in defaults, then the optional file,
// then env vars; last write wins.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Network struct {
		Region string `yaml:"region"`
	} `yaml:"network"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Server struct {
		Addr                string   `yaml:"addr"`
		Pprof               bool     `yaml:"pprof"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int      `yaml:"idle_timeout_seconds"`
		AdminAllowCIDRs     []string `yaml:"admin_allow_cidrs"`
	} `yaml:"server"`

	// Detector holds the detection thresholds and sizing options.
	Detector struct {
		IntervalMs       int      `yaml:"interval_ms"`
		MinProfitPct     string   `yaml:"min_profit_pct"`
		MinNetProfit     string   `yaml:"min_net_profit"`
		MaxCycleLen      int      `yaml:"max_cycle_len"`
		AllowedPairs     []string `yaml:"allowed_pairs"` // asset symbols permitted as a cycle's start/end vertex
		SizeLadder       []string `yaml:"size_ladder"`
		SizeFraction     string   `yaml:"size_fraction"`
		SlippageCapPct   string   `yaml:"slippage_cap_pct"`
		EntryConfirmRuns int      `yaml:"entry_confirm_runs"`
		GasToken         string   `yaml:"gas_token"`
	} `yaml:"detector"`

	// Graph holds graph.ttl and graph.pruning.*.
	Graph struct {
		TTLSeconds           int    `yaml:"ttl_seconds"`
		MaxGraphEdges        int    `yaml:"max_graph_edges"`
		ForcedSweepTVLFactor string `yaml:"forced_sweep_tvl_factor"`
		PruneIntervalBlocks  uint64 `yaml:"prune_interval_blocks"`
		Pruning              struct {
			OpportunityWindowSeconds int      `yaml:"opportunity_window_seconds"`
			MinTVL                   string   `yaml:"min_tvl"`
			MaxStaleAgeSeconds       int      `yaml:"max_stale_age_seconds"`
			ProtectedPairs           []string `yaml:"protected_pairs"` // "ASSETX/ASSETY" entries
		} `yaml:"pruning"`
	} `yaml:"graph"`

	Dedup struct {
		WindowMs             int    `yaml:"window_ms"`
		ProfitImprovementPct string `yaml:"profit_improvement_pct"`
	} `yaml:"dedup"`

	// Sim holds the simulation fan-out limits plus the
	// GasOracle/PriceOracle endpoints the detector's capability
	// clients call out to.
	Sim struct {
		TimeoutMs              int     `yaml:"timeout_ms"`
		MaxConcurrent          int     `yaml:"max_concurrent"`
		GasStalenessSeconds    int     `yaml:"gas_staleness_seconds"`
		GasPriceRefreshSeconds int     `yaml:"gas_price_refresh_seconds"`
		GasBaseURL             string  `yaml:"gas_base_url"`
		PriceBaseURL           string  `yaml:"price_base_url"`
		RateLimitPerSec        float64 `yaml:"rate_limit_per_sec"`
		RateLimitBurst         int     `yaml:"rate_limit_burst"`
		SecretKey              string  `yaml:"secret_key"`
	} `yaml:"sim"`
}

func defaultConfig() Config {
	var c Config
	c.Network.Region = "EU-West"
	c.Logging.Level = "info"
	c.Logging.Pretty = false

	c.Server.Addr = ":9090"
	c.Server.Pprof = false
	c.Server.ReadTimeoutSeconds = 5
	c.Server.WriteTimeoutSeconds = 10
	c.Server.IdleTimeoutSeconds = 60
	c.Server.AdminAllowCIDRs = []string{"127.0.0.0/8", "::1/128"}

	c.Detector.IntervalMs = 400
	c.Detector.MinProfitPct = "0.1"
	c.Detector.MinNetProfit = "0"
	c.Detector.MaxCycleLen = 4
	c.Detector.AllowedPairs = nil
	c.Detector.SizeLadder = []string{"0.0001", "100", "500", "1000"}
	c.Detector.SizeFraction = "0.1"
	c.Detector.SlippageCapPct = "2"
	c.Detector.EntryConfirmRuns = 1
	c.Detector.GasToken = "APT"

	c.Graph.TTLSeconds = 120
	c.Graph.MaxGraphEdges = 10000
	c.Graph.ForcedSweepTVLFactor = "2"
	c.Graph.PruneIntervalBlocks = 20
	c.Graph.Pruning.OpportunityWindowSeconds = 3600
	c.Graph.Pruning.MinTVL = "1000"
	c.Graph.Pruning.MaxStaleAgeSeconds = 300
	c.Graph.Pruning.ProtectedPairs = nil

	c.Dedup.WindowMs = 1000
	c.Dedup.ProfitImprovementPct = "10"

	c.Sim.TimeoutMs = 50
	c.Sim.MaxConcurrent = 16
	c.Sim.GasStalenessSeconds = 300
	c.Sim.GasPriceRefreshSeconds = 60
	c.Sim.GasBaseURL = "http://localhost:7701"
	c.Sim.PriceBaseURL = "http://localhost:7702"
	c.Sim.RateLimitPerSec = 16
	c.Sim.RateLimitBurst = 32
	c.Sim.SecretKey = "oracle_api_key"

	return c
}

func Load() Config {
	c := defaultConfig()
	if path := os.Getenv("ARBDETECT_CONFIG"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, &c)
		}
	}

	if v := os.Getenv("ARBDETECT_REGION"); v != "" {
		c.Network.Region = v
	}
	if v := os.Getenv("ARBDETECT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARBDETECT_LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("ARBDETECT_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ARBDETECT_PPROF"); v == "1" || v == "true" {
		c.Server.Pprof = true
	}
	if v := os.Getenv("ARBDETECT_ADMIN_ALLOW_CIDRS"); v != "" {
		c.Server.AdminAllowCIDRs = splitCSV(v)
	}
	if v := os.Getenv("ARBDETECT_INTERVAL_MS"); v != "" {
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			c.Detector.IntervalMs = n
		}
	}
	if v := os.Getenv("ARBDETECT_MIN_PROFIT_PCT"); v != "" {
		c.Detector.MinProfitPct = v
	}
	if v := os.Getenv("ARBDETECT_MIN_NET_PROFIT"); v != "" {
		c.Detector.MinNetProfit = v
	}
	if v := os.Getenv("ARBDETECT_MAX_CYCLE_LEN"); v != "" {
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			c.Detector.MaxCycleLen = n
		}
	}
	if v := os.Getenv("ARBDETECT_ALLOWED_PAIRS"); v != "" {
		c.Detector.AllowedPairs = splitCSV(v)
	}
	if v := os.Getenv("ARBDETECT_SLIPPAGE_CAP_PCT"); v != "" {
		c.Detector.SlippageCapPct = v
	}
	if v := os.Getenv("ARBDETECT_GAS_TOKEN"); v != "" {
		c.Detector.GasToken = v
	}
	if v := os.Getenv("ARBDETECT_GAS_BASE_URL"); v != "" {
		c.Sim.GasBaseURL = v
	}
	if v := os.Getenv("ARBDETECT_PRICE_BASE_URL"); v != "" {
		c.Sim.PriceBaseURL = v
	}
	if v := os.Getenv("ARBDETECT_SIM_TIMEOUT_MS"); v != "" {
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			c.Sim.TimeoutMs = n
		}
	}
	if v := os.Getenv("ARBDETECT_SIM_MAX_CONCURRENT"); v != "" {
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			c.Sim.MaxConcurrent = n
		}
	}
	// secret values (API keys) are never read here, from the config
	// file or from the env overrides above; they come only from the
	// vault.SecretStore seam at wiring time.
	return c
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
