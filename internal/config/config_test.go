package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	_ = os.Unsetenv("ARBDETECT_CONFIG")
	_ = os.Unsetenv("ARBDETECT_REGION")
	_ = os.Unsetenv("ARBDETECT_LOG_LEVEL")

	c := Load()
	if c.Network.Region != "EU-West" {
		t.Fatalf("expected default region EU-West, got %s", c.Network.Region)
	}
	if c.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %s", c.Logging.Level)
	}
	if c.Detector.MaxCycleLen != 4 {
		t.Fatalf("expected default max_cycle_len 4, got %d", c.Detector.MaxCycleLen)
	}
	if len(c.Detector.SizeLadder) != 4 {
		t.Fatalf("expected default size ladder of 4 entries, got %v", c.Detector.SizeLadder)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBDETECT_REGION", "EU-Central")
	t.Setenv("ARBDETECT_LOG_LEVEL", "debug")
	t.Setenv("ARBDETECT_MAX_CYCLE_LEN", "6")
	t.Setenv("ARBDETECT_ALLOWED_PAIRS", "APT,USDC, zUSDC")

	c := Load()
	if c.Network.Region != "EU-Central" {
		t.Fatalf("env override failed for region, got %s", c.Network.Region)
	}
	if c.Logging.Level != "debug" {
		t.Fatalf("env override failed for log level, got %s", c.Logging.Level)
	}
	if c.Detector.MaxCycleLen != 6 {
		t.Fatalf("env override failed for max_cycle_len, got %d", c.Detector.MaxCycleLen)
	}
	want := []string{"APT", "USDC", "zUSDC"}
	if len(c.Detector.AllowedPairs) != len(want) {
		t.Fatalf("env override failed for allowed_pairs, got %v", c.Detector.AllowedPairs)
	}
	for i, w := range want {
		if c.Detector.AllowedPairs[i] != w {
			t.Fatalf("allowed_pairs[%d] = %q, want %q", i, c.Detector.AllowedPairs[i], w)
		}
	}
}
