package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TradingConfig.Engine != "professional" {
		t.Errorf("default engine = %s, want professional", cfg.TradingConfig.Engine)
	}
	if cfg.TradingConfig.CycleInterval != 60*time.Second {
		t.Errorf("default cycle interval = %s, want 60s", cfg.TradingConfig.CycleInterval)
	}
	if cfg.EngineConfig.MinScore != 40.0 {
		t.Errorf("default min score = %v, want 40", cfg.EngineConfig.MinScore)
	}
	if cfg.RiskConfig.BaseRiskPercent != 0.005 {
		t.Errorf("default base risk = %v, want 0.005", cfg.RiskConfig.BaseRiskPercent)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_ENGINE", "simple")
	t.Setenv("TRADING_CYCLE_INTERVAL", "30s")
	t.Setenv("ENGINE_MIN_SCORE", "55.5")
	t.Setenv("DB_PORT", "5433")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TradingConfig.Engine != "simple" {
		t.Errorf("engine = %s, want simple from env", cfg.TradingConfig.Engine)
	}
	if cfg.TradingConfig.CycleInterval != 30*time.Second {
		t.Errorf("cycle interval = %s, want 30s from env", cfg.TradingConfig.CycleInterval)
	}
	if cfg.EngineConfig.MinScore != 55.5 {
		t.Errorf("min score = %v, want 55.5 from env", cfg.EngineConfig.MinScore)
	}
	if cfg.DatabaseConfig.Port != 5433 {
		t.Errorf("db port = %d, want 5433 from env", cfg.DatabaseConfig.Port)
	}
}

func TestConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.json")
	body := `{"trading": {"engine": "simple", "pause_hours": 12}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_CONFIG_FILE", path)
	t.Setenv("TRADING_PAUSE_HOURS", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TradingConfig.Engine != "simple" {
		t.Errorf("engine = %s, want simple from file", cfg.TradingConfig.Engine)
	}
	if cfg.TradingConfig.PauseHours != 6 {
		t.Errorf("pause hours = %d, want the env override over the file", cfg.TradingConfig.PauseHours)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown engine", func(c *Config) { c.TradingConfig.Engine = "turbo" }},
		{"zero cycle interval", func(c *Config) { c.TradingConfig.CycleInterval = 0 }},
		{"zero settlement timeout", func(c *Config) { c.TradingConfig.SettlementTimeout = 0 }},
		{"excessive base risk", func(c *Config) { c.RiskConfig.BaseRiskPercent = 0.5 }},
		{"zero hold ticks", func(c *Config) { c.SimulationConfig.HoldTicks = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
