package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the bot process.
type Config struct {
	DerivConfig        DerivConfig        `json:"deriv"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	TradingConfig      TradingConfig      `json:"trading"`
	EngineConfig       EngineConfig       `json:"engine"`
	RiskConfig         RiskConfig         `json:"risk"`
	SimulationConfig   SimulationConfig   `json:"simulation"`
	TicksConfig        TicksConfig        `json:"ticks"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// DerivConfig holds credentials and endpoint for the Deriv WebSocket API.
type DerivConfig struct {
	AppID     string `json:"app_id"`
	APIToken  string `json:"api_token"`
	AccountID string `json:"account_id"`
	Endpoint  string `json:"endpoint"`
	MockMode  bool   `json:"mock_mode"` // Use simulated market data when the API is unavailable
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"` // Pub/sub channel for dashboard events
}

// TradingConfig controls the decision loop and contract parameters.
type TradingConfig struct {
	Engine             string        `json:"engine"`              // "simple" or "professional"
	CycleInterval      time.Duration `json:"cycle_interval"`      // Seconds between decision cycles
	PauseHours         int           `json:"pause_hours"`         // Pause duration after stop-loss
	StakePercent       float64       `json:"stake_percent"`       // Fixed stake for the simple engine
	ContractDuration   int           `json:"contract_duration"`   // Contract duration (ticks)
	DurationUnit       string        `json:"duration_unit"`       // Deriv duration unit, "t" = ticks
	SettlementTimeout  time.Duration `json:"settlement_timeout"`  // Bound on waiting for contract result
}

// EngineConfig holds thresholds for the professional engine.
type EngineConfig struct {
	AnalysisPeriod        int     `json:"analysis_period"`         // Ticks per indicator window
	MinScore              float64 `json:"min_score"`               // Minimum total score to trade
	MinConsistency        float64 `json:"min_consistency"`         // Minimum consistency percentage
	MinVolatility         float64 `json:"min_volatility"`          // Below this the market is considered flat
	HourlyConfidenceFloor float64 `json:"hourly_confidence_floor"` // Confidence below this discounts the score
	LowConfidenceFactor   float64 `json:"low_confidence_factor"`   // Score multiplier when confidence is low
	CooldownMinutes       int     `json:"cooldown_minutes"`
	MaxTradesPerWindow    int     `json:"max_trades_per_window"`
	RateWindowMinutes     int     `json:"rate_window_minutes"`
}

type RiskConfig struct {
	BaseRiskPercent float64 `json:"base_risk_percent"` // Fraction of balance risked per trade
	MaxVolatility   float64 `json:"max_volatility"`    // Volatility at which the stake is halved
}

type SimulationConfig struct {
	Interval      time.Duration `json:"interval"`        // Minimum time between pause simulations
	TradesPerHour int           `json:"trades_per_hour"` // Synthetic trades per hour bucket
	HoldTicks     int           `json:"hold_ticks"`      // Ticks a synthetic trade is held
}

type TicksConfig struct {
	Enabled  bool `json:"enabled"`
	MaxTicks int  `json:"max_ticks"` // 0 = unlimited
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Webhook  WebhookConfig  `json:"webhook"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // Console output instead of JSON
}

// Load reads configuration from an optional JSON file and then applies
// environment overrides on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("BOT_CONFIG_FILE"); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DerivConfig: DerivConfig{
			Endpoint: "wss://ws.derivws.com/websockets/v3",
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "deriv_bot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address: "localhost:6379",
			Channel: "dashboard:events",
		},
		TradingConfig: TradingConfig{
			Engine:            "professional",
			CycleInterval:     60 * time.Second,
			PauseHours:        24,
			StakePercent:      0.005,
			ContractDuration:  5,
			DurationUnit:      "t",
			SettlementTimeout: 120 * time.Second,
		},
		EngineConfig: EngineConfig{
			AnalysisPeriod:        20,
			MinScore:              40.0,
			MinConsistency:        30.0,
			MinVolatility:         0.001,
			HourlyConfidenceFloor: 45.0,
			LowConfidenceFactor:   0.5,
			CooldownMinutes:       5,
			MaxTradesPerWindow:    1,
			RateWindowMinutes:     60,
		},
		RiskConfig: RiskConfig{
			BaseRiskPercent: 0.005,
			MaxVolatility:   2.0,
		},
		SimulationConfig: SimulationConfig{
			Interval:      time.Hour,
			TradesPerHour: 5,
			HoldTicks:     5,
		},
		TicksConfig: TicksConfig{
			Enabled: true,
		},
		LoggingConfig: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.DerivConfig.AppID = getEnvOrDefault("DERIV_APP_ID", cfg.DerivConfig.AppID)
	cfg.DerivConfig.APIToken = getEnvOrDefault("DERIV_API_TOKEN", cfg.DerivConfig.APIToken)
	cfg.DerivConfig.AccountID = getEnvOrDefault("DERIV_ACCOUNT_ID", cfg.DerivConfig.AccountID)
	cfg.DerivConfig.Endpoint = getEnvOrDefault("DERIV_ENDPOINT", cfg.DerivConfig.Endpoint)
	cfg.DerivConfig.MockMode = getEnvOrDefault("DERIV_MOCK_MODE", boolString(cfg.DerivConfig.MockMode)) == "true"

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.Channel = getEnvOrDefault("REDIS_CHANNEL", cfg.RedisConfig.Channel)

	cfg.TradingConfig.Engine = getEnvOrDefault("TRADING_ENGINE", cfg.TradingConfig.Engine)
	cfg.TradingConfig.CycleInterval = getEnvDurationOrDefault("TRADING_CYCLE_INTERVAL", cfg.TradingConfig.CycleInterval)
	cfg.TradingConfig.PauseHours = getEnvIntOrDefault("TRADING_PAUSE_HOURS", cfg.TradingConfig.PauseHours)
	cfg.TradingConfig.StakePercent = getEnvFloatOrDefault("TRADING_STAKE_PERCENT", cfg.TradingConfig.StakePercent)
	cfg.TradingConfig.ContractDuration = getEnvIntOrDefault("TRADING_CONTRACT_DURATION", cfg.TradingConfig.ContractDuration)
	cfg.TradingConfig.DurationUnit = getEnvOrDefault("TRADING_DURATION_UNIT", cfg.TradingConfig.DurationUnit)
	cfg.TradingConfig.SettlementTimeout = getEnvDurationOrDefault("TRADING_SETTLEMENT_TIMEOUT", cfg.TradingConfig.SettlementTimeout)

	cfg.EngineConfig.AnalysisPeriod = getEnvIntOrDefault("ENGINE_ANALYSIS_PERIOD", cfg.EngineConfig.AnalysisPeriod)
	cfg.EngineConfig.MinScore = getEnvFloatOrDefault("ENGINE_MIN_SCORE", cfg.EngineConfig.MinScore)
	cfg.EngineConfig.MinConsistency = getEnvFloatOrDefault("ENGINE_MIN_CONSISTENCY", cfg.EngineConfig.MinConsistency)
	cfg.EngineConfig.MinVolatility = getEnvFloatOrDefault("ENGINE_MIN_VOLATILITY", cfg.EngineConfig.MinVolatility)
	cfg.EngineConfig.HourlyConfidenceFloor = getEnvFloatOrDefault("ENGINE_HOURLY_CONFIDENCE_FLOOR", cfg.EngineConfig.HourlyConfidenceFloor)
	cfg.EngineConfig.LowConfidenceFactor = getEnvFloatOrDefault("ENGINE_LOW_CONFIDENCE_FACTOR", cfg.EngineConfig.LowConfidenceFactor)
	cfg.EngineConfig.CooldownMinutes = getEnvIntOrDefault("ENGINE_COOLDOWN_MINUTES", cfg.EngineConfig.CooldownMinutes)
	cfg.EngineConfig.MaxTradesPerWindow = getEnvIntOrDefault("ENGINE_MAX_TRADES_PER_WINDOW", cfg.EngineConfig.MaxTradesPerWindow)
	cfg.EngineConfig.RateWindowMinutes = getEnvIntOrDefault("ENGINE_RATE_WINDOW_MINUTES", cfg.EngineConfig.RateWindowMinutes)

	cfg.RiskConfig.BaseRiskPercent = getEnvFloatOrDefault("RISK_BASE_PERCENT", cfg.RiskConfig.BaseRiskPercent)
	cfg.RiskConfig.MaxVolatility = getEnvFloatOrDefault("RISK_MAX_VOLATILITY", cfg.RiskConfig.MaxVolatility)

	cfg.SimulationConfig.Interval = getEnvDurationOrDefault("SIMULATION_INTERVAL", cfg.SimulationConfig.Interval)
	cfg.SimulationConfig.TradesPerHour = getEnvIntOrDefault("SIMULATION_TRADES_PER_HOUR", cfg.SimulationConfig.TradesPerHour)
	cfg.SimulationConfig.HoldTicks = getEnvIntOrDefault("SIMULATION_HOLD_TICKS", cfg.SimulationConfig.HoldTicks)

	cfg.TicksConfig.Enabled = getEnvOrDefault("TICKS_ENABLED", boolString(cfg.TicksConfig.Enabled)) == "true"
	cfg.TicksConfig.MaxTicks = getEnvIntOrDefault("TICKS_MAX", cfg.TicksConfig.MaxTicks)

	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFY_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("NOTIFY_TELEGRAM_ENABLED", boolString(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("NOTIFY_TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("NOTIFY_TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Webhook.Enabled = getEnvOrDefault("NOTIFY_WEBHOOK_ENABLED", boolString(cfg.NotificationConfig.Webhook.Enabled)) == "true"
	cfg.NotificationConfig.Webhook.URL = getEnvOrDefault("NOTIFY_WEBHOOK_URL", cfg.NotificationConfig.Webhook.URL)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolString(cfg.LoggingConfig.Pretty)) == "true"
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.TradingConfig.Engine != "simple" && c.TradingConfig.Engine != "professional" {
		return fmt.Errorf("unknown trading engine %q (want simple or professional)", c.TradingConfig.Engine)
	}
	if c.TradingConfig.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %s", c.TradingConfig.CycleInterval)
	}
	if c.TradingConfig.SettlementTimeout <= 0 {
		return fmt.Errorf("settlement timeout must be positive, got %s", c.TradingConfig.SettlementTimeout)
	}
	if c.RiskConfig.BaseRiskPercent <= 0 || c.RiskConfig.BaseRiskPercent > 0.02 {
		return fmt.Errorf("base risk percent %.4f outside (0, 0.02]", c.RiskConfig.BaseRiskPercent)
	}
	if c.SimulationConfig.HoldTicks < 1 {
		return fmt.Errorf("simulation hold ticks must be at least 1, got %d", c.SimulationConfig.HoldTicks)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := defaults()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
