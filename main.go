package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/config"
	"deriv-trading-bot/internal/account"
	"deriv-trading-bot/internal/bot"
	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
	"deriv-trading-bot/internal/engine"
	"deriv-trading-bot/internal/events"
	"deriv-trading-bot/internal/logging"
	"deriv-trading-bot/internal/notification"
	"deriv-trading-bot/internal/risk"
	"deriv-trading-bot/internal/scheduler"
	"deriv-trading-bot/internal/scoring"
	"deriv-trading-bot/internal/simulation"
	"deriv-trading-bot/internal/ticks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("failed to load configuration:", err.Error())
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig.Level, cfg.LoggingConfig.Pretty)
	logger.Info().Str("engine", cfg.TradingConfig.Engine).Msg("starting deriv trading bot")

	weights := scoring.DefaultWeights()
	if err := weights.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid score weights")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	repo := database.NewRepository(db)

	bus := events.NewEventBus()
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, dashboard events disabled")
			redisClient = nil
		}
		pingCancel()
	}
	events.NewRedisPublisher(redisClient, cfg.RedisConfig.Channel, logger).Attach(bus)
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier := notification.NewManager(cfg.NotificationConfig.Enabled, logger)
	notifier.AddNotifier(notification.NewTelegramNotifier(
		cfg.NotificationConfig.Telegram.BotToken,
		cfg.NotificationConfig.Telegram.ChatID,
		cfg.NotificationConfig.Telegram.Enabled,
	))
	notifier.AddNotifier(notification.NewWebhookNotifier(
		cfg.NotificationConfig.Webhook.URL,
		cfg.NotificationConfig.Webhook.Enabled,
	))

	var broker deriv.BrokerClient
	if cfg.DerivConfig.MockMode {
		logger.Warn().Msg("mock mode: trading against simulated market data")
		broker = deriv.NewMockClient()
	} else {
		broker = deriv.NewClient(cfg.DerivConfig.AppID, cfg.DerivConfig.APIToken, cfg.DerivConfig.Endpoint, logger)
	}

	if err := seedAssets(ctx, repo, broker, logger); err != nil {
		logger.Fatal().Err(err).Msg("asset seeding failed")
	}

	accounts := account.NewManager(repo, notifier, account.Config{
		PauseHours: cfg.TradingConfig.PauseHours,
	}, logger)
	if err := seedBalance(ctx, repo, accounts, broker, logger); err != nil {
		logger.Fatal().Err(err).Msg("balance initialization failed")
	}

	riskManager := risk.NewManager(repo, risk.Config{
		BaseRisk:           decimal.NewFromFloat(cfg.RiskConfig.BaseRiskPercent),
		MaxVolatility:      decimal.NewFromFloat(cfg.RiskConfig.MaxVolatility),
		CooldownMinutes:    cfg.EngineConfig.CooldownMinutes,
		MaxTradesPerWindow: cfg.EngineConfig.MaxTradesPerWindow,
		RateWindowMinutes:  cfg.EngineConfig.RateWindowMinutes,
	}, logger)
	sched := scheduler.New(repo, logger)
	simulator := simulation.New(repo, accounts, bus, simulation.Config{
		Interval:      cfg.SimulationConfig.Interval,
		TradesPerHour: cfg.SimulationConfig.TradesPerHour,
		HoldTicks:     cfg.SimulationConfig.HoldTicks,
	}, logger)

	executor := engine.NewExecutor(repo, accounts, broker, bus, notifier, engine.ExecutionConfig{
		ContractDuration:  cfg.TradingConfig.ContractDuration,
		DurationUnit:      cfg.TradingConfig.DurationUnit,
		SettlementTimeout: cfg.TradingConfig.SettlementTimeout,
	}, logger)

	var eng engine.TradingEngine
	switch cfg.TradingConfig.Engine {
	case "simple":
		eng = engine.NewSimpleEngine(repo, broker, executor,
			decimal.NewFromFloat(cfg.TradingConfig.StakePercent), logger)
	default:
		eng = engine.NewProfessionalEngine(repo, broker, riskManager, sched, executor, weights, engine.ProfessionalConfig{
			AnalysisPeriod:        cfg.EngineConfig.AnalysisPeriod,
			MinScore:              decimal.NewFromFloat(cfg.EngineConfig.MinScore),
			MinConsistency:        decimal.NewFromFloat(cfg.EngineConfig.MinConsistency),
			MinVolatility:         decimal.NewFromFloat(cfg.EngineConfig.MinVolatility),
			HourlyConfidenceFloor: decimal.NewFromFloat(cfg.EngineConfig.HourlyConfidenceFloor),
			LowConfidenceFactor:   decimal.NewFromFloat(cfg.EngineConfig.LowConfidenceFactor),
		}, logger)
	}

	var collector *ticks.Collector
	if cfg.TicksConfig.Enabled {
		collector = ticks.NewCollector(repo, broker, ticks.Config{
			MaxTicks: cfg.TicksConfig.MaxTicks,
		}, logger)
		if err := collector.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("tick collector failed to start")
		}
	}

	b := bot.New(repo, broker, accounts, sched, simulator, eng, bus, cfg.TradingConfig.CycleInterval, logger)
	b.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	b.Stop()
	if collector != nil {
		collector.Stop()
	}
	cancel()
	logger.Info().Msg("shutdown complete")
}

// seedAssets populates the asset table from the broker's symbol list the
// first time the bot runs against an empty database.
func seedAssets(ctx context.Context, repo *database.Repository, broker deriv.BrokerClient, logger zerolog.Logger) error {
	enabled, err := repo.EnabledAssets(ctx)
	if err != nil {
		return err
	}
	if len(enabled) > 0 {
		return nil
	}

	symbols, err := broker.ActiveSymbols(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym.IsOpen {
			names = append(names, sym.Name)
		}
	}
	if len(names) == 0 {
		logger.Warn().Msg("broker reported no open symbols")
		return nil
	}

	created, disabled, err := repo.SyncAssets(ctx, names)
	if err != nil {
		return err
	}
	logger.Info().Int("created", created).Int("disabled", disabled).Msg("assets seeded from broker")
	return nil
}

// seedBalance adopts the broker balance on first run, when the local
// account has never been funded.
func seedBalance(ctx context.Context, repo *database.Repository, accounts *account.Manager, broker deriv.BrokerClient, logger zerolog.Logger) error {
	acct, err := repo.GetAccount(ctx)
	if err != nil {
		return err
	}
	if acct.Balance.IsPositive() {
		return nil
	}

	balance, err := broker.Balance(ctx)
	if err != nil {
		return err
	}
	if _, err := accounts.InitializeBalance(ctx, balance); err != nil {
		return err
	}
	logger.Info().Str("balance", balance.String()).Msg("account funded from broker balance")
	return nil
}
