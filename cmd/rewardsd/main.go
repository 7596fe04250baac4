package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/lootvault/rewards-engine/config"
	"github.com/lootvault/rewards-engine/db/redis"
	"github.com/lootvault/rewards-engine/engine"
	"github.com/lootvault/rewards-engine/events/kafka"
	"github.com/lootvault/rewards-engine/jackpot"
	"github.com/lootvault/rewards-engine/server"
	"github.com/lootvault/rewards-engine/wire"
)

var (
	configDir string
	version   = moduleVersion()
)

func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

var rootCmd = &cobra.Command{
	Use:     "rewardsd",
	Short:   "Reward engine service",
	Long:    "rewardsd runs the multi-tenant spin and prize settlement service.",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "config", "directory containing config files")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.LoadByEnv(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := wire.ProvideLogger(cfg)
	logger.Info().
		Str("environment", cfg.Environment).
		Str("version", version).
		Msg("Starting reward engine")

	db, err := wire.ProvideDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Cache is optional; the pool service falls back to the database.
	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache, err = redis.New(cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, running without cache")
			cache = nil
		}
	}

	producer, err := wire.ProvideProducer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	drawer := wire.ProvideDrawer()
	catalogSvc := wire.ProvideCatalogService(db, logger, cfg)
	inventorySvc := wire.ProvideInventoryTracker(db, logger, cfg)
	ledgerSvc := wire.ProvideLedgerService(db, logger)
	jackpotSvc := wire.ProvideJackpotService(db, cache, logger, cfg)
	payout := wire.ProvidePayoutProvider(cfg, logger)

	eng := engine.New(db, catalogSvc, inventorySvc, ledgerSvc, jackpotSvc, drawer, payout, producer, logger)

	// Pool updates from sibling instances feed the local broadcast stream.
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topics[kafka.TopicPoolUpdates],
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		Logger:        logger,
	}, func(event kafka.PoolUpdateEvent) {
		jackpotSvc.HandleExternalUpdate(jackpot.Update{
			PoolID:    event.PoolID,
			PoolName:  event.PoolName,
			Amount:    event.Amount,
			Event:     event.Event,
			UserID:    event.UserID,
			Timestamp: event.Timestamp,
		})
	})
	consumer.Start()

	app := server.New(server.Options{
		Config:  cfg,
		Logger:  logger,
		Rewards: eng,
		Jackpot: jackpotSvc,
		Admin: &server.AdminServices{
			Catalog:   catalogSvc,
			Inventory: inventorySvc,
			Jackpot:   jackpotSvc,
		},
	})

	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterAPIRoutes()
	if cfg.IsDevelopment() {
		app.RegisterSwagger(nil)
	}

	app.OnShutdown(func() {
		jackpotSvc.Stop()
		if err := consumer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop consumer")
		}
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close producer")
		}
		if cache != nil {
			if err := cache.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close cache")
			}
		}
	})

	return app.Run()
}
