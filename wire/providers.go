package wire

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lootvault/rewards-engine/catalog"
	"github.com/lootvault/rewards-engine/config"
	"github.com/lootvault/rewards-engine/database"
	"github.com/lootvault/rewards-engine/db/redis"
	"github.com/lootvault/rewards-engine/engine"
	"github.com/lootvault/rewards-engine/events/kafka"
	"github.com/lootvault/rewards-engine/inventory"
	"github.com/lootvault/rewards-engine/jackpot"
	"github.com/lootvault/rewards-engine/ledger"
	"github.com/lootvault/rewards-engine/logging"
	"github.com/lootvault/rewards-engine/provider"
	"github.com/lootvault/rewards-engine/selector"
	"github.com/lootvault/rewards-engine/server"
)

// ProvideLogger provides a zerolog.Logger
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}

// ProvideDatabase opens the database and runs migrations.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// ProvideRedisClient provides a Redis client
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	return redis.New(cfg.Redis)
}

// ProvideProducer provides the Kafka event producer. Nil when no brokers
// are configured.
func ProvideProducer(cfg *config.Config, logger zerolog.Logger) (*kafka.Producer, error) {
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topics:  cfg.Kafka.Topics,
		Logger:  logger,
	})
}

// ProvideDrawer provides the crypto-backed draw source.
func ProvideDrawer() *selector.Drawer {
	return selector.NewDrawer()
}

// ProvideCatalogService provides the reward catalog service.
func ProvideCatalogService(db *gorm.DB, logger zerolog.Logger, cfg *config.Config) *catalog.Service {
	return catalog.NewService(db, logger, cfg.Catalog)
}

// ProvideInventoryTracker provides the unique item tracker.
func ProvideInventoryTracker(db *gorm.DB, logger zerolog.Logger, cfg *config.Config) *inventory.Tracker {
	return inventory.NewTracker(db, logger, cfg.Catalog)
}

// ProvideLedgerService provides the prize ledger.
func ProvideLedgerService(db *gorm.DB, logger zerolog.Logger) *ledger.Service {
	return ledger.NewService(db, logger)
}

// ProvideJackpotService provides the progressive pool service.
func ProvideJackpotService(db *gorm.DB, rc *redis.Client, logger zerolog.Logger, cfg *config.Config) *jackpot.Service {
	// A nil *redis.Client must stay a nil interface, or the service would
	// call methods on it.
	var cache jackpot.Cache
	if rc != nil {
		cache = rc
	}
	return jackpot.NewService(db, cache, logger, cfg.Jackpot, selector.CryptoSource{})
}

// ProvidePayoutProvider provides the payout backend client.
func ProvidePayoutProvider(cfg *config.Config, logger zerolog.Logger) provider.PayoutProvider {
	return provider.NewHTTPPayoutProvider(cfg.Payout, logger)
}

// ProvideServerOptions provides server options
func ProvideServerOptions(cfg *config.Config, logger zerolog.Logger) server.Options {
	return server.Options{
		Config: cfg,
		Logger: logger,
	}
}

// ProvideApp provides the main application
func ProvideApp(opts server.Options) *server.App {
	return server.New(opts)
}

// ProvideEngine provides the spin engine.
func ProvideEngine(
	db *gorm.DB,
	cat *catalog.Service,
	inv *inventory.Tracker,
	led *ledger.Service,
	jp *jackpot.Service,
	drawer *selector.Drawer,
	payout provider.PayoutProvider,
	producer *kafka.Producer,
	logger zerolog.Logger,
) *engine.Engine {
	return engine.New(db, cat, inv, led, jp, drawer, payout, producer, logger)
}

// ConfigSet is the wire provider set for configuration
var ConfigSet = wire.NewSet(
	config.Load,
)

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// StorageSet is the wire provider set for database and cache
var StorageSet = wire.NewSet(
	ProvideDatabase,
	ProvideRedisClient,
)

// ServiceSet is the wire provider set for the domain services
var ServiceSet = wire.NewSet(
	ProvideDrawer,
	ProvideCatalogService,
	ProvideInventoryTracker,
	ProvideLedgerService,
	ProvideJackpotService,
	ProvidePayoutProvider,
	ProvideProducer,
	ProvideEngine,
)

// ServerSet is the wire provider set for server
var ServerSet = wire.NewSet(
	ProvideServerOptions,
	ProvideApp,
)

// DefaultSet is the default wire provider set including all common providers
var DefaultSet = wire.NewSet(
	LoggingSet,
	ServerSet,
)

// FullSet includes storage and the full service graph
var FullSet = wire.NewSet(
	DefaultSet,
	StorageSet,
	ServiceSet,
)
