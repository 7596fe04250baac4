package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lootvault/rewards-engine/auth"
	"github.com/lootvault/rewards-engine/config"
	"github.com/lootvault/rewards-engine/engine"
	"github.com/lootvault/rewards-engine/jackpot"
	"github.com/lootvault/rewards-engine/middleware"
)

// App represents the rewards service application
type App struct {
	ginEngine      *gin.Engine
	config         *config.Config
	logger         zerolog.Logger
	rewards        *engine.Engine
	jackpotService *jackpot.Service
	httpServer     *http.Server
	onShutdown     []func()

	rewardsHandler *RewardsHandler
	jackpotHandler *JackpotHandler
	adminHandler   *AdminHandler
}

// Options holds server configuration options
type Options struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Rewards *engine.Engine
	Jackpot *jackpot.Service
	Admin   *AdminServices
}

// New creates a new rewards service application
func New(opts Options) *App {
	// Configure decimal.Decimal to marshal as JSON number instead of string
	// WARNING: This may cause precision loss for decimals with many digits when
	// unmarshaled by clients using IEEE 754 double-precision (e.g., JavaScript)
	decimal.MarshalJSONWithoutQuotes = true

	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{
		ginEngine:      gin.New(),
		config:         opts.Config,
		logger:         opts.Logger,
		rewards:        opts.Rewards,
		jackpotService: opts.Jackpot,
	}

	app.rewardsHandler = NewRewardsHandler(app)
	app.jackpotHandler = NewJackpotHandler(app, opts.Jackpot)
	app.adminHandler = NewAdminHandler(app, opts.Admin)

	return app
}

// UseCommonMiddlewares adds common middlewares to the application
func (a *App) UseCommonMiddlewares() {
	// Recovery middleware (must be first)
	a.ginEngine.Use(middleware.Recovery(a.logger))
	a.ginEngine.Use(middleware.TraceID())
	a.ginEngine.Use(middleware.Logging(a.logger))

	if a.config.Server.EnableCORS {
		a.ginEngine.Use(middleware.CORS())
	}
}

// UseMiddleware adds a custom middleware
func (a *App) UseMiddleware(m gin.HandlerFunc) {
	a.ginEngine.Use(m)
}

// RegisterHealthCheck adds health check endpoints
func (a *App) RegisterHealthCheck() {
	a.ginEngine.GET("/health", a.healthCheck)
	a.ginEngine.GET("/api/health", a.healthCheck)
}

func (a *App) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   a.config.Environment,
	})
}

// RegisterAPIRoutes wires the public and admin API.
//
// Routes registered:
//   - POST /api/v1/rewards/{scope}/spin       -> RewardsHandler.Spin
//   - GET  /api/v1/rewards/{scope}/catalog    -> RewardsHandler.GetCatalog
//   - GET  /api/v1/rewards/{scope}/pending    -> RewardsHandler.GetPending
//   - GET  /api/v1/rewards/{scope}/history    -> RewardsHandler.GetHistory
//   - POST /api/v1/prizes/{id}/claim          -> RewardsHandler.Claim
//   - POST /api/v1/jackpot/evaluate           -> JackpotHandler.Evaluate
//   - GET  /api/v1/jackpot/pools              -> JackpotHandler.ListPools
//   - GET  /api/v1/jackpot/pools/{id}         -> JackpotHandler.GetPoolAmount
//   - GET  /api/v1/jackpot/history            -> JackpotHandler.WinHistory
//   - GET  /api/v1/jackpot/updates            -> JackpotHandler.StreamUpdates (SSE)
//   - GET  /api/v1/jackpot/updates/ws         -> JackpotHandler.StreamUpdatesWebSocket
//   - /api/v1/admin/...                       -> AdminHandler (catalog, inventory, pools)
func (a *App) RegisterAPIRoutes() {
	api := a.ginEngine.Group("/api/v1")
	if a.config.Server.WriteTimeout > 0 {
		api.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: a.config.Server.WriteTimeout,
			SkipPaths: []string{
				"/api/v1/jackpot/updates",
				"/api/v1/jackpot/updates/ws",
			},
		}))
	}
	// The update streams stay open so browser EventSource clients, which
	// cannot set an Authorization header, can subscribe.
	jwtCfg := auth.DefaultJWTConfig(a.config.JWT.Secret)
	jwtCfg.SkipPaths = append(jwtCfg.SkipPaths,
		"/api/v1/jackpot/updates",
		"/api/v1/jackpot/updates/ws",
	)
	api.Use(auth.JWTMiddlewareWithConfig(jwtCfg, a.logger))
	{
		rewards := api.Group("/rewards/:scope")
		{
			rewards.POST("/spin", a.rewardsHandler.Spin)
			rewards.GET("/catalog", a.rewardsHandler.GetCatalog)
			rewards.GET("/pending", a.rewardsHandler.GetPending)
			rewards.GET("/history", a.rewardsHandler.GetHistory)
		}

		api.POST("/prizes/:id/claim", a.rewardsHandler.Claim)

		jp := api.Group("/jackpot")
		{
			jp.POST("/evaluate", a.jackpotHandler.Evaluate)
			jp.GET("/pools", a.jackpotHandler.ListPools)
			jp.GET("/pools/:id", a.jackpotHandler.GetPoolAmount)
			jp.GET("/history", a.jackpotHandler.WinHistory)
			jp.GET("/updates", a.jackpotHandler.StreamUpdates)
			jp.GET("/updates/ws", a.jackpotHandler.StreamUpdatesWebSocket)
		}

		a.adminHandler.Register(api.Group("/admin"))
	}

	a.logger.Info().Msg("API routes registered under /api/v1")
}

// Router returns the Gin engine for custom route registration
func (a *App) Router() *gin.Engine {
	return a.ginEngine
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run starts the HTTP server and blocks until an interrupt arrives.
func (a *App) Run() error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.ginEngine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	return a.waitForShutdown()
}

// RunWithContext starts the HTTP server and shuts down when ctx is done.
func (a *App) RunWithContext(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.ginEngine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errChan:
		return err
	}
}

func (a *App) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, fn := range a.onShutdown {
		fn()
	}

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error during server shutdown")
		return err
	}

	a.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.logger
}
