package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"billtrack/api"
	"billtrack/cache"
	"billtrack/config"
	"billtrack/database"
	"billtrack/database/bills"
	"billtrack/database/transactions"
	"billtrack/llm"
	"billtrack/logger"
	"billtrack/recurring"
	"billtrack/service"
)

// App represents the main application
type App struct {
	config    *config.Config
	log       zerolog.Logger
	db        *database.Database
	feedDB    *database.DB
	redis     *cache.RedisClient
	service   *service.BillService
	scheduler *ScanScheduler
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		log:    logger.NewWithLevel(cfg.LogLevel),
	}
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// Service returns the bill service; valid after Init
func (a *App) Service() *service.BillService {
	return a.service
}

// Init connects the stores and builds the bill service
func (a *App) Init() error {
	// 1. Database Connection
	a.log.Info().Msg("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	if err := a.db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Transaction feed
	feedDB, err := database.NewConnection(a.Context(), database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("transaction feed connection failed: %w", err)
	}
	a.feedDB = feedDB

	// 3. Redis Connection
	a.log.Info().Msg("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		a.log.Warn().Msg("⚠️  Redis connection failed. Verdict cache and run lock disabled.")
	} else {
		a.redis = redisClient
	}

	// 4. Split advisor: rule only, or AI with rule fallback
	params := a.config.DetectionParams()
	var advisor recurring.ClusterSplitAdvisor
	if a.config.LLM.Enabled {
		client := llm.NewClient(a.config.LLM.Endpoint, a.config.LLM.APIKey, a.config.LLM.Model)
		ai := llm.NewSplitAdvisor(
			client,
			cache.NewVerdictCache(a.redis, a.config.LLM.CacheTTL()),
			llm.NewLimiter(a.config.LLM.CallsPerMinute, a.config.LLM.Burst),
		)
		advisor = recurring.NewFallbackAdvisor(ai, params, a.config.LLM.Timeout(), a.config.LLM.Retries)
		a.log.Info().Str("model", client.Model()).Msg("✅ AI split advisor ENABLED")
	} else {
		advisor = recurring.NewFallbackAdvisor(nil, params, 0, 0)
		a.log.Info().Msg("ℹ️  AI split advisor DISABLED, using amount rule")
	}

	a.service = service.NewBillService(
		recurring.NewEngine(params, advisor),
		recurring.NewLifecycleTracker(params),
		transactions.NewFeed(a.feedDB, a.config.FeedPageSize),
		bills.NewRepository(a.db.DB()),
		cache.NewRunLock(a.redis, cache.DefaultRunLockTTL),
		a.config.Scan.Workers,
	)
	return nil
}

// Context returns a background context carrying the application logger
func (a *App) Context() context.Context {
	return logger.WithContext(context.Background(), a.log)
}

// Serve starts the API server and the scan scheduler and blocks until an
// interrupt, then shuts down gracefully
func (a *App) Serve() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(a.Context())
	defer cancel()

	var wg sync.WaitGroup

	apiServer := api.NewServer(a.service, a.log)
	apiServer.SetHealthCheck("database", func(ctx context.Context) error {
		sqlDB, err := a.db.DB().DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	apiServer.SetHealthCheck("feed", a.feedDB.Ping)
	if a.redis != nil {
		apiServer.SetHealthCheck("redis", a.redis.Ping)
	}
	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			a.log.Error().Err(err).Msg("⚠️  API Server failed")
		}
	}()

	if a.config.Scan.Enabled {
		a.scheduler = NewScanScheduler(a.service, a.config.Scan.Interval(), a.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler.Start(ctx)
		}()
	} else {
		a.log.Info().Msg("ℹ️  Scheduled scan DISABLED")
	}

	err := a.gracefulShutdown(cancel, apiServer)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc, apiServer *api.Server) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	a.log.Info().Msg("🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.scheduler != nil {
			a.log.Info().Msg("📅 Stopping scan scheduler...")
			a.scheduler.Stop()
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Error stopping API server")
		}
		a.Close()
		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		a.log.Info().Msg("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		a.log.Warn().Msg("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// Close releases database and Redis connections
func (a *App) Close() {
	if a.feedDB != nil {
		if err := a.feedDB.Close(); err != nil {
			a.log.Error().Err(err).Msg("Error closing transaction feed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error().Err(err).Msg("Error closing database")
		} else {
			a.log.Info().Msg("✅ Database connection closed")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error().Err(err).Msg("Error closing redis")
		} else {
			a.log.Info().Msg("✅ Redis connection closed")
		}
	}
}
