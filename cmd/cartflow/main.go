package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/cartflow/internal/cache"
	"github.com/fjod/cartflow/internal/catalog"
	"github.com/fjod/cartflow/internal/checkout"
	"github.com/fjod/cartflow/internal/config"
	apihttp "github.com/fjod/cartflow/internal/http"
	"github.com/fjod/cartflow/internal/identity"
	"github.com/fjod/cartflow/internal/observability"
	"github.com/fjod/cartflow/internal/orders"
	"github.com/fjod/cartflow/internal/publisher"
	"github.com/fjod/cartflow/internal/reconciler"
	"github.com/fjod/cartflow/internal/repository"
	"github.com/fjod/cartflow/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("cartflow stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cart store
	var repo repository.CartRepository
	switch cfg.CartStore {
	case config.StoreMemory:
		store := repository.NewMemoryStore(cfg.CartCleanupInterval)
		defer store.Close()
		repo = store
		logger.Info("using in-memory cart store")
	default:
		mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDBName,
			ConnectTimeout: cfg.MongoConnectTimeout,
			MaxPoolSize:    cfg.MongoMaxPoolSize,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := mongoDB.Client().Disconnect(disconnectCtx); err != nil {
				logger.Warn("failed to disconnect from MongoDB", zap.Error(err))
			}
		}()
		repo = repository.NewMongoRepository(mongoDB)
		if err := repository.EnsureIndexes(ctx, repo); err != nil {
			return fmt.Errorf("failed to create cart indexes: %w", err)
		}
		logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))
	}

	// Cart cache
	var cartCache cache.CartCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		cartCache = cache.NewRedisCache(redisClient, cfg.CacheTTL)
		logger.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	}

	// Products and pricing rules
	pricing, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer pricing.Close()
	if err := pricing.RunMigrations(); err != nil {
		return fmt.Errorf("failed to migrate catalog: %w", err)
	}

	carts := service.NewCartService(repo, cartCache, pricing, logger.Named("cart"))

	// Orders
	cred := &orders.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDBName,
		MigrationsDirPath: cfg.OrdersMigrationsDir,
	}
	orderRepo, err := orders.NewRepository(cred)
	if err != nil {
		return fmt.Errorf("failed to connect to orders database: %w", err)
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(cred); err != nil {
		return fmt.Errorf("failed to migrate orders database: %w", err)
	}
	placer := orders.NewBreakerPlacer(orderRepo, orders.BreakerSettings{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, logger)

	opts := checkout.DefaultOptions()
	opts.IdentityTimeout = cfg.IdentityTimeout
	opts.PricingTimeout = cfg.PricingTimeout
	opts.OrderTimeout = cfg.OrderTimeout
	opts.ClearTimeout = cfg.ClearTimeout

	// Order events
	if len(cfg.KafkaBrokers) > 0 {
		events := publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer events.Close()
		opts.Publisher = events

		rec := reconciler.NewReconciler(carts, cfg.KafkaTopic, logger, cfg.KafkaBrokers...)
		defer rec.Close()
		go rec.Run(ctx)
		logger.Info("order events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	orchestrator := checkout.NewOrchestrator(carts, identity.ContextProvider{}, pricing, placer, opts, logger.Named("checkout"))

	handler := apihttp.NewRouter(apihttp.RouterConfig{
		Cart:               carts,
		Checkout:           orchestrator,
		Verifier:           identity.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer),
		Logger:             logger,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: event streams stay open
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("cartflow listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

