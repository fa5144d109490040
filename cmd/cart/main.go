package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	c "github.com/fjod/cartql/internal/cache"
	"github.com/fjod/cartql/internal/config"
	"github.com/fjod/cartql/internal/events"
	"github.com/fjod/cartql/internal/graphql"
	cartgrpc "github.com/fjod/cartql/internal/grpc"
	h "github.com/fjod/cartql/internal/http"
	"github.com/fjod/cartql/internal/money"
	"github.com/fjod/cartql/internal/payment"
	"github.com/fjod/cartql/internal/repository"
	s "github.com/fjod/cartql/internal/service"
	"github.com/fjod/cartql/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(logger.Options{Service: "cart", Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("cart service stopped with error", zap.Error(err))
	}
	zl.Info("cart service stopped")
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer repo.Close(context.Background())

	itemCache, closeCache := openCache(ctx, cfg, zl)
	defer closeCache()

	formatter, err := money.NewFormatter(cfg.DefaultCurrency)
	if err != nil {
		return err
	}

	var provider s.PaymentProvider = payment.Disabled{}
	if cfg.StripeSecretKey != "" {
		provider = payment.NewStripeProvider(payment.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			APIURL:    cfg.StripeAPIURL,
			Timeout:   cfg.RequestTimeout,
		}, zl)
	} else {
		zl.Warn("STRIPE_SECRET_KEY is empty, checkout is disabled")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		zl.Info("publishing checkout events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	carts := s.NewCartService(repo, itemCache, zl)
	checkout := s.NewCheckoutService(carts, provider, publisher, s.CheckoutConfig{
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Currency:   formatter.DefaultCurrency(),
	}, zl)

	gql := graphql.NewServer(graphql.NewResolver(carts, checkout, formatter), zl)
	router := h.NewRouter(h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, gql, repo, zl)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	healthSrv := cartgrpc.NewHealthServer(repo, 10*time.Second, zl)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		zl.Info("grpc health server starting", zap.String("addr", lis.Addr().String()))
		return healthSrv.Serve(lis)
	})

	g.Go(func() error {
		healthSrv.Watch(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		healthSrv.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg *config.Config, zl *zap.Logger) (repository.CartRepository, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		repo, err := repository.NewPostgresRepository(&repository.Credentials{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
			repo.Close(ctx)
			return nil, err
		}
		zl.Info("connected to postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		return repo, nil

	case config.DriverSQLite:
		repo, err := repository.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
			repo.Close(ctx)
			return nil, err
		}
		zl.Info("opened sqlite store", zap.String("path", cfg.SQLitePath))
		return repo, nil

	default:
		db, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{
			URI:         cfg.MongoURI,
			Database:    cfg.MongoDBName,
			AppName:     "cart",
			MaxPoolSize: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		repo := repository.NewMongoRepository(db)
		if err := repository.EnsureIndexes(ctx, repo); err != nil {
			repo.Close(ctx)
			return nil, err
		}
		zl.Info("connected to mongodb", zap.String("db", cfg.MongoDBName))
		return repo, nil
	}
}

// openCache falls back to no caching when Redis is not configured or not
// reachable at startup.
func openCache(ctx context.Context, cfg *config.Config, zl *zap.Logger) (c.ItemCache, func()) {
	if cfg.RedisAddr == "" {
		return c.NoopCache{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zl.Warn("redis ping failed, running without cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		client.Close()
		return c.NoopCache{}, func() {}
	}
	zl.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	return c.NewRedisCache(client), func() { client.Close() }
}
