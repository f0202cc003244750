package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/counterpos/api/controllers"
	"github.com/angelmondragon/counterpos/api/routes"
	"github.com/angelmondragon/counterpos/internal/catalog"
	"github.com/angelmondragon/counterpos/internal/checkout"
	"github.com/angelmondragon/counterpos/internal/customers"
	"github.com/angelmondragon/counterpos/internal/promotions"
	"github.com/angelmondragon/counterpos/internal/sales"
	"github.com/angelmondragon/counterpos/internal/sessions"
	"github.com/angelmondragon/counterpos/internal/stock"
	"github.com/angelmondragon/counterpos/internal/terminal"
	"github.com/angelmondragon/counterpos/pkg/config"
	"github.com/angelmondragon/counterpos/pkg/db"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/metrics"
	"github.com/angelmondragon/counterpos/pkg/migrate"
	"github.com/angelmondragon/counterpos/pkg/outbox"
	"github.com/angelmondragon/counterpos/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency replay and promotion cache disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, reg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"dialect":  dbClient.Dialect(),
		"timezone": cfg.App.Location().String(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := server.Shutdown(shutdownCtx)
	if redisClient != nil {
		closeErr = multierr.Append(closeErr, redisClient.Close())
	}
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		logg.Error(ctx, "error during shutdown", closeErr)
		exitCode = 1
	}

	logg.Info(ctx, "api server stopped")
	os.Exit(exitCode)
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg *prometheus.Registry) (routes.Dependencies, error) {
	posMetrics := metrics.NewPOSMetrics(reg)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	loc := cfg.App.Location()

	// Interfaces stay nil without redis so collaborators fall back to memory.
	var (
		cache     redis.Cache
		idemStore redis.IdempotencyStore
		readiness = []controllers.Dependency{{Name: "database", Pinger: dbClient}}
		deps      routes.Dependencies
	)
	if redisClient != nil {
		cache = redisClient
		idemStore = redisClient
		deps.RateLimiter = redisClient
		readiness = append(readiness, controllers.Dependency{Name: "redis", Pinger: redisClient})
	}

	sessionManager, err := sessions.NewManager(sessions.ManagerParams{
		DB:      dbClient.DB(),
		Tx:      dbClient,
		Outbox:  emitter,
		Metrics: posMetrics,
		Logger:  logg,
	})
	if err != nil {
		return deps, err
	}

	ledger, err := stock.NewLedger(stock.LedgerParams{
		DB:      dbClient.DB(),
		Tx:      dbClient,
		Outbox:  emitter,
		Metrics: posMetrics,
		Logger:  logg,
	})
	if err != nil {
		return deps, err
	}

	accounts, err := customers.NewAccounts(dbClient.DB())
	if err != nil {
		return deps, err
	}

	productRepo := catalog.NewRepository(dbClient.DB())
	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Tx:     dbClient,
		Repo:   productRepo,
		Stock:  ledger,
		Logger: logg,
	})
	if err != nil {
		return deps, err
	}

	promoRepo := promotions.NewRepository(dbClient.DB())
	promoSource := promotions.NewSource(promoRepo, cache, cfg.Promotions.CacheTTL, logg)
	promoService, err := promotions.NewService(promotions.ServiceParams{
		Tx:       dbClient,
		Repo:     promoRepo,
		Source:   promoSource,
		Outbox:   emitter,
		Logger:   logg,
		Location: loc,
	})
	if err != nil {
		return deps, err
	}

	salesRepo := sales.NewRepository(dbClient.DB())
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:         dbClient,
		Catalog:    productRepo,
		Promotions: promoSource,
		Sessions:   sessionManager,
		Stock:      ledger,
		Sales:      salesRepo,
		Customers:  accounts,
		Outbox:     emitter,
		Metrics:    posMetrics,
		Logger:     logg,
		Location:   loc,
	})
	if err != nil {
		return deps, err
	}

	salesService, err := sales.NewService(sales.ServiceParams{
		Repo:    salesRepo,
		Tx:      dbClient,
		Stock:   ledger,
		Debts:   accounts,
		Outbox:  emitter,
		Metrics: posMetrics,
		Logger:  logg,
	})
	if err != nil {
		return deps, err
	}

	deps.Ready = readiness
	deps.Sessions = sessionManager
	deps.Terminals = terminal.NewRegistry(cache, terminal.DefaultStateTTL, logg)
	deps.Products = productRepo
	deps.Catalog = catalogService
	deps.Checkout = checkoutService
	deps.Sales = salesService
	deps.Stock = ledger
	deps.Customers = accounts
	deps.Promotions = promoService
	deps.Idempotency = idemStore
	deps.Metrics = reg
	return deps, nil
}
