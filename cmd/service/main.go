package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ProgrammerXX1/plagio/internal/builder"
	"github.com/ProgrammerXX1/plagio/internal/catalog"
	"github.com/ProgrammerXX1/plagio/internal/search"
	"github.com/ProgrammerXX1/plagio/internal/service"
	svcanalytics "github.com/ProgrammerXX1/plagio/internal/service/analytics"
	svccache "github.com/ProgrammerXX1/plagio/internal/service/cache"
	svcconsumer "github.com/ProgrammerXX1/plagio/internal/service/consumer"
	"github.com/ProgrammerXX1/plagio/internal/service/ratelimit"
	"github.com/ProgrammerXX1/plagio/pkg/config"
	"github.com/ProgrammerXX1/plagio/pkg/health"
	"github.com/ProgrammerXX1/plagio/pkg/kafka"
	"github.com/ProgrammerXX1/plagio/pkg/logger"
	"github.com/ProgrammerXX1/plagio/pkg/metrics"
	"github.com/ProgrammerXX1/plagio/pkg/postgres"
	pkgredis "github.com/ProgrammerXX1/plagio/pkg/redis"
	"github.com/ProgrammerXX1/plagio/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting plagio service", "data_root", cfg.Service.DataRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker()

	svc := service.New(
		cfg.Service.DataRoot,
		builder.FromConfig(cfg.Builder),
		search.FromConfig(cfg.Search),
	).WithMetrics(m)

	if cfg.Postgres.Enabled {
		var pg *postgres.Client
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
			var err error
			pg, err = postgres.New(cfg.Postgres)
			return err
		})
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		store, err := catalog.New(pg.DB)
		if err != nil {
			slog.Error("failed to initialize catalog", "error", err)
			os.Exit(1)
		}
		svc.WithCatalog(store)
		checker.Register("postgres", health.PingCheck(pg.Ping))
		slog.Info("document catalog enabled", "host", cfg.Postgres.Host)
	}

	if cfg.Redis.Enabled {
		var rdb *pkgredis.Client
		err := resilience.Retry(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
			var err error
			rdb, err = pkgredis.NewClient(cfg.Redis)
			return err
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		svc.WithCache(svccache.New(rdb, cfg.Redis))
		checker.Register("redis", health.PingCheck(rdb.Ping))
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr)
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()

		collector := svcanalytics.NewCollector(producer, 0)
		collector.Start(ctx)
		defer collector.Close()
		svc.WithCollector(collector)

		ingest := svcconsumer.New(kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.CorpusIngest,
			svcconsumer.HandleMessage(svc),
		))
		go func() {
			if err := ingest.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"ingest_topic", cfg.Kafka.Topics.CorpusIngest,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	limiter := ratelimit.New(cfg.Service.RateWindow)
	handler := service.NewHandler(svc, limiter, cfg.Service.RateLimit)
	router := service.NewRouter(handler, checker, m, cfg.Service.RequestTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:      router,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
	}

	go func() {
		slog.Info("service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	slog.Info("service stopped")
}
