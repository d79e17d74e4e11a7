package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"payflow/internal/audit"
	"payflow/internal/banking"
	"payflow/internal/events"
	"payflow/internal/jwt_token"
	"payflow/internal/payment/cache"
	"payflow/internal/payment/handler"
	paymentmetrics "payflow/internal/payment/metrics"
	"payflow/internal/payment/secrets"
	"payflow/internal/payment/service"
	"payflow/internal/payment/store"
	"payflow/internal/platform/config"
	"payflow/internal/platform/httpserver"
	"payflow/internal/platform/logger"
	platformmetrics "payflow/internal/platform/metrics"
	"payflow/internal/platform/postgres"
	"payflow/internal/platform/redis"
	httptransport "payflow/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres is required; schema is applied at startup so a fresh database
	// is usable without external tooling.
	pool, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.ApplyMigrations(ctx); err != nil {
		return err
	}

	// Redis is optional; without it the status cache stays in-process.
	var statusCache cache.StatusCache
	var closeCache func()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		statusCache = cache.NewRedis(redisClient.Client, cfg.Cache.TTL)
		log.Info("status cache backed by redis")
	} else {
		memCache := cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxSize)
		closeCache = memCache.Close
		statusCache = memCache
		log.Info("status cache in-process", "max_size", cfg.Cache.MaxSize)
	}
	if closeCache != nil {
		defer closeCache()
	}

	// Kafka is optional; without brokers events fan out in-process only.
	var publisher service.EventPublisher
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err = events.NewKafkaPublisher(ctx, cfg.Kafka, log)
		if err != nil {
			return err
		}
		publisher = kafkaPublisher
		log.Info("event publishing to kafka", "brokers", cfg.Kafka.Brokers)
	} else {
		publisher = events.NewMemoryBus(log)
		log.Info("event publishing in-process only")
	}

	// Audit appends run off the request path through a buffered channel.
	auditChannel, auditInbox := audit.NewChannelStore(audit.NewPostgres(pool), 256)
	auditWorker := audit.NewWorker(audit.NewPostgres(pool), auditInbox, log)
	auditor := audit.NewPublisher(auditChannel)

	vault, err := secrets.NewVault(cfg.Secrets.EncryptionKey)
	if err != nil {
		return err
	}

	bank := banking.NewClient(cfg.Banking, log, banking.NewMetrics())

	svc, err := service.New(store.NewPostgres(pool), statusCache, bank, vault,
		service.WithLogger(log),
		service.WithEventPublisher(publisher),
		service.WithAuditPublisher(auditor),
		service.WithMetrics(paymentmetrics.New()),
		service.WithTransactionExpiry(config.TransactionExpiry),
	)
	if err != nil {
		return err
	}

	health := httptransport.NewHealthHandler(2 * time.Second)
	health.Register("database", pool)
	health.Register("banking", bank)
	if redisClient != nil {
		health.Register("redis", redisClient)
	}
	if kafkaPublisher != nil {
		health.Register("kafka", kafkaPublisher)
	}

	router := httptransport.NewRouter(httptransport.Config{
		Payments:       handler.New(svc, log),
		Health:         health,
		TokenValidator: jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
		Metrics:        platformmetrics.New(),
		Logger:         log,
		Version:        cfg.Server.Version,
		RequestTimeout: 60 * time.Second,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := auditWorker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := service.NewExpirer(svc, cfg.Expiry.SweepInterval, cfg.Expiry.BatchSize).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		log.Info("starting payflow", "addr", cfg.Server.Addr, "version", cfg.Server.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if kafkaPublisher != nil {
			return kafkaPublisher.Close(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
