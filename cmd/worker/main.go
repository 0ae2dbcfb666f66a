package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/order"
	"github.com/noah-isme/backend-billing/internal/payment"
	"github.com/noah-isme/backend-billing/internal/resilience"
	"github.com/noah-isme/backend-billing/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "billing"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	registry, err := currency.New(currency.Config{
		Code:   cfg.CurrencyCode,
		Symbol: cfg.CurrencySymbol,
		Locale: cfg.CurrencyLocale,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise currency registry")
	}

	pg := store.NewPostgres(pool)
	bus := &events.Bus{Store: pg}

	gateway := payment.Mollie{
		APIKey:  cfg.MollieAPIKey,
		BaseURL: cfg.MollieBaseURL,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     resilience.NewBreaker("mollie", 5, 0.5, 30*time.Second, logger),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     cfg.GatewayTimeout,
		},
	}

	aggregator := &billing.Aggregator{
		Items:  pg,
		Orders: pg,
		Assembler: &billing.Assembler{
			Store:      pg,
			Gateway:    gateway,
			Registry:   registry,
			Events:     bus,
			Numbers:    order.NumberGenerator{Offset: cfg.OrderNumberOffset},
			WebhookURL: cfg.WebhookBaseURL + "/webhooks/mollie",
			Log:        logger,
		},
		Log: logger,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	mux := asynq.NewServeMux()
	mux.Handle(billing.TaskAggregate, billing.AggregateTaskHandler{Aggregator: aggregator, Log: logger})

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Logger:      asynqLogger{logger},
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger},
	})
	interval := cfg.AggregationInterval
	if interval < time.Minute {
		interval = time.Minute
	}
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", interval), billing.NewAggregateTask()); err != nil {
		logger.Fatal().Err(err).Msg("register aggregation schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal().Err(err).Msg("scheduler stopped")
		}
	}()

	logger.Info().Dur("interval", interval).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
