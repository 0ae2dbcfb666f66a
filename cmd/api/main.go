package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-billing/internal/auth"
	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/health"
	"github.com/noah-isme/backend-billing/internal/lock"
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
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "billing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "billing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !cfg.SkipMigrations {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "billing-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

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

	gatewayClient := &resilience.HTTPClient{
		Client:      &http.Client{},
		Breaker:     resilience.NewBreaker("mollie", 5, 0.5, 30*time.Second, logger),
		BaseBackoff: 200 * time.Millisecond,
		MaxAttempts: 3,
		Jitter:      0.2,
		Timeout:     cfg.GatewayTimeout,
	}
	gateway := payment.Mollie{
		APIKey:  cfg.MollieAPIKey,
		BaseURL: cfg.MollieBaseURL,
		HTTP:    gatewayClient,
	}

	assembler := &billing.Assembler{
		Store:      pg,
		Gateway:    gateway,
		Registry:   registry,
		Events:     bus,
		Numbers:    order.NumberGenerator{Offset: cfg.OrderNumberOffset},
		WebhookURL: cfg.WebhookBaseURL + "/webhooks/mollie",
		Log:        logger,
	}
	aggregator := &billing.Aggregator{
		Items:     pg,
		Orders:    pg,
		Assembler: assembler,
		Log:       logger,
	}
	reconciler := &billing.Reconciler{
		Orders:  pg,
		Gateway: gateway,
		Locks:   lock.Locker{R: redisClient},
		Events:  bus,
		LockTTL: cfg.ReconcileLockTTL,
		Log:     logger,
	}
	webhookHandler := billing.WebhookHandler{
		Reconciler: reconciler,
		Debug:      cfg.Debug && cfg.IsDevelopment(),
		Log:        logger,
	}
	apiHandler := &billing.Handler{
		Items:      pg,
		Orders:     pg,
		Registry:   registry,
		Aggregator: aggregator,
		Validate:   validator.New(),
		Log:        logger,
	}
	authMiddleware := auth.Middleware{Verifier: auth.Verifier{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
	}}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	rateStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: "billing:ratelimit",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	rateMiddleware := limiterstdlib.NewMiddleware(limiter.New(rateStore, limiter.Rate{
		Period: cfg.RateLimitPeriod,
		Limit:  cfg.RateLimitMax,
	}))

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker: health.Probes{Pool: pool, Redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	if !cfg.SkipRoutes {
		r.Mount("/webhooks", webhookHandler.Routes())
		r.Route("/api/v1", func(v chi.Router) {
			v.Use(rateMiddleware.Handler)
			v.Use(authMiddleware.RequireAuth)
			v.With(idem.Middleware).Post("/items", apiHandler.ScheduleItem)
			v.Get("/orders", apiHandler.ListOrders)
			v.Get("/orders/{orderID}", apiHandler.GetOrder)
			v.Post("/admin/aggregate", apiHandler.RunAggregation)
		})
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
