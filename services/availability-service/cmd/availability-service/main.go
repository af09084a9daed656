package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/waggytails/pawsched/libs/config"
	"github.com/waggytails/pawsched/libs/db"
	"github.com/waggytails/pawsched/libs/httpx"
	"github.com/waggytails/pawsched/libs/kafkax"
	otelx "github.com/waggytails/pawsched/libs/otel"
	"github.com/waggytails/pawsched/libs/runtime"
	"github.com/waggytails/pawsched/services/availability-service/internal/availability"
	"github.com/waggytails/pawsched/services/availability-service/internal/calendar"
	"github.com/waggytails/pawsched/services/availability-service/internal/events"
	"github.com/waggytails/pawsched/services/availability-service/internal/handlers"
	"github.com/waggytails/pawsched/services/availability-service/internal/prefs"
	"github.com/waggytails/pawsched/services/availability-service/internal/walklimit"
)

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "America/New_York"))
	if err != nil {
		logger.Error("invalid business timezone", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}

	icsURL, err := config.RequiredString("CALENDAR_ICS_URL")
	if err != nil {
		panic(err)
	}
	calendarID := config.String("CALENDAR_ID", "primary")
	feedCache := calendar.NewFeedCache(rdb,
		time.Duration(config.Int("CALENDAR_CACHE_TTL_SECONDS", 60))*time.Second, logger)
	calendarClient := calendar.NewClient(map[string]string{calendarID: icsURL}, feedCache, logger)

	limitChecker := walklimit.NewChecker(pool, config.Int("WALKS_PER_DAY_LIMIT", 2))
	prefsRepo := prefs.NewRepository(pool)

	resolver := availability.NewResolver(calendarClient, limitChecker, prefsRepo, logger, availability.Config{
		Location:             loc,
		CalendarID:           calendarID,
		WorkStartHour:        config.Int("WORK_START_HOUR", 8),
		WorkEndHour:          config.Int("WORK_END_HOUR", 20),
		SlotStep:             config.Minutes("SLOT_STEP_MINUTES", 30*time.Minute),
		TravelBuffer:         config.Minutes("TRAVEL_BUFFER_MINUTES", 15*time.Minute),
		ExtendedTravelBuffer: config.Minutes("EXTENDED_TRAVEL_BUFFER_MINUTES", 30*time.Minute),
		MaxWeeksAhead:        config.Int("MAX_WEEKS_AHEAD", 12),
		Concurrency:          int64(config.Int("RESOLVE_CONCURRENCY", 4)),
	})

	publisher := events.NewPublisher(config.String("KAFKA_BROKERS", ""), logger)
	defer func() { _ = publisher.Close() }()

	availabilityHandler := handlers.NewAvailabilityHandler(resolver, publisher, logger, loc)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/availability/recurring", availabilityHandler.Recurring)

	middlewares := []httpx.Middleware{
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64 << 10),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 60), time.Minute, "availability")
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		limiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 60), time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
