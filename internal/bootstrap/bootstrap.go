// Package bootstrap wires the infrastructure shared by the order and position
// processes: logging, broker, locks, auth and the HTTP server lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/lock"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/middleware"
)

// SetupLogging configures the global logger. Outside production it pretty
// prints with timestamps.
func SetupLogging(cfg *config.Config) {
	if !cfg.Production() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// NewPublisher returns a Kafka publisher when brokers are configured and an
// in-process MemoryBroker otherwise.
func NewPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.Kafka.Brokers) > 0 {
		return events.NewKafkaPublisher(cfg.Kafka.Brokers)
	}
	log.Warn().Msg("no kafka brokers configured, using in-process broker")
	return events.NewMemoryBroker()
}

// WireInProcess subscribes the trade reconciler and the position ledger on
// broker, so a trade-executed publish recalculates the position before
// Publish returns.
func WireInProcess(broker *events.MemoryBroker, topics events.Topics, tradeExecuted, recalculate events.Handler) {
	broker.Subscribe(topics.For(events.TypeTradeExecuted), tradeExecuted)
	broker.Subscribe(topics.For(events.TypeRecalculateRequested), recalculate)
}

// NewLocker returns a Redis-backed locker when redis.addr is set, for
// deployments with more than one replica, and an in-process one otherwise.
// The returned func releases its resources.
func NewLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client, cfg.Lock.TTL), func() { _ = client.Close() }, nil
}

// NewAuthService creates the token service. Outside production the test
// credentials are registered with every permission so the simulation can
// drive the internal endpoints.
func NewAuthService(cfg *config.Config) *auth.Service {
	service := auth.NewService(cfg.Auth.JWTSecret)
	if !cfg.Production() {
		service.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, auth.TestAccountID,
			auth.PermissionTrade, auth.PermissionInternal)
	}
	if cfg.Auth.InternalAPIKey != "" && cfg.Auth.InternalAPISecret != "" {
		service.RegisterAPICredentials(cfg.Auth.InternalAPIKey, cfg.Auth.InternalAPISecret, "internal",
			auth.PermissionInternal)
	}
	return service
}

// NewRouter returns an engine with the common middleware, /metrics and
// /healthz.
func NewRouter(db *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Serve runs handler on port until SIGINT or SIGTERM, then gives outstanding
// requests five seconds to finish.
func Serve(port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
