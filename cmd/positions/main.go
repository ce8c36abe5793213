package main

import (
	"context"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/bootstrap"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/positions"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/middleware"
)

// main runs the position ledger: the position API and the consumer of
// positions-recalculate-requested.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	bootstrap.SetupLogging(cfg)

	if len(cfg.Kafka.Brokers) == 0 {
		zlog.Fatal().Msg("kafka.brokers is required; without a broker the order server hosts the position ledger itself")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDatabase(cfg.Positions.Database, database.PositionLedger)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	locker, closeLocker, err := bootstrap.NewLocker(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize locker")
	}
	defer closeLocker()

	topic := events.TopicsFromConfig(cfg.Kafka.Topics).For(events.TypeRecalculateRequested)
	positionService := positions.NewService(db, locker, topic)

	consumer := events.NewConsumer(events.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Positions.GroupID,
		Topic:   topic,
	}, positionService.MessageHandler())
	defer consumer.Close()
	go consumer.Start(ctx)

	authService := bootstrap.NewAuthService(cfg)
	router := bootstrap.NewRouter(db)
	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", middleware.RateLimit(), auth.NewGinHandlers(authService).GenerateTokenHandler())
	positions.NewGinHandlers(positionService).Register(v1,
		gin.HandlersChain{middleware.JWTAuth(authService), middleware.RateLimit()},
		gin.HandlersChain{middleware.InternalAuth(authService), middleware.RateLimit()},
	)

	if err := bootstrap.Serve(cfg.Positions.HTTPPort, router); err != nil {
		zlog.Error().Err(err).Msg("Server stopped with error")
	}
	zlog.Info().Msg("Server exiting")
}
