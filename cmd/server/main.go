package main

import (
	"context"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/bootstrap"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/clearing"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/execution"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/positions"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/trading"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/middleware"
)

// main runs the order and execution API, the outbox relay and the
// trade-executed reconciler. Without Kafka it also hosts the position ledger
// behind the in-process broker, so a single process covers the whole flow.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	bootstrap.SetupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schemas := []database.Schema{database.OrderLedger}
	publisher := bootstrap.NewPublisher(cfg)
	broker, inProcess := publisher.(*events.MemoryBroker)
	if inProcess {
		schemas = append(schemas, database.PositionLedger)
	}

	db, err := database.NewDatabase(cfg.Database, schemas...)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer publisher.Close()

	locker, closeLocker, err := bootstrap.NewLocker(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize locker")
	}
	defer closeLocker()

	topics := events.TopicsFromConfig(cfg.Kafka.Topics)
	outbox := events.NewOutboxStore(db)
	dispatcher := events.NewDispatcher(publisher, topics, outbox)

	relay := events.NewRelay(outbox, publisher, topics, events.RelayConfig{
		Interval:   cfg.Outbox.RelayInterval,
		RetryAfter: cfg.Outbox.RetryAfter,
		BatchSize:  cfg.Outbox.BatchSize,
	})
	go relay.Start(ctx)

	authService := bootstrap.NewAuthService(cfg)
	tradingService := trading.NewService(db, locker)
	executionService := execution.NewService(db, locker, cfg.Fill.Mode)
	clearingService := clearing.NewService(db, publisher, topics)

	var positionHandlers *positions.GinHandlers
	if inProcess {
		positionService := positions.NewService(db, locker, topics.For(events.TypeRecalculateRequested))
		bootstrap.WireInProcess(broker, topics, clearingService.TradeExecutedHandler(), positionService.MessageHandler())
		positionHandlers = positions.NewGinHandlers(positionService)
	} else {
		consumer := events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   topics.For(events.TypeTradeExecuted),
		}, clearingService.TradeExecutedHandler())
		defer consumer.Close()
		go consumer.Start(ctx)
	}

	router := bootstrap.NewRouter(db)
	setupRoutes(router, authService,
		auth.NewGinHandlers(authService),
		trading.NewGinHandlers(tradingService, dispatcher),
		execution.NewGinHandlers(executionService, dispatcher),
		clearing.NewGinHandlers(clearingService),
		positionHandlers,
	)

	if err := bootstrap.Serve(cfg.HTTP.Port, router); err != nil {
		zlog.Error().Err(err).Msg("Server stopped with error")
	}
	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints. Order and query routes need a
// bearer token; internal routes also need the internal permission. Rate
// limits apply after authentication so they are counted per account.
// positionHandlers is nil when the position ledger runs in its own process.
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	executionHandlers *execution.GinHandlers,
	clearingHandlers *clearing.GinHandlers,
	positionHandlers *positions.GinHandlers,
) {
	authenticated := gin.HandlersChain{middleware.JWTAuth(authService), middleware.RateLimit()}
	internalOnly := gin.HandlersChain{middleware.InternalAuth(authService), middleware.RateLimit()}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", middleware.RateLimit(), authHandlers.GenerateTokenHandler())

		orders := v1.Group("/orders")
		orders.Use(authenticated...)
		{
			orders.POST("", tradingHandlers.CreateOrderHandler())
			orders.GET("", tradingHandlers.ListOrdersHandler())
			orders.GET("/:order_id", tradingHandlers.GetOrderHandler())
			orders.PUT("/:order_id", tradingHandlers.UpdateOrderHandler())
			orders.DELETE("/:order_id", tradingHandlers.DeleteOrderHandler())
			orders.POST("/:order_id/cancel", tradingHandlers.CancelOrderHandler())
			orders.GET("/:order_id/executions", executionHandlers.OrderExecutionsHandler())
			orders.GET("/:order_id/executions/last", executionHandlers.LastExecutionHandler())
		}

		instruments := v1.Group("/instruments")
		instruments.Use(authenticated...)
		{
			instruments.GET("/:instrument_id/orders", tradingHandlers.ListInstrumentOrdersHandler())
		}

		executions := v1.Group("/executions")
		executions.Use(authenticated...)
		{
			executions.GET("", executionHandlers.AccountExecutionsHandler())
			executions.GET("/:trade_id", executionHandlers.GetExecutionHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(internalOnly...)
		{
			internal.POST("/executions", executionHandlers.ExecuteHandler())
			internal.POST("/orders/:order_id/reject", tradingHandlers.RejectOrderHandler())
			internal.POST("/orders/:order_id/fail", tradingHandlers.FailOrderHandler())
			internal.POST("/reconcile", clearingHandlers.ReconcileHandler())
		}

		if positionHandlers != nil {
			positionHandlers.Register(v1, authenticated, internalOnly)
		}
	}
}
