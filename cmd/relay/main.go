package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hilthontt/remotepad/internal/infrastructure/configs"
	"github.com/hilthontt/remotepad/internal/infrastructure/events"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/messaging"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/remotepad/internal/infrastructure/repository"
	"github.com/hilthontt/remotepad/internal/infrastructure/tracing"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/presentation/api"
	"github.com/hilthontt/remotepad/internal/presentation/handler/health"
	"github.com/hilthontt/remotepad/internal/presentation/handler/relay"
	"github.com/hilthontt/remotepad/internal/presentation/handler/rooms"
)

func main() {
	configFlag := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := configs.Load(configs.DetermineConfigPath(*configFlag))
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(cfg.Logger.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.Tracing())
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "tracing init failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer shutdownTracer(context.Background())

	var roomEvents events.RoomEvents = events.Nop{}
	if cfg.AMQP.URI != "" {
		rmq, err := messaging.NewRabbitMQ(cfg.AMQP.URI, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal(logging.RabbitMQ, logging.Startup, "rabbitmq connect failed", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		defer rmq.Close()
		roomEvents = events.NewRoomPublisher(rmq)
	}

	m := metrics.New()
	limiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	registry := repository.NewRoomRegistry()

	core := ws.NewCore(ws.Options{
		Registry:      registry,
		Limiter:       limiter,
		Events:        roomEvents,
		Metrics:       m,
		Logger:        logger,
		SweepInterval: cfg.Rooms.SweepInterval,
		SendBuffer:    cfg.Rooms.SendBuffer,
	})
	go core.Run(ctx)

	app := api.NewApplication(
		cfg.HTTP,
		health.NewHandler(),
		relay.NewHandler(core, limiter, cfg.HTTP.AllowedOrigins, logger),
		logger,
		api.WithRooms(rooms.NewHandler(registry)),
		api.WithMetrics(m),
		api.WithRateLimiter(limiter),
	)

	if err := app.Run(ctx); err != nil {
		logger.Fatal(logging.General, logging.Shutdown, "server error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	<-core.Done()
}
