package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	sgr "github.com/foize/go.sgr"
	"github.com/hilthontt/remotepad/internal/infrastructure/configs"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/infrastructure/metrics"
	"github.com/hilthontt/remotepad/internal/infrastructure/qrterm"
	"github.com/hilthontt/remotepad/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/remotepad/internal/infrastructure/repository"
	"github.com/hilthontt/remotepad/internal/infrastructure/sink"
	"github.com/hilthontt/remotepad/internal/infrastructure/tracing"
	"github.com/hilthontt/remotepad/internal/infrastructure/tunnel"
	"github.com/hilthontt/remotepad/internal/infrastructure/ws"
	"github.com/hilthontt/remotepad/internal/motion"
	"github.com/hilthontt/remotepad/internal/pairing"
	"github.com/hilthontt/remotepad/internal/presentation/api"
	"github.com/hilthontt/remotepad/internal/presentation/handler/health"
	"github.com/hilthontt/remotepad/internal/presentation/handler/relay"
	"github.com/hilthontt/remotepad/internal/presentation/handler/rooms"
	"github.com/hilthontt/remotepad/internal/presentation/handler/settings"
	"github.com/hilthontt/remotepad/internal/transport"
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(logging.General, logging.Shutdown, "desktop stopped", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}

func run(ctx context.Context, cfg *configs.Config, logger logging.Logger) error {
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.Tracing())
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	input, closeInput, err := newInputSink(cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer closeInput()

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
		Metrics:       m,
		Logger:        logger,
		SweepInterval: cfg.Rooms.SweepInterval,
		SendBuffer:    cfg.Rooms.SendBuffer,
	})
	coreCtx, stopCore := context.WithCancel(context.Background())
	defer func() {
		stopCore()
		<-core.Done()
	}()
	go core.Run(coreCtx)

	opts := []api.Option{
		api.WithRooms(rooms.NewHandler(registry)),
		api.WithMetrics(m),
		api.WithRateLimiter(limiter),
	}

	var trigger sink.TriggerSink = sink.NewLog(logger)
	if cfg.OSC.Enabled {
		osc, err := sink.NewOSC(cfg.OSC.Host, cfg.OSC.Port, logger)
		if err != nil {
			return err
		}
		trigger = osc
		opts = append(opts, api.WithSettings(settings.NewHandler(osc)))
	}

	app := api.NewApplication(
		cfg.HTTP,
		health.NewHandler(),
		relay.NewHandler(core, limiter, cfg.HTTP.AllowedOrigins, logger),
		logger,
		opts...,
	)

	selector := transport.New(transport.Config{
		Port:           int(cfg.HTTP.Port),
		HostedRelayURL: cfg.Pairing.HostedRelayURL,
		TunnelEnabled:  cfg.Tunnel.Enabled,
		MaxAttempts:    cfg.Tunnel.MaxAttempt,
		RetryDelay:     cfg.Tunnel.RetryDelay,
	}, app.Server(), tunnel.NewLocaltunnel(cfg.Tunnel.Server, logger, tunnel.WithSubdomain(cfg.Tunnel.Subdomain)),
		transport.WithMetrics(m),
		transport.WithLogger(logger),
	)
	urls, cancelURLs := selector.Subscribe()
	defer cancelURLs()

	if err := selector.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := selector.Disconnect(); err != nil {
			logger.Warn(logging.Tunnel, logging.Shutdown, "transport shutdown", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}()

	binding, _ := selector.Binding()
	relayURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
	if binding.Hosted {
		relayURL = binding.PublicURL
	}

	dispatcher := pairing.NewDispatcher(input, trigger,
		pairing.WithGyro(motion.NewGyroFilter(motion.GyroConfig{
			DeadZone:    motion.DefaultGyroDeadZone,
			Sensitivity: cfg.Motion.Sensitivity,
		})),
		pairing.WithDispatchMetrics(m),
		pairing.WithDispatchLogger(logger),
	)
	host := pairing.NewHost(pairing.HostConfig{
		RelayURL:         relayURL,
		PublicURL:        binding.PublicURL,
		ClientBaseURL:    cfg.Pairing.ClientBaseURL,
		DefaultServerURL: cfg.Pairing.DefaultServerURL,
	}, dispatcher, logger)

	events, cancelEvents := host.Events()
	defer cancelEvents()

	if err := host.Start(ctx); err != nil {
		return err
	}
	defer host.Close()

	commands := readCommands(ctx)
	reconnected := make(chan struct{})
	reconnecting := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case u, ok := <-urls:
			if !ok {
				urls = nil
				continue
			}
			if !binding.Hosted {
				host.SetPublicURL(u.URL)
			}

		case e, ok := <-events:
			if !ok {
				return nil
			}
			show(e)
			if e.Kind == pairing.EventStateChanged && e.State == pairing.Disconnected && !reconnecting {
				reconnecting = true
				go func() {
					reconnect(ctx, host, logger)
					select {
					case reconnected <- struct{}{}:
					case <-ctx.Done():
					}
				}()
			}

		case <-reconnected:
			reconnecting = false

		case cmd := <-commands:
			switch cmd {
			case "r", "regenerate":
				if reconnecting {
					fmt.Println("reconnecting to the relay, please wait")
					continue
				}
				rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := host.Regenerate(rctx); err != nil {
					fmt.Printf("%scould not regenerate:%s %v\n", sgr.FgRed, sgr.Reset, err)
				}
				cancel()
			case "q", "quit":
				return nil
			}
		}
	}
}

// reconnect redials the relay with exponential backoff until a new room is
// issued or ctx ends.
func reconnect(ctx context.Context, host *pairing.Host, logger logging.Logger) {
	op := func() (struct{}, error) {
		if err := host.Start(ctx); err != nil {
			logger.Warn(logging.Pairing, logging.Reconnect, "relay reconnect failed", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, _ = backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(0),
	)
}

func newInputSink(cfg configs.SinkConfig, logger logging.Logger) (sink.InputSink, func(), error) {
	if cfg.Driver != "uinput" {
		return sink.NewLog(logger), func() {}, nil
	}

	u, err := sink.NewUInput("remotepad")
	if err != nil {
		return nil, nil, fmt.Errorf("uinput sink: %w", err)
	}
	return u, func() { _ = u.Close() }, nil
}

func show(e pairing.Event) {
	switch e.Kind {
	case pairing.EventCodeIssued:
		fmt.Println()
		_ = qrterm.Print(os.Stdout, e.URL)
		fmt.Printf("%s  code %s%s  (r to regenerate, q to quit)\n", sgr.FgGreen+sgr.Bold, e.Code, sgr.Reset)
	case pairing.EventClientJoined:
		fmt.Printf("%sphone connected%s\n", sgr.FgGreen, sgr.Reset)
	case pairing.EventPeerDisconnected:
		fmt.Printf("%sphone disconnected%s, code still valid\n", sgr.FgYellow, sgr.Reset)
	case pairing.EventRoomExpired:
		fmt.Printf("%scode %s expired%s, issuing a new one\n", sgr.FgYellow, e.Code, sgr.Reset)
	case pairing.EventStateChanged:
		if e.Err != nil {
			fmt.Printf("%srelay connection %s:%s %v\n", sgr.FgRed, e.State, sgr.Reset, e.Err)
		}
	}
}

func readCommands(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case out <- strings.ToLower(strings.TrimSpace(sc.Text())):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
