package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/hupe1980/caredesk"
	"github.com/hupe1980/caredesk/api"
	"github.com/hupe1980/caredesk/auth"
	"github.com/hupe1980/caredesk/config"
	"github.com/hupe1980/caredesk/events"
	"github.com/hupe1980/caredesk/lock"
	"github.com/hupe1980/caredesk/logging"
	"github.com/hupe1980/caredesk/metrics"
	"github.com/hupe1980/caredesk/model"
	"github.com/hupe1980/caredesk/model/anthropic"
	"github.com/hupe1980/caredesk/model/openai"
	"github.com/hupe1980/caredesk/scheduler"
	"github.com/hupe1980/caredesk/supportagent"
	"github.com/hupe1980/caredesk/telemetry"
	"github.com/hupe1980/caredesk/ticket"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the desk API, event stream and pickup sweeper",
		Example: `  caredesk serve
  caredesk serve --config=caredesk.yaml --addr=:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CAREDESK_CONFIG"), "YAML or JSON config file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		Component: "caredesk",
	})

	shutdownTracing, err := telemetry.Setup(ctx, func(o *telemetry.Options) {
		o.ServiceName = cfg.Telemetry.ServiceName
		o.Version = version
		o.Endpoint = cfg.Telemetry.OTLPEndpoint
		o.Insecure = cfg.Telemetry.Insecure
		o.SampleRatio = cfg.Telemetry.SampleRatio
		o.Logger = logger.WithComponent("telemetry")
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	tickets, closeTickets, err := openTicketStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeTickets()

	llm, err := newModel(cfg.LLM)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	bus := events.NewBus(func(o *events.BusOptions) { o.Logger = logger.WithComponent("events") })
	defer bus.Close()

	var publisher events.Publisher = bus
	if cfg.Events.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.Events.NATSURL, logger.WithComponent("nats"))
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()

		publisher = events.Fanout(bus, events.NewNATSPublisher(nc, func(o *events.NATSOptions) {
			o.SubjectPrefix = cfg.Events.SubjectPrefix
		}))
	}

	m := metrics.New()

	desk := caredesk.New(tickets, supportagent.NewFileStore(cfg.Storage.AgentsFile), llm, func(o *caredesk.Options) {
		o.MaxTurns = cfg.Desk.MaxTurns
		o.RunTimeout = cfg.Desk.RunTimeout.Std()
		o.MemoryLimit = cfg.Desk.MemoryLimit
		o.RecallLimit = cfg.Desk.RecallLimit
		o.MaxConcurrentRuns = cfg.LLM.MaxConcurrent
		o.Locker = locker
		o.Publisher = publisher
		o.Metrics = m
		o.Tracer = telemetry.Tracer()
		o.Logger = logger.WithComponent("desk")
	})

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, func(o *auth.Options) {
		o.Issuer = cfg.Auth.Issuer
		o.TokenTTL = cfg.Auth.TokenTTL.Std()
	})

	srv := api.New(desk, func(o *api.Options) {
		o.Logger = logger.WithComponent("http")
		o.Verifier = verifier
		o.Metrics = m
		o.Events = events.NewHub(bus, func(o *events.HubOptions) { o.Logger = logger.WithComponent("ws") })
		o.AllowedOrigins = cfg.Server.AllowedOrigins
		o.Tracing = cfg.Telemetry.OTLPEndpoint != ""
		o.Version = version
	})

	sweeper, err := scheduler.New(desk, func(ctx context.Context, ticketID, agentID string) error {
		_, err := desk.ProcessTicket(ctx, ticketID, agentID)
		return err
	}, func(o *scheduler.Options) {
		o.Schedule = cfg.Scheduler.Schedule
		o.AgentID = cfg.Scheduler.AgentID
		o.BatchSize = cfg.Scheduler.BatchSize
		o.Logger = logger.WithComponent("scheduler")
	})
	if err != nil {
		return err
	}

	go func() {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				if lvl, err := logging.ParseLevel(next.Logging.Level); err == nil {
					logger.SetLevel(lvl)
					logger.Info("log level reloaded", "level", lvl.String())
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "provider", cfg.LLM.Provider, "auth", verifier.Enabled())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(sctx)
}

func openTicketStore(cfg config.StorageConfig) (ticket.Store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := ticket.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return ticket.NewFileStore(cfg.TicketsFile), func() {}, nil
	}
}

func newModel(cfg config.LLMConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Model
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = sdk.Model(cfg.Model)
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func newLocker(cfg config.LockConfig) (lock.Locker, func(), error) {
	if cfg.Driver != "redis" {
		return lock.NewLocalLocker(), func() {}, nil
	}

	client, err := lock.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	return lock.NewRedisLocker(client, func(o *lock.RedisLockerOptions) {
		if ttl := cfg.TTL.Std(); ttl > 0 {
			o.TTL = ttl
		}
	}), func() { _ = client.Close() }, nil
}
