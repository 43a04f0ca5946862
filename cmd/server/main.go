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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/config"
	"github.com/vedran77/pulsechat/internal/database"
	"github.com/vedran77/pulsechat/internal/events"
	"github.com/vedran77/pulsechat/internal/observability"
	"github.com/vedran77/pulsechat/internal/redisx"
	postgresrepo "github.com/vedran77/pulsechat/internal/repository/postgres"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/handlers"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/internal/transport/ws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const relayTopic = "pulsechat:realtime"

func main() {
	cfg := config.Load()
	observability.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTELEndpoint, cfg.OTELServiceName, cfg.OTELSampleRatio)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	// Database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info().Str("host", cfg.DBHost).Msg("connected to database")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	channelRepo := postgresrepo.NewChannelRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	userService := service.NewUserService(userRepo)
	channelService := service.NewChannelService(channelRepo, userRepo)
	messageService := service.NewMessageService(messageRepo, channelService)

	publisher := events.NewPublisher(events.Config{
		Driver:       cfg.EventsDriver,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
	})
	defer publisher.Close()
	channelService.SetPublisher(publisher)
	messageService.SetPublisher(publisher)
	log.Info().Str("mode", events.Mode(publisher)).Msg("event publisher ready")

	// Realtime
	hub := ws.NewHub()
	var notifier service.Notifier = ws.NewHubNotifier(hub)

	var (
		relay   *redisx.Relay
		limiter *redisx.Limiter
	)
	if cfg.RedisURL != "" {
		rc, err := redisx.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		relay = redisx.NewRelay(rc, relayTopic, notifier)
		notifier = relay
		limiter = redisx.NewLimiter(rc)
		messageService.SetIdempotencyStore(redisx.NewIdempotencyStore(rc, 10*time.Minute))
		log.Info().Msg("redis relay enabled")
	}
	channelService.SetNotifier(notifier)
	messageService.SetNotifier(notifier)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	channelHandler := handlers.NewChannelHandler(channelService)
	messageHandler := handlers.NewMessageHandler(messageService)

	auth := middleware.Auth(cfg.JWTSecret)

	var sendMessage http.Handler = http.HandlerFunc(messageHandler.Send)
	if limiter != nil {
		keyFn := func(r *http.Request) string { return "send:" + middleware.GetUserID(r.Context()).String() }
		sendMessage = limiter.LimitHTTP(int64(cfg.RateLimitPerMinute), time.Minute, keyFn, sendMessage)
	}

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.Handle("GET /ws", ws.ServeWS(hub, cfg.JWTSecret, channelService, cfg.AllowedOrigins))

	// Protected - Users
	mux.Handle("GET /api/v1/users/me", auth(http.HandlerFunc(userHandler.Me)))
	mux.Handle("GET /api/v1/users/{id}", auth(http.HandlerFunc(userHandler.Get)))

	// Protected - Channels
	mux.Handle("POST /api/v1/channels", auth(http.HandlerFunc(channelHandler.Create)))
	mux.Handle("GET /api/v1/channels", auth(http.HandlerFunc(channelHandler.List)))
	mux.Handle("GET /api/v1/channels/lookup", auth(http.HandlerFunc(channelHandler.Lookup)))
	mux.Handle("GET /api/v1/channels/{id}", auth(http.HandlerFunc(channelHandler.Get)))
	mux.Handle("DELETE /api/v1/channels/{id}", auth(http.HandlerFunc(channelHandler.Delete)))

	// Protected - Channel Members
	mux.Handle("POST /api/v1/channels/{id}/members", auth(http.HandlerFunc(channelHandler.AddMember)))
	mux.Handle("GET /api/v1/channels/{id}/members", auth(http.HandlerFunc(channelHandler.ListMembers)))

	// Protected - Messages
	mux.Handle("GET /api/v1/channels/{id}/messages", auth(http.HandlerFunc(messageHandler.List)))
	mux.Handle("POST /api/v1/channels/{id}/messages", auth(sendMessage))

	handler := otelhttp.NewHandler(
		observability.HTTPMetrics(middleware.RequestLogger(middleware.CORS(cfg.AllowedOrigins)(mux))),
		"pulsechat",
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
