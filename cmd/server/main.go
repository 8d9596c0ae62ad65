package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"codeshare/internal/activity"
	"codeshare/internal/api"
	"codeshare/internal/config"
	"codeshare/internal/routers"
	"codeshare/internal/session"
	"codeshare/internal/utils"
)

var (
	listenAndServe           = serve
	exitFunc                 = defaultExit
	exit                     = os.Exit
	stderr         io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	instanceID := uuid.NewString()
	logger, err := utils.NewLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = logger.With("instance", instanceID)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pub activity.Publisher = activity.Nop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		redisPub := activity.NewRedisPublisher(rdb, cfg.ActivityChannel, instanceID, logger)
		go redisPub.Run(ctx)
		pub = redisPub
		logger.Info("publishing session activity", "redis", cfg.RedisAddr, "channel", redisPub.Channel())
	}

	hub := session.NewHub(session.NewStore(), logger, pub, session.Options{
		IdleTTL:       cfg.SessionIdleTTL,
		SweepInterval: cfg.EvictionInterval,
	})
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)
	r.Mount("/", routers.New(logger, hub, api.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		ClientSendBuffer: cfg.ClientSendBuffer,
	}))

	if cfg.AllowsAnyOrigin() {
		logger.Warn("accepting websocket connections from any origin")
	}
	logger.Info("codeshare listening", "addr", cfg.Addr(), "idleTTL", cfg.SessionIdleTTL.String())
	return listenAndServe(ctx, cfg.Addr(), r)
}

// serve runs the HTTP server until it fails or ctx is cancelled, then shuts
// down gracefully.
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func defaultExit(err error) {
	fmt.Fprintln(stderr, "codeshare:", err)
	exit(1)
}
