// Command tube-server starts the account HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/tubeaccount/internal/assets"
	"github.com/and161185/tubeaccount/internal/config"
	"github.com/and161185/tubeaccount/internal/limiter"
	"github.com/and161185/tubeaccount/internal/migrate"
	"github.com/and161185/tubeaccount/internal/repository"
	"github.com/and161185/tubeaccount/internal/repository/memory"
	"github.com/and161185/tubeaccount/internal/repository/postgres"
	"github.com/and161185/tubeaccount/internal/server/health"
	"github.com/and161185/tubeaccount/internal/server/httpapi"
	"github.com/and161185/tubeaccount/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// memoryDSN selects the in-process store instead of PostgreSQL.
const memoryDSN = "memory"

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

// main parses configuration, runs migrations, and serves HTTP and gRPC health.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		// logger is not built yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("healthAddr", cfg.HealthAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users    repository.UserRepository
		channels repository.ChannelRepository
		lim      limiter.Limiter = limiter.Nop{}
		pinger   health.Pinger   = okPinger{}
	)
	if cfg.DSN == memoryDSN {
		logger.Warn("using in-memory store, data is lost on exit")
		store := memory.New()
		users, channels = store, store
	} else {
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("postgres.New", zap.Error(err))
		}
		defer db.Close()

		users, channels, pinger = postgres.NewUserRepo(db), postgres.NewChannelRepo(db), db
		if p := cfg.Limiter(); p.Enabled() {
			lim = limiter.NewPG(db.Pool, p)
		}
	}

	uploader, err := assets.Dial(ctx, cfg.Assets())
	if err != nil {
		logger.Fatal("asset host", zap.Error(err))
	}

	// Services
	tokenSvc := service.NewTokenService(users, service.TokenConfig{
		AccessSecret:  []byte(cfg.AccessSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshSecret: []byte(cfg.RefreshSecret),
		RefreshTTL:    cfg.RefreshTTL,
	})
	accountSvc := service.NewAccountService(users, tokenSvc, uploader, lim, logger)
	channelSvc := service.NewChannelService(channels)

	app := httpapi.New(accountSvc, tokenSvc, channelSvc, httpapi.Options{
		CookieSecure:   cfg.CookieSecure,
		PublicUserList: cfg.PublicUserList,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AccessTTL:      cfg.AccessTTL,
		RefreshTTL:     cfg.RefreshTTL,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
	}, logger).App()

	// Health
	monitor := health.NewMonitor(pinger, logger)
	go monitor.Run(ctx, 10*time.Second)
	hs := health.NewServer(monitor, logger, cfg.Dev)

	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("listen health", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
		if err := hs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			errCh <- err
		}
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		hs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		hs.Stop()
	}

	logger.Info("shutdown complete")
}
