// Package main запускает локальный HTTP API клиента NexusPay.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/nexuspay-client/internal/config"
	"github.com/mmeshcher/nexuspay-client/internal/expiry"
	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/handler"
	"github.com/mmeshcher/nexuspay-client/internal/metrics"
	"github.com/mmeshcher/nexuspay-client/internal/mockapi"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/service"
	"github.com/mmeshcher/nexuspay-client/internal/session"
	"github.com/mmeshcher/nexuspay-client/internal/store"
	"github.com/mmeshcher/nexuspay-client/internal/wizard"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MockAPI {
		addr, err := serveMockAPI(ctx, g)
		if err != nil {
			sugar.Fatalw("mock api initialization error", "error", err.Error())
		}
		cfg.APIBaseURL = "http://" + addr
		cfg.AllowInsecure = true
		sugar.Infow("serving fake remote api", "addr", addr)
	}

	m := metrics.New()

	creds := gateway.NewCredentials(st)
	client, err := gateway.NewClient(gateway.Options{
		BaseURL:       cfg.APIBaseURL,
		AllowInsecure: cfg.AllowInsecure,
		Timeout:       cfg.RequestTimeout,
		Logger:        logger,
		Observer:      m,
	}, creds)
	if err != nil {
		sugar.Fatalw("api client initialization error", "error", err.Error())
	}

	feed := notify.NewFeed(0, logger)
	manager := session.NewManager(time.Now)
	sess := session.NewService(client, creds, st, manager, session.Options{Notifier: feed, Logger: logger})
	client.OnUnauthenticated(sess.HandleUnauthenticated)

	monitor := expiry.New(expiry.Config{
		SessionLength:    cfg.SessionLength,
		WarningLead:      cfg.SessionWarning,
		ActivityThrottle: cfg.ActivityThrottle,
	}, sess, manager, m, logger)

	svc := service.NewService(client, sess, monitor, st, feed, service.Options{
		PaymentMode:    wizard.Mode(cfg.PaymentMode),
		WizardObserver: m,
		Logger:         logger,
	})

	h := handler.NewHandler(svc, logger, m.Handler())

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Восстановление сессии из хранилища; до его окончания /api отвечает 503.
	// CSRF-токен запрашивается заранее, при неудаче его получит первый изменяющий запрос.
	g.Go(func() error {
		sess.Restore(ctx)
		sugar.Infow("session restored", "authenticated", manager.IsAuthenticated())
		if _, err := client.FetchCSRF(ctx); err != nil {
			sugar.Warnw("csrf token prefetch failed", "error", err.Error())
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Run(ctx)
	})

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		return m.WatchSessions(ctx, manager)
	})

	g.Go(func() error {
		sugar.Infow("starting nexuspay client", "addr", cfg.RunAddress, "api", cfg.APIBaseURL, "paymentMode", cfg.PaymentMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openStore выбирает хранилище: redis, если задан адрес, иначе файл в каталоге StoreDir.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.RedisAddr == "" {
		st, err := store.NewFile(cfg.StoreDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return store.NewRedis(rdb, "nexuspay:"), func() { _ = rdb.Close() }, nil
}

// serveMockAPI поднимает поддельный удалённый API на свободном локальном порту.
func serveMockAPI(ctx context.Context, g *errgroup.Group) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:           mockapi.New(mockapi.Options{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mock api error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return ln.Addr().String(), nil
}
