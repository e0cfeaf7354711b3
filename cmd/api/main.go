package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/news-agent/backend/internal/config"
	"github.com/zhouzirui/news-agent/backend/internal/handler"
	"github.com/zhouzirui/news-agent/backend/internal/handler/session"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/service/auth"
	"github.com/zhouzirui/news-agent/backend/internal/service/chat"
	"github.com/zhouzirui/news-agent/backend/internal/service/webhook"
	"github.com/zhouzirui/news-agent/backend/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err)
	}
	logger.Configure(cfg.LogLevel)

	authClient := auth.NewClient(cfg.Auth, nil)
	webhookClient := webhook.NewClient(cfg.Webhook, nil)
	chatService := chat.NewService(authClient, webhookClient)
	sessions := session.NewManager(cfg.Session, chatService)

	if cfg.Session.IdleTTL > 0 {
		go chatService.RunJanitor(ctx, janitorInterval(cfg.Session.IdleTTL), cfg.Session.IdleTTL)
	}

	router, err := handler.NewRouter(chatService, sessions, handler.Assets{
		Templates: web.Templates(),
		Static:    web.Static(),
	})
	if err != nil {
		logger.Fatal("failed to build router", "err", err)
	}

	startServer(ctx, cfg.Server, router)
}

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("news agent chat listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
