package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-arena/internal/bootstrap"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	app, err := bootstrap.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}

	wsSrv := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           app.WSHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := app.HTTP.ListenAndServe(cfg.HTTPAddr); err != nil {
			errCh <- err
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("listener_failed", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	// 소켓이 먼저 닫혀야 핸들러가 반환된다.
	app.Hub.CloseAll()
	if err := wsSrv.Shutdown(sctx); err != nil {
		logger.Warn("ws_shutdown", zap.Error(err))
	}
	if err := app.HTTP.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown", zap.Error(err))
	}
	if err := app.Close(); err != nil {
		logger.Warn("close_failed", zap.Error(err))
	}
}
