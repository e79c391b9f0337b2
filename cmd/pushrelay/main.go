// Command pushrelay signs and sends Web Push notifications on behalf of app
// servers that do not hold the VAPID keys.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/templui/accountable/internal/config"
	"github.com/templui/accountable/internal/db"
	"github.com/templui/accountable/internal/logger"
	"github.com/templui/accountable/internal/middleware"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
)

func main() {
	cfg := config.LoadRelay()

	logger.Init(logger.Options{
		Service:   "pushrelay",
		IsDev:     cfg.IsDevelopment(),
		Level:     cfg.LogLevel,
		SentryDSN: cfg.SentryDSN,
		Env:       cfg.AppEnv,
	})
	defer sentry.Flush(2 * time.Second)

	// The relay shares the app database only to prune gone subscriptions.
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeErr := database.Close()
		if closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	relay, err := push.NewRelay(push.NewWebPushSender(push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}), repository.NewPushSubscriptionRepository(database), cfg.PushRelaySecret)
	if err != nil {
		slog.Error("failed to initialize relay", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+push.SendPath, relay)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              ":" + cfg.PushRelayPort,
		Handler:           middleware.Chain(mux, middleware.RequestLogging),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("push relay starting", "port", cfg.PushRelayPort, "signed", cfg.PushRelaySecret != "")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("push relay failed", "error", err)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
