package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"graphgen/app/bootstrap"
	"graphgen/app/config"
	"graphgen/internal/infrastructure/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	_ = godotenv.Load()

	cfg, err := config.LoadSandbox(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	executor, err := bootstrap.NewProcessExecutor(cfg.Sandbox, logger)
	if err != nil {
		log.Fatalf("sandbox: %v", err)
	}

	r := mux.NewRouter()
	transport.NewSandboxHandler(executor, cfg.Sandbox.MaxConcurrent, logger).RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Sandbox.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Sandbox.Timeout + 30*time.Second,
	}

	go func() {
		logger.Info("starting sandbox server",
			"addr", cfg.Sandbox.ListenAddr,
			"runtime", cfg.Sandbox.Runtime,
			"max_concurrent", cfg.Sandbox.MaxConcurrent,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("sandbox server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("sandbox server shutdown error", "err", err)
	}
	logger.Info("sandbox stopped")
}
