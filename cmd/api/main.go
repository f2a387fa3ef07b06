package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AyushPatel04/dental-chatbot/cmd/mainconfig"
	"github.com/AyushPatel04/dental-chatbot/internal/app/bootstrap"
	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental chatbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic", cfg.ClinicName,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	awsCfg, err := loadAWS(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildRuntime(ctx, cfg, awsCfg, newRegistry(), logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	go rt.Sessions.RunPruner(ctx, 0)

	srv := newServer(cfg, rt.Handler)

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error("failed to drain background work", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// loadAWS returns nil when nothing configured needs AWS.
func loadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*aws.Config, error) {
	if !bootstrap.NeedsAWS(cfg) {
		logger.Info("no AWS-backed components configured")
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &awsCfg, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newServer leaves WriteTimeout unset so websocket connections stay open;
// chat handlers are bounded by the collaborator timeout instead.
func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
