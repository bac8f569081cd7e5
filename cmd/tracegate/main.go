package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tracegate/tracegate/internal/audit"
	"github.com/tracegate/tracegate/internal/config"
	"github.com/tracegate/tracegate/internal/logger/zap"
	"github.com/tracegate/tracegate/internal/server/web/proxy"
	"github.com/tracegate/tracegate/internal/telemetry/prometheus"
	"github.com/tracegate/tracegate/internal/telemetry/stats"
	"github.com/tracegate/tracegate/internal/upstream"
)

func main() {
	modePtr := flag.String("m", "dev", "select the mode that tracegate runs in")
	flag.Parse()

	lg := zap.NewLogger(*modePtr)

	gin.SetMode(gin.ReleaseMode)

	_ = godotenv.Load()

	cfg, err := config.ParseEnvVariables()
	if err != nil {
		lg.Fatalf("cannot parse environment variables: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		lg.Fatalf("invalid configuration: %v", err)
	}

	err = stats.InitializeClient(stats.Config{
		Enabled: cfg.StatsEnabled,
		Address: cfg.StatsAddress,
	})
	if err != nil {
		lg.Fatalf("cannot initialize statsd client: %v", err)
	}

	if cfg.MetricsEnabled {
		go func() {
			if err := prometheus.Run(cfg.MetricsPort); err != nil {
				lg.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	store, err := audit.NewStore(cfg.LogsDir)
	if err != nil {
		lg.Fatalf("cannot initialize audit log store: %v", err)
	}

	targets := upstream.NewRegistry(
		upstream.Target{
			Name:       "openai",
			BaseUrl:    cfg.OpenAiBaseUrl,
			Credential: cfg.OpenAiKey,
		},
		upstream.Target{
			Name:       "qwen",
			BaseUrl:    cfg.QwenBaseUrl,
			Credential: cfg.QwenKey,
		},
	)

	ps, err := proxy.NewProxyServer(lg, *modePtr, targets, store, cfg.Port, cfg.UpstreamTimeout, cfg.AuditBestEffort)
	if err != nil {
		lg.Fatalf("error creating proxy http server: %v", err)
	}

	ps.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Infof("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ps.Shutdown(ctx); err != nil {
		lg.Debugf("proxy server shutdown: %v", err)
	}

	lg.Infof("server exited")
}
