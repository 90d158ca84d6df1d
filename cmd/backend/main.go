package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/chatroom/backend/internal/backend"
	"github.com/chatroom/backend/internal/config"
	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/pb"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.Backend.ServerID == 0 {
		slog.Error("backend.server_id must be set and non-zero")
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	conn, err := pb.Dial(cfg.Status.RPCAddr)
	if err != nil {
		slog.Error("status service dial failed", "addr", cfg.Status.RPCAddr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	srv := backend.NewServer(cfg.Backend, rdb, pb.NewStatusServiceClient(conn),
		metrics.NewBackendMetrics(prometheus.DefaultRegisterer))
	if err := srv.Start(context.Background()); err != nil {
		slog.Error("server start failed", "error", err)
		os.Exit(1)
	}

	if cfg.Backend.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("metrics listening", "addr", cfg.Backend.MetricsAddr)
			if err := http.ListenAndServe(cfg.Backend.MetricsAddr, mux); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	srv.Stop()
}
