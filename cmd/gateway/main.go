package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/chatroom/backend/internal/config"
	"github.com/chatroom/backend/internal/gateway"
	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/internal/middleware"
	"github.com/chatroom/backend/internal/redislock"
	"github.com/chatroom/backend/internal/userdb"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := userdb.NewPool(ctx, cfg.Database.DSN, cfg.Database.PoolInitial, cfg.Database.PoolMax)
	cancel()
	if err != nil {
		slog.Error("database pool init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Stop()

	ids, err := userdb.NewSnowflake(cfg.Gateway.SnowflakeWorkerID)
	if err != nil {
		slog.Error("snowflake init failed", "error", err)
		os.Exit(1)
	}

	conn, err := pb.Dial(cfg.Status.RPCAddr)
	if err != nil {
		slog.Error("status service dial failed", "addr", cfg.Status.RPCAddr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxCallsPerMinute: cfg.Gateway.MaxCallsPerMinute,
	})
	defer limiter.Stop()

	server := gateway.NewServer(gateway.Options{
		Store:      userdb.NewStore(pool, ids),
		Redis:      gateway.NewRedisMgr(rdb),
		Status:     pb.NewStatusServiceClient(conn),
		Locker:     redislock.NewLocker(rdb),
		Limiter:    limiter,
		Metrics:    metrics.NewGatewayMetrics(prometheus.DefaultRegisterer),
		TokenTTL:   cfg.Token.TTL(),
		AdminToken: cfg.Gateway.AdminToken,
	})

	httpServer := &http.Server{
		Addr:         cfg.Gateway.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", "addr", cfg.Gateway.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}
