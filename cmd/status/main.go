package main

import (
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/chatroom/backend/internal/balance"
	"github.com/chatroom/backend/internal/config"
	"github.com/chatroom/backend/internal/status"
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

	balancer := balance.NewBalancer()
	mirror := status.NewMirror(balancer, status.NewRedisMgr(rdb), 10*time.Second)
	mirror.Start()
	defer mirror.Stop()

	grpcServer := grpc.NewServer()
	pb.RegisterStatusServiceServer(grpcServer, status.NewService(balancer, mirror))

	lis, err := net.Listen("tcp", cfg.Status.RPCAddr)
	if err != nil {
		slog.Error("rpc listen failed", "addr", cfg.Status.RPCAddr, "error", err)
		os.Exit(1)
	}

	if cfg.Status.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("metrics listening", "addr", cfg.Status.MetricsAddr)
			if err := http.ListenAndServe(cfg.Status.MetricsAddr, mux); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("status service listening", "addr", cfg.Status.RPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("rpc server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	grpcServer.GracefulStop()
}
