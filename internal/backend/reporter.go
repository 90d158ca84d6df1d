package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/pb"
)

const (
	reportInterval = 15 * time.Second
	reportTimeout  = 5 * time.Second
)

// Reporter announces this server to the status service and keeps its load
// figure fresh. A NOT_FOUND answer means the status service evicted us (or
// restarted), so the reporter re-registers on the spot.
type Reporter struct {
	serverID uint32
	// advertiseAddr is handed to clients by the gateway; it must be
	// reachable from outside, not the bind address.
	advertiseAddr string
	status        pb.StatusServiceClient
	registry      *Registry
	metrics       *metrics.BackendMetrics
	interval      time.Duration

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewReporter(serverID uint32, advertiseAddr string, status pb.StatusServiceClient, registry *Registry, m *metrics.BackendMetrics, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = reportInterval
	}
	return &Reporter{
		serverID:      serverID,
		advertiseAddr: advertiseAddr,
		status:        status,
		registry:      registry,
		metrics:       m,
		interval:      interval,
		stop:          make(chan struct{}),
	}
}

// Register announces this server once. Called before accepting connections
// so the gateway can hand out our address from the first login on.
func (r *Reporter) Register(ctx context.Context) error {
	load := uint32(r.registry.TotalCount())
	_, err := r.status.RegisterServer(ctx, &pb.ServerRegisterReq{
		ServerID:   r.serverID,
		ServerAddr: r.advertiseAddr,
		Load:       load,
	})
	if err != nil {
		return err
	}
	slog.Info("[Reporter] registered with status service", "server_id", r.serverID, "addr", r.advertiseAddr, "load", load)
	return nil
}

func (r *Reporter) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Reporter) run() {
	defer r.wg.Done()
	slog.Info("[Reporter] heartbeat loop started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			slog.Info("[Reporter] heartbeat loop stopping")
			return
		case <-ticker.C:
			r.reportOnce()
		}
	}
}

func (r *Reporter) reportOnce() {
	verified, temp := r.registry.Counts()
	load := uint32(verified + temp)
	slog.Info("[Reporter] reporting load", "sessions", verified, "temp_sessions", temp)
	if r.metrics != nil {
		r.metrics.LoadReported.Set(float64(load))
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	_, err := r.status.ReportServerLoad(ctx, &pb.StatusReportReq{ServerID: r.serverID, Load: load})
	if err == nil {
		return
	}
	if grpcstatus.Code(err) == codes.NotFound {
		// Evicted for missing heartbeats; claim our slot back.
		slog.Warn("[Reporter] status service forgot us, re-registering", "server_id", r.serverID)
		if regErr := r.Register(ctx); regErr != nil {
			slog.Error("[Reporter] re-register failed", "error", regErr)
		}
		return
	}
	slog.Error("[Reporter] load report failed", "error", err)
}
