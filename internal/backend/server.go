package backend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatroom/backend/internal/config"
	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/pb"
)

// Server ties the chat server together: the TCP accept loop, the message
// worker, the mailbox consumer, the presence writer and the load reporter.
type Server struct {
	cfg      config.BackendConfig
	registry *Registry
	worker   *Worker
	mailbox  *Mailbox
	presence *Presence
	reporter *Reporter

	listener net.Listener
	stopped  sync.Once
	wg       sync.WaitGroup
}

func NewServer(cfg config.BackendConfig, rdb *redis.Client, status pb.StatusServiceClient, m *metrics.BackendMetrics) *Server {
	sid := strconv.FormatUint(uint64(cfg.ServerID), 10)
	registry := NewRegistry()
	redisMgr := NewRedisMgr(rdb)
	presence := NewPresence(sid, redisMgr, 0)
	return &Server{
		cfg:      cfg,
		registry: registry,
		worker:   NewWorker(sid, registry, redisMgr, presence, m),
		mailbox:  NewMailbox(sid, redisMgr, registry, m),
		presence: presence,
		reporter: NewReporter(cfg.ServerID, cfg.AdvertiseAddr, status, registry, m, 0),
	}
}

// Start registers with the status service, brings up the background loops
// and begins accepting connections. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := s.reporter.Register(regCtx)
	cancel()
	if err != nil {
		return err
	}

	if err := s.mailbox.Start(ctx); err != nil {
		return err
	}
	s.worker.Start()
	s.presence.Start()
	s.reporter.Start()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	slog.Info("[Server] accepting connections", "addr", ln.Addr().String(), "server_id", s.cfg.ServerID)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("[Server] accept failed", "error", err)
			continue
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	// Registry cleanup rides the worker's nil tombstone, so no onClose hook.
	sess := NewSession(conn, s.worker.Post, nil)
	s.registry.AddTemp(sess)
	slog.Debug("[Server] connection accepted", "remote", conn.RemoteAddr().String())
	go sess.Serve()
}

// Addr returns the bound listen address, useful when the config asked for
// port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts everything down: no new connections, all sessions closed, all
// background loops drained.
func (s *Server) Stop() {
	s.stopped.Do(func() {
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.registry.CloseAll()
		s.mailbox.Stop()
		s.reporter.Stop()
		s.presence.Stop()
		s.worker.Stop()
		s.wg.Wait()
		slog.Info("[Server] stopped")
	})
}
