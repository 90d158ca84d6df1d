package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/internal/middleware"
	"github.com/chatroom/backend/internal/redislock"
	"github.com/chatroom/backend/internal/userdb"
	"github.com/chatroom/backend/pb"
)

const (
	registerLockTTL  = 5 * time.Second
	registerLockWait = 2 * time.Second
)

// accountStore is the slice of the user database the handlers need.
type accountStore interface {
	VerifyUser(ctx context.Context, username, password string) (int64, error)
	RegisterUser(ctx context.Context, username, password string) (int64, error)
}

// Server is the gateway HTTP service.
type Server struct {
	store    accountStore
	redis    *RedisMgr
	status   pb.StatusServiceClient
	locker   *redislock.Locker
	limiter  *middleware.RateLimiter
	metrics  *metrics.GatewayMetrics
	tokenTTL time.Duration
	// adminToken guards /kick; empty disables the endpoint.
	adminToken string
}

type Options struct {
	Store      accountStore
	Redis      *RedisMgr
	Status     pb.StatusServiceClient
	Locker     *redislock.Locker
	Limiter    *middleware.RateLimiter
	Metrics    *metrics.GatewayMetrics
	TokenTTL   time.Duration
	AdminToken string
}

func NewServer(opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 50 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewGatewayMetrics(prometheus.NewRegistry())
	}
	return &Server{
		store:      opts.Store,
		redis:      opts.Redis,
		status:     opts.Status,
		locker:     opts.Locker,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		tokenTTL:   opts.TokenTTL,
		adminToken: opts.AdminToken,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	limited := func(h http.HandlerFunc) http.Handler {
		if s.limiter == nil {
			return h
		}
		return s.limiter.Middleware(h)
	}
	r.Handle("/login", limited(s.handleLogin)).Methods(http.MethodPost)
	r.Handle("/register", limited(s.handleRegister)).Methods(http.MethodPost)
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/kick", s.handleKick).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

type credentialsReq struct {
	Username string `json:"username"`
	Passcode string `json:"passcode"`
}

type loginResp struct {
	Token      string `json:"token"`
	ServerAddr string `json:"server_addr"`
	UID        int64  `json:"uid"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	defer s.observe("login", time.Now())
	ctx := r.Context()

	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Passcode == "" {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	slog.Info("[Gateway] login attempt", "username", req.Username)
	uid, err := s.store.VerifyUser(ctx, req.Username, req.Passcode)
	switch {
	case errors.Is(err, userdb.ErrUnknownUser), errors.Is(err, userdb.ErrWrongPassword):
		// One answer for both, nothing to enumerate accounts with.
		slog.Info("[Gateway] incorrect login attempt", "username", req.Username)
		s.count(s.metrics.LoginTotal, "bad_credentials")
		writeError(w, http.StatusForbidden, "Incorrect login username or password")
		return
	case err != nil:
		slog.Error("[Gateway] login verification failed", "username", req.Username, "error", err)
		s.count(s.metrics.LoginTotal, "error")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	rpcResp, err := s.status.CheckMinimalLoadServer(ctx, &pb.MinimalLoadServerReq{})
	if err != nil {
		if grpcstatus.Code(err) == codes.NotFound {
			slog.Warn("[Gateway] no chat server available", "username", req.Username)
			s.count(s.metrics.LoginTotal, "no_server")
			writeError(w, http.StatusServiceUnavailable, "No chat server available")
			return
		}
		slog.Error("[Gateway] status RPC failed", "error", err)
		s.count(s.metrics.LoginTotal, "error")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	// Cache display data; losing it costs nothing but a lookup later.
	if err := s.redis.StoreUserInfo(ctx, uid, req.Username); err != nil {
		slog.Warn("[Gateway] userinfo cache write failed", "uid", uid, "error", err)
	}

	ok, occupiedBy, err := s.redis.ClaimUser(ctx, uid)
	if err != nil {
		slog.Error("[Gateway] claim failed", "uid", uid, "error", err)
		s.count(s.metrics.LoginTotal, "error")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !ok {
		slog.Info("[Gateway] duplicate login rejected", "uid", uid, "occupied_by", occupiedBy)
		s.count(s.metrics.LoginTotal, "conflict")
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "already logged in",
			"server_id": occupiedBy,
		})
		return
	}

	token, err := s.redis.MintToken(ctx, uid, s.tokenTTL)
	if err != nil {
		slog.Error("[Gateway] token mint failed", "uid", uid, "error", err)
		s.count(s.metrics.LoginTotal, "error")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	slog.Info("[Gateway] login ok", "username", req.Username, "uid", uid, "server", rpcResp.ServerAddr)
	s.count(s.metrics.LoginTotal, "ok")
	writeJSON(w, http.StatusOK, loginResp{Token: token, ServerAddr: rpcResp.ServerAddr, UID: uid})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	defer s.observe("register", time.Now())
	ctx := r.Context()

	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Passcode == "" {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	slog.Info("[Gateway] register attempt", "username", req.Username)
	if s.locker != nil {
		lockToken, err := s.locker.AcquireWait(ctx, "register:"+req.Username, registerLockTTL, registerLockWait)
		if err != nil {
			slog.Warn("[Gateway] register lock not acquired", "username", req.Username, "error", err)
			s.count(s.metrics.RegisterTotal, "error")
			writeError(w, http.StatusServiceUnavailable, "Try again later")
			return
		}
		defer func() {
			if _, err := s.locker.Release(context.Background(), "register:"+req.Username, lockToken); err != nil {
				slog.Warn("[Gateway] register lock release failed", "username", req.Username, "error", err)
			}
		}()
	}

	uid, err := s.store.RegisterUser(ctx, req.Username, req.Passcode)
	switch {
	case errors.Is(err, userdb.ErrUserExists):
		slog.Info("[Gateway] duplicated register attempt", "username", req.Username)
		s.count(s.metrics.RegisterTotal, "taken")
		writeError(w, http.StatusForbidden, "Username already exists")
		return
	case err != nil:
		slog.Error("[Gateway] register failed", "username", req.Username, "error", err)
		s.count(s.metrics.RegisterTotal, "error")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	slog.Info("[Gateway] register ok", "username", req.Username, "uid", uid)
	s.count(s.metrics.RegisterTotal, "ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": 0, "message": "success"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type kickReq struct {
	UID int64 `json:"uid"`
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	defer s.observe("kick", time.Now())
	if s.adminToken == "" || r.Header.Get("X-Admin-Token") != s.adminToken {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req kickReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	err := s.redis.KickUser(r.Context(), req.UID)
	if errors.Is(err, ErrUserOffline) {
		writeError(w, http.StatusNotFound, "User not online")
		return
	}
	if err != nil {
		slog.Error("[Gateway] kick failed", "uid", req.UID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	slog.Info("[Gateway] kick requested", "uid", req.UID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": 0, "message": "kick requested"})
}

func (s *Server) observe(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.HTTPDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (s *Server) count(vec *prometheus.CounterVec, label string) {
	vec.WithLabelValues(label).Inc()
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("[Gateway] response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
