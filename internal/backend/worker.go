package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/internal/protocol"
)

const (
	workerQueueLen = 1024
	redisOpTimeout = 3 * time.Second
)

type post struct {
	sess  *Session
	frame *protocol.Frame // nil is the disconnect tombstone
}

// Worker is the single consumer of inbound frames. Every session posts here,
// so handshake, routing and disconnect bookkeeping all run serialized and
// the registry sees a consistent order of events per session.
type Worker struct {
	serverID string
	registry *Registry
	redis    *RedisMgr
	presence *Presence
	metrics  *metrics.BackendMetrics

	posts chan post
	stop  chan struct{}
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewWorker(serverID string, registry *Registry, redis *RedisMgr, presence *Presence, m *metrics.BackendMetrics) *Worker {
	return &Worker{
		serverID: serverID,
		registry: registry,
		redis:    redis,
		presence: presence,
		metrics:  m,
		posts:    make(chan post, workerQueueLen),
		stop:     make(chan struct{}),
	}
}

// Post hands a frame to the worker. Blocks when the queue is full, which
// backpressures the posting session's receive loop.
func (w *Worker) Post(sess *Session, frame *protocol.Frame) {
	select {
	case w.posts <- post{sess: sess, frame: frame}:
	case <-w.stop:
	}
}

func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
	})
}

// Stop terminates the worker. Frames still queued are dropped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	slog.Info("[Worker] message worker started", "server_id", w.serverID)
	for {
		select {
		case <-w.stop:
			slog.Info("[Worker] message worker stopping")
			return
		case p := <-w.posts:
			w.process(p.sess, p.frame)
		}
	}
}

func (w *Worker) process(sess *Session, frame *protocol.Frame) {
	if frame == nil {
		w.handleDisconnect(sess)
		return
	}
	if w.metrics != nil {
		w.metrics.FramesTotal.WithLabelValues(frame.Tag.String(), "in").Inc()
	}
	if !sess.Verified() && frame.Tag != protocol.TagVerify {
		// Before the handshake the only acceptable frame is VERIFY;
		// anything else ends the session, keepalives included.
		slog.Warn("[Worker] frame before verify, closing", "tag", frame.Tag.String(), "remote", sess.RemoteAddr())
		sess.Close()
		return
	}
	switch frame.Tag {
	case protocol.TagDebug:
		slog.Debug("[Worker] debug frame", "remote", sess.RemoteAddr(), "content", string(frame.Payload))
	case protocol.TagVerify:
		w.handleVerify(sess, frame.Payload)
	case protocol.TagChatMsg:
		w.handleChat(sess, frame.Payload)
	case protocol.TagPing:
		sess.Send(protocol.TagPing, nil)
	case protocol.TagGroupChatMsg:
		// TODO: group chat routing once group membership lands in Redis.
		slog.Warn("[Worker] group chat not supported yet", "remote", sess.RemoteAddr())
	default:
		slog.Warn("[Worker] unknown frame tag", "tag", uint32(frame.Tag), "remote", sess.RemoteAddr())
	}
}

func (w *Worker) handleDisconnect(sess *Session) {
	if !sess.Verified() {
		w.registry.RemoveTemp(sess)
		return
	}
	uid := sess.UID()
	if !w.registry.Remove(uid, sess) {
		// A newer session owns the uid now; leave its state alone.
		return
	}
	if w.metrics != nil {
		w.metrics.SessionsOnline.Dec()
	}
	w.presence.Forget(uid)
	slog.Info("[Worker] session offline", "uid", uid)
}

func (w *Worker) handleVerify(sess *Session, payload []byte) {
	if sess.Verified() {
		slog.Warn("[Worker] duplicate verify frame", "uid", sess.UID())
		return
	}
	req, err := protocol.DecodeVerify(payload)
	if err != nil {
		slog.Warn("[Worker] bad verify frame", "remote", sess.RemoteAddr(), "error", err)
		sess.Close()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	uid, err := w.redis.VerifyToken(ctx, req.Token)
	cancel()
	if err != nil {
		slog.Info("[Worker] verify rejected", "remote", sess.RemoteAddr(), "error", err)
		sess.Close()
		return
	}
	if uid != int64(req.UID) {
		slog.Warn("[Worker] verify uid mismatch", "claimed", req.UID, "token_uid", uid, "remote", sess.RemoteAddr())
		sess.Close()
		return
	}

	if !w.registry.Promote(uid, sess) {
		// The uid is held by a live local session; the latecomer loses.
		slog.Warn("[Worker] uid already online locally, dropping new session", "uid", uid)
		sess.Close()
		return
	}
	sess.Bind(uid)

	ctx, cancel = context.WithTimeout(context.Background(), redisOpTimeout)
	err = w.redis.UpdateUserStatus(ctx, w.serverID, uid)
	cancel()
	if err != nil {
		slog.Error("[Worker] status stamp failed", "uid", uid, "error", err)
	}
	w.presence.Track(uid)
	if w.metrics != nil {
		w.metrics.SessionsOnline.Inc()
	}

	sess.Send(protocol.TagVerifyDone, []byte(fmt.Sprintf("verify success: %d", uid)))
	slog.Info("[Worker] session verified", "uid", uid, "remote", sess.RemoteAddr())
}

func (w *Worker) handleChat(sess *Session, payload []byte) {
	toU, content, err := protocol.SplitChatPayload(payload)
	if err != nil {
		slog.Warn("[Worker] malformed chat payload", "uid", sess.UID(), "error", err)
		return
	}
	to := int64(toU)
	from := sess.UID()

	if target := w.registry.Get(to); target != nil {
		target.Send(protocol.TagChatMsgToCli, protocol.ChatPayload(uint64(from), content))
		w.countRoute("local")
		if w.metrics != nil {
			w.metrics.FramesTotal.WithLabelValues(protocol.TagChatMsgToCli.String(), "out").Inc()
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	sid, err := w.redis.GetUserLocation(ctx, to)
	cancel()
	if err != nil {
		slog.Error("[Worker] locate failed, message dropped", "to", to, "error", err)
		w.countRoute("drop")
		return
	}
	if sid == "" || sid == w.serverID {
		// Offline, or just left this server; either way nobody to deliver to.
		slog.Debug("[Worker] recipient offline, message dropped", "from", from, "to", to)
		w.countRoute("drop")
		return
	}

	ctx, cancel = context.WithTimeout(context.Background(), redisOpTimeout)
	_, err = w.redis.SendToMsgQueue(ctx, sid, from, to, content)
	cancel()
	if err != nil {
		slog.Error("[Worker] mailbox enqueue failed, message dropped", "to", to, "server_id", sid, "error", err)
		w.countRoute("drop")
		return
	}
	w.countRoute("remote")
}

func (w *Worker) countRoute(route string) {
	if w.metrics != nil {
		w.metrics.MessagesRouted.WithLabelValues(route).Inc()
	}
}
