package backend

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chatroom/backend/internal/metrics"
	"github.com/chatroom/backend/internal/protocol"
)

// Mailbox consumes this server's two inbound streams: chat messages
// forwarded by peer servers and control commands from the gateway. Reads are
// unacknowledged; a message read by a crashing server is gone, which is the
// chosen delivery contract.
type Mailbox struct {
	serverID string
	// consumerID distinguishes this process within the consumer group
	// across restarts.
	consumerID string
	redis      *RedisMgr
	registry   *Registry
	metrics    *metrics.BackendMetrics

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewMailbox(serverID string, redis *RedisMgr, registry *Registry, m *metrics.BackendMetrics) *Mailbox {
	return &Mailbox{
		serverID:   serverID,
		consumerID: uuid.NewString(),
		redis:      redis,
		registry:   registry,
		metrics:    m,
		stop:       make(chan struct{}),
	}
}

// Start creates the consumer group and launches the read loop.
func (mb *Mailbox) Start(ctx context.Context) error {
	if err := mb.redis.RegisterMsgQueue(ctx, mb.serverID, false); err != nil {
		return err
	}
	mb.startOnce.Do(func() {
		mb.wg.Add(1)
		go mb.run()
	})
	return nil
}

func (mb *Mailbox) Stop() {
	mb.stopOnce.Do(func() { close(mb.stop) })
	mb.wg.Wait()
}

func (mb *Mailbox) run() {
	defer mb.wg.Done()
	slog.Info("[Mailbox] consumer started", "server_id", mb.serverID, "consumer", mb.consumerID)
	for {
		select {
		case <-mb.stop:
			slog.Info("[Mailbox] consumer stopping")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*mailboxBlock)
		streams, err := mb.redis.RecvFromMsgQueue(ctx, mb.serverID, mb.consumerID)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				slog.Error("[Mailbox] read failed", "error", err)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				mb.dispatch(stream.Stream, msg)
			}
		}
	}
}

func (mb *Mailbox) dispatch(stream string, msg redis.XMessage) {
	if strings.HasPrefix(stream, ctlStreamPrefix) {
		mb.handleControl(msg)
		return
	}
	mb.handleChat(msg)
}

func (mb *Mailbox) handleChat(msg redis.XMessage) {
	if mb.metrics != nil {
		mb.metrics.MailboxMessages.Inc()
	}
	from, ok1 := int64Field(msg, "from")
	to, ok2 := int64Field(msg, "to")
	content, ok3 := msg.Values["content"].(string)
	if !ok1 || !ok2 || !ok3 {
		slog.Warn("[Mailbox] malformed mailbox entry", "id", msg.ID)
		return
	}

	sess := mb.registry.Get(to)
	if sess == nil {
		// Raced with a disconnect between the peer's lookup and now.
		slog.Warn("[Mailbox] recipient not on this server, message dropped", "to", to, "id", msg.ID)
		return
	}
	slog.Debug("[Mailbox] delivering", "from", from, "to", to)
	sess.Send(protocol.TagChatMsgToCli, protocol.ChatPayload(uint64(from), []byte(content)))
}

func (mb *Mailbox) handleControl(msg redis.XMessage) {
	cmd, _ := msg.Values["type"].(string)
	switch cmd {
	case "kick":
		uid, ok := int64Field(msg, "uid")
		if !ok {
			slog.Warn("[Mailbox] malformed kick command", "id", msg.ID, "value", msg.Values["uid"])
			return
		}
		if mb.registry.StopSession(uid) {
			slog.Info("[Mailbox] kicked user", "uid", uid)
		} else {
			slog.Warn("[Mailbox] kick target not online here", "uid", uid)
		}
	default:
		slog.Warn("[Mailbox] unknown control command", "id", msg.ID, "type", cmd)
	}
}

func int64Field(msg redis.XMessage, field string) (int64, bool) {
	raw, ok := msg.Values[field].(string)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
