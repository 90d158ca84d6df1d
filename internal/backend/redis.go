package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix  = "token:"
	statusKeyPrefix = "status:"
	msgStreamPrefix = "stream:server:"
	ctlStreamPrefix = "stream:serverctl:"
	groupPrefix     = "message_group"

	// mailboxMaxLen caps each server's stream; trimming is approximate.
	mailboxMaxLen = 1000

	// presenceTTL bounds the per-user status hash between refreshes.
	presenceTTL = 30 * time.Second

	mailboxBlock = 2 * time.Second
	mailboxCount = 10
)

// ErrTokenInvalid means the login token is unknown or expired.
var ErrTokenInvalid = errors.New("backend: invalid or expired token")

// RedisMgr wraps the chat server's Redis operations.
type RedisMgr struct {
	rdb *redis.Client
}

func NewRedisMgr(rdb *redis.Client) *RedisMgr {
	return &RedisMgr{rdb: rdb}
}

// VerifyToken resolves a login token to its uid, consuming nothing: the
// token lives out its TTL either way.
func (m *RedisMgr) VerifyToken(ctx context.Context, token string) (int64, error) {
	val, err := m.rdb.Get(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("verify token: %w", err)
	}
	uid, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token maps to malformed uid %q: %w", val, err)
	}
	return uid, nil
}

// GetUserLocation returns the server_id field of the user's status hash.
// Empty string means the user is not online anywhere.
func (m *RedisMgr) GetUserLocation(ctx context.Context, uid int64) (string, error) {
	sid, err := m.rdb.HGet(ctx, statusKeyPrefix+strconv.FormatInt(uid, 10), "server_id").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("locate uid %d: %w", uid, err)
	}
	if sid == "unset" {
		return "", nil
	}
	return sid, nil
}

// SendToMsgQueue appends a chat message to the target server's mailbox
// stream, trimming the stream to its approximate cap.
func (m *RedisMgr) SendToMsgQueue(ctx context.Context, serverID string, from, to int64, content []byte) (string, error) {
	id, err := m.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: msgStreamPrefix + serverID,
		MaxLen: mailboxMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"from":    strconv.FormatInt(from, 10),
			"to":      strconv.FormatInt(to, 10),
			"content": string(content),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue message for server %s: %w", serverID, err)
	}
	return id, nil
}

// RegisterMsgQueue creates the consumer group on both the message and the
// control stream. An already-existing group is fine: restarts land here.
func (m *RedisMgr) RegisterMsgQueue(ctx context.Context, serverID string, readFromBegin bool) error {
	start := "$"
	if readFromBegin {
		start = "0"
	}
	group := groupPrefix + serverID
	for _, stream := range []string{msgStreamPrefix + serverID, ctlStreamPrefix + serverID} {
		err := m.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

// RecvFromMsgQueue reads pending entries from both streams without
// acknowledgment; delivery is at-most-once by design. Returns nil on a
// blocking-read timeout.
func (m *RedisMgr) RecvFromMsgQueue(ctx context.Context, serverID, consumerID string) ([]redis.XStream, error) {
	streams, err := m.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupPrefix + serverID,
		Consumer: "server" + consumerID,
		Streams:  []string{msgStreamPrefix + serverID, ctlStreamPrefix + serverID, ">", ">"},
		Count:    mailboxCount,
		Block:    mailboxBlock,
		NoAck:    true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return streams, nil
}

// UpdateUserStatus stamps the user as online on this server. The short TTL
// turns a crashed server's users offline without any cleanup pass.
func (m *RedisMgr) UpdateUserStatus(ctx context.Context, serverID string, uid int64) error {
	key := statusKeyPrefix + strconv.FormatInt(uid, 10)
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, "server_id", serverID, "status", "online")
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update status for uid %d: %w", uid, err)
	}
	return nil
}

// RefreshUserStatuses re-stamps a batch of users in one pipeline. The
// presence writer calls this every tick.
func (m *RedisMgr) RefreshUserStatuses(ctx context.Context, serverID string, uids []int64) error {
	if len(uids) == 0 {
		return nil
	}
	pipe := m.rdb.TxPipeline()
	for _, uid := range uids {
		key := statusKeyPrefix + strconv.FormatInt(uid, 10)
		pipe.HSet(ctx, key, "server_id", serverID, "status", "online")
		pipe.Expire(ctx, key, presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh %d statuses: %w", len(uids), err)
	}
	return nil
}

// RemoveUserStatus frees the user's claim on logout, releasing the uid for
// the next login immediately instead of waiting out the TTL.
func (m *RedisMgr) RemoveUserStatus(ctx context.Context, uid int64) error {
	if err := m.rdb.Del(ctx, statusKeyPrefix+strconv.FormatInt(uid, 10)).Err(); err != nil {
		return fmt.Errorf("remove status for uid %d: %w", uid, err)
	}
	return nil
}
