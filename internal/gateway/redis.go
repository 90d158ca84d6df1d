// Package gateway implements the HTTP entry service: account login and
// registration, chat-server assignment and the admin kick endpoint.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix    = "token:"
	statusKeyPrefix   = "status:"
	userInfoKeyPrefix = "userinfo:"
	serverListKey     = "server_list"
	ctlStreamPrefix   = "stream:serverctl:"

	// claimTTL bounds a claim that never turns into a chat connection; the
	// chat server refreshes the hash once the user actually attaches.
	claimTTL = 60 * time.Second

	userInfoTTL = time.Hour
)

// ErrUserOffline is returned by LocateUser when no chat server holds the user.
var ErrUserOffline = errors.New("gateway: user not online")

// claimScript atomically claims the per-user status hash. An existing
// server_id field means someone holds the user already; the script returns
// the occupying value so the caller can report it. Otherwise it writes the
// pre-attach claim and bounds its lifetime.
var claimScript = redis.NewScript(`
local sid = redis.call("HGET", KEYS[1], "server_id")
if sid then
	return sid
end
redis.call("HSET", KEYS[1], "server_id", "unset", "status", "verifyed", "user_id", ARGV[1], "last_login", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return ""
`)

// locateScript resolves uid -> chat server address: the per-user status hash
// names the server id, the mirrored server_list maps it to an address.
var locateScript = redis.NewScript(`
local sid = redis.call("HGET", KEYS[1], "server_id")
if not sid or sid == "unset" then
	return false
end
return redis.call("HGET", KEYS[2], sid)
`)

// RedisMgr wraps the gateway's Redis operations.
type RedisMgr struct {
	rdb *redis.Client
}

func NewRedisMgr(rdb *redis.Client) *RedisMgr {
	return &RedisMgr{rdb: rdb}
}

// MintToken creates a fresh login token bound to uid for ttl. 24 random
// bytes, URL-safe base64 without padding: 32 characters on the wire.
func (m *RedisMgr) MintToken(ctx context.Context, uid int64, ttl time.Duration) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := m.rdb.SetEx(ctx, tokenKeyPrefix+token, strconv.FormatInt(uid, 10), ttl).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// ClaimUser claims single-login ownership of uid. When the user is already
// claimed it returns ok=false and the occupying server_id field, which may
// still be "unset" if that login has not attached to its chat server yet.
func (m *RedisMgr) ClaimUser(ctx context.Context, uid int64) (ok bool, occupiedBy string, err error) {
	uidStr := strconv.FormatInt(uid, 10)
	res, err := claimScript.Run(ctx, m.rdb,
		[]string{statusKeyPrefix + uidStr},
		uidStr,
		strconv.FormatInt(time.Now().UnixMilli(), 10),
		strconv.FormatInt(claimTTL.Milliseconds(), 10),
	).Text()
	if err != nil {
		return false, "", fmt.Errorf("claim user %d: %w", uid, err)
	}
	if res != "" {
		return false, res, nil
	}
	return true, "", nil
}

// StoreUserInfo caches display data for the user. Best effort: login
// proceeds even when this write fails.
func (m *RedisMgr) StoreUserInfo(ctx context.Context, uid int64, username string) error {
	key := userInfoKeyPrefix + strconv.FormatInt(uid, 10)
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, "username", username)
	pipe.Expire(ctx, key, userInfoTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// LocateUser returns the address of the chat server currently holding uid.
func (m *RedisMgr) LocateUser(ctx context.Context, uid int64) (string, error) {
	uidStr := strconv.FormatInt(uid, 10)
	addr, err := locateScript.Run(ctx, m.rdb,
		[]string{statusKeyPrefix + uidStr, serverListKey},
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", ErrUserOffline
	}
	if err != nil {
		return "", fmt.Errorf("locate user %d: %w", uid, err)
	}
	return addr, nil
}

// KickUser asks the chat server holding uid to drop the connection, via that
// server's control stream.
func (m *RedisMgr) KickUser(ctx context.Context, uid int64) error {
	uidStr := strconv.FormatInt(uid, 10)
	sid, err := m.rdb.HGet(ctx, statusKeyPrefix+uidStr, "server_id").Result()
	if errors.Is(err, redis.Nil) {
		return ErrUserOffline
	}
	if err != nil {
		return fmt.Errorf("resolve server for uid %d: %w", uid, err)
	}
	if sid == "unset" {
		return ErrUserOffline
	}
	err = m.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ctlStreamPrefix + sid,
		Values: map[string]interface{}{"type": "kick", "uid": uidStr},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue kick for uid %d: %w", uid, err)
	}
	return nil
}
