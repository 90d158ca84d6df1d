// Package status implements the central status service: the RPC facade over
// the load balancer and the periodic mirror of the live-server list into
// Redis.
package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatroom/backend/internal/balance"
)

// serverListKey is the Redis hash mirroring the balancer snapshot, consumed
// by tooling and by the gateway's locate-by-user script.
const serverListKey = "server_list"

// serverListTTL matches the balancer's liveness window: a status service that
// stops mirroring takes its stale list down with it.
const serverListTTL = 40 * time.Second

// RedisMgr wraps the status service's Redis operations.
type RedisMgr struct {
	rdb *redis.Client
}

func NewRedisMgr(rdb *redis.Client) *RedisMgr {
	return &RedisMgr{rdb: rdb}
}

// UpdateServerList replaces the server_list hash with the given snapshot and
// refreshes its TTL. The delete and rewrite ride one pipeline so readers
// never observe a half-written list for longer than a round trip.
func (m *RedisMgr) UpdateServerList(ctx context.Context, snapshot []balance.ServerInfo) error {
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, serverListKey)
	if len(snapshot) > 0 {
		fields := make([]interface{}, 0, len(snapshot)*2)
		for _, si := range snapshot {
			fields = append(fields, strconv.FormatUint(uint64(si.ID), 10), si.Addr)
		}
		pipe.HSet(ctx, serverListKey, fields...)
		pipe.Expire(ctx, serverListKey, serverListTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update server_list: %w", err)
	}
	return nil
}
