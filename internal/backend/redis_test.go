package backend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackendRedis(t *testing.T) (*RedisMgr, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisMgr(rdb), mr, rdb
}

func TestVerifyToken(t *testing.T) {
	m, _, rdb := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, tokenKeyPrefix+"goodtoken", "42", time.Minute).Err())

	uid, err := m.VerifyToken(ctx, "goodtoken")
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)

	_, err = m.VerifyToken(ctx, "nosuchtoken")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenExpired(t *testing.T) {
	m, mr, rdb := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, tokenKeyPrefix+"shortlived", "7", 50*time.Millisecond).Err())
	mr.FastForward(time.Second)

	_, err := m.VerifyToken(ctx, "shortlived")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestGetUserLocation(t *testing.T) {
	m, _, rdb := newBackendRedis(t)
	ctx := context.Background()

	sid, err := m.GetUserLocation(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, sid)

	// A gateway claim that has not attached yet reads as offline.
	require.NoError(t, rdb.HSet(ctx, statusKeyPrefix+"5", "server_id", "unset").Err())
	sid, err = m.GetUserLocation(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, sid)

	require.NoError(t, rdb.HSet(ctx, statusKeyPrefix+"5", "server_id", "1024").Err())
	sid, err = m.GetUserLocation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "1024", sid)
}

func TestSendToMsgQueue(t *testing.T) {
	m, _, rdb := newBackendRedis(t)
	ctx := context.Background()

	id, err := m.SendToMsgQueue(ctx, "200", 1, 2, []byte("hi there"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := rdb.XRange(ctx, msgStreamPrefix+"200", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1", msgs[0].Values["from"])
	assert.Equal(t, "2", msgs[0].Values["to"])
	assert.Equal(t, "hi there", msgs[0].Values["content"])
}

func TestRegisterMsgQueueIdempotent(t *testing.T) {
	m, _, rdb := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, m.RegisterMsgQueue(ctx, "100", false))
	// Second create hits BUSYGROUP and must be swallowed.
	require.NoError(t, m.RegisterMsgQueue(ctx, "100", false))

	groups, err := rdb.XInfoGroups(ctx, msgStreamPrefix+"100").Result()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, groupPrefix+"100", groups[0].Name)

	groups, err = rdb.XInfoGroups(ctx, ctlStreamPrefix+"100").Result()
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestRecvFromMsgQueue(t *testing.T) {
	m, _, _ := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, m.RegisterMsgQueue(ctx, "100", false))
	_, err := m.SendToMsgQueue(ctx, "100", 11, 22, []byte("cross-server"))
	require.NoError(t, err)

	streams, err := m.RecvFromMsgQueue(ctx, "100", "0")
	require.NoError(t, err)
	require.NotEmpty(t, streams)

	var found bool
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if msg.Values["content"] == "cross-server" {
				found = true
				assert.Equal(t, "11", msg.Values["from"])
				assert.Equal(t, "22", msg.Values["to"])
			}
		}
	}
	assert.True(t, found)
}

func TestUpdateAndRemoveUserStatus(t *testing.T) {
	m, mr, rdb := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, m.UpdateUserStatus(ctx, "100", 7))

	key := statusKeyPrefix + "7"
	fields, err := rdb.HGetAll(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "100", fields["server_id"])
	assert.Equal(t, "online", fields["status"])
	ttl := mr.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, presenceTTL)

	require.NoError(t, m.RemoveUserStatus(ctx, 7))
	assert.False(t, mr.Exists(key))
}

func TestRefreshUserStatuses(t *testing.T) {
	m, mr, rdb := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, m.RefreshUserStatuses(ctx, "100", []int64{1, 2, 3}))
	for _, uid := range []string{"1", "2", "3"} {
		sid, err := rdb.HGet(ctx, statusKeyPrefix+uid, "server_id").Result()
		require.NoError(t, err)
		assert.Equal(t, "100", sid)
		assert.Greater(t, mr.TTL(statusKeyPrefix+uid), time.Duration(0))
	}

	// Empty batch is a no-op, not an error.
	require.NoError(t, m.RefreshUserStatuses(ctx, "100", nil))
}

func TestStatusExpiresWithoutRefresh(t *testing.T) {
	m, mr, _ := newBackendRedis(t)
	ctx := context.Background()

	require.NoError(t, m.UpdateUserStatus(ctx, "100", 9))
	mr.FastForward(presenceTTL + time.Second)

	sid, err := m.GetUserLocation(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, sid)
}
