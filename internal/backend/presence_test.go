package backend

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenceHarness(t *testing.T, interval time.Duration) (*Presence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresence("100", NewRedisMgr(rdb), interval), mr
}

func TestPresenceTrackForget(t *testing.T) {
	p, mr := newPresenceHarness(t, time.Hour)

	p.Track(1)
	p.Track(2)
	p.Track(1)
	assert.ElementsMatch(t, []int64{1, 2}, p.Snapshot())

	// Forget clears the status hash immediately.
	require.NoError(t, mr.Set("ignored", "x")) // make sure the db is live
	p.Forget(1)
	assert.ElementsMatch(t, []int64{2}, p.Snapshot())
	assert.False(t, mr.Exists(statusKeyPrefix+"1"))
}

func TestPresenceRefreshLoop(t *testing.T) {
	p, mr := newPresenceHarness(t, 20*time.Millisecond)

	p.Track(7)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return mr.Exists(statusKeyPrefix + "7")
	}, 2*time.Second, 10*time.Millisecond)

	sid := mr.HGet(statusKeyPrefix+"7", "server_id")
	assert.Equal(t, "100", sid)
	assert.Equal(t, "online", mr.HGet(statusKeyPrefix+"7", "status"))
	assert.Greater(t, mr.TTL(statusKeyPrefix+"7"), time.Duration(0))
}

func TestPresenceStopIsIdempotent(t *testing.T) {
	p, _ := newPresenceHarness(t, time.Hour)
	p.Start()
	p.Stop()
	p.Stop()
}
