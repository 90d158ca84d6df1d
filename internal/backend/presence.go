package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// presenceInterval is how often online users are re-stamped. Must stay well
// under presenceTTL or a healthy server's users flicker offline.
const presenceInterval = 10 * time.Second

// Presence keeps the per-user status hashes alive in Redis for every user
// attached to this server. A server that dies simply stops refreshing and
// its users expire into the offline state.
type Presence struct {
	serverID string
	redis    *RedisMgr
	interval time.Duration

	mu     sync.Mutex
	online map[int64]struct{}

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPresence(serverID string, redis *RedisMgr, interval time.Duration) *Presence {
	if interval <= 0 {
		interval = presenceInterval
	}
	return &Presence{
		serverID: serverID,
		redis:    redis,
		interval: interval,
		online:   make(map[int64]struct{}),
		stop:     make(chan struct{}),
	}
}

// Track adds uid to the refresh set.
func (p *Presence) Track(uid int64) {
	p.mu.Lock()
	p.online[uid] = struct{}{}
	p.mu.Unlock()
}

// Forget removes uid from the refresh set and releases its status hash
// immediately so the uid can log in again without waiting out the TTL.
func (p *Presence) Forget(uid int64) {
	p.mu.Lock()
	delete(p.online, uid)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := p.redis.RemoveUserStatus(ctx, uid); err != nil {
		slog.Warn("[Presence] status removal failed, TTL will clean up", "uid", uid, "error", err)
	}
}

// Snapshot returns the tracked uids.
func (p *Presence) Snapshot() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	uids := make([]int64, 0, len(p.online))
	for uid := range p.online {
		uids = append(uids, uid)
	}
	return uids
}

func (p *Presence) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

func (p *Presence) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Presence) run() {
	defer p.wg.Done()
	slog.Info("[Presence] refresh loop started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			slog.Info("[Presence] refresh loop stopping")
			return
		case <-ticker.C:
		}
		uids := p.Snapshot()
		if len(uids) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		err := p.redis.RefreshUserStatuses(ctx, p.serverID, uids)
		cancel()
		if err != nil {
			slog.Error("[Presence] refresh failed", "count", len(uids), "error", err)
		}
	}
}
