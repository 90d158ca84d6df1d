package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatroom/backend/internal/balance"
)

// mirrorMaxFailures is how many consecutive push failures the mirror
// tolerates before it logs at error level. It keeps running either way:
// liveness over consistency.
const mirrorMaxFailures = 3

// Mirror periodically pushes the balancer snapshot into Redis. One worker
// goroutine; UpdateNow signals are coalesced through a 1-slot channel so any
// number of signals during an in-flight push collapse into one extra
// iteration.
type Mirror struct {
	balancer *balance.Balancer
	redis    *RedisMgr
	interval time.Duration

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewMirror(balancer *balance.Balancer, redis *RedisMgr, interval time.Duration) *Mirror {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Mirror{
		balancer: balancer,
		redis:    redis,
		interval: interval,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (m *Mirror) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
}

// Stop terminates the worker and waits for it to exit.
func (m *Mirror) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

// UpdateNow schedules an immediate push. Safe from any goroutine; redundant
// signals while a push is pending are dropped.
func (m *Mirror) UpdateNow() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) run() {
	defer m.wg.Done()
	slog.Info("[Mirror] worker started", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-m.stop:
			slog.Info("[Mirror] worker stopping")
			return
		case <-ticker.C:
		case <-m.wake:
		}

		if evicted := m.balancer.CheckTTL(); evicted > 0 {
			slog.Info("[Mirror] TTL sweep before push", "evicted", evicted)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := m.redis.UpdateServerList(ctx, m.balancer.Snapshot())
		cancel()
		if err != nil {
			failures++
			if failures >= mirrorMaxFailures {
				// Give up on immediate retries; the next tick tries again.
				slog.Error("[Mirror] push keeps failing, check Redis connectivity",
					"consecutive_failures", failures, "error", err)
			} else {
				slog.Warn("[Mirror] push failed, retrying", "error", err)
				m.UpdateNow()
			}
			continue
		}
		failures = 0
	}
}
