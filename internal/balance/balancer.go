package balance

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ServerTimeout is how long a backend may stay silent before it is treated
// as gone. Reports refresh the timestamp; any heap read evicts stale roots.
const ServerTimeout = 40 * time.Second

// ErrServerNotFound reports a load update for an id the balancer has never
// seen (or already evicted). Callers re-register on this.
var ErrServerNotFound = errors.New("balance: server not found")

// nowMillis is the balancer's monotonic clock, overridable in tests.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// Balancer owns the set of live backends and answers least-loaded queries.
// One mutex covers the heap and the id map; all critical sections are O(log n).
type Balancer struct {
	mu   sync.Mutex
	heap *minHeap
	byID map[uint32]*ServerInfo
}

func NewBalancer() *Balancer {
	return &Balancer{
		heap: newMinHeap(),
		byID: make(map[uint32]*ServerInfo),
	}
}

// RegisterServer inserts a new backend or refreshes an existing one in place.
// Re-registering a known id updates addr, load and timestamp; it never
// duplicates the entry.
func (b *Balancer) RegisterServer(id uint32, addr string, load uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if si, ok := b.byID[id]; ok {
		hint := loadHint(si.Load, load)
		si.Addr = addr
		si.Load = load
		si.LastTS = nowMillis()
		b.heap.InsertOrUpdate(si, hint)
		return
	}

	si := &ServerInfo{ID: id, Addr: addr, Load: load, LastTS: nowMillis()}
	b.byID[id] = si
	b.heap.InsertOrUpdate(si, 0)
}

// UpdateLoad refreshes the load and timestamp of a known backend.
func (b *Balancer) UpdateLoad(id uint32, load uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	si, ok := b.byID[id]
	if !ok {
		return ErrServerNotFound
	}
	hint := loadHint(si.Load, load)
	si.Load = load
	si.LastTS = nowMillis()
	b.heap.InsertOrUpdate(si, hint)
	return nil
}

// RemoveServer hard-deletes a backend. Returns false if it was not present.
func (b *Balancer) RemoveServer(id uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[id]; !ok {
		return false
	}
	delete(b.byID, id)
	return b.heap.Remove(id)
}

// MinLoad returns a copy of the least-loaded live backend. Stale roots are
// evicted on the way; didEvict tells the caller to schedule a mirror refresh.
// ok is false when no live backend remains.
func (b *Balancer) MinLoad() (si ServerInfo, ok bool, didEvict bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := nowMillis()
	for b.heap.Len() > 0 {
		root := b.heap.Top()
		if now-root.LastTS < ServerTimeout.Milliseconds() {
			return *root, true, didEvict
		}
		slog.Info("[Balancer] Evicting stale server", "server_id", root.ID, "addr", root.Addr)
		b.heap.Pop()
		delete(b.byID, root.ID)
		didEvict = true
	}
	return ServerInfo{}, false, didEvict
}

// CheckTTL sweeps every entry and evicts the stale ones. Returns the number
// of evictions.
func (b *Balancer) CheckTTL() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := nowMillis()
	var stale []uint32
	for id, si := range b.byID {
		if now-si.LastTS >= ServerTimeout.Milliseconds() {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(b.byID, id)
		b.heap.Remove(id)
	}
	if len(stale) > 0 {
		slog.Info("[Balancer] TTL sweep evicted servers", "count", len(stale))
	}
	return len(stale)
}

// Snapshot returns a copy of every live entry.
func (b *Balancer) Snapshot() []ServerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ServerInfo, 0, len(b.byID))
	for _, si := range b.byID {
		out = append(out, *si)
	}
	return out
}

// Len returns the number of live entries.
func (b *Balancer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heap.Len()
}

func loadHint(prev, next uint32) int {
	switch {
	case next < prev:
		return -1
	case next > prev:
		return 1
	default:
		return 0
	}
}
