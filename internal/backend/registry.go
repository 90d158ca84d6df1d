package backend

import (
	"log/slog"
	"sync"
)

// Registry tracks sessions in two tiers: unverified connections keyed by
// pointer until the handshake completes, then verified ones keyed by uid.
type Registry struct {
	mu       sync.Mutex
	temp     map[*Session]struct{}
	verified map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		temp:     make(map[*Session]struct{}),
		verified: make(map[int64]*Session),
	}
}

// AddTemp records a fresh, unverified connection.
func (r *Registry) AddTemp(sess *Session) {
	r.mu.Lock()
	r.temp[sess] = struct{}{}
	r.mu.Unlock()
}

// Promote moves the session from the temp tier to the verified tier under
// uid. Returns false when another session already holds the uid, in which
// case the caller decides who wins.
func (r *Registry) Promote(uid int64, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.verified[uid]; taken {
		return false
	}
	if _, ok := r.temp[sess]; !ok {
		// Closed concurrently or never added; promoting it anyway would
		// leak a dead session into the verified tier.
		slog.Warn("[Registry] promoting session missing from temp tier", "uid", uid)
	}
	delete(r.temp, sess)
	r.verified[uid] = sess
	return true
}

// Get returns the verified session holding uid, or nil.
func (r *Registry) Get(uid int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verified[uid]
}

// Remove drops the verified entry for uid, but only if it still points at
// sess: a reconnect may have replaced the entry already.
func (r *Registry) Remove(uid int64, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verified[uid] != sess {
		return false
	}
	delete(r.verified, uid)
	return true
}

// RemoveTemp drops an unverified connection.
func (r *Registry) RemoveTemp(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.temp[sess]; !ok {
		return false
	}
	delete(r.temp, sess)
	return true
}

// StopSession closes the verified session holding uid. Used by the kick path.
func (r *Registry) StopSession(uid int64) bool {
	r.mu.Lock()
	sess := r.verified[uid]
	r.mu.Unlock()
	if sess == nil {
		return false
	}
	sess.Close()
	return true
}

// Counts returns (verified, temp) population.
func (r *Registry) Counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.verified), len(r.temp)
}

// TotalCount is the load figure reported to the status service: every open
// socket counts, handshaken or not.
func (r *Registry) TotalCount() int {
	v, t := r.Counts()
	return v + t
}

// CloseAll closes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.verified)+len(r.temp))
	for _, s := range r.verified {
		sessions = append(sessions, s)
	}
	for s := range r.temp {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
