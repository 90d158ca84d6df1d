package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq"
)

// ErrPoolStopped is returned by Acquire after Stop.
var ErrPoolStopped = errors.New("userdb: connection pool stopped")

const (
	sqlQueryUser  = "SELECT uid, passcode FROM tbl_user WHERE username = $1"
	sqlUserExists = "SELECT 1 FROM tbl_user WHERE username = $1"
	sqlInsertUser = "INSERT INTO tbl_user (uid, username, passcode) VALUES ($1, $2, $3)"
)

// PooledConn is a dedicated database connection with the account statements
// prepared once at checkout time. Statements prepared on a *sql.Conn stay
// bound to that connection, so reusing a PooledConn never re-plans.
type PooledConn struct {
	conn       *sql.Conn
	queryUser  *sql.Stmt
	userExists *sql.Stmt
	insertUser *sql.Stmt
}

func newPooledConn(ctx context.Context, db *sql.DB) (*PooledConn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout connection: %w", err)
	}
	pc := &PooledConn{conn: conn}
	for _, p := range []struct {
		dst **sql.Stmt
		q   string
	}{
		{&pc.queryUser, sqlQueryUser},
		{&pc.userExists, sqlUserExists},
		{&pc.insertUser, sqlInsertUser},
	} {
		stmt, err := conn.PrepareContext(ctx, p.q)
		if err != nil {
			pc.close()
			return nil, fmt.Errorf("prepare %q: %w", p.q, err)
		}
		*p.dst = stmt
	}
	return pc, nil
}

func (pc *PooledConn) close() {
	for _, stmt := range []*sql.Stmt{pc.queryUser, pc.userExists, pc.insertUser} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	_ = pc.conn.Close()
}

// Pool hands out PooledConns. It opens initial connections up front, grows
// lazily to max under demand, and blocks callers when everything is checked
// out until a Release or Stop.
type Pool struct {
	db  *sql.DB
	max int

	mu      sync.Mutex
	cond    *sync.Cond
	idle    []*PooledConn
	total   int
	stopped bool
}

// NewPool connects to the database behind dsn and warms up `initial`
// connections with their statements prepared.
func NewPool(ctx context.Context, dsn string, initial, max int) (*Pool, error) {
	if initial < 1 {
		initial = 1
	}
	if max < initial {
		max = initial
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// database/sql keeps its own pool underneath; cap it at ours so our
	// accounting is the only limit that matters.
	db.SetMaxOpenConns(max)

	p := &Pool{db: db, max: max}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < initial; i++ {
		pc, err := newPooledConn(ctx, db)
		if err != nil {
			p.Stop()
			return nil, err
		}
		p.idle = append(p.idle, pc)
		p.total++
	}
	slog.Info("[UserDB] pool ready", "initial", initial, "max", max)
	return p, nil
}

// newPoolFromDB wires a pool over an already-open handle. Test seam.
func newPoolFromDB(ctx context.Context, db *sql.DB, initial, max int) (*Pool, error) {
	p := &Pool{db: db, max: max}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < initial; i++ {
		pc, err := newPooledConn(ctx, db)
		if err != nil {
			return nil, err
		}
		p.idle = append(p.idle, pc)
		p.total++
	}
	return p, nil
}

// Acquire returns a prepared connection, blocking while the pool is at max
// with nothing idle. Cancelling ctx unblocks the wait.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	// A cond has no ctx awareness; a watcher broadcast turns cancellation
	// into a wakeup the wait loop can observe. Broadcasting under the lock
	// guarantees the waiter is either before its ctx check or parked in
	// Wait, never in between.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-watchDone:
		}
	}()

	p.mu.Lock()
	for {
		if p.stopped {
			p.mu.Unlock()
			return nil, ErrPoolStopped
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if n := len(p.idle); n > 0 {
			pc := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return pc, nil
		}
		if p.total < p.max {
			p.total++
			p.mu.Unlock()
			pc, err := newPooledConn(ctx, p.db)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.cond.Signal()
				p.mu.Unlock()
				return nil, err
			}
			return pc, nil
		}
		p.cond.Wait()
	}
}

// Release returns a connection to the idle set and wakes one waiter. After
// Stop the connection is closed instead.
func (p *Pool) Release(pc *PooledConn) {
	p.mu.Lock()
	if p.stopped {
		p.total--
		p.mu.Unlock()
		pc.close()
		return
	}
	p.idle = append(p.idle, pc)
	p.cond.Signal()
	p.mu.Unlock()
}

// Stop closes idle connections and fails all current and future Acquires.
// Connections still checked out are closed on Release.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, pc := range idle {
		pc.close()
	}
	_ = p.db.Close()
	slog.Info("[UserDB] pool stopped")
}
