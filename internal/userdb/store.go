package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrUnknownUser   = errors.New("userdb: unknown user")
	ErrWrongPassword = errors.New("userdb: wrong password")
	ErrUserExists    = errors.New("userdb: user already exists")
)

// Store is the account layer: credential verification and registration over
// the prepared-statement pool, with uids minted by the snowflake generator.
type Store struct {
	pool *Pool
	ids  *Snowflake
}

func NewStore(pool *Pool, ids *Snowflake) *Store {
	return &Store{pool: pool, ids: ids}
}

// VerifyUser checks username/password and returns the account uid. Unknown
// user and wrong password come back as distinct errors; the HTTP layer is
// expected to collapse them before answering a client.
func (s *Store) VerifyUser(ctx context.Context, username, password string) (int64, error) {
	pc, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(pc)

	var uid int64
	var stored string
	err = pc.queryUser.QueryRowContext(ctx, username).Scan(&uid, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("query user %q: %w", username, err)
	}

	ok, err := VerifyPassword(stored, password)
	if err != nil {
		slog.Error("[UserDB] stored hash unusable", "username", username, "error", err)
		return 0, err
	}
	if !ok {
		return 0, ErrWrongPassword
	}
	return uid, nil
}

// UserExists reports whether the username is taken.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	pc, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Release(pc)

	var one int
	err = pc.userExists.QueryRowContext(ctx, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user %q: %w", username, err)
	}
	return true, nil
}

// RegisterUser creates the account and returns its fresh uid. Callers hold
// the registration lock around this; the unique index on username is the
// backstop if they do not.
func (s *Store) RegisterUser(ctx context.Context, username, password string) (int64, error) {
	taken, err := s.UserExists(ctx, username)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, ErrUserExists
	}

	uid, err := s.ids.Next()
	if err != nil {
		return 0, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	pc, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(pc)

	if _, err := pc.insertUser.ExecContext(ctx, uid, username, hash); err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	slog.Info("[UserDB] registered user", "username", username, "uid", uid)
	return uid, nil
}
