package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps failure counters in the login_attempts table.
type PG struct {
	q      Querier
	policy Policy
	now    func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, p Policy) *PG {
	return &PG{q: q, policy: p, now: time.Now}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, login string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE login=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, login, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
	if left := blockedUntil.Sub(l.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success forgets previous failures for (login, ip).
func (l *PG) Success(ctx context.Context, login string, ipHash []byte) error {
	const q = `DELETE FROM login_attempts WHERE login=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, q, login, ipHash); err != nil {
		return fmt.Errorf("limiter reset: %w", err)
	}
	return nil
}

// Failure counts a failed attempt inside the sliding window and blocks the
// pair once MaxFails is reached.
func (l *PG) Failure(ctx context.Context, login string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (login, ip_hash, fail_count, window_start)
VALUES ($1, $2, 1, now())
ON CONFLICT (login, ip_hash) DO UPDATE SET
  fail_count = CASE WHEN login_attempts.window_start < now() - $3 * interval '1 second'
    THEN 1 ELSE login_attempts.fail_count + 1 END,
  window_start = CASE WHEN login_attempts.window_start < now() - $3 * interval '1 second'
    THEN now() ELSE login_attempts.window_start END
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, login, ipHash, l.policy.Window.Seconds()).Scan(&fails); err != nil {
		return false, 0, fmt.Errorf("limiter count: %w", err)
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}

	const upd = `UPDATE login_attempts SET blocked_until=$3, fail_count=0, window_start=now() WHERE login=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, upd, login, ipHash, l.now().Add(l.policy.BlockFor)); err != nil {
		return false, 0, fmt.Errorf("limiter block: %w", err)
	}
	return true, l.policy.BlockFor, nil
}
