package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sankofa-mutual/sankofa/internal/settlement"
)

// SettlementGuard persists processed line keys so a replayed batch cannot
// settle the same due twice under one wizard. It implements settlement.Guard.
type SettlementGuard struct {
	pool *pgxpool.Pool
}

// NewSettlementGuard constructs the guard.
func NewSettlementGuard(pool *pgxpool.Pool) *SettlementGuard {
	return &SettlementGuard{pool: pool}
}

// CheckAndInsert claims a line key, reporting ErrAlreadySettled on a replay.
func (g *SettlementGuard) CheckAndInsert(ctx context.Context, key string) error {
	if g == nil {
		return errors.New("settlement guard not initialised")
	}
	if key == "" {
		return errors.New("settlement guard key required")
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO settlement_guard_keys (key, created_at) VALUES ($1, $2)`,
		key, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return settlement.ErrAlreadySettled
		}
		var connErr *pgconn.ConnectError
		if errors.As(err, &connErr) {
			return fmt.Errorf("%w: %v", settlement.ErrUnavailable, err)
		}
		return err
	}
	return nil
}

// Cleanup removes keys older than retention. Expired wizards cannot be
// replayed, so their keys are dead weight.
func (g *SettlementGuard) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if g == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := g.pool.Exec(ctx, `DELETE FROM settlement_guard_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Release frees a key after its line failed to persist, so the retry is not
// rejected as a duplicate.
func (g *SettlementGuard) Release(ctx context.Context, key string) error {
	if g == nil {
		return nil
	}
	if key == "" {
		return errors.New("settlement guard key required")
	}
	_, err := g.pool.Exec(ctx, `DELETE FROM settlement_guard_keys WHERE key=$1`, key)
	return err
}
