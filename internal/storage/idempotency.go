package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIdempotencyStore is the durable implementation of
// idempotency.Store (§2 item 5), backed by the idempotency_keys table in
// schema.sql. Grounded on the teacher's internal/storage/idempotency.go
// (upsert-with-expiry pattern), generalized from a ride-id-only cache to an
// arbitrary cached response payload so it can back both createRide and
// §4.6's payment settlement idempotency keys.
type PostgresIdempotencyStore struct {
	pool *pgxpool.Pool
}

func NewPostgresIdempotencyStore(pool *pgxpool.Pool) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{pool: pool}
}

func (s *PostgresIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expires time.Time
	err := s.pool.QueryRow(ctx, `
SELECT response, expires_at FROM idempotency_keys WHERE key = $1
`, key).Scan(&value, &expires)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if time.Now().After(expires) {
		return nil, false, nil
	}
	return value, true, nil
}

// PutIfAbsent relies on the unique key column: a first insert wins. A
// concurrent loser is detected by RowsAffected() == 0 from the conditional
// ON CONFLICT clause, which only overwrites a row whose TTL has already
// elapsed — preserving first-writer-wins semantics across process
// instances while still letting an expired key be reclaimed.
func (s *PostgresIdempotencyStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO idempotency_keys (key, response, expires_at)
VALUES ($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET response = EXCLUDED.response, expires_at = EXCLUDED.expires_at
WHERE idempotency_keys.expires_at < NOW()
`, key, value, time.Now().Add(ttl))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
