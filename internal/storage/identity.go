package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Identity is a bearer-token session issued to a rider or driver client.
// Rider/driver authentication proper is out of scope for the core (spec's
// driver-onboarding/KYC non-goal extends to identity verification); this is
// the same lightweight demo token store the teacher used to let its HTTP
// layer gate requests, retargeted at the new rider/driver id space.
type Identity struct {
	ID        string
	Role      string
	Token     string
	ExpiresAt *time.Time
}

type IdentityStore struct {
	pool *pgxpool.Pool
}

func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

func (s *IdentityStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS identities (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	token TEXT UNIQUE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ
);
`)
	return err
}

func (s *IdentityStore) Save(ctx context.Context, ident Identity, ttl time.Duration) (Identity, error) {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO identities (id, role, token, expires_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
`, ident.ID, ident.Role, ident.Token, expires)
	if err != nil {
		return Identity{}, err
	}
	ident.ExpiresAt = expires
	return ident, nil
}

func (s *IdentityStore) Lookup(ctx context.Context, token string) (Identity, bool, error) {
	var ident Identity
	var expires *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT id, role, token, expires_at FROM identities WHERE token = $1
`, token).Scan(&ident.ID, &ident.Role, &ident.Token, &expires)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}
	if expires != nil && expires.Before(time.Now()) {
		return Identity{}, false, nil
	}
	ident.ExpiresAt = expires
	return ident, true, nil
}
