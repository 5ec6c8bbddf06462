package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/storage"
)

type authConfig struct {
	db  *storage.IdentityStore
	ttl time.Duration
}

func newAuthConfig(db *storage.IdentityStore, ttl time.Duration) authConfig {
	return authConfig{db: db, ttl: ttl}
}

func (a authConfig) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.db == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := parseToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		identity, ok, err := a.db.Lookup(r.Context(), token)
		if err != nil || !ok {
			respondError(w, http.StatusForbidden, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityCtxKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type identityCtxKey struct{}

func identityFromContext(ctx context.Context) (storage.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(storage.Identity)
	return id, ok
}

func parseToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}

// RegisterIdentity issues a new bearer token for a rider, driver or admin id,
// per the demo-auth scope described on storage.Identity.
func (h *Handler) RegisterIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || (req.Role != "rider" && req.Role != "driver" && req.Role != "admin") {
		respondError(w, http.StatusBadRequest, "userId and a valid role are required")
		return
	}

	ident := storage.Identity{ID: req.UserID, Role: req.Role, Token: uuid.NewString()}
	saved, err := h.auth.db.Save(r.Context(), ident, h.auth.ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save identity")
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}
