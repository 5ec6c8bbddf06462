package storage

import "errors"

// ErrNotFound is returned by lookups that find no matching row. Callers in
// internal/ride and internal/payment translate it into apperr.NotFound.
var ErrNotFound = errors.New("storage: not found")

// ErrPrecondition is returned by the transactional ride/driver writes in
// transactions.go when the row's current state no longer satisfies the
// caller's expected starting state — the concurrent-write guard underneath
// lock-serialized operations like matching (§5). Callers translate it into
// apperr.Conflict.
var ErrPrecondition = errors.New("storage: precondition failed")
