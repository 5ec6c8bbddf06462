package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := Conflictf("ride %s already matched", "r1")
	require.Equal(t, Conflict, KindOf(err))
	require.True(t, Is(err, Conflict))
	require.True(t, Conflict.Retryable())
	require.False(t, Validation.Retryable())
}

func TestKindOfUnrecognized(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestWrapUnwraps(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(Dependency, "postgres unavailable", inner)
	require.ErrorIs(t, err, inner)
	require.Equal(t, Dependency, KindOf(err))
}

func TestWithDetails(t *testing.T) {
	err := InvalidInputf("bad coordinate")
	err.WithDetails(map[string]any{"lat": 999.0})
	require.Equal(t, 999.0, err.Details["lat"])
}
