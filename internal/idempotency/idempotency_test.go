package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutIfAbsentFirstWriterWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stored1, err := s.PutIfAbsent(ctx, "payment:abc", []byte("first"), time.Minute)
	require.NoError(t, err)
	require.True(t, stored1)

	stored2, err := s.PutIfAbsent(ctx, "payment:abc", []byte("second"), time.Minute)
	require.NoError(t, err)
	require.False(t, stored2)

	value, ok, err := s.Get(ctx, "payment:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", string(value))
}

func TestGetMissingKey(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.PutIfAbsent(ctx, "k", []byte("v"), 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := s.PutIfAbsent(ctx, "k", []byte("v2"), time.Minute)
	require.NoError(t, err)
	require.True(t, stored, "expired entry should allow a fresh first-writer")
}

func TestConcurrentPutIfAbsentOnlyOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	wins := make(chan bool, 50)

	for i := 0; i < 50; i++ {
		go func() {
			stored, _ := s.PutIfAbsent(ctx, "race", []byte("v"), time.Minute)
			wins <- stored
		}()
	}

	winners := 0
	for i := 0; i < 50; i++ {
		if <-wins {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}
