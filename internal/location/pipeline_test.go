package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ridecore/internal/bus"
	"ridecore/internal/domain"
	"ridecore/internal/geo"
)

type fakeLookup struct {
	status       domain.DriverStatus
	activeRideID string
}

func (f fakeLookup) DriverStatus(ctx context.Context, driverID string) (domain.DriverStatus, string, string, float64, error) {
	return f.status, f.activeRideID, "STANDARD", 4.8, nil
}

type fakePersistence struct {
	mu    sync.Mutex
	calls [][]Ping
}

func (f *fakePersistence) BatchInsertLocations(ctx context.Context, pings []Ping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Ping, len(pings))
	copy(cp, pings)
	f.calls = append(f.calls, cp)
	return nil
}

func (f *fakePersistence) totalWritten() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func TestRecordPingValidation(t *testing.T) {
	idx := geo.NewInMemoryGeo()
	persist := &fakePersistence{}
	p := New(DefaultConfig(), idx, persist, bus.New(), fakeLookup{status: domain.DriverAvailable}, nil)

	err := p.RecordPing(context.Background(), Ping{DriverID: "d1", Lat: 999, Lng: 0})
	require.Error(t, err)
}

func TestRecordPingUpdatesGeoIndexWhenAvailable(t *testing.T) {
	idx := geo.NewInMemoryGeo()
	persist := &fakePersistence{}
	p := New(DefaultConfig(), idx, persist, bus.New(), fakeLookup{status: domain.DriverAvailable}, nil)

	require.NoError(t, p.RecordPing(context.Background(), Ping{DriverID: "d1", Lat: 10, Lng: 10}))
	lat, lng, ok := idx.Position(context.Background(), "d1")
	require.True(t, ok)
	require.Equal(t, 10.0, lat)
	require.Equal(t, 10.0, lng)
}

func TestRecordPingSkipsGeoIndexWhenOffline(t *testing.T) {
	idx := geo.NewInMemoryGeo()
	persist := &fakePersistence{}
	p := New(DefaultConfig(), idx, persist, bus.New(), fakeLookup{status: domain.DriverOffline}, nil)

	require.NoError(t, p.RecordPing(context.Background(), Ping{DriverID: "d1", Lat: 10, Lng: 10}))
	_, _, ok := idx.Position(context.Background(), "d1")
	require.False(t, ok)
}

func TestFlushOnBatchSize(t *testing.T) {
	idx := geo.NewInMemoryGeo()
	persist := &fakePersistence{}
	cfg := Config{BatchSize: 5, BatchInterval: time.Hour, HighWaterMark: 1000}
	p := New(cfg, idx, persist, bus.New(), fakeLookup{status: domain.DriverAvailable}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.RecordPing(context.Background(), Ping{DriverID: "d1", Lat: 1, Lng: 1}))
	}

	require.Eventually(t, func() bool {
		return persist.totalWritten() == 5
	}, time.Second, 10*time.Millisecond)
}

func TestLocationFanOutToSubscribers(t *testing.T) {
	idx := geo.NewInMemoryGeo()
	persist := &fakePersistence{}
	b := bus.New()
	p := New(DefaultConfig(), idx, persist, b, fakeLookup{status: domain.DriverOnRide, activeRideID: "ride1"}, nil)

	var mu sync.Mutex
	rideMsgs, locMsgs := 0, 0
	b.Subscribe(bus.RideTopic("ride1"), func(payload any) {
		mu.Lock()
		rideMsgs++
		mu.Unlock()
	})
	b.Subscribe(bus.LocationTopic("d1"), func(payload any) {
		mu.Lock()
		locMsgs++
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, p.RecordPing(context.Background(), Ping{DriverID: "d1", Lat: 1, Lng: 1}))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 10, rideMsgs)
	require.Equal(t, 10, locMsgs)
}

func TestPerDriverOrderPreservedAcrossFlushes(t *testing.T) {
	idx := geo.NewInMemoryGeo()
	persist := &fakePersistence{}
	cfg := Config{BatchSize: 10, BatchInterval: time.Hour, HighWaterMark: 10000}
	p := New(cfg, idx, persist, bus.New(), fakeLookup{status: domain.DriverAvailable}, nil)

	for i := 0; i < 100; i++ {
		require.NoError(t, p.RecordPing(context.Background(), Ping{DriverID: "d1", Lat: float64(i), Lng: 0}))
	}

	require.Eventually(t, func() bool {
		return persist.totalWritten() == 100
	}, time.Second, 10*time.Millisecond)

	persist.mu.Lock()
	defer persist.mu.Unlock()
	seen := -1.0
	for _, call := range persist.calls {
		for _, ping := range call {
			require.True(t, ping.Lat > seen)
			seen = ping.Lat
		}
	}
}
