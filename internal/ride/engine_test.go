package ride

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ridecore/internal/bus"
	"ridecore/internal/domain"
	"ridecore/internal/geo"
	"ridecore/internal/lockservice"
)

func newTestEngine(store *fakeStore) *Engine {
	return NewEngine(DefaultConfig(), store, geo.NewInMemoryGeo(), lockservice.NewMemoryLock(), bus.New())
}

func seedAvailableDriver(store *fakeStore, tier domain.RideType) uuid.UUID {
	id := uuid.New()
	store.drivers[id] = domain.Driver{
		ID:     id,
		Status: domain.DriverAvailable,
		Rating: 4.8,
		Vehicle: domain.Vehicle{Tier: tier},
	}
	return id
}

func seedSearchingRide(store *fakeStore) uuid.UUID {
	id := uuid.New()
	store.rides[id] = domain.Ride{
		ID:       id,
		RiderID:  uuid.New(),
		Status:   domain.RideSearching,
		RideType: domain.RideTypeStandard,
		Pickup:   domain.Waypoint{Coordinate: domain.Coordinate{Lat: 1, Lng: 1}},
	}
	return id
}

// TestAcceptRideSingleWinner exercises the §8 single-winner property: many
// concurrent AcceptRide calls for the same ride and distinct drivers must
// let exactly one succeed.
func TestAcceptRideSingleWinner(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store)
	rideID := seedSearchingRide(store)

	const n = 8
	driverIDs := make([]uuid.UUID, n)
	for i := range driverIDs {
		driverIDs[i] = seedAvailableDriver(store, domain.RideTypeStandard)
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.AcceptRide(context.Background(), rideID, driverIDs[i])
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	require.Equal(t, 1, wins, "exactly one AcceptRide call must succeed")

	ride, err := store.GetRide(context.Background(), rideID)
	require.NoError(t, err)
	require.Equal(t, domain.RideMatched, ride.Status)
	require.NotNil(t, ride.DriverID)
}

func TestAcceptRideRejectsAlreadyMatched(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store)
	rideID := seedSearchingRide(store)
	d1 := seedAvailableDriver(store, domain.RideTypeStandard)
	d2 := seedAvailableDriver(store, domain.RideTypeStandard)

	require.NoError(t, e.AcceptRide(context.Background(), rideID, d1))
	err := e.AcceptRide(context.Background(), rideID, d2)
	require.Error(t, err)
}

func TestFilterAndRankCandidatesTierAndDistance(t *testing.T) {
	candidates := []geo.Candidate{
		{DriverID: "far-premium", DistKM: 3.0, Meta: geo.Meta{Tier: "PREMIUM", Rating: 5.0}},
		{DriverID: "near-standard", DistKM: 1.0, Meta: geo.Meta{Tier: "STANDARD", Rating: 4.0}},
		{DriverID: "mid-standard", DistKM: 1.2, Meta: geo.Meta{Tier: "STANDARD", Rating: 4.9}},
	}
	ranked := filterAndRankCandidates(candidates, domain.RideTypeStandard, 0.5)
	require.Len(t, ranked, 2)
	// Within tieBreakKM (0.2 diff < 0.5), higher rating wins the tie.
	require.Equal(t, "mid-standard", ranked[0].DriverID)
}

func TestCancelRideRestoresDriverAvailability(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store)
	rideID := seedSearchingRide(store)
	driverID := seedAvailableDriver(store, domain.RideTypeStandard)

	require.NoError(t, e.AcceptRide(context.Background(), rideID, driverID))

	_, err := e.CancelRide(context.Background(), rideID, domain.CancelledByRider, "changed my mind")
	require.NoError(t, err)

	ride, err := store.GetRide(context.Background(), rideID)
	require.NoError(t, err)
	require.Equal(t, domain.RideCancelled, ride.Status)

	driver, err := store.GetDriver(context.Background(), driverID)
	require.NoError(t, err)
	require.Equal(t, domain.DriverAvailable, driver.Status)
}

func TestRunMatchingLoopExhaustsToFailed(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store)
	e.cfg.MaxAttempts = 1
	e.cfg.Backoff = time.Millisecond
	rideID := seedSearchingRide(store)

	e.runMatchingLoop(rideID)

	ride, err := store.GetRide(context.Background(), rideID)
	require.NoError(t, err)
	require.Equal(t, domain.RideFailed, ride.Status)
}
