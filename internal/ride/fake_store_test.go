package ride

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain"
	"ridecore/internal/storage"
)

// fakeStore is a minimal in-memory Persistence implementation used to unit
// test the Ride Engine without a real database, the same way the teacher's
// dispatch.Store is tested against an in-memory fake of dispatch.Persistence.
type fakeStore struct {
	mu       sync.Mutex
	riders   map[uuid.UUID]domain.Rider
	drivers  map[uuid.UUID]domain.Driver
	rides    map[uuid.UUID]domain.Ride
	trips    map[uuid.UUID]domain.Trip
	pricing  domain.PricingConfig
	notifs   []domain.Notification
	events   []domain.RideEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		riders:  make(map[uuid.UUID]domain.Rider),
		drivers: make(map[uuid.UUID]domain.Driver),
		rides:   make(map[uuid.UUID]domain.Ride),
		trips:   make(map[uuid.UUID]domain.Trip),
		pricing: domain.PricingConfig{BaseFare: 50, PerKmRate: 12, PerMinRate: 2, Active: true},
	}
}

func (f *fakeStore) CreateRider(_ context.Context, r domain.Rider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.riders[r.ID] = r
	return nil
}

func (f *fakeStore) GetRider(_ context.Context, id uuid.UUID) (domain.Rider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.riders[id]
	if !ok {
		return domain.Rider{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) CreateDriver(_ context.Context, d domain.Driver) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drivers[d.ID] = d
	return nil
}

func (f *fakeStore) GetDriver(_ context.Context, id uuid.UUID) (domain.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	if !ok {
		return domain.Driver{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) UpdateDriverStatus(_ context.Context, id uuid.UUID, status domain.DriverStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	if !ok {
		return storage.ErrNotFound
	}
	d.Status = status
	f.drivers[id] = d
	return nil
}

func (f *fakeStore) UpdateDriverPosition(_ context.Context, id uuid.UUID, lat, lng float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[id]
	if !ok {
		return storage.ErrNotFound
	}
	d.Lat, d.Lng, d.LastLocationUpdate = lat, lng, at
	f.drivers[id] = d
	return nil
}

func (f *fakeStore) GetRide(_ context.Context, id uuid.UUID) (domain.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rides[id]
	if !ok {
		return domain.Ride{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetRideByIdempotencyKey(_ context.Context, key string) (domain.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rides {
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			return r, nil
		}
	}
	return domain.Ride{}, storage.ErrNotFound
}

func (f *fakeStore) GetActiveRideByDriverID(_ context.Context, driverID uuid.UUID) (domain.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rides {
		if r.DriverID != nil && *r.DriverID == driverID && !r.Status.Terminal() {
			return r, nil
		}
	}
	return domain.Ride{}, storage.ErrNotFound
}

func (f *fakeStore) ListRidesByRider(_ context.Context, riderID uuid.UUID, limit, offset int) ([]domain.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ride
	for _, r := range f.rides {
		if r.RiderID == riderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CountRidesByRider(_ context.Context, riderID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rides {
		if r.RiderID == riderID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateRideTx(_ context.Context, r domain.Ride, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[r.ID] = r
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) MatchRideTx(_ context.Context, rideID, driverID uuid.UUID, matchedAt time.Time, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rides[rideID]
	if !ok || r.Status != domain.RideSearching {
		return storage.ErrPrecondition
	}
	d, ok := f.drivers[driverID]
	if !ok || d.Status != domain.DriverAvailable {
		return storage.ErrPrecondition
	}

	r.Status = domain.RideMatched
	r.DriverID = &driverID
	r.MatchedAt = &matchedAt
	f.rides[rideID] = r

	d.Status = domain.DriverOnRide
	f.drivers[driverID] = d

	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) TransitionRideTx(_ context.Context, rideID uuid.UUID, from []domain.RideStatus, to domain.RideStatus, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rides[rideID]
	if !ok {
		return storage.ErrPrecondition
	}
	allowed := false
	for _, s := range from {
		if r.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return storage.ErrPrecondition
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	f.rides[rideID] = r
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) CancelRideTx(_ context.Context, ride domain.Ride, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.rides[ride.ID]
	if !ok || existing.Status.Terminal() {
		return storage.ErrPrecondition
	}
	f.rides[ride.ID] = ride
	if ride.DriverID != nil {
		d := f.drivers[*ride.DriverID]
		d.Status = domain.DriverAvailable
		f.drivers[*ride.DriverID] = d
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) CreateTripTx(_ context.Context, trip domain.Trip, ride domain.Ride, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trips[trip.ID] = trip
	f.rides[ride.ID] = ride
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) StartTripTx(_ context.Context, tripID, rideID uuid.UUID, startedAt time.Time, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trips[tripID]
	if !ok || t.Status != domain.TripPending {
		return storage.ErrPrecondition
	}
	r, ok := f.rides[rideID]
	if !ok || r.Status != domain.RideArrived {
		return storage.ErrPrecondition
	}
	t.Status = domain.TripStarted
	t.StartedAt = &startedAt
	f.trips[tripID] = t

	r.Status = domain.RideInProgress
	f.rides[rideID] = r

	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) CompleteTripTx(_ context.Context, trip domain.Trip, riderID uuid.UUID, payment domain.Payment, receipt domain.Receipt, earning domain.Earning, evt domain.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.trips[trip.ID]
	if !ok || existing.Status != domain.TripStarted {
		return storage.ErrPrecondition
	}
	f.trips[trip.ID] = trip

	r := f.rides[trip.RideID]
	r.Status = domain.RideCompleted
	f.rides[trip.RideID] = r

	d := f.drivers[trip.DriverID]
	d.Status = domain.DriverAvailable
	d.TotalTrips++
	f.drivers[trip.DriverID] = d

	rider := f.riders[riderID]
	rider.TotalRides++
	f.riders[riderID] = rider

	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) GetTrip(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[id]
	if !ok {
		return domain.Trip{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTripByRideID(_ context.Context, rideID uuid.UUID) (domain.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trips {
		if t.RideID == rideID {
			return t, nil
		}
	}
	return domain.Trip{}, storage.ErrNotFound
}

func (f *fakeStore) GetActivePricingConfig(_ context.Context, region string, rideType domain.RideType) (domain.PricingConfig, error) {
	return f.pricing, nil
}

func (f *fakeStore) ActiveSurgeZones(_ context.Context, region string) ([]domain.SurgeZone, error) {
	return nil, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifs = append(f.notifs, n)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.notifs {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}
