package payment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ridecore/internal/domain"
	"ridecore/internal/idempotency"
	"ridecore/internal/storage"
)

type fakeStore struct {
	trips    map[uuid.UUID]domain.Trip
	payments map[uuid.UUID]domain.Payment
	byTrip   map[uuid.UUID]uuid.UUID
	rides    map[uuid.UUID]domain.Ride
	refunds  []domain.Refund
	notifs   []domain.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trips:    make(map[uuid.UUID]domain.Trip),
		payments: make(map[uuid.UUID]domain.Payment),
		byTrip:   make(map[uuid.UUID]uuid.UUID),
		rides:    make(map[uuid.UUID]domain.Ride),
	}
}

func (f *fakeStore) GetTrip(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return domain.Trip{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetPayment(_ context.Context, id uuid.UUID) (domain.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return domain.Payment{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetPaymentByTripID(_ context.Context, tripID uuid.UUID) (domain.Payment, error) {
	id, ok := f.byTrip[tripID]
	if !ok {
		return domain.Payment{}, storage.ErrNotFound
	}
	return f.payments[id], nil
}

func (f *fakeStore) UpdatePayment(_ context.Context, p domain.Payment) error {
	f.payments[p.ID] = p
	f.byTrip[p.TripID] = p.ID
	return nil
}

func (f *fakeStore) CreateRefund(_ context.Context, r domain.Refund) error {
	f.refunds = append(f.refunds, r)
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n domain.Notification) error {
	f.notifs = append(f.notifs, n)
	return nil
}

func (f *fakeStore) GetRide(_ context.Context, id uuid.UUID) (domain.Ride, error) {
	r, ok := f.rides[id]
	if !ok {
		return domain.Ride{}, storage.ErrNotFound
	}
	return r, nil
}

func seedCompletedTrip(f *fakeStore) (uuid.UUID, uuid.UUID) {
	rideID := uuid.New()
	tripID := uuid.New()
	f.rides[rideID] = domain.Ride{ID: rideID, RiderID: uuid.New()}
	f.trips[tripID] = domain.Trip{ID: tripID, RideID: rideID, Status: domain.TripCompleted, FinalFare: 233.28}
	return rideID, tripID
}

func TestProcessPaymentIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	_, tripID := seedCompletedTrip(store)
	gateway := NewMockGateway()
	s := NewSettlement(store, idempotency.NewMemoryStore(), gateway)

	ctx := context.Background()
	first, err := s.ProcessPayment(ctx, tripID, "pm_1", "idem-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, first.Status)

	second, err := s.ProcessPayment(ctx, tripID, "pm_1", "idem-1")
	require.NoError(t, err)
	firstBody, err := json.Marshal(first)
	require.NoError(t, err)
	secondBody, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, firstBody, secondBody)

	require.Equal(t, int64(1), gateway.Calls(), "replay must not call the PSP a second time")

	count := 0
	for _, p := range store.payments {
		if p.TripID == tripID {
			count++
		}
	}
	require.Equal(t, 1, count, "exactly one payment row must exist")
}

func TestProcessPaymentRequiresCompletedTrip(t *testing.T) {
	store := newFakeStore()
	rideID := uuid.New()
	tripID := uuid.New()
	store.rides[rideID] = domain.Ride{ID: rideID, RiderID: uuid.New()}
	store.trips[tripID] = domain.Trip{ID: tripID, RideID: rideID, Status: domain.TripStarted}

	s := NewSettlement(store, idempotency.NewMemoryStore(), NewMockGateway())
	_, err := s.ProcessPayment(context.Background(), tripID, "pm_1", "idem-2")
	require.Error(t, err)
}

func TestRetryPaymentSucceedsAfterFailure(t *testing.T) {
	store := newFakeStore()
	_, tripID := seedCompletedTrip(store)
	gateway := NewMockGateway()
	gateway.FailNextN(1)
	s := NewSettlement(store, idempotency.NewMemoryStore(), gateway)

	ctx := context.Background()
	pay, err := s.ProcessPayment(ctx, tripID, "pm_1", "idem-3")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentFailed, pay.Status)
	require.Equal(t, 1, pay.Attempts)

	retried, err := s.RetryPayment(ctx, pay.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, retried.Status)
	require.Equal(t, 2, retried.Attempts)

	count := 0
	for _, p := range store.payments {
		if p.TripID == tripID {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestRetryPaymentRejectsNonFailedStatus(t *testing.T) {
	store := newFakeStore()
	_, tripID := seedCompletedTrip(store)
	s := NewSettlement(store, idempotency.NewMemoryStore(), NewMockGateway())

	pay, err := s.ProcessPayment(context.Background(), tripID, "pm_1", "idem-4")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, pay.Status)

	_, err = s.RetryPayment(context.Background(), pay.ID)
	require.Error(t, err)
}

func TestRefundFullAndPartial(t *testing.T) {
	store := newFakeStore()
	_, tripID := seedCompletedTrip(store)
	s := NewSettlement(store, idempotency.NewMemoryStore(), NewMockGateway())

	pay, err := s.ProcessPayment(context.Background(), tripID, "pm_1", "idem-5")
	require.NoError(t, err)

	_, err = s.Refund(context.Background(), pay.ID, pay.Amount+1, "too much")
	require.Error(t, err, "refund exceeding paid amount must fail")

	refund, err := s.Refund(context.Background(), pay.ID, 50, "partial")
	require.NoError(t, err)
	require.Equal(t, 50.0, refund.Amount)

	updated, err := store.GetPayment(context.Background(), pay.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPartiallyRefunded, updated.Status)
}
