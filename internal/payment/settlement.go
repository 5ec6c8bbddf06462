package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ridecore/internal/apperr"
	"ridecore/internal/domain"
	"ridecore/internal/idempotency"
	"ridecore/internal/storage"
)

const idempotencyTTL = time.Hour

// Persistence is the slice of the Persistence Store this package needs,
// satisfied by *storage.Postgres.
type Persistence interface {
	GetTrip(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	GetPayment(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	GetPaymentByTripID(ctx context.Context, tripID uuid.UUID) (domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment) error
	CreateRefund(ctx context.Context, r domain.Refund) error
	CreateNotification(ctx context.Context, n domain.Notification) error
	GetRide(ctx context.Context, id uuid.UUID) (domain.Ride, error)
}

// Settlement is the §4.6 Payment Gateway Facade plus settlement operations.
type Settlement struct {
	store   Persistence
	idem    idempotency.Store
	gateway Gateway
}

func NewSettlement(store Persistence, idem idempotency.Store, gateway Gateway) *Settlement {
	return &Settlement{store: store, idem: idem, gateway: gateway}
}

func idemKey(key string) string { return "payment:" + key }

// ProcessPayment implements §4.6's processPayment{tripId, paymentMethodId,
// idempotencyKey}.
func (s *Settlement) ProcessPayment(ctx context.Context, tripID uuid.UUID, paymentMethodID, idempotencyKey string) (domain.Payment, error) {
	if idempotencyKey == "" {
		return domain.Payment{}, apperr.InvalidInputf("idempotencyKey is required")
	}

	if cached, ok, err := s.idem.Get(ctx, idemKey(idempotencyKey)); err == nil && ok {
		var pay domain.Payment
		if err := json.Unmarshal(cached, &pay); err == nil {
			return pay, nil
		}
	}

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Payment{}, apperr.NotFoundf("trip %s not found", tripID)
		}
		return domain.Payment{}, apperr.Wrap(apperr.Dependency, "failed to load trip", err)
	}
	if trip.Status != domain.TripCompleted {
		return domain.Payment{}, apperr.Validationf("trip %s is not completed", tripID)
	}

	if existing, err := s.store.GetPaymentByTripID(ctx, tripID); err == nil {
		if existing.Status == domain.PaymentCompleted {
			s.cacheResponse(ctx, idempotencyKey, existing)
			return existing, nil
		}
		return s.charge(ctx, existing, idempotencyKey)
	} else if err != storage.ErrNotFound {
		return domain.Payment{}, apperr.Wrap(apperr.Dependency, "failed to load payment", err)
	}

	now := time.Now()
	pay := domain.Payment{
		ID:              uuid.New(),
		TripID:          tripID,
		Amount:          trip.FinalFare,
		Status:          domain.PaymentPending,
		PaymentMethodID: paymentMethodID,
		IdempotencyKey:  idempotencyKey,
		Attempts:        0,
		MaxAttempts:     3,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.charge(ctx, pay, idempotencyKey)
}

// charge runs a single attempt of the PSP charge against pay, updating its
// status and persisting the outcome, per §4.6 steps 4-7.
func (s *Settlement) charge(ctx context.Context, pay domain.Payment, idempotencyKey string) (domain.Payment, error) {
	pay.Attempts++
	pay.Status = domain.PaymentProcessing
	pay.UpdatedAt = time.Now()
	if err := s.store.UpdatePayment(ctx, pay); err != nil {
		log.Error().Err(err).Str("payment_id", pay.ID.String()).Msg("failed to persist payment attempt")
	}

	pspRef, err := s.gateway.Charge(ctx, pay.Amount, pay.PaymentMethodID)

	now := time.Now()
	pay.UpdatedAt = now
	if err != nil {
		reason := err.Error()
		pay.Status = domain.PaymentFailed
		pay.FailureReason = &reason
		pay.FailedAt = &now
	} else {
		pay.Status = domain.PaymentCompleted
		pay.PSPTransactionID = &pspRef
		pay.CompletedAt = &now
	}

	if dbErr := s.store.UpdatePayment(ctx, pay); dbErr != nil {
		return domain.Payment{}, apperr.Wrap(apperr.Dependency, "failed to persist payment outcome", dbErr)
	}

	s.notifyOutcome(ctx, pay)
	s.cacheResponse(ctx, idempotencyKey, pay)
	return pay, nil
}

func (s *Settlement) notifyOutcome(ctx context.Context, pay domain.Payment) {
	trip, err := s.store.GetTrip(ctx, pay.TripID)
	if err != nil {
		return
	}
	ride, err := s.store.GetRide(ctx, trip.RideID)
	if err != nil {
		return
	}

	notifyType := domain.NotifyPaymentSuccess
	payload := map[string]any{"amount": pay.Amount}
	if pay.Status == domain.PaymentFailed {
		notifyType = domain.NotifyPaymentFailed
		if pay.FailureReason != nil {
			payload["reason"] = *pay.FailureReason
		}
	}
	n := domain.Notification{
		ID:        uuid.New(),
		UserID:    ride.RiderID,
		UserType:  domain.TargetRider,
		Type:      notifyType,
		RideID:    &trip.RideID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		log.Error().Err(err).Str("payment_id", pay.ID.String()).Msg("failed to persist payment notification")
	}
}

func (s *Settlement) cacheResponse(ctx context.Context, idempotencyKey string, pay domain.Payment) {
	encoded, err := json.Marshal(pay)
	if err != nil {
		return
	}
	if _, err := s.idem.PutIfAbsent(ctx, idemKey(idempotencyKey), encoded, idempotencyTTL); err != nil {
		log.Error().Err(err).Str("idempotency_key", idempotencyKey).Msg("failed to cache payment response")
	}
}

// RetryPayment implements §4.6's retryPayment(paymentId): only allowed when
// the current status is FAILED, and increments attempts up to MaxAttempts.
func (s *Settlement) RetryPayment(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error) {
	pay, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Payment{}, apperr.NotFoundf("payment %s not found", paymentID)
		}
		return domain.Payment{}, apperr.Wrap(apperr.Dependency, "failed to load payment", err)
	}
	if pay.Status != domain.PaymentFailed {
		return domain.Payment{}, apperr.Validationf("payment %s is not in FAILED status", paymentID)
	}
	if pay.Attempts >= pay.MaxAttempts {
		return domain.Payment{}, apperr.Validationf("payment %s has exhausted its retry attempts", paymentID)
	}
	return s.charge(ctx, pay, pay.IdempotencyKey)
}

// Refund implements §4.6's refund(paymentId, amount, reason): requires
// current status COMPLETED and amount <= paid; a full refund sets
// REFUNDED, a partial refund sets PARTIALLY_REFUNDED.
func (s *Settlement) Refund(ctx context.Context, paymentID uuid.UUID, amount float64, reason string) (domain.Refund, error) {
	pay, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Refund{}, apperr.NotFoundf("payment %s not found", paymentID)
		}
		return domain.Refund{}, apperr.Wrap(apperr.Dependency, "failed to load payment", err)
	}
	if pay.Status != domain.PaymentCompleted {
		return domain.Refund{}, apperr.Validationf("payment %s is not COMPLETED", paymentID)
	}
	if amount <= 0 || amount > pay.Amount {
		return domain.Refund{}, apperr.Validationf("refund amount %.2f exceeds paid amount %.2f", amount, pay.Amount)
	}

	refund := domain.Refund{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateRefund(ctx, refund); err != nil {
		return domain.Refund{}, apperr.Wrap(apperr.Dependency, "failed to persist refund", err)
	}

	if amount == pay.Amount {
		pay.Status = domain.PaymentRefunded
	} else {
		pay.Status = domain.PaymentPartiallyRefunded
	}
	pay.UpdatedAt = time.Now()
	if err := s.store.UpdatePayment(ctx, pay); err != nil {
		return domain.Refund{}, apperr.Wrap(apperr.Dependency, "failed to persist refund status", err)
	}

	return refund, nil
}
