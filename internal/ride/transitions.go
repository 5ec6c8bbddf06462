package ride

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ridecore/internal/apperr"
	"ridecore/internal/domain"
	"ridecore/internal/storage"
)

// GetRide implements §6's getRide{rideId}.
func (e *Engine) GetRide(ctx context.Context, rideID uuid.UUID) (domain.Ride, error) {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Ride{}, apperr.NotFoundf("ride %s not found", rideID)
		}
		return domain.Ride{}, apperr.Wrap(apperr.Dependency, "failed to load ride", err)
	}
	return ride, nil
}

// ListRiderHistory implements §6's listRiderHistory{riderId, page, limit}.
func (e *Engine) ListRiderHistory(ctx context.Context, riderID uuid.UUID, page, limit int) ([]domain.Ride, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	rides, err := e.store.ListRidesByRider(ctx, riderID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Dependency, "failed to list ride history", err)
	}
	total, err := e.store.CountRidesByRider(ctx, riderID)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Dependency, "failed to count ride history", err)
	}
	return rides, total, nil
}

// CancelRide implements §4.3's cancel(by,reason) transition: legal from any
// non-terminal state except IN_PROGRESS (§4.3 table, domain.CancellableFrom).
// If a driver is assigned, it is restored to AVAILABLE in the same
// transaction; a cancellation fee is computed as metadata only when the
// ride was at or past MATCHED (DESIGN.md Open Question decision).
func (e *Engine) CancelRide(ctx context.Context, rideID uuid.UUID, by domain.CancelledBy, reason string) (domain.Ride, error) {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Ride{}, apperr.NotFoundf("ride %s not found", rideID)
		}
		return domain.Ride{}, apperr.Wrap(apperr.Dependency, "failed to load ride", err)
	}
	if !domain.CancellableFrom(ride.Status) {
		return domain.Ride{}, apperr.Validationf("ride %s cannot be cancelled from status %s", rideID, ride.Status)
	}

	// A non-nil DriverID implies the ride was at or past MATCHED (§4.3's
	// "state >= MATCHED has a non-null driver" invariant), which is
	// exactly when the cancellation fee applies.
	hadDriver := ride.DriverID != nil

	ride.Status = domain.RideCancelled
	ride.CancelledBy = &by
	ride.CancelReason = reason
	ride.UpdatedAt = time.Now()

	if hadDriver {
		fee := cancellationFee(ride.EstimatedFare)
		ride.CancellationFee = &fee
	}

	event := newRideEvent(rideID, "ride_cancelled", map[string]any{"by": by, "reason": reason})
	if err := e.store.CancelRideTx(ctx, ride, event); err != nil {
		if err == storage.ErrPrecondition {
			return domain.Ride{}, apperr.Conflictf("ride %s changed state before cancellation could be applied", rideID)
		}
		return domain.Ride{}, apperr.Wrap(apperr.Dependency, "failed to persist cancellation", err)
	}

	e.publishRideEvent(rideID, "ride_cancelled", ride)
	e.notify(ctx, ride.RiderID, domain.TargetRider, domain.NotifyRideCancelled, &rideID, map[string]any{"by": by})
	return ride, nil
}

// cancellationFee is 10% of the estimated fare, rounded to integer rupees,
// per §4.3's cancel side effect. Metadata only: no Payment row is ever
// created against it (DESIGN.md Open Question decision).
func cancellationFee(estimatedFare float64) float64 {
	return float64(int64(estimatedFare*0.10 + 0.5))
}

// MarkArriving implements §4.3's driverEnRoute transition: MATCHED ->
// DRIVER_ARRIVING.
func (e *Engine) MarkArriving(ctx context.Context, rideID, driverID uuid.UUID) error {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		if err == storage.ErrNotFound {
			return apperr.NotFoundf("ride %s not found", rideID)
		}
		return apperr.Wrap(apperr.Dependency, "failed to load ride", err)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return apperr.Validationf("driver %s is not assigned to ride %s", driverID, rideID)
	}
	if !domain.CanTransition(ride.Status, domain.RideDriverArriving) {
		return apperr.Conflictf("ride %s cannot transition from %s to DRIVER_ARRIVING", rideID, ride.Status)
	}

	event := newRideEvent(rideID, "driver_en_route", nil)
	if err := e.store.TransitionRideTx(ctx, rideID, []domain.RideStatus{domain.RideMatched}, domain.RideDriverArriving, event); err != nil {
		if err == storage.ErrPrecondition {
			return apperr.Conflictf("ride %s changed state before driverEnRoute could be applied", rideID)
		}
		return apperr.Wrap(apperr.Dependency, "failed to persist driverEnRoute", err)
	}

	ride.Status = domain.RideDriverArriving
	e.publishRideEvent(rideID, "driver_en_route", ride)
	e.notify(ctx, ride.RiderID, domain.TargetRider, domain.NotifyDriverArriving, &rideID, nil)
	return nil
}

// MarkArrived implements §4.3's driverAtPickup transition: DRIVER_ARRIVING
// -> ARRIVED. A 4-digit start OTP is generated and a PENDING Trip is
// created, freezing the pricing inputs the final fare calculation reads
// back at endTrip.
func (e *Engine) MarkArrived(ctx context.Context, rideID, driverID uuid.UUID) (string, error) {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		if err == storage.ErrNotFound {
			return "", apperr.NotFoundf("ride %s not found", rideID)
		}
		return "", apperr.Wrap(apperr.Dependency, "failed to load ride", err)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return "", apperr.Validationf("driver %s is not assigned to ride %s", driverID, rideID)
	}
	if !domain.CanTransition(ride.Status, domain.RideArrived) {
		return "", apperr.Conflictf("ride %s cannot transition from %s to ARRIVED", rideID, ride.Status)
	}

	pricing, err := e.store.GetActivePricingConfig(ctx, e.cfg.DefaultRegion, ride.RideType)
	if err != nil {
		pricing = domain.PricingConfig{BaseFare: 50, PerKmRate: 12, PerMinRate: 2}
	}

	otp := generateOTP()
	trip := domain.Trip{
		ID:         uuid.New(),
		RideID:     rideID,
		DriverID:   driverID,
		Status:     domain.TripPending,
		StartOTP:   otp,
		BaseFare:   pricing.BaseFare,
		PerKmRate:  pricing.PerKmRate,
		PerMinRate: pricing.PerMinRate,
		CreatedAt:  time.Now(),
	}

	ride.Status = domain.RideArrived
	ride.UpdatedAt = time.Now()

	event := newRideEvent(rideID, "driver_arrived", nil)
	if err := e.store.CreateTripTx(ctx, trip, ride, event); err != nil {
		if err == storage.ErrPrecondition {
			return "", apperr.Conflictf("ride %s changed state before driverAtPickup could be applied", rideID)
		}
		return "", apperr.Wrap(apperr.Dependency, "failed to persist driverAtPickup", err)
	}

	e.publishRideEvent(rideID, "driver_arrived", ride)
	e.notify(ctx, ride.RiderID, domain.TargetRider, domain.NotifyDriverArrived, &rideID, map[string]any{"otp": otp})
	return otp, nil
}

// StartTrip implements §4.3's startTrip(otp) transition: ARRIVED ->
// IN_PROGRESS, gated by the OTP match (§8 property 8: a wrong OTP leaves
// all state unchanged and returns Validation).
func (e *Engine) StartTrip(ctx context.Context, tripID uuid.UUID, startOTP string) (domain.Trip, error) {
	trip, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Trip{}, apperr.NotFoundf("trip %s not found", tripID)
		}
		return domain.Trip{}, apperr.Wrap(apperr.Dependency, "failed to load trip", err)
	}
	if trip.Status != domain.TripPending {
		return domain.Trip{}, apperr.Conflictf("trip %s is not pending", tripID)
	}
	if trip.StartOTP != startOTP {
		return domain.Trip{}, apperr.Validationf("start OTP mismatch for trip %s", tripID)
	}

	startedAt := time.Now()
	event := newRideEvent(trip.RideID, "trip_started", nil)
	if err := e.store.StartTripTx(ctx, tripID, trip.RideID, startedAt, event); err != nil {
		if err == storage.ErrPrecondition {
			return domain.Trip{}, apperr.Conflictf("trip %s changed state before startTrip could be applied", tripID)
		}
		return domain.Trip{}, apperr.Wrap(apperr.Dependency, "failed to persist startTrip", err)
	}

	trip.Status = domain.TripStarted
	trip.StartedAt = &startedAt

	ride, err := e.store.GetRide(ctx, trip.RideID)
	if err == nil {
		e.publishRideEvent(trip.RideID, "trip_started", ride)
	}
	return trip, nil
}

// EndTrip implements §4.3's endTrip(distance, routePath?) transition:
// IN_PROGRESS -> COMPLETED. It computes the final fare (§4.5) from the
// trip's frozen pricing inputs and the ride's surge multiplier captured at
// creation, completes the trip and ride, frees the driver, bumps the
// rider/driver trip counters, and creates the Earning/Receipt/Notification
// rows. The Payment row created here is left PENDING; settlement itself is
// internal/payment's concern (§4.6) via processPayment.
func (e *Engine) EndTrip(ctx context.Context, tripID uuid.UUID, actualDistKM float64, routePath []domain.Coordinate) (domain.Trip, error) {
	trip, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Trip{}, apperr.NotFoundf("trip %s not found", tripID)
		}
		return domain.Trip{}, apperr.Wrap(apperr.Dependency, "failed to load trip", err)
	}
	if trip.Status != domain.TripStarted {
		return domain.Trip{}, apperr.Conflictf("trip %s is not in progress", tripID)
	}

	ride, err := e.store.GetRide(ctx, trip.RideID)
	if err != nil {
		return domain.Trip{}, apperr.Wrap(apperr.Dependency, "failed to load ride for trip", err)
	}

	endedAt := time.Now()
	durationSec := int64(0)
	if trip.StartedAt != nil {
		durationSec = int64(endedAt.Sub(*trip.StartedAt).Seconds())
	}

	fare := domain.CalculateFare(domain.FareInputs{
		DistanceKM:      actualDistKM,
		DurationSec:     durationSec,
		BaseFare:        trip.BaseFare,
		PerKmRate:       trip.PerKmRate,
		PerMinRate:      trip.PerMinRate,
		SurgeMultiplier: ride.SurgeMultiplier,
	})

	trip.Status = domain.TripCompleted
	trip.EndedAt = &endedAt
	trip.ActualDistKM = actualDistKM
	trip.RoutePath = routePath
	trip.DistanceFare = fare.DistanceFare
	trip.TimeFare = fare.TimeFare
	trip.SurgeAmount = fare.SurgeAmount
	trip.FinalFare = fare.FinalFare
	trip.PlatformFee = fare.PlatformFee
	trip.DriverEarnings = fare.DriverEarnings

	payment := domain.Payment{
		ID:              uuid.New(),
		TripID:          trip.ID,
		Amount:          fare.FinalFare,
		Status:          domain.PaymentPending,
		PaymentMethodID: ride.PaymentMethodID,
		IdempotencyKey:  "trip:" + trip.ID.String(),
		MaxAttempts:     3,
		CreatedAt:       endedAt,
		UpdatedAt:       endedAt,
	}
	receipt := domain.Receipt{
		ID:        uuid.New(),
		TripID:    trip.ID,
		FinalFare: fare.FinalFare,
		Tax:       domain.ReceiptTax(fare.FinalFare),
		CreatedAt: endedAt,
	}
	receipt.Total = receipt.FinalFare + receipt.Tax
	earning := domain.Earning{
		ID:        uuid.New(),
		DriverID:  trip.DriverID,
		TripID:    trip.ID,
		Amount:    fare.DriverEarnings,
		CreatedAt: endedAt,
	}

	event := newRideEvent(trip.RideID, "trip_completed", map[string]any{"finalFare": fare.FinalFare})
	if err := e.store.CompleteTripTx(ctx, trip, ride.RiderID, payment, receipt, earning, event); err != nil {
		if err == storage.ErrPrecondition {
			return domain.Trip{}, apperr.Conflictf("trip %s changed state before endTrip could be applied", tripID)
		}
		return domain.Trip{}, apperr.Wrap(apperr.Dependency, "failed to persist endTrip", err)
	}

	ride.Status = domain.RideCompleted
	e.publishRideEvent(trip.RideID, "trip_completed", ride)
	e.notify(ctx, ride.RiderID, domain.TargetRider, domain.NotifyTripCompleted, &trip.RideID, map[string]any{"finalFare": fare.FinalFare})
	return trip, nil
}

// UpdateDriverAvailability implements §6's updateDriverAvailability and the
// corresponding half of §3's Geo Index membership invariant: a driver is
// removed from the Geo Index the moment it leaves AVAILABLE, and is only
// re-added once a fresh ping arrives through the Location Ingest Pipeline
// (§4.2's DriverLookup check), never by this call directly.
func (e *Engine) UpdateDriverAvailability(ctx context.Context, driverID uuid.UUID, status domain.DriverStatus) (domain.Driver, error) {
	driver, err := e.store.GetDriver(ctx, driverID)
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.Driver{}, apperr.NotFoundf("driver %s not found", driverID)
		}
		return domain.Driver{}, apperr.Wrap(apperr.Dependency, "failed to load driver", err)
	}
	if driver.Status == domain.DriverOnRide && status != domain.DriverOnRide {
		return domain.Driver{}, apperr.Conflictf("driver %s is on an active ride", driverID)
	}

	if err := e.store.UpdateDriverStatus(ctx, driverID, status); err != nil {
		return domain.Driver{}, apperr.Wrap(apperr.Dependency, "failed to persist driver status", err)
	}
	driver.Status = status

	if status != domain.DriverAvailable {
		if err := e.geoIdx.Remove(ctx, driverID.String()); err != nil {
			log.Error().Err(err).Str("driver_id", driverID.String()).Msg("failed to remove driver from geo index")
		}
	}
	return driver, nil
}

// generateOTP produces a cryptographically random 4-digit string, grounded
// on the teacher's crypto/rand token generation in internal/auth/store.go.
func generateOTP() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	n := (int(b[0])<<8 | int(b[1])) % 10000
	return fmt.Sprintf("%04d", n)
}
