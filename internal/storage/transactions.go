package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"ridecore/internal/domain"
)

// pgxIface is the subset of pgx.Tx / pgxpool.Pool the transaction helpers in
// events.go need, so the same Exec bodies serve both a bare pool call and a
// transactional one.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateRideTx inserts a new ride together with its "created" audit event,
// grounded on the teacher's CreateRideWithEvent.
func (p *Postgres) CreateRideTx(ctx context.Context, ride domain.Ride, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertRideTx(ctx, tx, ride); err != nil {
		return err
	}
	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MatchRideTx implements the atomic SEARCHING -> MATCHED transition at the
// heart of §4.4's matching loop: the ride is only updated if it is still
// SEARCHING, and the driver only claimed if still AVAILABLE. Either
// precondition failing returns ErrPrecondition so the matching loop can
// retry against the next candidate, per §5's "mutually exclusive match"
// invariant — this statement-level guard is what the `lock:ride:*:matching`
// lock in internal/lockservice serializes access into, not a substitute
// for it.
func (p *Postgres) MatchRideTx(ctx context.Context, rideID, driverID uuid.UUID, matchedAt time.Time, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE rides SET driver_id=$2, status=$3, matched_at=$4, updated_at=$4
WHERE id=$1 AND status=$5
`, rideID.String(), driverID.String(), domain.RideMatched, matchedAt, domain.RideSearching)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}

	tag, err = tx.Exec(ctx, `
UPDATE drivers SET status=$2 WHERE id=$1 AND status=$3
`, driverID.String(), domain.DriverOnRide, domain.DriverAvailable)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}

	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TransitionRideTx moves a ride from one of `from` to `to`, writing an
// audit event in the same transaction. Used by the state-machine-driven
// steps that don't need a paired driver write: driverEnRoute (MATCHED ->
// DRIVER_ARRIVING) and the SEARCHING -> FAILED exhaustion path.
func (p *Postgres) TransitionRideTx(ctx context.Context, rideID uuid.UUID, from []domain.RideStatus, to domain.RideStatus, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	placeholders := make([]any, 0, len(from)+2)
	placeholders = append(placeholders, rideID.String(), to)
	query := `UPDATE rides SET status=$2, updated_at=NOW() WHERE id=$1 AND status = ANY($3)`
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	placeholders = append(placeholders, statuses)

	tag, err := tx.Exec(ctx, query, placeholders...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}
	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CancelRideTx cancels a ride from any non-terminal status, restoring an
// assigned driver to AVAILABLE, and records the (metadata-only, per
// DESIGN.md) cancellation fee.
func (p *Postgres) CancelRideTx(ctx context.Context, ride domain.Ride, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE rides SET status=$2, cancellation_fee=$3, cancelled_by=$4, cancel_reason=$5, updated_at=NOW()
WHERE id=$1 AND status NOT IN ($6,$7,$8)
`, ride.ID.String(), domain.RideCancelled, ride.CancellationFee, ride.CancelledBy, nullStr(ride.CancelReason),
		domain.RideCompleted, domain.RideCancelled, domain.RideFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}

	if ride.DriverID != nil {
		if err := updateDriverStatusTx(ctx, tx, *ride.DriverID, domain.DriverAvailable); err != nil {
			return err
		}
	}
	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateTripTx inserts the pending trip record created when a ride
// transitions into ARRIVED, freezing the pricing inputs the final
// fare calculation will read back at completion.
func (p *Postgres) CreateTripTx(ctx context.Context, trip domain.Trip, ride domain.Ride, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO trips (id, ride_id, driver_id, status, start_otp, base_fare, per_km_rate, per_min_rate, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, trip.ID.String(), trip.RideID.String(), trip.DriverID.String(), trip.Status, trip.StartOTP,
		trip.BaseFare, trip.PerKmRate, trip.PerMinRate, trip.CreatedAt); err != nil {
		return err
	}
	if err := updateRideTx(ctx, tx, ride); err != nil {
		return err
	}
	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// StartTripTx marks a PENDING trip STARTED after OTP verification and moves
// the ride into IN_PROGRESS.
func (p *Postgres) StartTripTx(ctx context.Context, tripID, rideID uuid.UUID, startedAt time.Time, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE trips SET status=$2, started_at=$3 WHERE id=$1 AND status=$4
`, tripID.String(), domain.TripStarted, startedAt, domain.TripPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}

	tag, err = tx.Exec(ctx, `
UPDATE rides SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4
`, rideID.String(), domain.RideInProgress, startedAt, domain.RideArrived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}

	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompleteTripTx settles a finished trip in one transaction: it closes out
// the trip with its fare breakdown, completes the ride, frees the driver,
// bumps driver/rider trip counters, and writes the payment/receipt/earning
// rows the Payment Gateway Facade and rider/driver-facing reads need. The
// Payment row is left PENDING — settlement itself is internal/payment's
// concern (§4.6).
func (p *Postgres) CompleteTripTx(ctx context.Context, trip domain.Trip, riderID uuid.UUID, payment domain.Payment, receipt domain.Receipt, earning domain.Earning, event domain.RideEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE trips SET status=$2, ended_at=$3, actual_distance_km=$4, distance_fare=$5, time_fare=$6,
	surge_amount=$7, discount=$8, final_fare=$9, platform_fee=$10, driver_earnings=$11
WHERE id=$1 AND status=$12
`, trip.ID.String(), domain.TripCompleted, trip.EndedAt, trip.ActualDistKM, trip.DistanceFare,
		trip.TimeFare, trip.SurgeAmount, trip.Discount, trip.FinalFare, trip.PlatformFee,
		trip.DriverEarnings, domain.TripStarted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrecondition
	}

	if _, err := tx.Exec(ctx, `
UPDATE rides SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4
`, trip.RideID.String(), domain.RideCompleted, *trip.EndedAt, domain.RideInProgress); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
UPDATE drivers SET status=$2, total_trips = total_trips + 1 WHERE id=$1
`, trip.DriverID.String(), domain.DriverAvailable); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
UPDATE riders SET total_rides = total_rides + 1 WHERE id=$1
`, riderID.String()); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO payments (id, trip_id, amount, status, payment_method_id, idempotency_key, max_attempts, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, payment.ID.String(), payment.TripID.String(), payment.Amount, payment.Status, payment.PaymentMethodID,
		payment.IdempotencyKey, payment.MaxAttempts, payment.CreatedAt, payment.UpdatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO receipts (id, trip_id, final_fare, tax, total, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, receipt.ID.String(), receipt.TripID.String(), receipt.FinalFare, receipt.Tax, receipt.Total, receipt.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO earnings (id, driver_id, trip_id, amount, created_at)
VALUES ($1,$2,$3,$4,$5)
`, earning.ID.String(), earning.DriverID.String(), earning.TripID.String(), earning.Amount, earning.CreatedAt); err != nil {
		return err
	}

	if err := insertRideEventTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
