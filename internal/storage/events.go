package storage

import (
	"context"

	"github.com/google/uuid"

	"ridecore/internal/domain"
)

func (p *Postgres) AppendRideEvent(ctx context.Context, evt domain.RideEvent) error {
	payload, err := marshalPayload(evt.Payload)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO ride_events (id, ride_id, event_type, payload, created_at)
VALUES ($1,$2,$3,$4,$5)
`, evt.ID.String(), evt.RideID.String(), evt.EventType, payload, evt.CreatedAt)
	return err
}

func (p *Postgres) ListRideEvents(ctx context.Context, rideID uuid.UUID, limit, offset int) ([]domain.RideEvent, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, ride_id, event_type, payload, created_at
FROM ride_events
WHERE ride_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3
`, rideID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RideEvent
	for rows.Next() {
		var evt domain.RideEvent
		var idStr, rideIDStr string
		var payload []byte
		if err := rows.Scan(&idStr, &rideIDStr, &evt.EventType, &payload, &evt.CreatedAt); err != nil {
			return nil, err
		}
		evt.ID = uuid.MustParse(idStr)
		evt.RideID = uuid.MustParse(rideIDStr)
		if evt.Payload, err = unmarshalPayload(payload); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (p *Postgres) CountRideEvents(ctx context.Context, rideID uuid.UUID) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ride_events WHERE ride_id = $1`, rideID.String()).Scan(&count)
	return count, err
}

// insertRideTx and insertRideEventTx are the shared statement bodies behind
// every transactional ride-state write in transactions.go, grounded on the
// teacher's CreateRideWithEvent/UpdateRideWithEvent (begin -> exec* ->
// commit, rolled back on any error via the deferred tx.Rollback).

func insertRideTx(ctx context.Context, tx pgxIface, r domain.Ride) error {
	var driverID *string
	if r.DriverID != nil {
		s := r.DriverID.String()
		driverID = &s
	}
	_, err := tx.Exec(ctx, `
INSERT INTO rides (id, rider_id, driver_id, pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address, ride_type, status, estimated_fare,
	estimated_distance_km, estimated_duration_sec, surge_multiplier, payment_method_id,
	matched_at, search_attempts, idempotency_key, scheduled_at, cancellation_fee,
	cancelled_by, cancel_reason, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
`, r.ID.String(), r.RiderID.String(), driverID, r.Pickup.Lat, r.Pickup.Lng, r.Pickup.Address,
		r.Dropoff.Lat, r.Dropoff.Lng, r.Dropoff.Address, r.RideType, r.Status, r.EstimatedFare,
		r.EstimatedDistKM, r.EstimatedDurSec, r.SurgeMultiplier, nullStr(r.PaymentMethodID),
		r.MatchedAt, r.SearchAttempts, r.IdempotencyKey, r.ScheduledAt, r.CancellationFee,
		r.CancelledBy, nullStr(r.CancelReason), r.CreatedAt, r.UpdatedAt)
	return err
}

func updateRideTx(ctx context.Context, tx pgxIface, r domain.Ride) error {
	var driverID *string
	if r.DriverID != nil {
		s := r.DriverID.String()
		driverID = &s
	}
	_, err := tx.Exec(ctx, `
UPDATE rides SET driver_id=$2, status=$3, matched_at=$4, search_attempts=$5,
	cancellation_fee=$6, cancelled_by=$7, cancel_reason=$8, updated_at=$9
WHERE id=$1
`, r.ID.String(), driverID, r.Status, r.MatchedAt, r.SearchAttempts,
		r.CancellationFee, r.CancelledBy, nullStr(r.CancelReason), r.UpdatedAt)
	return err
}

func insertRideEventTx(ctx context.Context, tx pgxIface, evt domain.RideEvent) error {
	payload, err := marshalPayload(evt.Payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO ride_events (id, ride_id, event_type, payload, created_at)
VALUES ($1,$2,$3,$4,$5)
`, evt.ID.String(), evt.RideID.String(), evt.EventType, payload, evt.CreatedAt)
	return err
}

func updateDriverStatusTx(ctx context.Context, tx pgxIface, driverID uuid.UUID, status domain.DriverStatus) error {
	_, err := tx.Exec(ctx, `UPDATE drivers SET status=$2 WHERE id=$1`, driverID.String(), status)
	return err
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
