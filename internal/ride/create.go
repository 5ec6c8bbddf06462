package ride

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/apperr"
	"ridecore/internal/domain"
	"ridecore/internal/geo"
)

// CreateRideInput is §6's createRide request.
type CreateRideInput struct {
	RiderID         uuid.UUID
	Pickup          domain.Waypoint
	Dropoff         domain.Waypoint
	RideType        domain.RideType
	PaymentMethodID string
	ScheduledAt     *time.Time
	IdempotencyKey  string
}

// CreateRide implements §4.3's createRide transition and, unless
// ScheduledAt is in the future, kicks off the
// detached matching loop (§4.4), per the teacher's CreateRide/
// persistRideAndDriverTx and the design note that the matcher is a
// fire-and-forget background task observable only via `ride:<id>`.
func (e *Engine) CreateRide(ctx context.Context, in CreateRideInput) (domain.Ride, error) {
	if err := validateCoordinate(in.Pickup.Coordinate); err != nil {
		return domain.Ride{}, err
	}
	if err := validateCoordinate(in.Dropoff.Coordinate); err != nil {
		return domain.Ride{}, err
	}
	if in.RideType == "" {
		in.RideType = domain.RideTypeStandard
	}

	if in.IdempotencyKey != "" {
		if existing, err := e.store.GetRideByIdempotencyKey(ctx, in.IdempotencyKey); err == nil {
			return existing, nil
		}
	}

	pricing, err := e.store.GetActivePricingConfig(ctx, e.cfg.DefaultRegion, in.RideType)
	if err != nil {
		pricing = domain.PricingConfig{BaseFare: 50, PerKmRate: 12, PerMinRate: 2}
	}
	surge := e.activeSurgeMultiplier(ctx, e.cfg.DefaultRegion)

	distKM := geo.HaversineKM(in.Pickup.Lat, in.Pickup.Lng, in.Dropoff.Lat, in.Dropoff.Lng)
	estDurSec := int64(distKM / 30 * 3600) // straight-line @ 30km/h, no road graph (§1 non-goal)
	estFare := estimateFare(distKM, estDurSec, pricing, surge)

	now := time.Now()
	ride := domain.Ride{
		ID:              uuid.New(),
		RiderID:         in.RiderID,
		Pickup:          in.Pickup,
		Dropoff:         in.Dropoff,
		RideType:        in.RideType,
		Status:          domain.RideSearching,
		EstimatedFare:   estFare,
		EstimatedDistKM: distKM,
		EstimatedDurSec: estDurSec,
		SurgeMultiplier: surge,
		PaymentMethodID: in.PaymentMethodID,
		ScheduledAt:     in.ScheduledAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.IdempotencyKey != "" {
		ride.IdempotencyKey = &in.IdempotencyKey
	}

	event := newRideEvent(ride.ID, "ride_created", map[string]any{"status": ride.Status})
	if err := e.store.CreateRideTx(ctx, ride, event); err != nil {
		return domain.Ride{}, apperr.Wrap(apperr.Dependency, "failed to persist ride", err)
	}

	e.publishRideEvent(ride.ID, "ride_created", ride)

	if ride.ScheduledAt == nil || !ride.ScheduledAt.After(now) {
		go e.runMatchingLoop(ride.ID)
	}

	return ride, nil
}

func validateCoordinate(c domain.Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 {
		return apperr.InvalidInputf("latitude out of range: %v", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return apperr.InvalidInputf("longitude out of range: %v", c.Lng)
	}
	return nil
}

func (e *Engine) activeSurgeMultiplier(ctx context.Context, region string) float64 {
	zones, err := e.store.ActiveSurgeZones(ctx, region)
	if err != nil || len(zones) == 0 {
		return 1.0
	}
	// "Any active zone wins" (DESIGN.md Open Question decision): no
	// point-in-polygon resolution against the pickup coordinate, matching
	// the source's findFirst({isActive:true}) behavior.
	return zones[0].Multiplier
}

func estimateFare(distKM float64, durSec int64, pricing domain.PricingConfig, surge float64) float64 {
	result := domain.CalculateFare(domain.FareInputs{
		DistanceKM:      distKM,
		DurationSec:     durSec,
		BaseFare:        pricing.BaseFare,
		PerKmRate:       pricing.PerKmRate,
		PerMinRate:      pricing.PerMinRate,
		SurgeMultiplier: surge,
		Discount:        0,
	})
	return result.FinalFare
}
