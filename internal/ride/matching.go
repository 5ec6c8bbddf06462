package ride

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ridecore/internal/apperr"
	"ridecore/internal/domain"
	"ridecore/internal/geo"
	"ridecore/internal/storage"
)

// runMatchingLoop implements §4.4. It is launched as a detached goroutine
// by CreateRide and is never awaited — per the design note, its outcome is
// observable only through `ride:<id>` publishes and polling getRide, the
// same "fire-and-forget matcher" shape the source used.
func (e *Engine) runMatchingLoop(rideID uuid.UUID) {
	ctx := context.Background()

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		ride, err := e.store.GetRide(ctx, rideID)
		if err != nil {
			log.Error().Err(err).Str("ride_id", rideID.String()).Msg("matching loop: failed to load ride")
			return
		}
		if ride.Status != domain.RideSearching {
			// Another actor (cancellation, a racing accept) already moved
			// this ride out of SEARCHING; the loop's job is done (§5).
			return
		}

		candidates, err := e.geoIdx.Query(ctx, ride.Pickup.Lat, ride.Pickup.Lng, e.cfg.SearchRadiusKM, e.cfg.SearchLimit)
		if err != nil {
			log.Error().Err(err).Str("ride_id", rideID.String()).Msg("matching loop: geo query failed")
		}

		candidates = filterAndRankCandidates(candidates, ride.RideType, e.cfg.TierTieBreakKM)

		matched := false
		for _, c := range candidates {
			driverID, err := uuid.Parse(c.DriverID)
			if err != nil {
				continue
			}
			if err := e.AcceptRide(ctx, rideID, driverID); err != nil {
				if apperr.KindOf(err) != apperr.Conflict {
					log.Error().Err(err).Str("ride_id", rideID.String()).Str("driver_id", c.DriverID).
						Msg("matching loop: unexpected error attempting match")
				}
				continue
			}
			matched = true
			break
		}

		if matched {
			return
		}

		log.Info().Str("ride_id", rideID.String()).Int("attempt", attempt).Int("candidates", len(candidates)).
			Msg("matching attempt found no acceptable driver")

		if attempt < e.cfg.MaxAttempts {
			time.Sleep(e.cfg.Backoff)
		}
	}

	e.failMatching(ctx, rideID)
}

// filterAndRankCandidates applies §4.4 step 3: tier filter, then sort by
// distance, preferring the higher-rated driver when two distances differ
// by less than tieBreakKM, with driverId ascending as the final tiebreak.
func filterAndRankCandidates(candidates []geo.Candidate, tier domain.RideType, tieBreakKM float64) []geo.Candidate {
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if tier != "" && c.Meta.Tier != "" && c.Meta.Tier != string(tier) {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if diff := a.DistKM - b.DistKM; diff < -tieBreakKM || diff > tieBreakKM {
			return a.DistKM < b.DistKM
		}
		if a.Meta.Rating != b.Meta.Rating {
			return a.Meta.Rating > b.Meta.Rating
		}
		return a.DriverID < b.DriverID
	})
	return filtered
}

func (e *Engine) failMatching(ctx context.Context, rideID uuid.UUID) {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		log.Error().Err(err).Str("ride_id", rideID.String()).Msg("matching loop: failed to load ride before failing")
		return
	}
	if ride.Status != domain.RideSearching {
		return
	}

	event := newRideEvent(rideID, "ride_match_failed", map[string]any{"attempts": e.cfg.MaxAttempts})
	if err := e.store.TransitionRideTx(ctx, rideID, []domain.RideStatus{domain.RideSearching}, domain.RideFailed, event); err != nil {
		if err != storage.ErrPrecondition {
			log.Error().Err(err).Str("ride_id", rideID.String()).Msg("matching loop: failed to transition ride to FAILED")
		}
		return
	}

	ride.Status = domain.RideFailed
	e.publishRideEvent(rideID, "ride_match_failed", ride)
	e.notify(ctx, ride.RiderID, domain.TargetRider, domain.NotifyNoDrivers, &rideID, nil)
}

// AcceptRide implements both the matching loop's internal offer-accept
// step and §6's external `acceptRide{rideId, driverId}` operation — the
// same atomic SEARCHING -> MATCHED transition serves either caller, which
// is what gives the "single-winner" testable property (§8.1, scenario S3)
// its teeth regardless of who calls it.
func (e *Engine) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID) error {
	token, ok, err := e.locks.Acquire(ctx, matchingLockName(rideID), e.cfg.MatchLockTTL)
	if err != nil {
		return apperr.Wrap(apperr.Dependency, "lock acquisition failed", err)
	}
	if !ok {
		return apperr.Conflictf("ride %s is already being matched", rideID)
	}
	defer e.locks.Release(ctx, matchingLockName(rideID), token)

	matchedAt := time.Now()
	event := newRideEvent(rideID, "driver_matched", map[string]any{"driverId": driverID.String()})

	if err := e.store.MatchRideTx(ctx, rideID, driverID, matchedAt, event); err != nil {
		if err == storage.ErrPrecondition {
			return apperr.Conflictf("ride %s could not be matched to driver %s", rideID, driverID)
		}
		return apperr.Wrap(apperr.Dependency, "match transaction failed", err)
	}

	e.geoIdx.Remove(ctx, driverID.String())

	ride, err := e.store.GetRide(ctx, rideID)
	if err == nil {
		e.publishRideEvent(rideID, "driver_matched", ride)
		e.notify(ctx, ride.RiderID, domain.TargetRider, domain.NotifyDriverMatched, &rideID, map[string]any{"driverId": driverID.String()})
	}
	return nil
}

func matchingLockName(rideID uuid.UUID) string {
	return "ride:" + rideID.String() + ":matching"
}
