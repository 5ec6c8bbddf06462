package domain

// legalTransitions encodes the state table in §4.3 as adjacency: for each
// source status, the set of statuses it may legally advance to. This is the
// pure soundness check (§8 property 3); the Ride Engine additionally
// enforces the side effects associated with each edge.
var legalTransitions = map[RideStatus]map[RideStatus]bool{
	RideSearching:      {RideMatched: true, RideFailed: true, RideCancelled: true},
	RideMatched:        {RideDriverArriving: true, RideCancelled: true},
	RideDriverArriving: {RideArrived: true, RideCancelled: true},
	RideArrived:        {RideInProgress: true, RideCancelled: true},
	RideInProgress:     {RideCompleted: true},
}

// CanTransition reports whether moving a ride from `from` to `to` is a
// legal edge in the §4.3 state table.
func CanTransition(from, to RideStatus) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// RequiresDriver reports whether a ride in this status must have a non-nil
// DriverID, per the §4.3 invariant "a ride in any state >= MATCHED has a
// non-null driver".
func RequiresDriver(status RideStatus) bool {
	switch status {
	case RideMatched, RideDriverArriving, RideArrived, RideInProgress, RideCompleted:
		return true
	default:
		return false
	}
}

// RequiresTrip reports whether a ride in this status must have a Trip row,
// per the §4.3 invariant "a ride in any state >= ARRIVED has a trip row".
func RequiresTrip(status RideStatus) bool {
	switch status {
	case RideArrived, RideInProgress, RideCompleted:
		return true
	default:
		return false
	}
}

// CancellableFrom reports whether cancel(by,reason) is legal from this
// status: any non-terminal status except IN_PROGRESS (complete only).
func CancellableFrom(status RideStatus) bool {
	if status.Terminal() {
		return false
	}
	return status != RideInProgress
}
