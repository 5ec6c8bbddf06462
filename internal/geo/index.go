// Package geo implements the Geo Index (§4.1): an in-memory geospatial set
// of available drivers supporting insert/remove, position update, and
// radius queries ordered by ascending distance. Two implementations share
// the Index interface: an in-process one for single-instance deployments
// and a Redis-backed one (GEOADD/GEOSEARCH) for multi-process deployments.
package geo

import "context"

// Meta is the small attribute bag carried alongside a driver's position,
// used for tier filtering by the matching loop.
type Meta struct {
	Tier   string
	Rating float64
}

// Candidate is one result row from a radius query: a driver id, its
// great-circle distance from the query point in kilometers, and its meta.
type Candidate struct {
	DriverID string
	DistKM   float64
	Meta     Meta
}

// Index is the Geo Index contract. Implementations never return an error
// from Query against an empty index — they return the empty slice.
type Index interface {
	// Add inserts or updates a driver's position. ts is the caller-supplied
	// monotonically increasing timestamp used to resolve concurrent Add
	// races for the same driver (last-writer-wins).
	Add(ctx context.Context, driverID string, lat, lng float64, meta Meta, ts int64) error

	// Remove is an idempotent removal; removing an absent driver is not an
	// error.
	Remove(ctx context.Context, driverID string) error

	// Query returns up to limit candidates within radiusKM of (lat,lng),
	// ascending by distance, ties broken by driverID ascending.
	Query(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]Candidate, error)

	// Position returns the last known position of a driver, and false if
	// the driver is not present in the index.
	Position(ctx context.Context, driverID string) (lat, lng float64, ok bool)
}
