package geo

import (
	"context"
	"sort"
	"sync"
	"time"
)

const geohashPrecision = 7

type entry struct {
	lat, lng float64
	meta     Meta
	ts       int64
	geohash  string
	updated  time.Time
}

// InMemoryGeo is the single-process Geo Index implementation. It keeps
// driver entries in a map keyed by driver id. Each entry records its
// geohash, but no structure is ordered by it: the radius query scans every
// entry and filters by exact haversine distance.
type InMemoryGeo struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewInMemoryGeo() *InMemoryGeo {
	return &InMemoryGeo{entries: make(map[string]*entry)}
}

func (g *InMemoryGeo) Add(_ context.Context, driverID string, lat, lng float64, meta Meta, ts int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.entries[driverID]; ok && existing.ts > ts {
		// Out-of-order write for this driver; last-writer-wins by ts.
		return nil
	}
	g.entries[driverID] = &entry{
		lat: lat, lng: lng, meta: meta, ts: ts,
		geohash: encodeGeohash(lat, lng, geohashPrecision),
		updated: time.Now(),
	}
	return nil
}

func (g *InMemoryGeo) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	delete(g.entries, driverID)
	g.mu.Unlock()
	return nil
}

func (g *InMemoryGeo) Query(_ context.Context, lat, lng, radiusKM float64, limit int) ([]Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	candidates := make([]Candidate, 0, len(g.entries))
	for driverID, e := range g.entries {
		dist := haversineKM(lat, lng, e.lat, e.lng)
		if dist <= radiusKM {
			candidates = append(candidates, Candidate{DriverID: driverID, DistKM: dist, Meta: e.meta})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistKM != candidates[j].DistKM {
			return candidates[i].DistKM < candidates[j].DistKM
		}
		return candidates[i].DriverID < candidates[j].DriverID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (g *InMemoryGeo) Position(_ context.Context, driverID string) (float64, float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[driverID]
	if !ok {
		return 0, 0, false
	}
	return e.lat, e.lng, true
}

// PruneOlderThan evicts entries whose last update is older than cutoff, per
// §4.1's staleness-eviction housekeeping sweep.
func (g *InMemoryGeo) PruneOlderThan(cutoff time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, e := range g.entries {
		if e.updated.Before(cutoff) {
			delete(g.entries, id)
		}
	}
}
