package geo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// addScript atomically enforces last-writer-wins by caller timestamp before
// updating the GEO set, so a delayed retry of an older ping can never
// clobber a newer position already recorded for the same driver.
var addScript = redis.NewScript(`
local tsKey, geoKey, metaKey = KEYS[1], KEYS[2], KEYS[3]
local driverID, lng, lat, ts, meta = ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5]

local existing = redis.call("HGET", tsKey, driverID)
if existing and tonumber(existing) > tonumber(ts) then
  return 0
end

redis.call("HSET", tsKey, driverID, ts)
redis.call("HSET", metaKey, driverID, meta)
redis.call("GEOADD", geoKey, lng, lat, driverID)
return 1
`)

// RedisIndex is the multi-process Geo Index implementation backed by
// Redis's GEO commands, grounded on the teacher's redis_geo.go Nearby/
// AddDriver/RemoveDriver shape, generalized to the full Index contract
// (meta bag, limit, ordered tiebreak, Position lookup).
type RedisIndex struct {
	client  *redis.Client
	geoKey  string
	metaKey string
	tsKey   string
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{
		client:  client,
		geoKey:  "drivers:geo",
		metaKey: "drivers:meta",
		tsKey:   "drivers:ts",
	}
}

func encodeMeta(m Meta) string {
	return fmt.Sprintf("%s|%g", m.Tier, m.Rating)
}

func decodeMeta(s string) Meta {
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 {
		return Meta{}
	}
	rating, _ := strconv.ParseFloat(parts[1], 64)
	return Meta{Tier: parts[0], Rating: rating}
}

func (r *RedisIndex) Add(ctx context.Context, driverID string, lat, lng float64, meta Meta, ts int64) error {
	keys := []string{r.tsKey, r.geoKey, r.metaKey}
	args := []any{driverID, lng, lat, ts, encodeMeta(meta)}
	return addScript.Run(ctx, r.client, keys, args...).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, driverID string) error {
	pipe := r.client.Pipeline()
	pipe.ZRem(ctx, r.geoKey, driverID)
	pipe.HDel(ctx, r.metaKey, driverID)
	pipe.HDel(ctx, r.tsKey, driverID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisIndex) Query(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]Candidate, error) {
	queryCount := limit
	if queryCount <= 0 {
		queryCount = 50
	}
	results, err := r.client.GeoSearchLocation(ctx, r.geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      queryCount,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []Candidate{}, nil
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.Name
	}
	metas, err := r.client.HMGet(ctx, r.metaKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(results))
	for i, res := range results {
		meta := Meta{}
		if s, ok := metas[i].(string); ok {
			meta = decodeMeta(s)
		}
		candidates[i] = Candidate{DriverID: res.Name, DistKM: res.Dist, Meta: meta}
	}

	// Redis breaks exact-distance ties arbitrarily; re-sort with the
	// driverID-ascending tiebreak §4.1 requires.
	sort.SliceStable(candidates, func(i, j int) bool {
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

func (r *RedisIndex) Position(ctx context.Context, driverID string) (float64, float64, bool) {
	positions, err := r.client.GeoPos(ctx, r.geoKey, driverID).Result()
	if err != nil || len(positions) == 0 || positions[0] == nil {
		return 0, 0, false
	}
	return positions[0].Latitude, positions[0].Longitude, true
}
