package geo

import "math"

const geohashBase32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// encodeGeohash produces a standard base32 geohash of the given precision.
// The in-memory index stores this string on each entry but does not order
// or bucket entries by it; its radius query filters by exact haversine
// distance alone.
func encodeGeohash(lat, lng float64, precision int) string {
	latRange := [2]float64{-90, 90}
	lngRange := [2]float64{-180, 180}

	var hash []byte
	bit, ch := 0, 0
	evenBit := true

	for len(hash) < precision {
		if evenBit {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng >= mid {
				ch |= 1 << (4 - bit)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		evenBit = !evenBit

		if bit < 4 {
			bit++
		} else {
			hash = append(hash, geohashBase32[ch])
			bit = 0
			ch = 0
		}
	}
	return string(hash)
}

const earthRadiusKM = 6371.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineKM computes the great-circle distance in km between two points;
// exported for callers outside this package (e.g. the Ride Engine's
// straight-line distance/duration estimate at ride creation, per §1's
// explicit non-goal of routing against a real road graph).
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineKM(lat1, lon1, lat2, lon2)
}

// haversineKM computes the great-circle distance between two points in km.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	calc := sinLat*sinLat + math.Cos(lat1Rad)*math.Cos(lat2Rad)*sinLon*sinLon
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(calc))
}
