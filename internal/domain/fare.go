package domain

import "math"

// FareInputs are the pure inputs to the fare formula, §4.5.
type FareInputs struct {
	DistanceKM      float64
	DurationSec     int64
	BaseFare        float64
	PerKmRate       float64
	PerMinRate      float64
	SurgeMultiplier float64
	Discount        float64
}

// FareResult is the derived fare breakdown, §4.5. PlatformFee +
// DriverEarnings == FinalFare by construction.
type FareResult struct {
	DistanceFare   float64
	TimeFare       float64
	Subtotal       float64
	SurgeAmount    float64
	TotalFare      float64
	FinalFare      float64
	PlatformFee    float64
	DriverEarnings float64
}

const platformFeeRate = 0.20

// ReceiptTaxRate is applied to FinalFare to produce the receipt tax line.
const ReceiptTaxRate = 0.18

// CalculateFare is a pure function implementing §4.5's formula exactly.
// Distances and durations are not rounded; every monetary output is rounded
// to two decimals using round-half-to-even (banker's rounding).
func CalculateFare(in FareInputs) FareResult {
	distanceFare := in.DistanceKM * in.PerKmRate
	timeFare := (float64(in.DurationSec) / 60) * in.PerMinRate
	subtotal := in.BaseFare + distanceFare + timeFare
	surgeAmount := subtotal * (in.SurgeMultiplier - 1)
	totalFare := subtotal + surgeAmount
	finalFare := totalFare - in.Discount
	if finalFare < 0 {
		finalFare = 0
	}

	finalFare = roundBankers(finalFare)
	platformFee := roundBankers(finalFare * platformFeeRate)
	driverEarnings := roundBankers(finalFare - platformFee)

	return FareResult{
		DistanceFare:   roundBankers(distanceFare),
		TimeFare:       roundBankers(timeFare),
		Subtotal:       roundBankers(subtotal),
		SurgeAmount:    roundBankers(surgeAmount),
		TotalFare:      roundBankers(totalFare),
		FinalFare:      finalFare,
		PlatformFee:    platformFee,
		DriverEarnings: driverEarnings,
	}
}

// ReceiptTax computes the receipt tax line for a completed trip.
func ReceiptTax(finalFare float64) float64 {
	return roundBankers(finalFare * ReceiptTaxRate)
}

// roundBankers rounds v to two decimal places using round-half-to-even,
// matching §4.5's requirement that monetary outputs never drift from
// standard accounting rounding on exact ties (e.g. 0.125 -> 0.12, not 0.13).
func roundBankers(v float64) float64 {
	const scale = 100
	scaled := v * scale
	floor := math.Floor(scaled)
	diff := scaled - floor

	const epsilon = 1e-9
	switch {
	case diff < 0.5-epsilon:
		return floor / scale
	case diff > 0.5+epsilon:
		return (floor + 1) / scale
	default:
		// Exact tie: round to the even neighbor.
		if math.Mod(floor, 2) == 0 {
			return floor / scale
		}
		return (floor + 1) / scale
	}
}
