package domain

import "testing"

func TestCalculateFareS1(t *testing.T) {
	res := CalculateFare(FareInputs{
		DistanceKM:      8.7,
		DurationSec:     1200,
		BaseFare:        50,
		PerKmRate:       12,
		PerMinRate:      2,
		SurgeMultiplier: 1.2,
	})

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"distanceFare", res.DistanceFare, 104.40},
		{"timeFare", res.TimeFare, 40.00},
		{"subtotal", res.Subtotal, 194.40},
		{"surgeAmount", res.SurgeAmount, 38.88},
		{"finalFare", res.FinalFare, 233.28},
		{"platformFee", res.PlatformFee, 46.66},
		{"driverEarnings", res.DriverEarnings, 186.62},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestFareConservation(t *testing.T) {
	inputs := []FareInputs{
		{DistanceKM: 3.2, DurationSec: 600, BaseFare: 30, PerKmRate: 10, PerMinRate: 1.5, SurgeMultiplier: 1.0},
		{DistanceKM: 15.6, DurationSec: 2400, BaseFare: 50, PerKmRate: 12, PerMinRate: 2, SurgeMultiplier: 2.1},
		{DistanceKM: 0, DurationSec: 0, BaseFare: 50, PerKmRate: 12, PerMinRate: 2, SurgeMultiplier: 1.0, Discount: 1000},
	}
	for _, in := range inputs {
		res := CalculateFare(in)
		if res.FinalFare < 0 {
			t.Fatalf("finalFare negative: %v", res)
		}
		sum := roundBankers(res.PlatformFee + res.DriverEarnings)
		if sum != res.FinalFare {
			t.Errorf("platformFee+driverEarnings = %v, want %v", sum, res.FinalFare)
		}
	}
}

func TestRoundBankersTiesToEven(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.125, 0.12},
		{0.135, 0.14},
		{1.005, 1.00},
		{2.675, 2.68},
	}
	for _, c := range cases {
		got := roundBankers(c.in)
		if got != c.want {
			t.Errorf("roundBankers(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(RideSearching, RideMatched) {
		t.Error("SEARCHING -> MATCHED should be legal")
	}
	if CanTransition(RideMatched, RideInProgress) {
		t.Error("MATCHED -> IN_PROGRESS should not be legal")
	}
	if CanTransition(RideCompleted, RideCancelled) {
		t.Error("terminal state should have no outgoing edges")
	}
}

func TestCancellableFrom(t *testing.T) {
	if !CancellableFrom(RideArrived) {
		t.Error("ARRIVED should be cancellable")
	}
	if CancellableFrom(RideInProgress) {
		t.Error("IN_PROGRESS should not be cancellable")
	}
	if CancellableFrom(RideCompleted) {
		t.Error("terminal ride should not be cancellable")
	}
}
