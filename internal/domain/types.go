// Package domain holds the entity types, status enums, and pure fare math
// shared by every other core package. Nothing in this package talks to a
// database, a lock, or a bus — it is the vocabulary the rest of the module
// is written in.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Coordinate is a point on the earth's surface.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Waypoint pairs a coordinate with an optional human-readable address.
type Waypoint struct {
	Coordinate
	Address string `json:"address,omitempty"`
}

// DriverStatus is the driver's current availability state.
type DriverStatus string

const (
	DriverOffline   DriverStatus = "OFFLINE"
	DriverAvailable DriverStatus = "AVAILABLE"
	DriverOnRide    DriverStatus = "ON_RIDE"
	DriverOnBreak   DriverStatus = "BREAK"
)

// RideType is the requested vehicle tier.
type RideType string

const (
	RideTypeStandard RideType = "STANDARD"
	RideTypePremium  RideType = "PREMIUM"
	RideTypeXL       RideType = "XL"
)

// RideStatus is the ride/trip lifecycle state, per the state machine in
// §4.3: SEARCHING -> MATCHED -> DRIVER_ARRIVING -> ARRIVED -> IN_PROGRESS ->
// COMPLETED, with CANCELLED and FAILED as the remaining terminal states.
type RideStatus string

const (
	RideSearching      RideStatus = "SEARCHING"
	RideMatched        RideStatus = "MATCHED"
	RideDriverArriving RideStatus = "DRIVER_ARRIVING"
	RideArrived        RideStatus = "ARRIVED"
	RideInProgress     RideStatus = "IN_PROGRESS"
	RideCompleted      RideStatus = "COMPLETED"
	RideCancelled      RideStatus = "CANCELLED"
	RideFailed         RideStatus = "FAILED"
)

// Terminal reports whether no further transition is legal from this status.
func (s RideStatus) Terminal() bool {
	switch s {
	case RideCompleted, RideCancelled, RideFailed:
		return true
	default:
		return false
	}
}

// TripStatus is the execution-phase status of a Trip.
type TripStatus string

const (
	TripPending   TripStatus = "PENDING"
	TripStarted   TripStatus = "STARTED"
	TripCompleted TripStatus = "COMPLETED"
	TripCancelled TripStatus = "CANCELLED"
)

// PaymentStatus is the settlement status of a Payment.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// CancelledBy identifies who initiated a ride cancellation.
type CancelledBy string

const (
	CancelledByRider  CancelledBy = "rider"
	CancelledByDriver CancelledBy = "driver"
	CancelledBySystem CancelledBy = "system"
)

// NotificationType enumerates the user-visible events the core emits.
type NotificationType string

const (
	NotifyDriverMatched  NotificationType = "DRIVER_MATCHED"
	NotifyDriverArriving NotificationType = "DRIVER_ARRIVING"
	NotifyDriverArrived  NotificationType = "DRIVER_ARRIVED"
	NotifyRideCancelled  NotificationType = "RIDE_CANCELLED"
	NotifyNoDrivers      NotificationType = "NO_DRIVERS_AVAILABLE"
	NotifyTripCompleted  NotificationType = "TRIP_COMPLETED"
	NotifyPaymentSuccess NotificationType = "PAYMENT_SUCCESS"
	NotifyPaymentFailed  NotificationType = "PAYMENT_FAILED"
)

// NotificationTarget is rider or driver.
type NotificationTarget string

const (
	TargetRider  NotificationTarget = "rider"
	TargetDriver NotificationTarget = "driver"
)

// Vehicle is a driver's vehicle descriptor.
type Vehicle struct {
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Plate        string   `json:"plate"`
	Tier         RideType `json:"tier"`
}

// Rider is a stable rider identity.
type Rider struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Rating     float64   `json:"rating"`
	TotalRides int       `json:"totalRides"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Driver is a stable driver identity with live availability state.
type Driver struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Phone              string       `json:"phone"`
	Vehicle            Vehicle      `json:"vehicle"`
	Rating             float64      `json:"rating"`
	AcceptanceRate     float64      `json:"acceptanceRate"`
	Status             DriverStatus `json:"status"`
	Lat                float64      `json:"lat"`
	Lng                float64      `json:"lng"`
	LastLocationUpdate time.Time    `json:"lastLocationUpdate"`
	TotalTrips         int          `json:"totalTrips"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// Ride is a rider's request for transport, per §3.
type Ride struct {
	ID               uuid.UUID  `json:"id"`
	RiderID          uuid.UUID  `json:"riderId"`
	DriverID         *uuid.UUID `json:"driverId,omitempty"`
	Pickup           Waypoint   `json:"pickup"`
	Dropoff          Waypoint   `json:"dropoff"`
	RideType         RideType   `json:"rideType"`
	Status           RideStatus `json:"status"`
	EstimatedFare    float64    `json:"estimatedFare"`
	EstimatedDistKM  float64    `json:"estimatedDistanceKm"`
	EstimatedDurSec  int64      `json:"estimatedDurationSec"`
	SurgeMultiplier  float64    `json:"surgeMultiplier"`
	PaymentMethodID  string     `json:"paymentMethodId,omitempty"`
	MatchedAt        *time.Time `json:"matchedAt,omitempty"`
	SearchAttempts   int        `json:"searchAttempts"`
	IdempotencyKey   *string    `json:"idempotencyKey,omitempty"`
	ScheduledAt      *time.Time `json:"scheduledAt,omitempty"`
	CancellationFee  *float64   `json:"cancellationFee,omitempty"`
	CancelledBy      *CancelledBy `json:"cancelledBy,omitempty"`
	CancelReason     string     `json:"cancelReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Trip is the execution phase of a ride, per §3.
type Trip struct {
	ID         uuid.UUID  `json:"id"`
	RideID     uuid.UUID  `json:"rideId"`
	DriverID   uuid.UUID  `json:"driverId"`
	Status     TripStatus `json:"status"`
	StartOTP   string     `json:"-"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	ActualDistKM float64  `json:"actualDistanceKm"`
	RoutePath  []Coordinate `json:"routePath,omitempty"`

	// Frozen pricing inputs, captured at trip creation.
	BaseFare  float64 `json:"baseFare"`
	PerKmRate float64 `json:"perKmRate"`
	PerMinRate float64 `json:"perMinRate"`

	// Derived fare components, populated at endTrip.
	DistanceFare   float64 `json:"distanceFare"`
	TimeFare       float64 `json:"timeFare"`
	SurgeAmount    float64 `json:"surgeAmount"`
	Discount       float64 `json:"discount"`
	FinalFare      float64 `json:"finalFare"`
	PlatformFee    float64 `json:"platformFee"`
	DriverEarnings float64 `json:"driverEarnings"`

	CreatedAt time.Time `json:"createdAt"`
}

// Payment is one settlement attempt sequence for a completed trip, per §3.
type Payment struct {
	ID              uuid.UUID     `json:"id"`
	TripID          uuid.UUID     `json:"tripId"`
	Amount          float64       `json:"amount"`
	Status          PaymentStatus `json:"status"`
	PaymentMethodID string        `json:"paymentMethodId"`
	PSPTransactionID *string      `json:"pspTransactionId,omitempty"`
	IdempotencyKey  string        `json:"idempotencyKey"`
	Attempts        int           `json:"attempts"`
	MaxAttempts     int           `json:"maxAttempts"`
	FailureReason   *string       `json:"failureReason,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	FailedAt        *time.Time    `json:"failedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Refund records a full or partial reversal of a completed payment.
type Refund struct {
	ID        uuid.UUID `json:"id"`
	PaymentID uuid.UUID `json:"paymentId"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Receipt is the rider-facing breakdown of a completed trip's charge.
type Receipt struct {
	ID        uuid.UUID `json:"id"`
	TripID    uuid.UUID `json:"tripId"`
	FinalFare float64   `json:"finalFare"`
	Tax       float64   `json:"tax"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// Earning is the driver-facing payout record for a completed trip.
type Earning struct {
	ID        uuid.UUID `json:"id"`
	DriverID  uuid.UUID `json:"driverId"`
	TripID    uuid.UUID `json:"tripId"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// RideEvent is an append-only audit record of a state transition.
type RideEvent struct {
	ID        uuid.UUID      `json:"id"`
	RideID    uuid.UUID      `json:"rideId"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// PricingConfig is the active fare formula inputs for a (region, rideType).
type PricingConfig struct {
	ID         uuid.UUID `json:"id"`
	Region     string    `json:"region"`
	RideType   RideType  `json:"rideType"`
	BaseFare   float64   `json:"baseFare"`
	PerKmRate  float64   `json:"perKmRate"`
	PerMinRate float64   `json:"perMinRate"`
	Active     bool      `json:"active"`
}

// SurgeZone is an opaque polygon with a current multiplier; see DESIGN.md
// for the Open Question decision on polygon resolution.
type SurgeZone struct {
	ID         uuid.UUID `json:"id"`
	Region     string    `json:"region"`
	Polygon    string    `json:"polygon,omitempty"`
	Multiplier float64   `json:"multiplier"`
	Active     bool      `json:"active"`
}

// Notification is a durable, append-only user-visible event.
type Notification struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"userId"`
	UserType  NotificationTarget `json:"userType"`
	Type      NotificationType   `json:"type"`
	RideID    *uuid.UUID         `json:"rideId,omitempty"`
	Payload   map[string]any     `json:"payload,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}
