package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ridecore/internal/apperr"
	"ridecore/internal/bus"
	"ridecore/internal/domain"
	"ridecore/internal/location"
	"ridecore/internal/metrics"
	"ridecore/internal/payment"
	"ridecore/internal/ride"
)

// Handler holds every dependency the §6 external interface needs.
type Handler struct {
	engine     *ride.Engine
	settlement *payment.Settlement
	pipeline   *location.Pipeline
	bus        *bus.Bus
	metrics    *metrics.Registry
	auth       authConfig
	startTime  time.Time
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.UUID{}, false
	}
	return id, true
}

// writeAppErr maps the §7 error taxonomy onto HTTP status codes.
func writeAppErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.InvalidInput:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.Validation:
		status = http.StatusUnprocessableEntity
	case apperr.Timeout:
		status = http.StatusGatewayTimeout
	case apperr.Dependency:
		status = http.StatusBadGateway
	}
	respondError(w, status, err.Error())
}

// CreateRide implements §6's createRide.
func (h *Handler) CreateRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RiderID         uuid.UUID       `json:"riderId"`
		Pickup          domain.Waypoint `json:"pickup"`
		Dropoff         domain.Waypoint `json:"dropoff"`
		RideType        domain.RideType `json:"rideType"`
		PaymentMethodID string          `json:"paymentMethodId"`
		ScheduledAt     *time.Time      `json:"scheduledAt"`
		IdempotencyKey  string          `json:"idempotencyKey"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.CreateRide(r.Context(), ride.CreateRideInput{
		RiderID:         req.RiderID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		RideType:        req.RideType,
		PaymentMethodID: req.PaymentMethodID,
		ScheduledAt:     req.ScheduledAt,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// GetRide implements §6's getRide{rideId}.
func (h *Handler) GetRide(w http.ResponseWriter, r *http.Request) {
	rideID, ok := parseUUIDParam(w, r, "rideID")
	if !ok {
		return
	}
	result, err := h.engine.GetRide(r.Context(), rideID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CancelRide implements §6's cancelRide{rideId, cancelledBy, reason?}.
func (h *Handler) CancelRide(w http.ResponseWriter, r *http.Request) {
	rideID, ok := parseUUIDParam(w, r, "rideID")
	if !ok {
		return
	}
	var req struct {
		CancelledBy domain.CancelledBy `json:"cancelledBy"`
		Reason      string             `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.CancelRide(r.Context(), rideID, req.CancelledBy, req.Reason)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListRiderHistory implements §6's listRiderHistory{riderId, page, limit}.
func (h *Handler) ListRiderHistory(w http.ResponseWriter, r *http.Request) {
	riderID, ok := parseUUIDParam(w, r, "riderID")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rides, total, err := h.engine.ListRiderHistory(r.Context(), riderID, page, limit)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rides": rides, "total": total, "page": page, "limit": limit})
}

// UpdateDriverLocation implements §6's updateDriverLocation. The ride
// engine's Location Ingest Pipeline is wired in by cmd/server and owns the
// actual buffering/geo-index/fan-out work; this handler only validates the
// driver id in the path and forwards the body.
func (h *Handler) UpdateDriverLocation(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverID")
	if _, err := uuid.Parse(driverID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid driverID")
		return
	}
	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Heading   float64 `json:"heading"`
		Speed     float64 `json:"speed"`
		Accuracy  float64 `json:"accuracy"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ping := location.Ping{
		DriverID: driverID,
		Lat:      req.Latitude,
		Lng:      req.Longitude,
		Heading:  &req.Heading,
		Speed:    &req.Speed,
		Accuracy: &req.Accuracy,
		At:       time.Now(),
	}
	if err := h.pipeline.RecordPing(r.Context(), ping); err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UpdateDriverAvailability implements §6's updateDriverAvailability.
func (h *Handler) UpdateDriverAvailability(w http.ResponseWriter, r *http.Request) {
	driverID, ok := parseUUIDParam(w, r, "driverID")
	if !ok {
		return
	}
	var req struct {
		Status domain.DriverStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	driver, err := h.engine.UpdateDriverAvailability(r.Context(), driverID, req.Status)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, driver)
}

// AcceptRide implements §6's acceptRide{rideId, driverId}.
func (h *Handler) AcceptRide(w http.ResponseWriter, r *http.Request) {
	rideID, ok := parseUUIDParam(w, r, "rideID")
	if !ok {
		return
	}
	var req struct {
		DriverID uuid.UUID `json:"driverId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.engine.AcceptRide(r.Context(), rideID, req.DriverID); err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"rideId": rideID.String(), "message": "matched"})
}

// MarkArriving implements §6's markArriving{rideId, driverId}.
func (h *Handler) MarkArriving(w http.ResponseWriter, r *http.Request) {
	rideID, ok := parseUUIDParam(w, r, "rideID")
	if !ok {
		return
	}
	var req struct {
		DriverID uuid.UUID `json:"driverId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.engine.MarkArriving(r.Context(), rideID, req.DriverID); err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MarkArrived implements §6's markArrived{rideId, driverId} -> {otp}.
func (h *Handler) MarkArrived(w http.ResponseWriter, r *http.Request) {
	rideID, ok := parseUUIDParam(w, r, "rideID")
	if !ok {
		return
	}
	var req struct {
		DriverID uuid.UUID `json:"driverId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	otp, err := h.engine.MarkArrived(r.Context(), rideID, req.DriverID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"otp": otp})
}

// StartTrip implements §6's startTrip{tripId, startOtp}.
func (h *Handler) StartTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := parseUUIDParam(w, r, "tripID")
	if !ok {
		return
	}
	var req struct {
		StartOTP string `json:"startOtp"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	trip, err := h.engine.StartTrip(r.Context(), tripID, req.StartOTP)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trip)
}

// EndTrip implements §6's endTrip{tripId, endLocation, actualDistance, routePath?}.
func (h *Handler) EndTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := parseUUIDParam(w, r, "tripID")
	if !ok {
		return
	}
	var req struct {
		ActualDistanceKM float64             `json:"actualDistance"`
		RoutePath        []domain.Coordinate `json:"routePath"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	trip, err := h.engine.EndTrip(r.Context(), tripID, req.ActualDistanceKM, req.RoutePath)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trip)
}

// ProcessPayment implements §6's processPayment{tripId, paymentMethodId, idempotencyKey}.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	tripID, ok := parseUUIDParam(w, r, "tripID")
	if !ok {
		return
	}
	var req struct {
		PaymentMethodID string `json:"paymentMethodId"`
		IdempotencyKey  string `json:"idempotencyKey"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	pay, err := h.settlement.ProcessPayment(r.Context(), tripID, req.PaymentMethodID, req.IdempotencyKey)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pay)
}

// RefundPayment implements §6's refundPayment{paymentId, amount, reason}.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseUUIDParam(w, r, "paymentID")
	if !ok {
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	refund, err := h.settlement.Refund(r.Context(), paymentID, req.Amount, req.Reason)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"refundId": refund.ID, "status": "ok"})
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RideWebsocket streams every Update Bus publish for a ride's topic to a
// connected client, the teacher's internal/dispatch.Hub subscription model
// generalized from a connection-keyed registry to a subscribe on the
// transport-agnostic Update Bus.
func (h *Handler) RideWebsocket(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "rideID")
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	unsubscribe := h.bus.Subscribe(bus.RideTopic(rideID), func(payload any) {
		if err := conn.WriteJSON(payload); err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer unsubscribe()

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}
