package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/trip-coordinator/internal/dispatch"
	"github.com/example/trip-coordinator/internal/fare"
	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geofence"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/observability"
	"github.com/example/trip-coordinator/internal/storage"
	"github.com/example/trip-coordinator/internal/trip"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleVehicleFix accepts a raw position sample. When Kafka is configured
// the fix is also published for the consumer pipeline; the relay always runs
// so local tracking works without a broker.
func (s *Server) handleVehicleFix(w http.ResponseWriter, r *http.Request) {
	var f models.Fix
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.Kafka != nil {
		if err := s.deps.Kafka.PublishFix(f); err != nil {
			s.logger.Warn("fix not published to kafka", "vehicle", f.VehicleID, "error", err)
		}
	}
	s.deps.Relay.Ingest(r.Context(), f.VehicleID, f.Lat, f.Lng)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVehicleUpsert(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v.ID == "" {
		writeError(w, http.StatusBadRequest, "vehicle id required")
		return
	}
	if err := s.deps.Fleet.Put(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVehicleAvailability(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["vehicle_id"]
	var body struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Fleet.SetAvailability(r.Context(), id, body.Available); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fleet.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	if !body.Available && s.deps.Heartbeats != nil {
		// explicit offline signal stops the rebroadcast timer immediately
		s.deps.Heartbeats.Stop(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVehicleLocation serves the last known fix, preferring the in-memory
// heartbeat state over the registry.
func (s *Server) handleVehicleLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["vehicle_id"]
	if s.deps.Heartbeats != nil {
		if loc, seen, ok := s.deps.Heartbeats.Last(id); ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{"vehicle_id": id, "loc": loc, "seen": seen})
			return
		}
	}
	v, err := s.deps.Fleet.ByID(r.Context(), id)
	if err != nil || v.Loc == nil {
		writeError(w, http.StatusNotFound, "no known location")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicle_id": id, "loc": v.Loc, "seen": v.Updated})
}

func (s *Server) handleVehicleStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["vehicle_id"]
	stats, err := trip.ComputeVehicleStats(r.Context(), s.deps.Store, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	pickup, ok1 := coordFromQuery(r, "pickup_lat", "pickup_lng")
	dest, ok2 := coordFromQuery(r, "dest_lat", "dest_lng")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "pickup and destination coordinates required")
		return
	}
	quotes, err := s.deps.Fare.Quotes(r.Context(), s.deps.Fleet, pickup, dest, s.deps.QuoteRadiusKm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

// handleTripCreate opens a trip. Gateway payments hold the trip in
// payment_pending until the confirmation callback; cash trips dispatch
// immediately.
func (s *Server) handleTripCreate(w http.ResponseWriter, r *http.Request) {
	var req models.TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RiderID == "" || !validCoord(req.Pickup) || !validCoord(req.Destination) {
		writeError(w, http.StatusBadRequest, "rider id and valid coordinates required")
		return
	}
	if req.VehicleClass == "" {
		req.VehicleClass = models.ClassNormal
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentGateway
	}

	t := &models.Trip{
		ID:            newID(),
		RiderID:       req.RiderID,
		Pickup:        req.Pickup,
		Destination:   req.Destination,
		VehicleClass:  req.VehicleClass,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.PaymentUnpaid,
		Status:        models.StatusPending,
		CreatedAt:     s.clock(),
	}
	if req.PaymentMethod == models.PaymentGateway {
		t.Status = models.StatusPaymentPending
	}
	if err := s.deps.Store.Create(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if t.Status == models.StatusPaymentPending {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"trip_id": t.ID, "status": t.Status, "awaiting_payment": true,
		})
		return
	}
	s.dispatchAndRespond(w, r, t.ID, http.StatusCreated)
}

// handlePaymentConfirmed is the gateway callback: the trip leaves
// payment_pending and enters the matching loop.
func (s *Server) handlePaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	if err := s.deps.Machine.ConfirmPayment(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	s.dispatchAndRespond(w, r, id, http.StatusOK)
}

func (s *Server) dispatchAndRespond(w http.ResponseWriter, r *http.Request, tripID string, okStatus int) {
	chosen, err := s.deps.Coordinator.Dispatch(r.Context(), tripID, nil)
	switch {
	case errors.Is(err, dispatch.ErrNoVehicle):
		writeJSON(w, okStatus, map[string]interface{}{"trip_id": tripID, "matched": false})
	case errors.Is(err, trip.ErrStateConflict):
		// already past pending; report current state
		writeJSON(w, okStatus, map[string]interface{}{"trip_id": tripID, "matched": false})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, okStatus, map[string]interface{}{
			"trip_id": tripID, "matched": true, "vehicle_id": chosen.ID,
		})
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	var body struct {
		VehicleID string `json:"vehicle_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.VehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicle_id required")
		return
	}
	if err := s.deps.Coordinator.Accept(r.Context(), id, body.VehicleID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, trip.ErrStateConflict):
			status = http.StatusConflict
		case errors.Is(err, storage.ErrNotFound):
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	if err := s.deps.Fleet.SetAvailability(r.Context(), body.VehicleID, false); err != nil {
		s.logger.Warn("vehicle not marked busy", "vehicle", body.VehicleID, "error", err)
	}
	t, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	var body struct {
		VehicleID string `json:"vehicle_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.VehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicle_id required")
		return
	}
	chosen, err := s.deps.Coordinator.Decline(r.Context(), id, body.VehicleID)
	switch {
	case errors.Is(err, dispatch.ErrNoVehicle):
		writeJSON(w, http.StatusOK, map[string]interface{}{"trip_id": id, "matched": false})
	case errors.Is(err, trip.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"trip_id": id, "matched": true, "vehicle_id": chosen.ID,
		})
	}
}

func (s *Server) handleArrived(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	if err := s.deps.Machine.MarkArrived(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleEnroute(w, r, false)
}

func (s *Server) handlePicked(w http.ResponseWriter, r *http.Request) {
	s.handleEnroute(w, r, true)
}

func (s *Server) handleEnroute(w http.ResponseWriter, r *http.Request, picked bool) {
	id := mux.Vars(r)["trip_id"]
	var body struct {
		By string `json:"by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.deps.Machine.MarkEnroute(r.Context(), id, body.By, picked); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, trip.ErrStateConflict):
			status = http.StatusConflict
		case errors.Is(err, storage.ErrNotFound):
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	if s.deps.Fence != nil {
		// the arrival geofence no longer applies once the ride is moving
		s.deps.Fence.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFinish completes the trip: the completion geofence gates the action,
// the closing position is stamped onto the path, and the final fare snapshot
// is computed from the recorded travel data.
func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	var body struct {
		Lat           *float64 `json:"lat"`
		Lng           *float64 `json:"lng"`
		Override      bool     `json:"override"`
		PaymentMethod string   `json:"payment_method"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	t, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if t.Status.Terminal() {
		writeError(w, http.StatusConflict, "trip already finished")
		return
	}

	at, haveFix := s.finishPosition(t, body.Lat, body.Lng)
	rule := geofence.CompletionAllowed
	if haveFix {
		rule = geofence.Completion(at, t.Destination)
		if rule == geofence.CompletionOverride && !body.Override {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error": "too far from dropoff", "rule": completionLabel(rule),
			})
			return
		}
		// stamp the closing position so the path covers the full ride
		pt := models.PathPoint{Lat: at.Lat, Lng: at.Lng, TS: s.clock()}
		if err := s.deps.Store.AppendPathPoint(r.Context(), id, pt); err != nil {
			s.logger.Warn("closing path point not persisted", "trip", id, "error", err)
		}
	}

	t, err = s.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rate := s.rateFor(r, t)
	snapshot := s.deps.Fare.Final(r.Context(), t, rate)
	method := body.PaymentMethod
	if method == "" {
		method = t.PaymentMethod
	}
	if err := s.deps.Machine.Complete(r.Context(), id, snapshot, method); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, trip.ErrStateConflict) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	observability.FaresComputed.Inc()
	s.releaseVehicle(r, t.VehicleID, id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trip_id": id, "fare": snapshot, "rule": completionLabel(rule),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	var body struct {
		By     string `json:"by"`
		Reason string `json:"reason"`
		Note   string `json:"note"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	t, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.deps.Machine.Cancel(r.Context(), id, body.By, body.Reason, body.Note); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, trip.ErrStateConflict) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	s.releaseVehicle(r, t.VehicleID, id)
	writeJSON(w, http.StatusOK, map[string]interface{}{"trip_id": id, "status": models.StatusCancelled})
}

// handleTripGet serves trip details behind the visibility gate: terminal,
// unpaid and aged-out trips answer 410 with the reason instead of the data.
func (s *Server) handleTripGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	t, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if exp := trip.Visibility(t, s.deps.TripTTL, s.clock()); exp.Expired {
		resp := map[string]interface{}{"expired": true, "reason": exp.Reason}
		if exp.ExpiresAt != nil {
			resp["expires_at"] = exp.ExpiresAt
		}
		writeJSON(w, http.StatusGone, resp)
		return
	}

	resp := map[string]interface{}{"trip": t}
	if t.VehicleID != "" {
		if s.deps.Heartbeats != nil {
			if pos, seen, ok := s.deps.Heartbeats.LastPosition(t.VehicleID); ok {
				resp["vehicle_location"] = map[string]interface{}{"loc": pos, "seen": seen}
			}
		}
		if _, ok := resp["vehicle_location"]; !ok {
			// no live fix yet; fall back to the registry's last write
			if v, err := s.deps.Fleet.ByID(r.Context(), t.VehicleID); err == nil && v.Loc != nil {
				resp["vehicle_location"] = map[string]interface{}{"loc": v.Loc, "seen": v.Updated}
			}
		}
	}
	if t.Status == models.StatusEnroute && s.deps.Heartbeats != nil {
		if loc, _, ok := s.deps.Heartbeats.Last(t.VehicleID); ok {
			resp["dropoff_status"] = dropoffLabel(geofence.Dropoff(loc, t.Destination))
			resp["completion_rule"] = completionLabel(geofence.Completion(loc, t.Destination))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{}

// handleVehicleWS is the operator app's offer session.
func (s *Server) handleVehicleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["vehicle_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.deps.WSReg.Add(id, conn)
}

func (s *Server) handleVehicleTrackWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["vehicle_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.deps.Hub.SubscribeVehicle(id, conn)
}

func (s *Server) handleTripTrackWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["trip_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.deps.Hub.SubscribeTrip(id, conn)
}

// finishPosition resolves where the vehicle is at completion time: the
// request body wins, then the heartbeat state.
func (s *Server) finishPosition(t *models.Trip, lat, lng *float64) (models.Coord, bool) {
	if lat != nil && lng != nil {
		c := models.Coord{Lat: *lat, Lng: *lng}
		if validCoord(c) {
			return c, true
		}
	}
	if s.deps.Heartbeats != nil {
		if loc, _, ok := s.deps.Heartbeats.Last(t.VehicleID); ok {
			return loc, true
		}
	}
	return models.Coord{}, false
}

func (s *Server) rateFor(r *http.Request, t *models.Trip) models.RateCard {
	class := t.VehicleClass
	if v, err := s.deps.Fleet.ByID(r.Context(), t.VehicleID); err == nil {
		if class == "" {
			class = v.Class
		}
		return fare.ResolveRate(class, v.Rate)
	}
	return fare.ResolveRate(class, nil)
}

// releaseVehicle puts the vehicle back in the eligible pool and clears the
// per-trip relay state after a terminal transition.
func (s *Server) releaseVehicle(r *http.Request, vehicleID, tripID string) {
	if s.deps.Capture != nil {
		s.deps.Capture.Forget(tripID)
	}
	if s.deps.Fence != nil {
		s.deps.Fence.Forget(tripID)
	}
	if vehicleID == "" {
		return
	}
	if err := s.deps.Fleet.SetAvailability(r.Context(), vehicleID, true); err != nil {
		s.logger.Warn("vehicle not released", "vehicle", vehicleID, "error", err)
	}
}

func dropoffLabel(t geofence.DropoffTier) string {
	switch t {
	case geofence.TierAtDropoff:
		return "at_dropoff"
	case geofence.TierApproaching:
		return "approaching"
	default:
		return "enroute"
	}
}

func completionLabel(r geofence.CompletionRule) string {
	switch r {
	case geofence.CompletionAllowed:
		return "allowed"
	case geofence.CompletionConfirm:
		return "confirm"
	default:
		return "override_required"
	}
}

func coordFromQuery(r *http.Request, latKey, lngKey string) (models.Coord, bool) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	lng, err2 := strconv.ParseFloat(r.URL.Query().Get(lngKey), 64)
	if err1 != nil || err2 != nil {
		return models.Coord{}, false
	}
	c := models.Coord{Lat: lat, Lng: lng}
	return c, validCoord(c)
}

func validCoord(c models.Coord) bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) &&
		!math.IsNaN(c.Lng) && !math.IsInf(c.Lng, 0) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}
