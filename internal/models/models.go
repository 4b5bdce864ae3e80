package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PathPoint is one admitted breadcrumb on a trip's recorded path.
type PathPoint struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	TS  time.Time `json:"ts"`
}

// Position is a relayed fix carrying the course derived from the previous
// fix, in degrees clockwise from north. Observers use it to rotate markers.
type Position struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Bearing float64 `json:"bearing"`
}

func (p Position) Coord() Coord { return Coord{Lat: p.Lat, Lng: p.Lng} }

type Status string

const (
	StatusPaymentPending Status = "payment_pending"
	StatusPending        Status = "pending"
	StatusAccepted       Status = "accepted"
	StatusEnroute        Status = "enroute"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Vehicle classes understood by the rate table. Unknown classes fall back
// to ClassNormal.
const (
	ClassNormal  = "normal"
	ClassComfort = "comfort"
	ClassLuxury  = "luxury"
	ClassXL      = "xl"
)

const (
	PaymentCash    = "cash"
	PaymentGateway = "gateway"

	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// RateCard holds per-class pricing parameters in whole currency units.
type RateCard struct {
	BaseFare    float64 `json:"base_fare"`
	PerKm       float64 `json:"per_km"`
	MinCharge   float64 `json:"min_charge"`
	PickupPerKm float64 `json:"pickup_per_km"`
}

// FareSnapshot is written exactly once, at the transition into completed.
type FareSnapshot struct {
	Price         int     `json:"price"`
	DistanceKm    float64 `json:"distance_km"`
	DurationSec   int     `json:"duration_sec"`
	TrafficFactor float64 `json:"traffic_factor"`
	Surge         float64 `json:"surge"`
}

type Trip struct {
	ID           string `json:"id"`
	RiderID      string `json:"rider_id"`
	Pickup       Coord  `json:"pickup"`
	Destination  Coord  `json:"destination"`
	VehicleID    string `json:"vehicle_id,omitempty"`
	VehicleClass string `json:"vehicle_class,omitempty"`
	Status       Status `json:"status"`

	Estimate int `json:"estimate,omitempty"`

	PaymentMethod string     `json:"payment_method"`
	PaymentStatus string     `json:"payment_status"`
	PaymentRef    string     `json:"payment_ref,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`
	CancelNote   string `json:"cancel_note,omitempty"`
	CancelledBy  string `json:"cancelled_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	PickedAt    *time.Time `json:"picked_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Path []PathPoint `json:"path,omitempty"`

	Fare *FareSnapshot `json:"fare,omitempty"`
}

type Vehicle struct {
	ID        string    `json:"id"`
	Loc       *Coord    `json:"loc,omitempty"`
	Available bool      `json:"available"`
	Class     string    `json:"class"`
	Rate      *RateCard `json:"rate,omitempty"`
	Updated   time.Time `json:"updated"`
}

// Offer is a non-binding dispatch proposal handed to the vehicle
// notification collaborator. The trip stays pending until accepted.
type Offer struct {
	TripID       string  `json:"trip_id"`
	VehicleID    string  `json:"vehicle_id"`
	Pickup       Coord   `json:"pickup"`
	Destination  Coord   `json:"destination"`
	VehicleClass string  `json:"vehicle_class"`
	PickupKm     float64 `json:"pickup_km"`
	Estimate     int     `json:"estimate"`
}

// TripRequest is the inbound shape for a new trip.
type TripRequest struct {
	RiderID       string `json:"rider_id"`
	Pickup        Coord  `json:"pickup"`
	Destination   Coord  `json:"destination"`
	VehicleClass  string `json:"vehicle_class,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Fix is a single raw position sample reported by a vehicle.
type Fix struct {
	VehicleID string  `json:"vehicle_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}
