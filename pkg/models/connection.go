package models

import "time"

// DriveState summarizes what the vehicle connection believes the vehicle is
// currently doing.
type DriveState string

const (
	DriveStateDriving DriveState = "driving"
	DriveStateParked  DriveState = "parked"
	DriveStateAsleep  DriveState = "asleep"
	DriveStateOnline  DriveState = "online"
)

// VehicleConnection is the mutable per-user, per-VIN running state consumed
// and produced by the trip state machine. There is exactly one row per
// (UserID, VIN).
type VehicleConnection struct {
	ID        string `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    string `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_conn_user_vin"`
	VIN       string `json:"vin" gorm:"size:32;not null;uniqueIndex:idx_conn_user_vin"`
	VehicleID string `json:"vehicle_id" gorm:"type:uuid;not null;index"`
	IsActive  bool   `json:"is_active" gorm:"not null;default:true"`

	// Last-observed snapshot.
	LastOdometerKm  *float64    `json:"last_odometer_km,omitempty"`
	LastLatitude    *float64    `json:"last_latitude,omitempty"`
	LastLongitude   *float64    `json:"last_longitude,omitempty"`
	LastShiftState  *ShiftState `json:"last_shift_state,omitempty"`
	LastDriveState  *DriveState `json:"last_drive_state,omitempty"`
	LastPolledAt    *time.Time  `json:"last_polled_at,omitempty"`
	LastGpsAt       *time.Time  `json:"last_gps_at,omitempty"`

	// Trip-in-progress slot. Invariant I1: TripStartTime != nil iff a trip is
	// in progress. While one is, the start latitude, longitude and location
	// are non-nil; TripStartOdometerKm is nil when the starting event carried
	// no odometer reading.
	TripStartTime      *time.Time `json:"trip_start_time,omitempty"`
	TripStartOdometerKm *float64  `json:"trip_start_odometer_km,omitempty"`
	TripStartLatitude  *float64   `json:"trip_start_latitude,omitempty"`
	TripStartLongitude *float64   `json:"trip_start_longitude,omitempty"`
	TripStartLocation  *string    `json:"trip_start_location,omitempty"`
	RouteWaypoints     Waypoints  `json:"route_waypoints,omitempty" gorm:"type:jsonb"`

	// Timers.
	ParkedSince       *time.Time `json:"parked_since,omitempty"`
	IdleSince         *time.Time `json:"idle_since,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors" gorm:"not null;default:0"`
	FirstErrorAt      *time.Time `json:"first_error_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (VehicleConnection) TableName() string { return "vehicle_connections" }

// Waypoint is a single point on a trip's route.
type Waypoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Waypoints is the ordered route accumulated while a trip is in progress.
type Waypoints []Waypoint

// TripInProgress reports whether a trip is currently open on this connection.
func (c *VehicleConnection) TripInProgress() bool {
	return c.TripStartTime != nil
}

// ClearTrip resets every trip-start field to nil, restoring invariant I3.
func (c *VehicleConnection) ClearTrip() {
	c.TripStartTime = nil
	c.TripStartOdometerKm = nil
	c.TripStartLatitude = nil
	c.TripStartLongitude = nil
	c.TripStartLocation = nil
	c.RouteWaypoints = nil
}
