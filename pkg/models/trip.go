package models

import "time"

// TripType classifies a completed trip.
type TripType string

const (
	TripBusiness TripType = "business"
	TripPrivate  TripType = "private"
)

// Trip is an immutable, completed driving segment.
type Trip struct {
	ID        string   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    string   `json:"user_id" gorm:"type:uuid;not null;index:idx_trips_user_date"`
	VehicleID string   `json:"vehicle_id" gorm:"type:uuid;not null;index:idx_trips_vehicle_date"`
	Date      string   `json:"date" gorm:"size:10;not null;index:idx_trips_user_date;index:idx_trips_vehicle_date"` // YYYY-MM-DD, local

	StartTime string `json:"start_time" gorm:"size:5;not null"` // HH:MM local
	EndTime   string `json:"end_time" gorm:"size:5;not null"`

	StartLocation string `json:"start_location" gorm:"not null"`
	EndLocation   string `json:"end_location" gorm:"not null"`

	StartOdometerKm float64 `json:"start_odometer_km" gorm:"not null"`
	EndOdometerKm   float64 `json:"end_odometer_km" gorm:"not null"`
	DistanceKm      float64 `json:"distance_km" gorm:"not null"`

	TripType   TripType `json:"trip_type" gorm:"size:16;not null"`
	AutoLogged bool     `json:"auto_logged" gorm:"not null;default:true"`

	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	EndLatitude    float64 `json:"end_latitude"`
	EndLongitude   float64 `json:"end_longitude"`

	RouteCoordinates Waypoints `json:"route_coordinates,omitempty" gorm:"type:jsonb"`
	RouteGeometry    Waypoints `json:"route_geometry,omitempty" gorm:"type:jsonb"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Trip) TableName() string { return "trips" }

// EndReason records why the state machine or reaper closed a trip. Not
// persisted on the Trip itself (the spec only requires it show up in notes
// where material); kept here for passing between the state machine and the
// trip writer.
type EndReason string

const (
	EndReasonGpsTimeout    EndReason = "gps_timeout"
	EndReasonStale         EndReason = "stale"
	EndReasonStaleAge      EndReason = "stale_age"
	EndReasonShiftedToPark EndReason = "shifted_to_park"
	EndReasonOffline       EndReason = "offline"
	EndReasonErrorTimeout  EndReason = "error_timeout"
	EndReasonManual        EndReason = "manual"
)
