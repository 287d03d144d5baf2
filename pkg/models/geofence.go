package models

// Geofence is a circular region tagged business or private. Owned and
// CRUD'd by the out-of-scope geofence management layer; the core only reads
// it via collaborators.GeofenceStore.
type Geofence struct {
	ID            string   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID        string   `json:"user_id" gorm:"type:uuid;not null;index"`
	Name          string   `json:"name"`
	CenterLat     float64  `json:"center_lat"`
	CenterLon     float64  `json:"center_lon"`
	RadiusMeters  float64  `json:"radius_meters"` // 50-5000
	TripType      TripType `json:"trip_type" gorm:"size:16"`
}

func (Geofence) TableName() string { return "geofences" }

// Vehicle is the external vehicle record; the core only writes
// CurrentOdometerKm and BatteryLevel on it.
type Vehicle struct {
	ID               string  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID           string  `json:"user_id" gorm:"type:uuid;not null;index"`
	VIN              string  `json:"vin" gorm:"size:32;not null;index"`
	CurrentOdometerKm float64 `json:"current_odometer_km"`
	BatteryLevel     float64 `json:"battery_level"`
}

func (Vehicle) TableName() string { return "vehicles" }
