package models

import "time"

// TelemetrySource identifies how a TelemetryEvent reached the store.
type TelemetrySource string

const (
	SourceWebhook   TelemetrySource = "webhook"
	SourceAutoFetch TelemetrySource = "auto_fetch"
	SourceStateOnly TelemetrySource = "state_only"
	// SourceKafka marks events that arrived over the optional bus-based
	// ingestion path rather than the webhook.
	SourceKafka TelemetrySource = "kafka"
)

// ShiftState is the transmission position reported by the vehicle.
type ShiftState string

const (
	ShiftPark    ShiftState = "P"
	ShiftReverse ShiftState = "R"
	ShiftNeutral ShiftState = "N"
	ShiftDrive   ShiftState = "D"
	ShiftSNA     ShiftState = "SNA"
)

// VehicleState is the vehicle's connectivity/power state as reported by the
// provider.
type VehicleState string

const (
	VehicleOnline  VehicleState = "online"
	VehicleAsleep  VehicleState = "asleep"
	VehicleOffline VehicleState = "offline"
)

// TelemetryEvent is one normalized, immutable telemetry observation.
// Once appended it is never modified except for the Processed flag.
type TelemetryEvent struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    string    `json:"user_id" gorm:"type:uuid;not null;index:idx_events_user_vin"`
	VIN       string    `json:"vin" gorm:"size:32;not null;index:idx_events_user_vin;index:idx_events_vin_created"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index:idx_events_vin_created;index:idx_events_unprocessed"`
	Source    TelemetrySource `json:"source" gorm:"size:16;not null"`

	ShiftState   *ShiftState   `json:"shift_state,omitempty"`
	Speed        *float64      `json:"speed,omitempty"`
	OdometerKm   *float64      `json:"odometer_km,omitempty"`
	Latitude     *float64      `json:"latitude,omitempty"`
	Longitude    *float64      `json:"longitude,omitempty"`
	BatteryLevel *float64      `json:"battery_level,omitempty"`
	VehicleState *VehicleState `json:"vehicle_state,omitempty"`

	Processed  bool   `json:"processed" gorm:"not null;default:false;index:idx_events_unprocessed"`
	RawPayload string `json:"raw_payload,omitempty" gorm:"type:text"`
}

func (TelemetryEvent) TableName() string { return "telemetry_events" }

// HasGPS reports whether the event carries a GPS fix.
func (e *TelemetryEvent) HasGPS() bool {
	return e.Latitude != nil && e.Longitude != nil
}
