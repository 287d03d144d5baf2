// Package telemetry normalizes heterogeneous provider webhook payloads into
// canonical TelemetryEvent drafts, and exposes the ingestion endpoints (HTTP
// webhook, optional Kafka consumer) that feed them into the event store.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/drivelog/tripcore/pkg/models"
)

// ErrMissingVIN is returned when no VIN can be resolved from the payload —
// the one unconditional parse failure the spec calls out.
var ErrMissingVIN = errors.New("telemetry: payload carries no vin")

// tuple is one {key, value} pair in the provider's Fleet-Telemetry-style wire
// format, in whichever of its two on-wire shapes it arrived.
type tuple struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type tupleValue struct {
	DoubleValue   *float64        `json:"doubleValue"`
	FloatValue    *float64        `json:"floatValue"`
	IntValue      *int64          `json:"intValue"`
	StringValue   *string         `json:"stringValue"`
	LocationValue *locationValue  `json:"locationValue"`
}

type locationValue struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Parse canonicalizes one provider payload into a TelemetryEvent draft,
// normalizing whichever of the three documented shapes it's in. It never
// panics or returns a non-ErrMissingVIN error for malformed-but-present
// fields — those are simply ignored, per the parser's "unknown keys are
// ignored" contract. Only a genuinely unparsable JSON body or a missing VIN
// fails the parse.
func Parse(source models.TelemetrySource, body []byte) (*models.TelemetryEvent, error) {
	var root map[string]interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("telemetry: invalid json: %w", err)
	}

	vin := resolveVIN(root)
	if vin == "" {
		return nil, ErrMissingVIN
	}

	event := &models.TelemetryEvent{
		VIN:       vin,
		Source:    source,
		CreatedAt: resolveCreatedAt(root),
	}

	if vs := resolveVehicleState(root); vs != "" {
		state := models.VehicleState(vs)
		event.VehicleState = &state
	}

	tuples, flat := resolveFields(root)
	for _, t := range tuples {
		applyTuple(event, t)
	}
	if flat != nil {
		applyFlat(event, flat)
	}

	return event, nil
}

func resolveVIN(root map[string]interface{}) string {
	if v, ok := root["vin"].(string); ok && v != "" {
		return v
	}
	if vehicle, ok := root["vehicle"].(map[string]interface{}); ok {
		if v, ok := vehicle["vin"].(string); ok && v != "" {
			return v
		}
	}
	if meta, ok := root["metadata"].(map[string]interface{}); ok {
		if v, ok := meta["vin"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func resolveVehicleState(root map[string]interface{}) string {
	if s, ok := root["state"].(string); ok && s != "" {
		return s
	}
	if s, ok := root["status"].(string); ok && s != "" {
		return s
	}
	return ""
}

func resolveCreatedAt(root map[string]interface{}) time.Time {
	for _, key := range []string{"createdAt", "timestamp", "created_at"} {
		raw, ok := root[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		case float64:
			return time.Unix(int64(v), 0).UTC()
		}
	}
	return time.Now().UTC()
}

// resolveFields finds the tuple collection (either on-wire shape) or falls
// back to treating the whole root object as a flat named-field payload.
func resolveFields(root map[string]interface{}) ([]tuple, map[string]interface{}) {
	data, ok := root["data"]
	if !ok {
		// No "data" envelope: treat the root itself as the flat shape.
		return nil, root
	}

	switch v := data.(type) {
	case []interface{}:
		return decodeTupleArray(v), nil
	case map[string]interface{}:
		return decodeTupleObject(v), nil
	default:
		return nil, root
	}
}

func decodeTupleArray(items []interface{}) []tuple {
	out := make([]tuple, 0, len(items))
	for _, item := range items {
		if t, ok := decodeTupleItem(item); ok {
			out = append(out, t)
		}
	}
	return out
}

// decodeTupleObject handles the numeric-string-keyed variant, converting it
// to an array in ascending key order before processing.
func decodeTupleObject(obj map[string]interface{}) []tuple {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		if errI == nil && errJ == nil {
			return ni < nj
		}
		return keys[i] < keys[j]
	})

	out := make([]tuple, 0, len(obj))
	for _, k := range keys {
		if t, ok := decodeTupleItem(obj[k]); ok {
			out = append(out, t)
		}
	}
	return out
}

func decodeTupleItem(item interface{}) (tuple, bool) {
	raw, err := json.Marshal(item)
	if err != nil {
		return tuple{}, false
	}
	var t tuple
	if err := json.Unmarshal(raw, &t); err != nil || t.Key == "" {
		return tuple{}, false
	}
	return t, true
}

func applyTuple(event *models.TelemetryEvent, t tuple) {
	var v tupleValue
	if err := json.Unmarshal(t.Value, &v); err != nil {
		return
	}

	switch strings.ToLower(t.Key) {
	case "shiftstate", "gear":
		if v.StringValue != nil {
			setShiftState(event, *v.StringValue)
		}
	case "vehiclespeed":
		if n, ok := numericOf(v); ok {
			event.Speed = &n
		}
	case "odometer":
		if n, ok := numericOf(v); ok {
			setOdometer(event, n)
		}
	case "location":
		if v.LocationValue != nil {
			lat, lon := v.LocationValue.Latitude, v.LocationValue.Longitude
			event.Latitude = &lat
			event.Longitude = &lon
		}
	case "batterylevel":
		if n, ok := numericOf(v); ok {
			event.BatteryLevel = &n
		}
	}
}

func applyFlat(event *models.TelemetryEvent, flat map[string]interface{}) {
	if s, ok := stringField(flat, "ShiftState", "Gear"); ok {
		setShiftState(event, s)
	}
	if n, ok := numericField(flat, "VehicleSpeed"); ok {
		event.Speed = &n
	}
	if n, ok := numericField(flat, "Odometer"); ok {
		setOdometer(event, n)
	}
	if loc, ok := flat["Location"].(map[string]interface{}); ok {
		if lat, latOk := numericField(loc, "latitude"); latOk {
			if lon, lonOk := numericField(loc, "longitude"); lonOk {
				event.Latitude = &lat
				event.Longitude = &lon
			}
		}
	}
	if n, ok := numericField(flat, "BatteryLevel"); ok {
		event.BatteryLevel = &n
	}
}

func setShiftState(event *models.TelemetryEvent, raw string) {
	ss := models.ShiftState(strings.ToUpper(raw))
	event.ShiftState = &ss
}

// setOdometer converts miles to kilometers and treats zero/negative readings
// as absent, per the parser's documented contract.
func setOdometer(event *models.TelemetryEvent, milesOrAbsent float64) {
	if milesOrAbsent <= 0 {
		return
	}
	km := milesOrAbsent * 1.609344
	event.OdometerKm = &km
}

func numericOf(v tupleValue) (float64, bool) {
	switch {
	case v.DoubleValue != nil:
		return *v.DoubleValue, true
	case v.FloatValue != nil:
		return *v.FloatValue, true
	case v.IntValue != nil:
		return float64(*v.IntValue), true
	default:
		return 0, false
	}
}

func stringField(m map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func numericField(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
