package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivelog/tripcore/pkg/models"
)

func TestParseTupleArrayShape(t *testing.T) {
	payload := `{
		"vin": "5YJ3E1EA1JF000001",
		"state": "online",
		"data": [
			{"key": "ShiftState", "value": {"stringValue": "D"}},
			{"key": "VehicleSpeed", "value": {"doubleValue": 42.5}},
			{"key": "Odometer", "value": {"doubleValue": 1000}},
			{"key": "Location", "value": {"locationValue": {"latitude": 52.52, "longitude": 13.405}}},
			{"key": "BatteryLevel", "value": {"intValue": 80}}
		]
	}`

	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event.ShiftState)
	assert.Equal(t, models.ShiftDrive, *event.ShiftState)
	require.NotNil(t, event.Speed)
	assert.Equal(t, 42.5, *event.Speed)
	require.NotNil(t, event.OdometerKm)
	assert.InDelta(t, 1609.344, *event.OdometerKm, 0.001)
	require.NotNil(t, event.Latitude)
	assert.Equal(t, 52.52, *event.Latitude)
	require.NotNil(t, event.BatteryLevel)
	assert.Equal(t, 80.0, *event.BatteryLevel)
	require.NotNil(t, event.VehicleState)
	assert.Equal(t, models.VehicleOnline, *event.VehicleState)
}

func TestParseNumericKeyedObjectShapePreservesOrder(t *testing.T) {
	payload := `{
		"vin": "VIN2",
		"data": {
			"1": {"key": "VehicleSpeed", "value": {"doubleValue": 10}},
			"0": {"key": "ShiftState", "value": {"stringValue": "R"}}
		}
	}`

	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event.ShiftState)
	assert.Equal(t, models.ShiftReverse, *event.ShiftState)
	require.NotNil(t, event.Speed)
	assert.Equal(t, 10.0, *event.Speed)

	// Keys sort numerically, so "10" is applied after "9" and its value wins.
	ordered := `{
		"vin": "VIN2",
		"data": {
			"10": {"key": "ShiftState", "value": {"stringValue": "D"}},
			"9": {"key": "ShiftState", "value": {"stringValue": "R"}}
		}
	}`
	event, err = Parse(models.SourceWebhook, []byte(ordered))
	require.NoError(t, err)
	require.NotNil(t, event.ShiftState)
	assert.Equal(t, models.ShiftDrive, *event.ShiftState)
}

func TestParseFlatObjectShape(t *testing.T) {
	payload := `{
		"vin": "VIN3",
		"ShiftState": "P",
		"VehicleSpeed": 0,
		"Odometer": 621.37,
		"Location": {"latitude": 48.85, "longitude": 2.35},
		"BatteryLevel": 55
	}`

	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event.ShiftState)
	assert.Equal(t, models.ShiftPark, *event.ShiftState)
	require.NotNil(t, event.OdometerKm)
	assert.InDelta(t, 1000.0, *event.OdometerKm, 0.5)
	require.NotNil(t, event.Latitude)
	assert.Equal(t, 48.85, *event.Latitude)
}

func TestParseVinFromNestedVehicleObject(t *testing.T) {
	payload := `{"vehicle": {"vin": "NESTED1"}, "ShiftState": "D"}`
	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "NESTED1", event.VIN)
}

func TestParseVinFromMetadata(t *testing.T) {
	payload := `{"metadata": {"vin": "META1"}}`
	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "META1", event.VIN)
}

func TestParseMissingVinFails(t *testing.T) {
	payload := `{"ShiftState": "D"}`
	_, err := Parse(models.SourceWebhook, []byte(payload))
	assert.ErrorIs(t, err, ErrMissingVIN)
}

func TestParseZeroOdometerTreatedAsAbsent(t *testing.T) {
	payload := `{"vin": "VIN4", "Odometer": 0}`
	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	assert.Nil(t, event.OdometerKm)
}

func TestParseNegativeOdometerTreatedAsAbsent(t *testing.T) {
	payload := `{"vin": "VIN4", "Odometer": -5}`
	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	assert.Nil(t, event.OdometerKm)
}

func TestParseInvalidJSONFails(t *testing.T) {
	_, err := Parse(models.SourceWebhook, []byte("not json"))
	assert.Error(t, err)
}

func TestParseGearAliasForShiftState(t *testing.T) {
	payload := `{"vin": "VIN5", "Gear": "N"}`
	event, err := Parse(models.SourceWebhook, []byte(payload))
	require.NoError(t, err)
	require.NotNil(t, event.ShiftState)
	assert.Equal(t, models.ShiftNeutral, *event.ShiftState)
}
