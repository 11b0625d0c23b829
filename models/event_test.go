package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMessage_Encode(t *testing.T) {
	msg := EventMessage{Tags: []EventTag{
		{ID: 1, Value: IntValue(1), Timestamp: time.Unix(100000000, 0)},
		{ID: 2, Value: LocationValue(Location{Lat: 1.5, Lng: -2}), Timestamp: time.Unix(0, 0)},
		{ID: 3, Value: TimeValue(FromMicros(newYearMicros)), Timestamp: time.Unix(0, 0)},
	}}

	data, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags": [
		{"id": 1, "value": 1, "timestamp": 100000000000000},
		{"id": 2, "value": {"lat": 1.5, "lng": -2}, "timestamp": 0},
		{"id": 3, "value": 1577826000000000, "timestamp": 0}
	]}`, string(data))

	data, err = EventMessage{}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags": []}`, string(data))
}

func TestEventMessage_InvalidValue(t *testing.T) {
	_, err := EventMessage{Tags: []EventTag{{ID: 1}}}.Encode()
	assert.Error(t, err)
}

func TestEncodeLogs(t *testing.T) {
	data, err := EncodeLogs([]LogRecord{
		{Level: LogDebug, Message: "first"},
		{Level: LogInfo, Message: "second"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"level": 1, "message": "first"}, {"level": 2, "message": "second"}]`, string(data))

	data, err = EncodeLogs(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	assert.Equal(t, "warn", LogWarn.String())
	assert.Equal(t, "unknown", LogLevel(9).String())
}

func TestValue_Accessors(t *testing.T) {
	v := FloatValue(2.5)
	assert.Equal(t, ValueFloat, v.Kind())
	f, ok := v.Float()
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)
	_, ok = v.Int()
	assert.False(t, ok)

	assert.Equal(t, "<invalid>", Value{}.String())
	assert.Equal(t, "true", BoolValue(true).String())

	data, err := json.Marshal(StringValue("on"))
	require.NoError(t, err)
	assert.Equal(t, `"on"`, string(data))
}
