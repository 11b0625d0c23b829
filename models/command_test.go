package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
)

// 2020-01-01 00:00 UTC+3
const newYearMicros = 1577826000000000

var newYear = time.Date(2020, 1, 1, 0, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))

func TestTimestampCodec(t *testing.T) {
	ts := FromMicros(newYearMicros)
	assert.True(t, ts.Equal(newYear))
	assert.Equal(t, int64(newYearMicros), ToMicros(newYear))
	assert.Equal(t, int64(100000000000000), ToMicros(time.Unix(100000000, 0)))

	// 亚微秒部分截断
	assert.Equal(t, int64(1), ToMicros(time.Unix(0, 1999)))
}

func TestLoadAgentDevicesCommands(t *testing.T) {
	data := []byte(`
{
  "command": {
    "created_at": 1577826000000000,
    "id": "some-id",
    "reason": "Failed to send command",
    "status": "new",
    "tags": [{"tag_id": 1, "value": true}],
    "updated_at": 1577826000000000
  },
  "devices": [
    {
      "command": {
        "created_at": 1577826000000000,
        "id": "some-id",
        "reason": "Failed to send command",
        "status": "new",
        "tags": [{"tag_id": 1, "value": true}],
        "updated_at": 1577826000000000
      },
      "device_id": 1
    }
  ]
}`)

	cmds, err := LoadAgentDevicesCommands(data, apierrors.KindGeneric)
	require.NoError(t, err)

	expected := CommandExtended{
		ID:        "some-id",
		Reason:    strPtr("Failed to send command"),
		Status:    StatusNew,
		Tags:      []CommandTag{{ID: 1, Value: BoolValue(true)}},
		CreatedAt: FromMicros(newYearMicros),
		UpdatedAt: FromMicros(newYearMicros),
	}

	require.NotNil(t, cmds.Command)
	assert.Equal(t, expected, *cmds.Command)
	assert.True(t, cmds.Command.CreatedAt.Equal(newYear))
	assert.Equal(t, []DeviceCommandExtended{{DeviceID: 1, Command: expected}}, cmds.Devices)
}

func TestLoadAgentDevicesCommands_Empty(t *testing.T) {
	cmds, err := LoadAgentDevicesCommands([]byte(`{"command": null, "devices": []}`), apierrors.KindGeneric)
	require.NoError(t, err)
	assert.Nil(t, cmds.Command)
	assert.Empty(t, cmds.Devices)

	_, err = LoadAgentDevicesCommands([]byte(`{}`), apierrors.KindGeneric)
	require.Error(t, err)
	assert.Equal(t, `Key "devices" missing in agent_devices_commands input`, err.Error())
}

func TestDecodeCommandExtended_TagIDKey(t *testing.T) {
	raw := map[string]any{
		"id":         "c1",
		"tags":       []any{map[string]any{"id": int64(1), "value": true}},
		"created_at": int64(1),
		"updated_at": int64(1),
		"status":     "sent",
	}

	_, err := DecodeCommandExtended(raw, apierrors.KindGeneric)
	require.Error(t, err)
	assert.Equal(t, `Key "tag_id" missing in command tag input`, err.Error())
}

func TestDecodeCommandExtended_UnknownStatus(t *testing.T) {
	raw := map[string]any{
		"id":         "c1",
		"tags":       []any{},
		"created_at": int64(1),
		"updated_at": int64(1),
		"status":     "paused",
	}

	_, err := DecodeCommandExtended(raw, apierrors.KindGeneric)
	require.Error(t, err)
	assert.Equal(t, "parse command_status failed, value 'paused' is unknown", err.Error())
}

func TestLoadCommandMessage(t *testing.T) {
	data := []byte(`{
		"command": {
			"id": "some_command",
			"tags": [{"id": 1, "value": true}],
			"timestamp": 1577826000000000
		},
		"devices": [
			{"device_id": 5, "command": {"id": "dev_cmd", "tags": [
				{"id": 2, "value": 1.5},
				{"id": 3, "value": "on"},
				{"id": 4, "value": {"lat": 55.75, "lng": 37.61}},
				{"id": 5, "value": 42}
			], "timestamp": 1}}
		]
	}`)

	msg, err := LoadCommandMessage(data, apierrors.KindCommandFormat)
	require.NoError(t, err)

	require.NotNil(t, msg.Command)
	assert.Equal(t, Command{
		ID:        "some_command",
		Tags:      []CommandTag{{ID: 1, Value: BoolValue(true)}},
		Timestamp: FromMicros(newYearMicros),
	}, *msg.Command)

	require.Len(t, msg.Devices, 1)
	assert.Equal(t, int64(5), msg.Devices[0].DeviceID)
	assert.Equal(t, []CommandTag{
		{ID: 2, Value: FloatValue(1.5)},
		{ID: 3, Value: StringValue("on")},
		{ID: 4, Value: LocationValue(Location{Lat: 55.75, Lng: 37.61})},
		{ID: 5, Value: IntValue(42)},
	}, msg.Devices[0].Command.Tags)
}

func TestLoadCommandMessage_MissingTags(t *testing.T) {
	data := []byte(`{"command": {"id": "x", "timestamp": 1}, "devices": []}`)

	msg, err := LoadCommandMessage(data, apierrors.KindCommandFormat)
	require.Error(t, err)
	assert.Equal(t, CommandMessage{}, msg)
	assert.True(t, errors.Is(err, apierrors.ErrImproperlyCommandFormat))
	assert.False(t, errors.Is(err, apierrors.ErrImproperlyConfigured))
	assert.Equal(t, `Key "tags" missing in command input`, err.Error())
}

func TestLoadCommandMessage_DeviceNotObject(t *testing.T) {
	_, err := LoadCommandMessage([]byte(`{"devices": [1]}`), apierrors.KindCommandFormat)
	require.Error(t, err)
	assert.Equal(t, `Item 0 of "devices" in command message input must be an object`, err.Error())
}

func TestLoadVersionedDeviceConfig(t *testing.T) {
	data := []byte(`{
		"created_at": 1577826000000000,
		"device_config": {"key": "value"},
		"device_id": 1,
		"id": 1
	}`)

	cfg, err := LoadVersionedDeviceConfig(data, apierrors.KindGeneric)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.ID)
	assert.Equal(t, int64(1), cfg.DeviceID)
	assert.Equal(t, map[string]any{"key": "value"}, cfg.DeviceConfig)
	require.NotNil(t, cfg.CreatedAt)
	assert.True(t, cfg.CreatedAt.Equal(newYear))

	cfg, err = LoadVersionedDeviceConfig([]byte(`{"id": 2, "device_id": 3}`), apierrors.KindGeneric)
	require.NoError(t, err)
	assert.Nil(t, cfg.CreatedAt)
	assert.Equal(t, map[string]any{}, cfg.DeviceConfig)
}

func TestCommandStatus(t *testing.T) {
	for _, s := range CommandStatuses {
		parsed, err := ParseCommandStatus(s.String(), apierrors.KindGeneric)
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.Len(t, CommandStatuses, 7)

	_, err := ParseCommandStatus("Done", apierrors.KindGeneric)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrParse))

	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusReceived.Terminal())

	_, err = json.Marshal(CommandStatus("bogus"))
	assert.Error(t, err)

	var s CommandStatus
	require.NoError(t, json.Unmarshal([]byte(`"received"`), &s))
	assert.Equal(t, StatusReceived, s)
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &s))
}
