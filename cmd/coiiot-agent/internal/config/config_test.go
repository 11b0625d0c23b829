package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("COIIOT_HTTP_ADDR", "http://localhost:8080")
	t.Setenv("COIIOT_CLIENT_ID", "100")
	t.Setenv("COIIOT_AGENT_ID", "1")
	t.Setenv("COIIOT_AGENT_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.Agent.ClientID)
	assert.Equal(t, int64(1), cfg.Agent.AgentID)
	assert.Equal(t, "tok", cfg.Agent.Token)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.HTTP.Timeout)

	assert.Equal(t, ModeHTTP, cfg.Agentd.Mode)
	assert.Equal(t, 10*time.Second, cfg.Agentd.PollInterval)
	assert.Equal(t, time.Second, cfg.Agentd.TelemetryInterval)
	assert.Equal(t, "coiiot:commands", cfg.Agentd.CommandStream)

	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.DatabaseEnabled())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "coiiot-agent", cfg.Database.ApplicationName)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MQTTMode(t *testing.T) {
	t.Setenv("COIIOT_HTTP_ADDR", "http://localhost:8080")
	t.Setenv("COIIOT_MODE", "mqtt")
	t.Setenv("COIIOT_MQTT_ADDR", "mqtt://localhost:1883")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DB_HOST", "db")
	t.Setenv("COIIOT_COMMAND_STREAM_MAXLEN", "1000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeMQTT, cfg.Agentd.Mode)
	assert.Equal(t, "mqtt://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(0x80), cfg.MQTT.SubscribeFailureCode)
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.DatabaseEnabled())
	assert.Equal(t, int64(1000), cfg.Agentd.CommandStreamLen)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing http addr", map[string]string{}},
		{"mqtt without broker", map[string]string{"COIIOT_HTTP_ADDR": "http://x", "COIIOT_MODE": "mqtt"}},
		{"unknown mode", map[string]string{"COIIOT_HTTP_ADDR": "http://x", "COIIOT_MODE": "grpc"}},
		{"bad interval", map[string]string{"COIIOT_HTTP_ADDR": "http://x", "COIIOT_POLL_INTERVAL": "soon"}},
		{"bad agent id", map[string]string{"COIIOT_HTTP_ADDR": "http://x", "COIIOT_AGENT_ID": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COIIOT_HTTP_ADDR", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
