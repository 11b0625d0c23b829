package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/auth"
	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/config"
	sdkconfig "github.com/vk-cs/iot-go-agent-sdk/config"
	"github.com/vk-cs/iot-go-agent-sdk/httpclient"
	"github.com/vk-cs/iot-go-agent-sdk/mqtt"
	"github.com/vk-cs/iot-go-agent-sdk/mqttclient"
)

const nowMicros = 1577826000000000

const agentConfigJSON = `{
  "version": "v1",
  "agent": {
    "id": 10, "name": "agent",
    "tag": {
      "id": 1, "name": "agent", "properties": {}, "type": {"id": 1, "name": "undefined"},
      "children": [{
        "id": 2, "name": "$state", "properties": {}, "type": {"id": 1, "name": "undefined"},
        "children": [
          {"id": 3, "name": "$status", "properties": {}, "type": {"id": 2, "name": "string"}},
          {"id": 4, "name": "$config", "properties": {}, "type": {"id": 1, "name": "undefined"},
           "children": [{"id": 5, "name": "$updated_at", "properties": {}, "type": {"id": 3, "name": "time"}}]}
        ]
      }]
    },
    "devices": [{
      "id": 100, "name": "device", "driver": {"id": 1, "name": "modbus"},
      "tag": {
        "id": 20, "name": "device", "properties": {}, "type": {"id": 1, "name": "undefined"},
        "children": [{
          "id": 21, "name": "thermometer", "properties": {}, "type": {"id": 1, "name": "undefined"},
          "children": [{"id": 22, "name": "temperature", "properties": {}, "type": {"id": 4, "name": "integer"}}]
        }]
      }
    }]
  }
}`

type request struct {
	Method string
	Path   string
	Body   string
}

// platform 模拟平台 REST 接口，记录所有请求
type platform struct {
	mu       sync.Mutex
	requests []request
	commands []string
}

func (p *platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.requests = append(p.requests, request{Method: r.Method, Path: r.URL.EscapedPath(), Body: string(raw)})
	var body string
	switch r.URL.Path {
	case "/v1/agents/config":
		body = agentConfigJSON
	case "/v1/commands":
		body = `{"devices": []}`
		if len(p.commands) > 0 {
			body, p.commands = p.commands[0], p.commands[1:]
		}
	}
	p.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (p *platform) find(method, prefix string) []request {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []request
	for _, r := range p.requests {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func newTestConfig(mode string) *config.Config {
	cfg := &config.Config{
		HTTP: sdkconfig.DefaultHTTPConfig(),
		MQTT: sdkconfig.DefaultMQTTConfig(),
	}
	cfg.Agent = sdkconfig.AgentConfig{ClientID: 1, AgentID: 10, Token: "tok"}
	cfg.Agentd.Mode = mode
	cfg.Agentd.PollInterval = 10 * time.Millisecond
	cfg.Agentd.TelemetryInterval = time.Hour
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, p *platform, mqttClient *mqttclient.Client) *AgentService {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	cfg.HTTP.BaseURL = srv.URL
	a := auth.New(cfg.Agent.ClientID, cfg.Agent.AgentID, cfg.Agent.Token)
	s := NewAgentServiceWithDeps(cfg, Dependencies{
		HTTP: httpclient.NewClient(cfg.HTTP, a, zap.NewNop()),
		MQTT: mqttClient,
	}, zap.NewNop())
	s.now = func() time.Time { return time.UnixMicro(nowMicros) }
	s.randTemp = func() int64 { return 25 }
	return s
}

func TestAgentService_HTTPMode(t *testing.T) {
	p := &platform{commands: []string{`{
	  "command": {"id": "agent-cmd", "status": "new", "tags": [{"tag_id": 3, "value": "restart"}],
	              "created_at": 1577826000000000, "updated_at": 1577826000000000},
	  "devices": [
	    {"device_id": 100, "command": {"id": "dev-cmd", "status": "new", "tags": [{"tag_id": 22, "value": 1}],
	                                   "created_at": 1577826000000000, "updated_at": 1577826000000000}},
	    {"device_id": 100, "command": {"id": "old-cmd", "status": "done", "tags": [],
	                                   "created_at": 1577826000000000, "updated_at": 1577826000000000}}
	  ]
	}`}}
	s := newTestService(t, newTestConfig(config.ModeHTTP), p, nil)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	assert.Equal(t, "v1", s.AgentConfig().Version)

	require.Eventually(t, func() bool {
		return len(p.find(http.MethodPatch, "/v1/")) == 4
	}, 2*time.Second, 10*time.Millisecond)

	acks := p.find(http.MethodPatch, "/v1/")
	assert.Equal(t, "/v1/devices/100/commands/dev-cmd/status", acks[0].Path)
	assert.JSONEq(t, `{"status": "received", "reason": null, "timestamp": 1577826000000000}`, acks[0].Body)
	assert.Equal(t, "/v1/devices/100/commands/dev-cmd/status", acks[1].Path)
	assert.JSONEq(t, `{"status": "done", "reason": null, "timestamp": 1577826000000000}`, acks[1].Body)
	assert.Equal(t, "/v1/agents/10/commands/agent-cmd/status", acks[2].Path)
	assert.Equal(t, "/v1/agents/10/commands/agent-cmd/status", acks[3].Path)
	assert.JSONEq(t, `{"status": "done", "reason": null, "timestamp": 1577826000000000}`, acks[3].Body)

	require.Eventually(t, func() bool {
		return len(p.find(http.MethodPost, "/v1/events")) == 3
	}, time.Second, 10*time.Millisecond)
	events := p.find(http.MethodPost, "/v1/events")
	assert.JSONEq(t, `{"tags": [{"id": 3, "value": "bootstrapping", "timestamp": 1577826000000000}]}`, events[0].Body)
	assert.JSONEq(t, `{"tags": [
		{"id": 3, "value": "online", "timestamp": 1577826000000000},
		{"id": 5, "value": 1577826000000000, "timestamp": 1577826000000000}
	]}`, events[1].Body)
	assert.JSONEq(t, `{"tags": [{"id": 22, "value": 25, "timestamp": 1577826000000000}]}`, events[2].Body)

	require.Eventually(t, func() bool {
		return len(p.find(http.MethodPost, "/v1/logs")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `[{"level": 2, "message": "temperature is 25"}]`, p.find(http.MethodPost, "/v1/logs")[0].Body)
}

func TestAgentService_ConfigFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := newTestConfig(config.ModeHTTP)
	cfg.HTTP.BaseURL = srv.URL
	s := NewAgentServiceWithDeps(cfg, Dependencies{
		HTTP: httpclient.NewClient(cfg.HTTP, auth.New(1, 10, "bad"), zap.NewNop()),
	}, zap.NewNop())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get agent config")
	assert.NoError(t, s.Stop(context.Background()))
}

// fakeSession 内存中的 MQTT 会话
type fakeSession struct {
	mu        sync.Mutex
	handler   mqtt.MessageHandler
	topic     string
	published []request
}

func (f *fakeSession) Connect(ctx context.Context) error { return nil }

func (f *fakeSession) Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic, f.handler = topic, handler
	return qos, nil
}

func (f *fakeSession) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, request{Path: topic, Body: string(payload)})
	return nil
}

func (f *fakeSession) Disconnect() {}

func (f *fakeSession) onTopic(topic string) []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []request
	for _, r := range f.published {
		if r.Path == topic {
			out = append(out, r)
		}
	}
	return out
}

func TestAgentService_MQTTMode(t *testing.T) {
	p := &platform{}
	cfg := newTestConfig(config.ModeMQTT)
	session := &fakeSession{}
	client := mqttclient.NewClientWithSession(cfg.MQTT, auth.New(1, 10, "tok"), session, zap.NewNop())
	s := newTestService(t, cfg, p, client)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	assert.Equal(t, mqttclient.CommandTopic(10), session.topic)
	assert.Len(t, p.find(http.MethodPost, "/v1/events"), 0)

	events := session.onTopic(mqttclient.TopicEvent)
	require.GreaterOrEqual(t, len(events), 2)
	assert.JSONEq(t, `{"tags": [{"id": 3, "value": "bootstrapping", "timestamp": 1577826000000000}]}`, events[0].Body)

	session.handler(session.topic, []byte(`{
	  "command": {"id": "agent-cmd", "tags": [{"id": 3, "value": "restart"}], "timestamp": 1577826000000000},
	  "devices": [{"device_id": 100, "command": {"id": "dev-cmd", "tags": [], "timestamp": 1577826000000000}}]
	}`))

	require.Eventually(t, func() bool {
		return len(session.onTopic(mqttclient.AgentStatusTopic(10))) == 2
	}, 2*time.Second, 10*time.Millisecond)

	device := session.onTopic(mqttclient.DeviceStatusTopic(100))
	require.Len(t, device, 2)
	assert.JSONEq(t, `{"id": "dev-cmd", "status": "received", "reason": null, "timestamp": 1577826000000000}`, device[0].Body)
	assert.JSONEq(t, `{"id": "dev-cmd", "status": "done", "reason": null, "timestamp": 1577826000000000}`, device[1].Body)

	agent := session.onTopic(mqttclient.AgentStatusTopic(10))
	assert.JSONEq(t, `{"id": "agent-cmd", "status": "received", "reason": null, "timestamp": 1577826000000000}`, agent[0].Body)
	assert.JSONEq(t, `{"id": "agent-cmd", "status": "done", "reason": null, "timestamp": 1577826000000000}`, agent[1].Body)

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, mqttclient.StateDisconnected, client.State())
}

func TestAgentService_MalformedCommandClosesMQTT(t *testing.T) {
	cfg := newTestConfig(config.ModeMQTT)
	session := &fakeSession{}
	client := mqttclient.NewClientWithSession(cfg.MQTT, auth.New(1, 10, "tok"), session, zap.NewNop())
	s := newTestService(t, cfg, &platform{}, client)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	session.handler(session.topic, []byte(`{"command": {"id": "x", "timestamp": 1}, "devices": []}`))

	require.Eventually(t, func() bool {
		return client.State() == mqttclient.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	_, err := client.IncomingCommands().Next(ctx)
	assert.Error(t, err)
	assert.Empty(t, session.onTopic(mqttclient.AgentStatusTopic(10)))
}
