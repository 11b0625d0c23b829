package service

import (
	"context"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/consumer"
	"github.com/vk-cs/iot-go-agent-sdk/httpclient"
	"github.com/vk-cs/iot-go-agent-sdk/models"
	"github.com/vk-cs/iot-go-agent-sdk/mqttclient"
)

// transport 上报通道：遥测、日志和命令状态
type transport interface {
	SendEvent(ctx context.Context, msg models.EventMessage) error
	SendLogs(ctx context.Context, records []models.LogRecord) error
	ack(ctx context.Context, rec consumer.CommandRecord, status models.CommandStatus, at time.Time) error
}

// commandSource 命令来源。next 阻塞直到拿到一批命令，批次可以为空
type commandSource interface {
	next(ctx context.Context) ([]consumer.CommandRecord, error)
}

type httpTransport struct {
	*httpclient.Client
}

func (t httpTransport) ack(ctx context.Context, rec consumer.CommandRecord, status models.CommandStatus, at time.Time) error {
	msg := httpclient.CommandStatusMessage{Status: status, Timestamp: &at}
	if rec.Target == consumer.TargetDevice {
		return t.SendDeviceCommandStatus(ctx, rec.DeviceID, rec.CommandID, msg)
	}
	return t.SendAgentCommandStatus(ctx, rec.CommandID, msg)
}

type mqttTransport struct {
	*mqttclient.Client
}

func (t mqttTransport) ack(ctx context.Context, rec consumer.CommandRecord, status models.CommandStatus, at time.Time) error {
	msg := mqttclient.CommandStatusMessage{ID: rec.CommandID, Status: status, Timestamp: at}
	if rec.Target == consumer.TargetDevice {
		return t.SendDeviceCommandStatus(ctx, rec.DeviceID, msg)
	}
	return t.SendAgentCommandStatus(ctx, msg)
}

// httpPoller 每隔 interval 拉取一次命令，只返回状态为 new 的命令
type httpPoller struct {
	client   *httpclient.Client
	interval time.Duration
	now      func() time.Time
	polled   bool
}

func (p *httpPoller) next(ctx context.Context) ([]consumer.CommandRecord, error) {
	if p.polled {
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	p.polled = true

	cmds, err := p.client.GetCommands(ctx)
	if err != nil {
		return nil, err
	}
	return consumer.FromAgentDevicesCommands(pendingOnly(cmds), p.now()), nil
}

func pendingOnly(cmds models.AgentDevicesCommands) models.AgentDevicesCommands {
	var out models.AgentDevicesCommands
	if cmds.Command != nil && cmds.Command.Status == models.StatusNew {
		out.Command = cmds.Command
	}
	for _, d := range cmds.Devices {
		if d.Command.Status == models.StatusNew {
			out.Devices = append(out.Devices, d)
		}
	}
	return out
}

// streamSource 从 MQTT 命令流读取
type streamSource struct {
	stream *mqttclient.CommandStream
	now    func() time.Time
}

func (s streamSource) next(ctx context.Context) ([]consumer.CommandRecord, error) {
	msg, err := s.stream.Next(ctx)
	if err != nil {
		return nil, err
	}
	return consumer.FromCommandMessage(msg, s.now()), nil
}
