package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/models"
	"github.com/vk-cs/iot-go-agent-sdk/redis"
)

const (
	TargetAgent  = "agent"
	TargetDevice = "device"
)

// CommandRecord 转发到 Redis Stream 的一条命令
type CommandRecord struct {
	Source     string      `json:"source"` // "http" 或 "mqtt"
	Target     string      `json:"target"` // "agent" 或 "device"
	DeviceID   int64       `json:"device_id,omitempty"`
	CommandID  string      `json:"command_id"`
	Tags       []TagRecord `json:"tags"`
	ReceivedAt int64       `json:"received_at"` // epoch 微秒
}

// TagRecord 命令要写入的 tag 值
type TagRecord struct {
	ID    int64        `json:"id"`
	Value models.Value `json:"value"`
}

// StreamForwarder 把收到的命令原样转发到 Redis Stream，由下游进程执行。
// 不做持久化和去重，XADD 失败直接返回错误
type StreamForwarder struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamForwarder 创建转发器，maxLen > 0 时裁剪 stream 长度
func NewStreamForwarder(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamForwarder {
	return &StreamForwarder{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Forward 逐条写入，返回写入的条数
func (f *StreamForwarder) Forward(ctx context.Context, records []CommandRecord) (int, error) {
	for i, rec := range records {
		id, err := redis.PublishJSON(ctx, f.client, f.stream, f.maxLen, rec)
		if err != nil {
			f.logger.Error("Failed to forward command",
				zap.String("stream", f.stream),
				zap.String("command_id", rec.CommandID),
				zap.Error(err),
			)
			return i, fmt.Errorf("forward command %s: %w", rec.CommandID, err)
		}

		f.logger.Debug("Command forwarded",
			zap.String("stream", f.stream),
			zap.String("message_id", id),
			zap.String("command_id", rec.CommandID),
		)
	}
	return len(records), nil
}

// FromAgentDevicesCommands HTTP 拉取的命令转为转发记录，agent 命令在前
func FromAgentDevicesCommands(cmds models.AgentDevicesCommands, receivedAt time.Time) []CommandRecord {
	records := make([]CommandRecord, 0, len(cmds.Devices)+1)
	if cmds.Command != nil {
		records = append(records, newRecord("http", TargetAgent, 0, cmds.Command.ID, cmds.Command.Tags, receivedAt))
	}
	for _, d := range cmds.Devices {
		records = append(records, newRecord("http", TargetDevice, d.DeviceID, d.Command.ID, d.Command.Tags, receivedAt))
	}
	return records
}

// FromCommandMessage MQTT 推送的命令转为转发记录，agent 命令在前
func FromCommandMessage(msg models.CommandMessage, receivedAt time.Time) []CommandRecord {
	records := make([]CommandRecord, 0, len(msg.Devices)+1)
	if msg.Command != nil {
		records = append(records, newRecord("mqtt", TargetAgent, 0, msg.Command.ID, msg.Command.Tags, receivedAt))
	}
	for _, d := range msg.Devices {
		records = append(records, newRecord("mqtt", TargetDevice, d.DeviceID, d.Command.ID, d.Command.Tags, receivedAt))
	}
	return records
}

func newRecord(source, target string, deviceID int64, commandID string, tags []models.CommandTag, receivedAt time.Time) CommandRecord {
	out := make([]TagRecord, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagRecord{ID: t.ID, Value: t.Value})
	}
	return CommandRecord{
		Source:     source,
		Target:     target,
		DeviceID:   deviceID,
		CommandID:  commandID,
		Tags:       out,
		ReceivedAt: models.ToMicros(receivedAt),
	}
}
