package mqttclient

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/models"
)

// CommandStatusMessage 通过 MQTT 上报的命令状态，命令 id 在消息体中
type CommandStatusMessage struct {
	ID        string
	Status    models.CommandStatus
	Timestamp time.Time
	Reason    *string
}

type commandStatusJSON struct {
	ID        string               `json:"id"`
	Status    models.CommandStatus `json:"status"`
	Reason    *string              `json:"reason"`
	Timestamp int64                `json:"timestamp"`
}

// MarshalJSON 编码为 {"id","status","reason","timestamp"}，Timestamp 必填
func (m CommandStatusMessage) MarshalJSON() ([]byte, error) {
	if m.Timestamp.IsZero() {
		return nil, errors.New("command status message: timestamp is required")
	}
	return json.Marshal(commandStatusJSON{
		ID:        m.ID,
		Status:    m.Status,
		Reason:    m.Reason,
		Timestamp: models.ToMicros(m.Timestamp),
	})
}
