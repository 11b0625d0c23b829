package httpclient

import (
	"encoding/json"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/models"
)

// CommandStatusMessage REST 接口上报的命令状态。命令 id 在 URL 中，请求体不含 id。
// Timestamp 为 nil 时编码为 null；Reason 只在 failed/skipped 时按惯例填写
type CommandStatusMessage struct {
	Status    models.CommandStatus
	Timestamp *time.Time
	Reason    *string
}

type commandStatusJSON struct {
	Status    models.CommandStatus `json:"status"`
	Reason    *string              `json:"reason"`
	Timestamp *int64               `json:"timestamp"`
}

// MarshalJSON 编码为 {"status","reason","timestamp"}
func (m CommandStatusMessage) MarshalJSON() ([]byte, error) {
	out := commandStatusJSON{Status: m.Status, Reason: m.Reason}
	if m.Timestamp != nil {
		ts := models.ToMicros(*m.Timestamp)
		out.Timestamp = &ts
	}
	return json.Marshal(out)
}
