package models

import (
	"encoding/json"
	"time"
)

// EventTag 某个 tag 在某一时刻的读数
type EventTag struct {
	ID        int64
	Value     Value
	Timestamp time.Time
}

type eventTagJSON struct {
	ID        int64 `json:"id"`
	Value     Value `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

func (e EventTag) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventTagJSON{
		ID:        e.ID,
		Value:     e.Value,
		Timestamp: ToMicros(e.Timestamp),
	})
}

// EventMessage 一次上报的遥测，线上格式 {"tags":[{id,value,timestamp}]}
type EventMessage struct {
	Tags []EventTag `json:"tags"`
}

// Encode 返回规范的 JSON 编码
func (m EventMessage) Encode() ([]byte, error) {
	if m.Tags == nil {
		m.Tags = []EventTag{}
	}
	return json.Marshal(m)
}

// LogLevel 日志级别，线上以整数表示
type LogLevel int

const (
	LogDebug LogLevel = 1
	LogInfo  LogLevel = 2
	LogWarn  LogLevel = 3
	LogError LogLevel = 4
	LogFatal LogLevel = 5
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	case LogFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// LogRecord 一条上报到平台的日志
type LogRecord struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// EncodeLogs 日志列表编码为 JSON 数组 [{level,message}]
func EncodeLogs(records []LogRecord) ([]byte, error) {
	if records == nil {
		records = []LogRecord{}
	}
	return json.Marshal(records)
}
