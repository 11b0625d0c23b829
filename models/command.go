package models

import (
	"fmt"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
)

// CommandStatus 命令生命周期状态，线上为固定的小写字符串。
//
//	new -> sending/sent -> received -> done | failed | skipped
//
// SDK 只负责编解码，状态迁移是否合法由调用方决定。
type CommandStatus string

const (
	StatusNew      CommandStatus = "new"
	StatusSending  CommandStatus = "sending"
	StatusSent     CommandStatus = "sent"
	StatusReceived CommandStatus = "received"
	StatusSkipped  CommandStatus = "skipped"
	StatusDone     CommandStatus = "done"
	StatusFailed   CommandStatus = "failed"
)

// CommandStatuses 全部合法状态
var CommandStatuses = []CommandStatus{
	StatusNew, StatusSending, StatusSent, StatusReceived, StatusSkipped, StatusDone, StatusFailed,
}

// ParseCommandStatus 未知的值返回解析错误，不会回退为默认值
func ParseCommandStatus(value string, kind apierrors.ParseKind) (CommandStatus, error) {
	s := CommandStatus(value)
	if !s.Valid() {
		return "", apierrors.NewParseError(kind, "parse command_status failed, value '%s' is unknown", value)
	}
	return s, nil
}

// Valid 是否为七个合法状态之一
func (s CommandStatus) Valid() bool {
	switch s {
	case StatusNew, StatusSending, StatusSent, StatusReceived, StatusSkipped, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Terminal done、failed、skipped 为终态
func (s CommandStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

func (s CommandStatus) String() string {
	return string(s)
}

func (s CommandStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal command_status: value '%s' is unknown", string(s))
	}
	return []byte(s), nil
}

func (s *CommandStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseCommandStatus(string(text), apierrors.KindGeneric)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CommandTag 命令中要写入的 tag 值
type CommandTag struct {
	ID    int64
	Value Value
}

// decodeCommandTag HTTP 接口用 "tag_id" 作为 id 字段，MQTT 用 "id"
func decodeCommandTag(raw map[string]any, idKey string, kind apierrors.ParseKind) (CommandTag, error) {
	in := newInput(raw, "command tag input", kind)

	id, err := in.integer(idKey)
	if err != nil {
		return CommandTag{}, err
	}
	rawValue, err := in.required("value")
	if err != nil {
		return CommandTag{}, err
	}
	value, err := decodeValue(in, "value", rawValue)
	if err != nil {
		return CommandTag{}, err
	}
	return CommandTag{ID: id, Value: value}, nil
}

func decodeCommandTags(in input, rawTags []any, idKey string) ([]CommandTag, error) {
	tags := make([]CommandTag, 0, len(rawTags))
	for i, item := range rawTags {
		rawTag, err := in.element("tags", i, item)
		if err != nil {
			return nil, err
		}
		tag, err := decodeCommandTag(rawTag, idKey, in.kind)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Command MQTT 推送的命令
type Command struct {
	ID        string
	Tags      []CommandTag
	Timestamp time.Time
}

// DecodeCommand 解析 MQTT 命令，tag id 字段为 "id"
func DecodeCommand(raw map[string]any, kind apierrors.ParseKind) (Command, error) {
	in := newInput(raw, "command input", kind)

	id, err := in.text("id")
	if err != nil {
		return Command{}, err
	}
	rawTags, err := in.list("tags")
	if err != nil {
		return Command{}, err
	}
	ts, err := in.timestamp("timestamp")
	if err != nil {
		return Command{}, err
	}
	tags, err := decodeCommandTags(in, rawTags, "id")
	if err != nil {
		return Command{}, err
	}
	return Command{ID: id, Tags: tags, Timestamp: ts}, nil
}

// CommandExtended HTTP 拉取的命令，带生命周期信息
type CommandExtended struct {
	ID        string
	Tags      []CommandTag
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    CommandStatus
	Reason    *string
}

// DecodeCommandExtended 解析 HTTP 命令，tag id 字段为 "tag_id"
func DecodeCommandExtended(raw map[string]any, kind apierrors.ParseKind) (CommandExtended, error) {
	in := newInput(raw, "command extended input", kind)

	id, err := in.text("id")
	if err != nil {
		return CommandExtended{}, err
	}
	rawTags, err := in.list("tags")
	if err != nil {
		return CommandExtended{}, err
	}
	createdAt, err := in.timestamp("created_at")
	if err != nil {
		return CommandExtended{}, err
	}
	updatedAt, err := in.timestamp("updated_at")
	if err != nil {
		return CommandExtended{}, err
	}
	rawStatus, err := in.text("status")
	if err != nil {
		return CommandExtended{}, err
	}
	tags, err := decodeCommandTags(in, rawTags, "tag_id")
	if err != nil {
		return CommandExtended{}, err
	}
	status, err := ParseCommandStatus(rawStatus, kind)
	if err != nil {
		return CommandExtended{}, err
	}
	reason, err := in.optionalString("reason")
	if err != nil {
		return CommandExtended{}, err
	}

	return CommandExtended{
		ID:        id,
		Tags:      tags,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Status:    status,
		Reason:    reason,
	}, nil
}

// DeviceCommand 发往某个设备的 MQTT 命令
type DeviceCommand struct {
	DeviceID int64
	Command  Command
}

// DeviceCommandExtended 发往某个设备的 HTTP 命令
type DeviceCommandExtended struct {
	DeviceID int64
	Command  CommandExtended
}

func decodeDeviceCommandInput(raw map[string]any, kind apierrors.ParseKind) (int64, map[string]any, error) {
	in := newInput(raw, "device_command input", kind)

	deviceID, err := in.integer("device_id")
	if err != nil {
		return 0, nil, err
	}
	cmd, err := in.object("command")
	if err != nil {
		return 0, nil, err
	}
	return deviceID, cmd, nil
}

// CommandMessage MQTT 推送的一批命令：至多一条 agent 命令和任意条设备命令
type CommandMessage struct {
	Command *Command
	Devices []DeviceCommand
}

// DecodeCommandMessage 解析 MQTT 命令消息
func DecodeCommandMessage(raw map[string]any, kind apierrors.ParseKind) (CommandMessage, error) {
	in := newInput(raw, "command message input", kind)

	var msg CommandMessage
	if _, ok := in.lookup("command"); ok {
		rawCmd, err := in.object("command")
		if err != nil {
			return CommandMessage{}, err
		}
		cmd, err := DecodeCommand(rawCmd, kind)
		if err != nil {
			return CommandMessage{}, err
		}
		msg.Command = &cmd
	}

	rawDevices, err := in.list("devices")
	if err != nil {
		return CommandMessage{}, err
	}
	msg.Devices = make([]DeviceCommand, 0, len(rawDevices))
	for i, item := range rawDevices {
		rawDevice, err := in.element("devices", i, item)
		if err != nil {
			return CommandMessage{}, err
		}
		deviceID, rawCmd, err := decodeDeviceCommandInput(rawDevice, kind)
		if err != nil {
			return CommandMessage{}, err
		}
		cmd, err := DecodeCommand(rawCmd, kind)
		if err != nil {
			return CommandMessage{}, err
		}
		msg.Devices = append(msg.Devices, DeviceCommand{DeviceID: deviceID, Command: cmd})
	}
	return msg, nil
}

// LoadCommandMessage 从 JSON 文本解析 MQTT 命令消息
func LoadCommandMessage(data []byte, kind apierrors.ParseKind) (CommandMessage, error) {
	raw, err := loadObject(data, "command message input", kind)
	if err != nil {
		return CommandMessage{}, err
	}
	return DecodeCommandMessage(raw, kind)
}

// AgentDevicesCommands HTTP 拉取的待执行命令
type AgentDevicesCommands struct {
	Command *CommandExtended
	Devices []DeviceCommandExtended
}

// DecodeAgentDevicesCommands 解析 HTTP 命令列表
func DecodeAgentDevicesCommands(raw map[string]any, kind apierrors.ParseKind) (AgentDevicesCommands, error) {
	in := newInput(raw, "agent_devices_commands input", kind)

	var cmds AgentDevicesCommands
	if _, ok := in.lookup("command"); ok {
		rawCmd, err := in.object("command")
		if err != nil {
			return AgentDevicesCommands{}, err
		}
		cmd, err := DecodeCommandExtended(rawCmd, kind)
		if err != nil {
			return AgentDevicesCommands{}, err
		}
		cmds.Command = &cmd
	}

	rawDevices, err := in.list("devices")
	if err != nil {
		return AgentDevicesCommands{}, err
	}
	cmds.Devices = make([]DeviceCommandExtended, 0, len(rawDevices))
	for i, item := range rawDevices {
		rawDevice, err := in.element("devices", i, item)
		if err != nil {
			return AgentDevicesCommands{}, err
		}
		deviceID, rawCmd, err := decodeDeviceCommandInput(rawDevice, kind)
		if err != nil {
			return AgentDevicesCommands{}, err
		}
		cmd, err := DecodeCommandExtended(rawCmd, kind)
		if err != nil {
			return AgentDevicesCommands{}, err
		}
		cmds.Devices = append(cmds.Devices, DeviceCommandExtended{DeviceID: deviceID, Command: cmd})
	}
	return cmds, nil
}

// LoadAgentDevicesCommands 从 JSON 文本解析 HTTP 命令列表
func LoadAgentDevicesCommands(data []byte, kind apierrors.ParseKind) (AgentDevicesCommands, error) {
	raw, err := loadObject(data, "agent_devices_commands input", kind)
	if err != nil {
		return AgentDevicesCommands{}, err
	}
	return DecodeAgentDevicesCommands(raw, kind)
}

// VersionedDeviceConfig 某个版本的设备配置快照
type VersionedDeviceConfig struct {
	ID           int64
	DeviceID     int64
	CreatedAt    *time.Time
	DeviceConfig map[string]any
}

// DecodeVersionedDeviceConfig 解析设备配置，created_at 可选，device_config 缺失视为空
func DecodeVersionedDeviceConfig(raw map[string]any, kind apierrors.ParseKind) (VersionedDeviceConfig, error) {
	in := newInput(raw, "versioned_device_config input", kind)

	id, err := in.integer("id")
	if err != nil {
		return VersionedDeviceConfig{}, err
	}
	deviceID, err := in.integer("device_id")
	if err != nil {
		return VersionedDeviceConfig{}, err
	}
	createdAt, err := in.optionalTimestamp("created_at")
	if err != nil {
		return VersionedDeviceConfig{}, err
	}
	deviceConfig, err := in.objectOrEmpty("device_config")
	if err != nil {
		return VersionedDeviceConfig{}, err
	}

	return VersionedDeviceConfig{
		ID:           id,
		DeviceID:     deviceID,
		CreatedAt:    createdAt,
		DeviceConfig: deviceConfig,
	}, nil
}

// LoadVersionedDeviceConfig 从 JSON 文本解析设备配置
func LoadVersionedDeviceConfig(data []byte, kind apierrors.ParseKind) (VersionedDeviceConfig, error) {
	raw, err := loadObject(data, "versioned_device_config input", kind)
	if err != nil {
		return VersionedDeviceConfig{}, err
	}
	return DecodeVersionedDeviceConfig(raw, kind)
}
