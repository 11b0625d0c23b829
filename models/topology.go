package models

import (
	"sort"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
)

// TagType tag 的类型
type TagType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DecodeTagType 解析 tag 类型
func DecodeTagType(raw map[string]any, kind apierrors.ParseKind) (TagType, error) {
	in := newInput(raw, "tag type input", kind)

	id, err := in.integer("id")
	if err != nil {
		return TagType{}, err
	}
	name, err := in.text("name")
	if err != nil {
		return TagType{}, err
	}
	return TagType{ID: id, Name: name}, nil
}

// Driver 设备驱动
type Driver struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Protocol *string `json:"protocol"`
}

// DecodeDriver 解析驱动，protocol 可选
func DecodeDriver(raw map[string]any, kind apierrors.ParseKind) (Driver, error) {
	in := newInput(raw, "driver input", kind)

	id, err := in.integer("id")
	if err != nil {
		return Driver{}, err
	}
	name, err := in.text("name")
	if err != nil {
		return Driver{}, err
	}
	protocol, err := in.optionalString("protocol")
	if err != nil {
		return Driver{}, err
	}
	return Driver{ID: id, Name: name, Protocol: protocol}, nil
}

// Tag 拓扑树中的一个节点。Children 以子节点自身的 name 为 key，
// 构造后只读，多个 goroutine 并发读取无需加锁。
type Tag struct {
	ID           int64
	Name         string
	Properties   map[string]any
	Type         TagType
	Attrs        map[string]any
	Children     map[string]Tag
	DriverConfig map[string]any

	// 子节点按服务端返回的顺序
	order []string
}

// NewTag 构造 tag，children 按传入顺序登记
func NewTag(id int64, name string, typ TagType, properties, attrs, driverConfig map[string]any, children ...Tag) Tag {
	t := Tag{
		ID:           id,
		Name:         name,
		Properties:   orEmpty(properties),
		Type:         typ,
		Attrs:        orEmpty(attrs),
		Children:     make(map[string]Tag, len(children)),
		DriverConfig: orEmpty(driverConfig),
	}
	for _, child := range children {
		t.addChild(child)
	}
	return t
}

func (t *Tag) addChild(child Tag) {
	if _, exists := t.Children[child.Name]; !exists {
		t.order = append(t.order, child.Name)
	}
	t.Children[child.Name] = child
}

// ChildNames 子节点名称。经 NewTag 或 DecodeTag 构造时保持服务端顺序，
// 直接以字面量填写 Children 时按名称排序
func (t Tag) ChildNames() []string {
	if len(t.order) == len(t.Children) {
		names := make([]string, len(t.order))
		copy(names, t.order)
		return names
	}
	names := make([]string, 0, len(t.Children))
	for name := range t.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Child 按名称取直接子节点
func (t Tag) Child(name string) (Tag, bool) {
	child, ok := t.Children[name]
	return child, ok
}

// Path 沿名称路径逐级向下查找，例如 Path("$state", "$status")
func (t Tag) Path(names ...string) (Tag, bool) {
	cur := t
	for _, name := range names {
		next, ok := cur.Children[name]
		if !ok {
			return Tag{}, false
		}
		cur = next
	}
	return cur, true
}

// Walk 深度优先遍历整棵树（含自身），fn 返回 false 时停止
func (t Tag) Walk(fn func(path []string, tag Tag) bool) {
	t.walk(nil, fn)
}

func (t Tag) walk(prefix []string, fn func([]string, Tag) bool) bool {
	path := append(append([]string(nil), prefix...), t.Name)
	if !fn(path, t) {
		return false
	}
	for _, name := range t.ChildNames() {
		if !t.Children[name].walk(path, fn) {
			return false
		}
	}
	return true
}

// DecodeTag 递归解析 tag 树。children、attrs、driver_config 缺失时视为空。
// 子节点先于自身字段解析，子树中的错误优先返回
func DecodeTag(raw map[string]any, kind apierrors.ParseKind) (Tag, error) {
	in := newInput(raw, "tag input", kind)

	rawChildren, err := in.listOrEmpty("children")
	if err != nil {
		return Tag{}, err
	}
	children := make([]Tag, 0, len(rawChildren))
	for i, item := range rawChildren {
		rawChild, err := in.element("children", i, item)
		if err != nil {
			return Tag{}, err
		}
		child, err := DecodeTag(rawChild, kind)
		if err != nil {
			return Tag{}, err
		}
		children = append(children, child)
	}

	id, err := in.integer("id")
	if err != nil {
		return Tag{}, err
	}
	name, err := in.text("name")
	if err != nil {
		return Tag{}, err
	}
	rawType, err := in.object("type")
	if err != nil {
		return Tag{}, err
	}
	typ, err := DecodeTagType(rawType, kind)
	if err != nil {
		return Tag{}, err
	}
	properties, err := in.object("properties")
	if err != nil {
		return Tag{}, err
	}
	attrs, err := in.objectOrEmpty("attrs")
	if err != nil {
		return Tag{}, err
	}
	driverConfig, err := in.objectOrEmpty("driver_config")
	if err != nil {
		return Tag{}, err
	}

	return NewTag(id, name, typ, properties, attrs, driverConfig, children...), nil
}

// Device agent 下挂的设备
type Device struct {
	ID           int64
	Name         string
	Driver       Driver
	Tag          Tag
	DriverConfig map[string]any
	ConfigID     *int64
}

// DecodeDevice 解析设备
func DecodeDevice(raw map[string]any, kind apierrors.ParseKind) (Device, error) {
	in := newInput(raw, "device input", kind)

	id, err := in.integer("id")
	if err != nil {
		return Device{}, err
	}
	name, err := in.text("name")
	if err != nil {
		return Device{}, err
	}
	rawTag, err := in.object("tag")
	if err != nil {
		return Device{}, err
	}
	tag, err := DecodeTag(rawTag, kind)
	if err != nil {
		return Device{}, err
	}
	driverConfig, err := in.objectOrEmpty("driver_config")
	if err != nil {
		return Device{}, err
	}
	rawDriver, err := in.object("driver")
	if err != nil {
		return Device{}, err
	}
	driver, err := DecodeDriver(rawDriver, kind)
	if err != nil {
		return Device{}, err
	}
	configID, err := in.optionalInt("config_id")
	if err != nil {
		return Device{}, err
	}

	return Device{
		ID:           id,
		Name:         name,
		Driver:       driver,
		Tag:          tag,
		DriverConfig: driverConfig,
		ConfigID:     configID,
	}, nil
}

// Agent 拓扑的根，每个进程一个
type Agent struct {
	ID       int64
	Name     string
	Tag      Tag
	Devices  []Device
	ConfigID *int64
}

// Device 按 id 查找设备
func (a Agent) Device(id int64) (Device, bool) {
	for _, d := range a.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// DecodeAgent 解析 agent，devices 必填
func DecodeAgent(raw map[string]any, kind apierrors.ParseKind) (Agent, error) {
	in := newInput(raw, "agent input", kind)

	id, err := in.integer("id")
	if err != nil {
		return Agent{}, err
	}
	configID, err := in.optionalInt("config_id")
	if err != nil {
		return Agent{}, err
	}
	name, err := in.text("name")
	if err != nil {
		return Agent{}, err
	}
	rawTag, err := in.object("tag")
	if err != nil {
		return Agent{}, err
	}
	tag, err := DecodeTag(rawTag, kind)
	if err != nil {
		return Agent{}, err
	}
	rawDevices, err := in.list("devices")
	if err != nil {
		return Agent{}, err
	}

	devices := make([]Device, 0, len(rawDevices))
	for i, item := range rawDevices {
		rawDevice, err := in.element("devices", i, item)
		if err != nil {
			return Agent{}, err
		}
		device, err := DecodeDevice(rawDevice, kind)
		if err != nil {
			return Agent{}, err
		}
		devices = append(devices, device)
	}

	return Agent{
		ID:       id,
		Name:     name,
		Tag:      tag,
		Devices:  devices,
		ConfigID: configID,
	}, nil
}

// Config 某个版本的完整 agent 配置快照，整体替换，不做局部更新
type Config struct {
	Agent   Agent
	Version string
}

// DecodeConfig 解析配置
func DecodeConfig(raw map[string]any, kind apierrors.ParseKind) (Config, error) {
	in := newInput(raw, "config input", kind)

	rawAgent, err := in.object("agent")
	if err != nil {
		return Config{}, err
	}
	version, err := in.text("version")
	if err != nil {
		return Config{}, err
	}
	agent, err := DecodeAgent(rawAgent, kind)
	if err != nil {
		return Config{}, err
	}
	return Config{Agent: agent, Version: version}, nil
}

// LoadConfig 从 JSON 文本解析配置
func LoadConfig(data []byte, kind apierrors.ParseKind) (Config, error) {
	raw, err := loadObject(data, "config input", kind)
	if err != nil {
		return Config{}, err
	}
	return DecodeConfig(raw, kind)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
