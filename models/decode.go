// Package models 描述 agent 的拓扑、配置、遥测与命令的值类型，以及它们的严格解码。
//
// 每个解码函数接收一个 apierrors.ParseKind，由调用方决定失败时报告哪种解析错误。
// 解码要么完整成功，要么返回错误，不会返回部分填充的值。
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
)

// input 对松散类型的 map 做严格字段提取
type input struct {
	raw  map[string]any
	name string
	kind apierrors.ParseKind
}

func newInput(raw map[string]any, name string, kind apierrors.ParseKind) input {
	return input{raw: raw, name: name, kind: kind}
}

func (in input) missing(key string) error {
	return apierrors.NewParseError(in.kind, "Key %q missing in %s", key, in.name)
}

func (in input) invalid(key, want string) error {
	return apierrors.NewParseError(in.kind, "Key %q in %s must be %s", key, in.name, want)
}

// lookup 返回非 null 的值；第二个返回值表示是否存在
func (in input) lookup(key string) (any, bool) {
	v, ok := in.raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (in input) required(key string) (any, error) {
	v, ok := in.lookup(key)
	if !ok {
		return nil, in.missing(key)
	}
	return v, nil
}

func (in input) integer(key string) (int64, error) {
	v, err := in.required(key)
	if err != nil {
		return 0, err
	}
	i, ok := toInt(v)
	if !ok {
		return 0, in.invalid(key, "an integer")
	}
	return i, nil
}

func (in input) optionalInt(key string) (*int64, error) {
	v, ok := in.lookup(key)
	if !ok {
		return nil, nil
	}
	i, ok := toInt(v)
	if !ok {
		return nil, in.invalid(key, "an integer")
	}
	return &i, nil
}

func (in input) text(key string) (string, error) {
	v, err := in.required(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", in.invalid(key, "a string")
	}
	return s, nil
}

func (in input) optionalString(key string) (*string, error) {
	v, ok := in.lookup(key)
	if !ok {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, in.invalid(key, "a string")
	}
	return &s, nil
}

func (in input) object(key string) (map[string]any, error) {
	v, err := in.required(key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, in.invalid(key, "an object")
	}
	return m, nil
}

func (in input) list(key string) ([]any, error) {
	v, err := in.required(key)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, in.invalid(key, "a list")
	}
	return l, nil
}

// objectOrEmpty 集合类型的可选字段：缺失时返回空 map 而不是报错
func (in input) objectOrEmpty(key string) (map[string]any, error) {
	if _, ok := in.lookup(key); !ok {
		return map[string]any{}, nil
	}
	return in.object(key)
}

// listOrEmpty 同 objectOrEmpty，缺失视为空列表
func (in input) listOrEmpty(key string) ([]any, error) {
	if _, ok := in.lookup(key); !ok {
		return []any{}, nil
	}
	return in.list(key)
}

func (in input) timestamp(key string) (time.Time, error) {
	ts, err := in.integer(key)
	if err != nil {
		return time.Time{}, err
	}
	return FromMicros(ts), nil
}

func (in input) optionalTimestamp(key string) (*time.Time, error) {
	ts, err := in.optionalInt(key)
	if err != nil || ts == nil {
		return nil, err
	}
	t := FromMicros(*ts)
	return &t, nil
}

// element 把列表元素当作嵌套结构解码
func (in input) element(key string, idx int, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apierrors.NewParseError(in.kind, "Item %d of %q in %s must be an object", idx, key, in.name)
	}
	return m, nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// loadObject 把 JSON 文本解析成顶层对象，数字保留为 json.Number
func loadObject(data []byte, name string, kind apierrors.ParseKind) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, apierrors.WrapParseError(kind, err, "decode %s", name)
	}
	if dec.More() {
		return nil, apierrors.NewParseError(kind, "decode %s: trailing data after JSON value", name)
	}
	obj, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, apierrors.NewParseError(kind, "decode %s: expected a JSON object, got %s", name, describe(raw))
	}
	return obj, nil
}

// normalize 把 json.Number 转为 int64（整数）或 float64，
// 使 properties、attrs 等自由结构中的数字对调用方可直接断言类型
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = normalize(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = normalize(item)
		}
		return x
	default:
		return v
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "a list"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	default:
		return "an unknown value"
	}
}
