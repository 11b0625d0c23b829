package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
)

// Location 地理坐标
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ValueKind 标识 Value 中存放的是哪一种变体
type ValueKind uint8

const (
	ValueInvalid ValueKind = iota
	ValueInt
	ValueString
	ValueBool
	ValueFloat
	ValueLocation
	ValueTime
)

func (k ValueKind) String() string {
	switch k {
	case ValueInt:
		return "int"
	case ValueString:
		return "string"
	case ValueBool:
		return "bool"
	case ValueFloat:
		return "float"
	case ValueLocation:
		return "location"
	case ValueTime:
		return "time"
	default:
		return "invalid"
	}
}

// Value 事件/命令中 tag 的取值：int、string、bool、float、Location 或时间戳之一。
// 零值无效，不能被编码。
type Value struct {
	kind ValueKind
	i    int64
	s    string
	b    bool
	f    float64
	loc  Location
	t    time.Time
}

func IntValue(v int64) Value { return Value{kind: ValueInt, i: v} }
func StringValue(v string) Value { return Value{kind: ValueString, s: v} }
func BoolValue(v bool) Value { return Value{kind: ValueBool, b: v} }
func FloatValue(v float64) Value { return Value{kind: ValueFloat, f: v} }
func LocationValue(v Location) Value { return Value{kind: ValueLocation, loc: v} }
func TimeValue(v time.Time) Value { return Value{kind: ValueTime, t: v} }

// Kind 返回变体类型
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Int() (int64, bool) { return v.i, v.kind == ValueInt }
func (v Value) Str() (string, bool) { return v.s, v.kind == ValueString }
func (v Value) Bool() (bool, bool) { return v.b, v.kind == ValueBool }
func (v Value) Float() (float64, bool) { return v.f, v.kind == ValueFloat }
func (v Value) Location() (Location, bool) { return v.loc, v.kind == ValueLocation }
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == ValueTime }

// Interface 返回编码前的 Go 值：Location 原样返回，时间戳转为微秒
func (v Value) Interface() any {
	switch v.kind {
	case ValueInt:
		return v.i
	case ValueString:
		return v.s
	case ValueBool:
		return v.b
	case ValueFloat:
		return v.f
	case ValueLocation:
		return v.loc
	case ValueTime:
		return ToMicros(v.t)
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case ValueLocation:
		return fmt.Sprintf("{lat:%g lng:%g}", v.loc.Lat, v.loc.Lng)
	case ValueTime:
		return v.t.Format(time.RFC3339Nano)
	case ValueInvalid:
		return "<invalid>"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// MarshalJSON Location 编码为 {lat,lng}，时间戳编码为 epoch 微秒，标量原样输出
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == ValueInvalid {
		return nil, fmt.Errorf("marshal tag value: value is not set")
	}
	return json.Marshal(v.Interface())
}

// decodeValue 从解码后的 JSON 值构造 Value。
// 线上的时间戳与整数无法区分，统一解码为 ValueInt。
func decodeValue(in input, key string, raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, in.invalid(key, "a number")
		}
		return FloatValue(f), nil
	case int:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case float64:
		return FloatValue(x), nil
	case Location:
		return LocationValue(x), nil
	case time.Time:
		return TimeValue(x), nil
	case map[string]any:
		loc, err := decodeLocation(x, in.kind)
		if err != nil {
			return Value{}, err
		}
		return LocationValue(loc), nil
	default:
		return Value{}, apierrors.NewParseError(in.kind,
			"Key %q in %s must be an int, string, bool, float or location", key, in.name)
	}
}

func decodeLocation(raw map[string]any, kind apierrors.ParseKind) (Location, error) {
	in := newInput(raw, "location input", kind)

	lat, err := in.required("lat")
	if err != nil {
		return Location{}, err
	}
	lng, err := in.required("lng")
	if err != nil {
		return Location{}, err
	}

	var loc Location
	var ok bool
	if loc.Lat, ok = toFloat(lat); !ok {
		return Location{}, in.invalid("lat", "a number")
	}
	if loc.Lng, ok = toFloat(lng); !ok {
		return Location{}, in.invalid("lng", "a number")
	}
	return loc, nil
}
