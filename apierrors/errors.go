// Package apierrors 定义 SDK 对调用方暴露的错误体系。
//
// 所有错误都可以通过 errors.Is 按种类匹配：
//
//	ErrAPI
//	├── ErrParse
//	│   ├── ErrImproperlyConfigured     (GetConfig 解析失败)
//	│   └── ErrImproperlyCommandFormat  (MQTT 入站命令解析失败)
//	├── ErrHTTP
//	│   ├── ErrBadParams       (400)
//	│   ├── ErrUnauthorized    (401)
//	│   ├── ErrNotFound        (404)
//	│   └── ErrInternalServer  (500)
//	└── ErrMQTT
//	    └── ErrSubscription
package apierrors

import (
	"errors"
	"fmt"
)

// 错误种类（哨兵错误），只用于 errors.Is 匹配
var (
	ErrAPI = errors.New("api error")

	ErrParse                   = errors.New("parse error")
	ErrImproperlyConfigured    = errors.New("improperly configured")
	ErrImproperlyCommandFormat = errors.New("improperly command format")

	ErrHTTP           = errors.New("http error")
	ErrBadParams      = errors.New("bad parameters")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrInternalServer = errors.New("internal server error")

	ErrMQTT         = errors.New("mqtt error")
	ErrSubscription = errors.New("subscription failed")
)

// ParseKind 解析错误的子类型，由解码调用方选择
type ParseKind int

const (
	// KindGeneric 普通解析错误
	KindGeneric ParseKind = iota
	// KindConfig 配置解析错误（启动阶段）
	KindConfig
	// KindCommandFormat 入站命令格式错误（运行阶段）
	KindCommandFormat
)

func (k ParseKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindCommandFormat:
		return "command_format"
	default:
		return "generic"
	}
}

func (k ParseKind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrImproperlyConfigured
	case KindCommandFormat:
		return ErrImproperlyCommandFormat
	default:
		return nil
	}
}

// ParseError 输入缺少必填字段或格式不正确
type ParseError struct {
	Kind    ParseKind
	Message string
	Err     error
}

// NewParseError 创建指定种类的解析错误
func NewParseError(kind ParseKind, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapParseError 包装底层解码错误（例如 JSON 语法错误）
func WrapParseError(kind ParseKind, err error, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrAPI, ErrParse:
		return true
	}
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// HTTPKind 请求/响应通道的错误子类型
type HTTPKind int

const (
	// HTTPUnexpected 非预期的状态码或传输失败
	HTTPUnexpected HTTPKind = iota
	HTTPBadParams
	HTTPUnauthorized
	HTTPNotFound
	HTTPInternalServer
)

func (k HTTPKind) sentinel() error {
	switch k {
	case HTTPBadParams:
		return ErrBadParams
	case HTTPUnauthorized:
		return ErrUnauthorized
	case HTTPNotFound:
		return ErrNotFound
	case HTTPInternalServer:
		return ErrInternalServer
	default:
		return nil
	}
}

// HTTPError 请求/响应交换失败。StatusCode 为 0 表示没有拿到响应（超时、连接失败）
type HTTPError struct {
	Kind       HTTPKind
	URL        string
	StatusCode int
	Body       string
	Err        error
}

// HTTPErrorFromStatus 按状态码映射错误种类，body 原样保留用于诊断
func HTTPErrorFromStatus(url string, status int, body string) *HTTPError {
	e := &HTTPError{URL: url, StatusCode: status, Body: body}
	switch status {
	case 400:
		e.Kind = HTTPBadParams
	case 401:
		e.Kind = HTTPUnauthorized
	case 404:
		e.Kind = HTTPNotFound
	case 500:
		e.Kind = HTTPInternalServer
	default:
		e.Kind = HTTPUnexpected
	}
	return e
}

func (e *HTTPError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("'%s' request failed: %v", e.URL, e.Err)
	case e.Kind == HTTPUnexpected:
		return fmt.Sprintf("'%s' returns unexpected status code '%d' with body '%s'", e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%v: %s", e.Kind.sentinel(), e.Body)
	}
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrAPI, ErrHTTP:
		return true
	}
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// MQTTError 发布/订阅通道错误
type MQTTError struct {
	Op           string
	Topic        string
	Subscription bool
	Code         byte
	Err          error
}

// NewSubscriptionError broker 以失败码拒绝了订阅
func NewSubscriptionError(topic string, code byte) *MQTTError {
	return &MQTTError{Op: "subscribe", Topic: topic, Subscription: true, Code: code}
}

func (e *MQTTError) Error() string {
	if e.Subscription {
		return fmt.Sprintf("subscription to %q rejected with code 0x%02x", e.Topic, e.Code)
	}
	if e.Topic != "" {
		return fmt.Sprintf("mqtt %s %q: %v", e.Op, e.Topic, e.Err)
	}
	return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
}

func (e *MQTTError) Unwrap() error {
	return e.Err
}

func (e *MQTTError) Is(target error) bool {
	switch target {
	case ErrAPI, ErrMQTT:
		return true
	case ErrSubscription:
		return e.Subscription
	}
	return false
}
