// Package config 汇总 SDK 与示例 agent 共用的配置结构。
// 每个结构体都带 LoadFromEnv(prefix)，只覆盖已设置的环境变量，默认值由调用方预先填好。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AgentConfig agent 凭据
type AgentConfig struct {
	ClientID int64
	AgentID  int64
	Token    string
}

// LoadFromEnv 读取 {prefix}_CLIENT_ID、{prefix}_AGENT_ID、{prefix}_AGENT_TOKEN
func (c *AgentConfig) LoadFromEnv(prefix string) error {
	if err := lookupInt64(prefix+"_CLIENT_ID", &c.ClientID); err != nil {
		return err
	}
	if err := lookupInt64(prefix+"_AGENT_ID", &c.AgentID); err != nil {
		return err
	}
	if token := os.Getenv(prefix + "_AGENT_TOKEN"); token != "" {
		c.Token = token
	}
	return nil
}

// HTTPConfig 请求/响应客户端配置
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultHTTPConfig 单次请求默认超时 20 秒
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{Timeout: 20 * time.Second}
}

// LoadFromEnv 读取 {prefix}_ADDR、{prefix}_TIMEOUT（time.ParseDuration 格式）
func (c *HTTPConfig) LoadFromEnv(prefix string) error {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.BaseURL = addr
	}
	return lookupDuration(prefix+"_TIMEOUT", &c.Timeout)
}

// MQTTConfig 发布/订阅客户端配置
//
// ClientIDPrefix 为空时直接使用随机 uuid 作为 client id；
// SubscribeFailureCode 是 broker 在 SUBACK 中表示订阅失败的返回码；
// InboundBuffer 是入站命令队列的初始容量，队列本身不设上限，paho 的回调从不阻塞。
type MQTTConfig struct {
	Broker               string
	ClientIDPrefix       string
	QoS                  byte
	SubscribeFailureCode byte
	InboundBuffer        int
	ConnectTimeout       time.Duration
	DisconnectTimeout    time.Duration
}

// DefaultMQTTConfig QoS 1，失败码 0x80
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		QoS:                  1,
		SubscribeFailureCode: 0x80,
		InboundBuffer:        64,
		ConnectTimeout:       10 * time.Second,
		DisconnectTimeout:    250 * time.Millisecond,
	}
}

// LoadFromEnv 读取 {prefix}_ADDR、{prefix}_CLIENT_ID_PREFIX、{prefix}_QOS、{prefix}_SUBSCRIBE_FAILURE_CODE 等
func (c *MQTTConfig) LoadFromEnv(prefix string) error {
	if broker := os.Getenv(prefix + "_ADDR"); broker != "" {
		c.Broker = broker
	}
	if p := os.Getenv(prefix + "_CLIENT_ID_PREFIX"); p != "" {
		c.ClientIDPrefix = p
	}
	if err := lookupByte(prefix+"_QOS", &c.QoS); err != nil {
		return err
	}
	if err := lookupByte(prefix+"_SUBSCRIBE_FAILURE_CODE", &c.SubscribeFailureCode); err != nil {
		return err
	}
	if v := os.Getenv(prefix + "_INBOUND_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s_INBOUND_BUFFER %q", prefix, v)
		}
		c.InboundBuffer = n
	}
	if err := lookupDuration(prefix+"_CONNECT_TIMEOUT", &c.ConnectTimeout); err != nil {
		return err
	}
	if err := lookupDuration(prefix+"_DISCONNECT_TIMEOUT", &c.DisconnectTimeout); err != nil {
		return err
	}
	return c.Validate()
}

// Validate 命令和状态要求至少一次送达，QoS 只能是 1 或 2
func (c *MQTTConfig) Validate() error {
	if c.QoS < 1 || c.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d: must be 1 or 2", c.QoS)
	}
	return nil
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) error {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid %s_DB %q: %w", prefix, db, err)
		}
		c.DB = n
	}
	return nil
}

// DatabaseConfig 数据库配置。
// MaxConns/MaxIdle/ConnMaxLifetime/ConnMaxIdleTime 为 0 时使用 database 包的默认值；
// ConnectTimeout 和 ApplicationName 非空时写入 DSN
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string
}

// GetDSN 获取 lib/pq 连接字符串
func (c *DatabaseConfig) GetDSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	if secs := int(c.ConnectTimeout / time.Second); secs > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", secs)
	}
	if c.ApplicationName != "" {
		dsn += " application_name=" + c.ApplicationName
	}
	return dsn
}

// LoadFromEnv 从环境变量加载数据库配置
func (c *DatabaseConfig) LoadFromEnv(prefix string) error {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if err := lookupInt(prefix+"_PORT", &c.Port); err != nil {
		return err
	}
	if user := os.Getenv(prefix + "_USER"); user != "" {
		c.User = user
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if database := os.Getenv(prefix + "_NAME"); database != "" {
		c.Database = database
	}
	if sslMode := os.Getenv(prefix + "_SSLMODE"); sslMode != "" {
		c.SSLMode = sslMode
	}
	if err := lookupInt(prefix+"_MAX_CONNS", &c.MaxConns); err != nil {
		return err
	}
	if err := lookupInt(prefix+"_MAX_IDLE", &c.MaxIdle); err != nil {
		return err
	}
	if err := lookupDuration(prefix+"_CONN_MAX_LIFETIME", &c.ConnMaxLifetime); err != nil {
		return err
	}
	if err := lookupDuration(prefix+"_CONN_MAX_IDLE_TIME", &c.ConnMaxIdleTime); err != nil {
		return err
	}
	return lookupDuration(prefix+"_CONNECT_TIMEOUT", &c.ConnectTimeout)
}

func lookupInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func lookupInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// lookupByte 支持十进制和 0x 前缀的十六进制
func lookupByte(key string, dst *byte) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 0, 8)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = byte(n)
	return nil
}

func lookupDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
