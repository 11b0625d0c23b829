package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vk-cs/iot-go-agent-sdk/config"
)

const (
	ModeHTTP = "http"
	ModeMQTT = "mqtt"
)

// Config 示例 agent 配置
type Config struct {
	Agent config.AgentConfig
	HTTP  config.HTTPConfig
	MQTT  config.MQTTConfig

	// Redis 与 Database 可选，地址为空时不启用
	Redis    config.RedisConfig
	Database config.DatabaseConfig

	Agentd struct {
		Mode              string        // "http" 轮询命令，"mqtt" 订阅命令
		PollInterval      time.Duration // HTTP 模式下拉取命令的间隔
		TelemetryInterval time.Duration // 上报温度的间隔
		CommandStream     string        // 转发命令的 Redis Stream
		CommandStreamLen  int64         // Stream 近似最大长度，0 不裁剪
	}

	Log struct {
		Level  string
		Format string
	}
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// DatabaseEnabled 是否配置了数据库
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != ""
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: config.DefaultHTTPConfig(),
		MQTT: config.DefaultMQTTConfig(),
	}

	if err := cfg.Agent.LoadFromEnv("COIIOT"); err != nil {
		return nil, err
	}
	if err := cfg.HTTP.LoadFromEnv("COIIOT_HTTP"); err != nil {
		return nil, err
	}
	if err := cfg.MQTT.LoadFromEnv("COIIOT_MQTT"); err != nil {
		return nil, err
	}

	if err := cfg.Redis.LoadFromEnv("REDIS"); err != nil {
		return nil, err
	}

	cfg.Database = config.DatabaseConfig{
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "coiiot",
		SSLMode:         "disable",
		ApplicationName: "coiiot-agent",
	}
	if err := cfg.Database.LoadFromEnv("DB"); err != nil {
		return nil, err
	}

	cfg.Agentd.Mode = getEnv("COIIOT_MODE", ModeHTTP)
	cfg.Agentd.CommandStream = getEnv("COIIOT_COMMAND_STREAM", "coiiot:commands")

	var err error
	if cfg.Agentd.PollInterval, err = getEnvDuration("COIIOT_POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Agentd.TelemetryInterval, err = getEnvDuration("COIIOT_TELEMETRY_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if v := os.Getenv("COIIOT_COMMAND_STREAM_MAXLEN"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid COIIOT_COMMAND_STREAM_MAXLEN %q: %w", v, err)
		}
		cfg.Agentd.CommandStreamLen = n
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查必填项
func (c *Config) Validate() error {
	if c.HTTP.BaseURL == "" {
		return fmt.Errorf("COIIOT_HTTP_ADDR is required")
	}
	switch c.Agentd.Mode {
	case ModeHTTP:
	case ModeMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("COIIOT_MQTT_ADDR is required in mqtt mode")
		}
	default:
		return fmt.Errorf("unknown COIIOT_MODE %q", c.Agentd.Mode)
	}
	if c.Agentd.PollInterval <= 0 || c.Agentd.TelemetryInterval <= 0 {
		return fmt.Errorf("poll and telemetry intervals must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
