// Package redis 提供 go-redis 客户端的构造和 Redis Streams 的发布/读取。
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vk-cs/iot-go-agent-sdk/config"
)

// Client go-redis 客户端
type Client = redis.Client

const dialTimeout = 5 * time.Second

// NewRedisClient 创建客户端。命令失败不重试，由调用方决定如何处理
func NewRedisClient(cfg *config.RedisConfig) *Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  -1,
		DialTimeout: dialTimeout,
	})
}

// Ping 检查连接，错误中带上地址
func Ping(ctx context.Context, client *Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", client.Options().Addr, err)
	}
	return nil
}
