package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/config"
	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/service"
	"github.com/vk-cs/iot-go-agent-sdk/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "coiiot-agent")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting coiiot-agent",
		zap.String("mode", cfg.Agentd.Mode),
		zap.String("http_addr", cfg.HTTP.BaseURL),
		zap.String("mqtt_addr", cfg.MQTT.Broker),
		zap.Bool("redis", cfg.RedisEnabled()),
		zap.Bool("database", cfg.DatabaseEnabled()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建服务
	agentService, err := service.NewAgentService(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create agent service", zap.Error(err))
	}

	if err := agentService.Start(ctx); err != nil {
		zlog.Error("Failed to start agent service", zap.Error(err))
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		agentService.Stop(stopCtx)
		stopCancel()
		os.Exit(1)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := agentService.Stop(stopCtx); err != nil {
		zlog.Error("Error during shutdown", zap.Error(err))
	}

	zlog.Info("Agent stopped")
}
