package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/auth"
	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/config"
	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/consumer"
	"github.com/vk-cs/iot-go-agent-sdk/cmd/coiiot-agent/internal/repository"
	"github.com/vk-cs/iot-go-agent-sdk/database"
	"github.com/vk-cs/iot-go-agent-sdk/httpclient"
	"github.com/vk-cs/iot-go-agent-sdk/models"
	"github.com/vk-cs/iot-go-agent-sdk/mqttclient"
	rediscommon "github.com/vk-cs/iot-go-agent-sdk/redis"
)

const (
	statusBootstrapping = "bootstrapping"
	statusOnline        = "online"
)

// Dependencies 服务依赖。MQTT 为 nil 时命令通过 HTTP 轮询获取，
// Forwarder 和 Snapshots 为 nil 时对应功能关闭
type Dependencies struct {
	HTTP      *httpclient.Client
	MQTT      *mqttclient.Client
	Forwarder *consumer.StreamForwarder
	Snapshots *repository.ConfigSnapshotRepository
}

// AgentService 示例 agent：拉取配置、上报状态、确认命令、周期上报温度
type AgentService struct {
	config *config.Config
	logger *zap.Logger
	deps   Dependencies

	db          *sql.DB
	redisClient *rediscommon.Client

	transport transport
	source    commandSource
	now       func() time.Time
	randTemp  func() int64

	mu        sync.Mutex
	agentConf models.Config
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewAgentService 按配置创建客户端和可选的 Redis、数据库连接
func NewAgentService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AgentService, error) {
	a := auth.New(cfg.Agent.ClientID, cfg.Agent.AgentID, cfg.Agent.Token)
	deps := Dependencies{HTTP: httpclient.NewClient(cfg.HTTP, a, logger)}

	if cfg.Agentd.Mode == config.ModeMQTT {
		deps.MQTT = mqttclient.NewClient(cfg.MQTT, a, logger)
	}

	var db *sql.DB
	if cfg.DatabaseEnabled() {
		var err error
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := repository.NewConfigSnapshotRepository(db, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare config snapshot schema: %w", err)
		}
		deps.Snapshots = repo
	}

	var redisClient *rediscommon.Client
	if cfg.RedisEnabled() {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			redisClient.Close()
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Forwarder = consumer.NewStreamForwarder(redisClient, cfg.Agentd.CommandStream, cfg.Agentd.CommandStreamLen, logger)
	}

	s := NewAgentServiceWithDeps(cfg, deps, logger)
	s.db = db
	s.redisClient = redisClient
	return s, nil
}

// NewAgentServiceWithDeps 使用现成的依赖创建服务
func NewAgentServiceWithDeps(cfg *config.Config, deps Dependencies, logger *zap.Logger) *AgentService {
	s := &AgentService{
		config:   cfg,
		logger:   logger.With(zap.Int64("agent_id", cfg.Agent.AgentID)),
		deps:     deps,
		now:      time.Now,
		randTemp: func() int64 { return 20 + rand.Int63n(11) },
	}
	if deps.MQTT != nil {
		s.transport = mqttTransport{deps.MQTT}
	} else {
		s.transport = httpTransport{deps.HTTP}
	}
	return s
}

// AgentConfig 启动时拉取到的配置
func (s *AgentService) AgentConfig() models.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentConf
}

// Start 完成启动流程后在后台运行命令循环和遥测循环
func (s *AgentService) Start(ctx context.Context) error {
	s.logger.Info("Starting agent service", zap.String("mode", s.config.Agentd.Mode))

	cfg, err := s.deps.HTTP.GetConfig(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get agent config: %w", err)
	}
	s.mu.Lock()
	s.agentConf = cfg
	s.mu.Unlock()
	s.logger.Info("Agent config loaded",
		zap.String("version", cfg.Version),
		zap.Int("devices", len(cfg.Agent.Devices)),
	)

	s.recordSnapshots(ctx, cfg)

	if s.deps.MQTT != nil {
		if err := s.deps.MQTT.Run(ctx); err != nil {
			return fmt.Errorf("failed to start mqtt client: %w", err)
		}
		s.source = streamSource{stream: s.deps.MQTT.IncomingCommands(), now: s.now}
	} else {
		s.source = &httpPoller{client: s.deps.HTTP, interval: s.config.Agentd.PollInterval, now: s.now}
	}

	statusTag, ok := cfg.Agent.Tag.Path("$state", "$status")
	if !ok {
		return fmt.Errorf("agent tag has no $state/$status child")
	}
	if err := s.sendEvent(ctx, models.EventTag{ID: statusTag.ID, Value: models.StringValue(statusBootstrapping)}); err != nil {
		return fmt.Errorf("failed to send bootstrapping state: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.commandLoop(loopCtx)
	}()

	online := []models.EventTag{{ID: statusTag.ID, Value: models.StringValue(statusOnline)}}
	if updatedAt, ok := cfg.Agent.Tag.Path("$state", "$config", "$updated_at"); ok {
		online = append(online, models.EventTag{ID: updatedAt.ID, Value: models.TimeValue(s.now())})
	}
	if err := s.sendEvent(ctx, online...); err != nil {
		return fmt.Errorf("failed to send online state: %w", err)
	}

	if temperature, ok := thermometer(cfg.Agent); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.telemetryLoop(loopCtx, temperature)
		}()
	} else {
		s.logger.Warn("First device has no thermometer/temperature tag, telemetry disabled")
	}

	s.logger.Info("Agent service started successfully")
	return nil
}

// Stop 停止后台循环并关闭连接
func (s *AgentService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping agent service")

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if s.deps.MQTT != nil {
		if err := s.deps.MQTT.Close(); err != nil {
			s.logger.Error("Error closing MQTT client", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for agent loops", zap.Error(ctx.Err()))
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Error closing database connection", zap.Error(err))
	}

	s.logger.Info("Agent service stopped")
	return nil
}

func thermometer(agent models.Agent) (models.Tag, bool) {
	if len(agent.Devices) == 0 {
		return models.Tag{}, false
	}
	return agent.Devices[0].Tag.Path("thermometer", "temperature")
}

func (s *AgentService) sendEvent(ctx context.Context, tags ...models.EventTag) error {
	ts := s.now()
	for i := range tags {
		tags[i].Timestamp = ts
	}
	return s.transport.SendEvent(ctx, models.EventMessage{Tags: tags})
}

// recordSnapshots 把配置版本和设备配置写入数据库，失败只记录日志
func (s *AgentService) recordSnapshots(ctx context.Context, cfg models.Config) {
	if s.deps.Snapshots == nil {
		return
	}

	latest, err := s.deps.Snapshots.LatestVersion(ctx, cfg.Agent.ID)
	if err != nil {
		s.logger.Warn("Failed to read latest config version", zap.Error(err))
	}
	if err == nil && latest == cfg.Version {
		s.logger.Debug("Config version unchanged", zap.String("version", latest))
		return
	}

	fetchedAt := s.now()
	if err := s.deps.Snapshots.RecordConfig(ctx, cfg, fetchedAt); err != nil {
		s.logger.Warn("Failed to record config snapshot", zap.Error(err))
		return
	}

	for _, d := range cfg.Agent.Devices {
		if d.ConfigID == nil {
			continue
		}
		devCfg, err := s.deps.HTTP.GetDeviceVersionedConfig(ctx, *d.ConfigID)
		if err != nil {
			s.logger.Warn("Failed to get device config",
				zap.Int64("device_id", d.ID),
				zap.Int64("config_id", *d.ConfigID),
				zap.Error(err),
			)
			continue
		}
		if err := s.deps.Snapshots.RecordDeviceConfig(ctx, devCfg, fetchedAt); err != nil {
			s.logger.Warn("Failed to record device config", zap.Int64("device_id", d.ID), zap.Error(err))
		}
	}
}

func (s *AgentService) commandLoop(ctx context.Context) {
	for {
		records, err := s.source.next(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, mqttclient.ErrStreamClosed):
			s.logger.Info("Command stream closed")
			return
		case err != nil && s.deps.MQTT != nil:
			// 命令流在解码失败后不再可用，断开连接不再接收消息
			s.logger.Error("Command stream terminated, closing MQTT client", zap.Error(err))
			if cerr := s.deps.MQTT.Close(); cerr != nil {
				s.logger.Error("Error closing MQTT client", zap.Error(cerr))
			}
			return
		case err != nil:
			s.logger.Warn("Failed to get commands", zap.Error(err))
			continue
		}

		if len(records) == 0 {
			continue
		}
		s.handleCommands(ctx, records)
	}
}

// handleCommands 先确认设备命令，再确认 agent 命令；每条命令依次上报 received、done
func (s *AgentService) handleCommands(ctx context.Context, records []consumer.CommandRecord) {
	s.logger.Info("Got commands", zap.Int("count", len(records)))

	if s.deps.Forwarder != nil {
		if _, err := s.deps.Forwarder.Forward(ctx, records); err != nil {
			s.logger.Error("Failed to forward commands", zap.Error(err))
		}
	}

	for _, target := range []string{consumer.TargetDevice, consumer.TargetAgent} {
		for _, rec := range records {
			if rec.Target != target {
				continue
			}
			for _, status := range []models.CommandStatus{models.StatusReceived, models.StatusDone} {
				if err := s.transport.ack(ctx, rec, status, s.now()); err != nil {
					s.logger.Error("Failed to send command status",
						zap.String("command_id", rec.CommandID),
						zap.String("target", rec.Target),
						zap.Int64("device_id", rec.DeviceID),
						zap.Stringer("status", status),
						zap.Error(err),
					)
					break
				}
			}
		}
	}
}

func (s *AgentService) telemetryLoop(ctx context.Context, temperature models.Tag) {
	ticker := time.NewTicker(s.config.Agentd.TelemetryInterval)
	defer ticker.Stop()

	for {
		temp := s.randTemp()
		s.logger.Debug("Sending temperature", zap.Int64("value", temp))

		if err := s.sendEvent(ctx, models.EventTag{ID: temperature.ID, Value: models.IntValue(temp)}); err != nil && ctx.Err() == nil {
			s.logger.Warn("Failed to send temperature", zap.Error(err))
		}
		err := s.transport.SendLogs(ctx, []models.LogRecord{
			{Level: models.LogInfo, Message: fmt.Sprintf("temperature is %d", temp)},
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("Failed to send logs", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
