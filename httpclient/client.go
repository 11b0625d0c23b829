// Package httpclient 通过平台的 REST 接口完成 agent 的全部操作：拉取配置和命令、上报命令状态、遥测与日志。
//
// 每个方法对应一次请求/响应，不做重试；非 200 的响应按状态码转换为 apierrors 中的错误类型。
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
	"github.com/vk-cs/iot-go-agent-sdk/auth"
	"github.com/vk-cs/iot-go-agent-sdk/config"
	"github.com/vk-cs/iot-go-agent-sdk/logger"
	"github.com/vk-cs/iot-go-agent-sdk/models"
)

// Client 平台 REST API 客户端。同一个实例可以被多个 goroutine 使用，
// 但单个调用方发出的请求按顺序完成，客户端本身不做流水线。
type Client struct {
	httpClient *resty.Client
	baseURL    string
	auth       auth.Auth
	logger     *zap.Logger
}

// NewClient 创建客户端。cfg.Timeout 限制单次请求（连接、发送、读取响应）的总时长
func NewClient(cfg config.HTTPConfig, a auth.Auth, log *zap.Logger) *Client {
	log = logger.OrNop(log).With(zap.String("component", "httpclient"))

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetCloseConnection(true).
		SetHeader("Accept", "application/json").
		SetLogger(log.Sugar())

	return &Client{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       a,
		logger:     log,
	}
}

// GetConfig 拉取 agent 配置。version 为空时返回最新版本
func (c *Client) GetConfig(ctx context.Context, version string) (models.Config, error) {
	var query url.Values
	if version != "" {
		query = url.Values{"version": []string{version}}
	}

	body, err := c.do(ctx, resty.MethodGet, "/v1/agents/config", query, nil)
	if err != nil {
		return models.Config{}, err
	}
	return models.LoadConfig(body, apierrors.KindConfig)
}

// GetCommands 拉取待执行的 agent 命令和设备命令
func (c *Client) GetCommands(ctx context.Context) (models.AgentDevicesCommands, error) {
	body, err := c.do(ctx, resty.MethodGet, "/v1/commands", nil, nil)
	if err != nil {
		return models.AgentDevicesCommands{}, err
	}
	return models.LoadAgentDevicesCommands(body, apierrors.KindGeneric)
}

// GetDeviceVersionedConfig 按版本 id 拉取设备配置
func (c *Client) GetDeviceVersionedConfig(ctx context.Context, versionID int64) (models.VersionedDeviceConfig, error) {
	path := "/v1/devices/config/" + strconv.FormatInt(versionID, 10)

	body, err := c.do(ctx, resty.MethodGet, path, nil, nil)
	if err != nil {
		return models.VersionedDeviceConfig{}, err
	}
	return models.LoadVersionedDeviceConfig(body, apierrors.KindGeneric)
}

// SendAgentCommandStatus 上报 agent 命令的状态
func (c *Client) SendAgentCommandStatus(ctx context.Context, commandID string, msg CommandStatusMessage) error {
	path := fmt.Sprintf("/v1/agents/%d/commands/%s/status", c.auth.AgentID(), url.PathEscape(commandID))
	return c.sendJSON(ctx, resty.MethodPatch, path, msg)
}

// SendDeviceCommandStatus 上报设备命令的状态
func (c *Client) SendDeviceCommandStatus(ctx context.Context, deviceID int64, commandID string, msg CommandStatusMessage) error {
	path := fmt.Sprintf("/v1/devices/%d/commands/%s/status", deviceID, url.PathEscape(commandID))
	return c.sendJSON(ctx, resty.MethodPatch, path, msg)
}

// SendEvent 上报遥测
func (c *Client) SendEvent(ctx context.Context, msg models.EventMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode event message: %w", err)
	}
	_, err = c.do(ctx, resty.MethodPost, "/v1/events", nil, payload)
	return err
}

// SendLogs 上报日志，请求体为 [{level,message}]
func (c *Client) SendLogs(ctx context.Context, records []models.LogRecord) error {
	payload, err := models.EncodeLogs(records)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	_, err = c.do(ctx, resty.MethodPost, "/v1/logs", nil, payload)
	return err
}

func (c *Client) sendJSON(ctx context.Context, method, path string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode request body for %s: %w", path, err)
	}
	_, err = c.do(ctx, method, path, nil, payload)
	return err
}

// do 执行一次请求。200 返回响应体原文，其它状态码转换为 *apierrors.HTTPError
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	fullURL := c.baseURL + path

	req := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.auth.Login(), c.auth.Password())
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	c.logger.Debug("Calling platform API",
		zap.String("method", method),
		zap.String("url", fullURL),
	)

	resp, err := req.Execute(method, fullURL)
	if err != nil {
		c.logger.Error("Platform API call failed",
			zap.String("method", method),
			zap.String("url", fullURL),
			zap.Error(err),
		)
		return nil, &apierrors.HTTPError{Kind: apierrors.HTTPUnexpected, URL: fullURL, Err: err}
	}

	if resp.StatusCode() == 200 {
		return resp.Body(), nil
	}

	herr := apierrors.HTTPErrorFromStatus(fullURL, resp.StatusCode(), resp.String())
	c.logger.Warn("Platform API returned error",
		zap.String("method", method),
		zap.String("url", fullURL),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("body", resp.String()),
	)
	return nil, herr
}
