package mqttclient

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vk-cs/iot-go-agent-sdk/apierrors"
	"github.com/vk-cs/iot-go-agent-sdk/models"
)

// ErrStreamClosed 客户端或命令流已被关闭
var ErrStreamClosed = errors.New("command stream closed")

// CommandStream 入站命令流。Next 逐条返回解码后的 CommandMessage。
//
// 解码失败是致命的：该错误被记住，之后每次 Next 都返回同一个错误，不会跳过坏消息继续读取，
// 此后到达的消息直接丢弃。
// Close 之后 Next 返回 ErrStreamClosed，未消费的消息被丢弃。
// 同一时刻只应有一个 goroutine 调用 Next，否则不保证按到达顺序返回。
type CommandStream struct {
	mu     sync.Mutex
	queue  [][]byte
	err    error
	closed bool

	notify chan struct{}
	done   chan struct{}

	logger *zap.Logger
}

func newCommandStream(capacity int, log *zap.Logger) *CommandStream {
	if capacity < 0 {
		capacity = 0
	}
	return &CommandStream{
		queue:  make([][]byte, 0, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: log,
	}
}

// deliver 由 paho 回调调用，只入队，不解码也不阻塞。流关闭或已因解码失败终止后丢弃消息
func (s *CommandStream) deliver(topic string, payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		s.logger.Debug("Dropping command after stream ended", zap.String("topic", topic))
		return
	}
	s.queue = append(s.queue, buf)
	pending := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("Command received", zap.String("topic", topic), zap.Int("pending", pending))

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next 阻塞直到下一条命令到达。ctx 取消时返回 ctx.Err()，流本身不受影响
func (s *CommandStream) Next(ctx context.Context) (models.CommandMessage, error) {
	for {
		s.mu.Lock()
		switch {
		case s.err != nil:
			err := s.err
			s.mu.Unlock()
			return models.CommandMessage{}, err
		case s.closed:
			s.mu.Unlock()
			return models.CommandMessage{}, ErrStreamClosed
		case len(s.queue) > 0:
			payload := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return s.decode(payload)
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return models.CommandMessage{}, ctx.Err()
		}
	}
}

func (s *CommandStream) decode(payload []byte) (models.CommandMessage, error) {
	msg, err := models.LoadCommandMessage(payload, apierrors.KindCommandFormat)
	if err == nil {
		return msg, nil
	}

	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	err = s.err
	s.queue = nil
	s.mu.Unlock()

	s.logger.Error("Malformed command, stream terminated", zap.Error(err))
	return models.CommandMessage{}, err
}

// Err 返回终止命令流的解码错误；流正常或仅被关闭时返回 nil
func (s *CommandStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close 结束命令流，可重复调用
func (s *CommandStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}
