package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubToken struct {
	done chan struct{}
	err  error
}

func newStubToken(err error, completed bool) *stubToken {
	t := &stubToken{done: make(chan struct{}), err: err}
	if completed {
		close(t.done)
	}
	return t
}

func (t *stubToken) Wait() bool                     { <-t.done; return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return true }
func (t *stubToken) Done() <-chan struct{}          { return t.done }
func (t *stubToken) Error() error                   { return t.err }

var _ paho.Token = (*stubToken)(nil)

func TestWait(t *testing.T) {
	assert.NoError(t, wait(context.Background(), newStubToken(nil, true)))

	boom := errors.New("boom")
	assert.ErrorIs(t, wait(context.Background(), newStubToken(boom, true)), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, newStubToken(nil, false)), context.Canceled)

	assert.Error(t, wait(context.Background(), nil))
}

func TestClient_ConnectUnreachable(t *testing.T) {
	c := NewClient(Options{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "test",
		ConnectTimeout: 200 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	require.Error(t, err)
	assert.False(t, c.IsConnected())
}
