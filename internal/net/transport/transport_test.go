package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newAcceptor(t *testing.T, settings *config.Settings) *Acceptor {
	t.Helper()
	a := NewAcceptor(settings)
	require.NoError(t, a.Listen(context.Background(), "127.0.0.1:0"))
	t.Cleanup(a.Stop)
	return a
}

// ============================================================================
//                              拨号 / 接受
// ============================================================================

// TestTransport_ConnectAccept 测试本地回环上的拨号与接受
func TestTransport_ConnectAccept(t *testing.T) {
	settings := config.Default()
	a := newAcceptor(t, settings)
	inbound := a.SubscribeChannels()

	ctx := ctxTimeout(t)
	out, err := NewConnector(settings).Connect(ctx, a.Addr().String())
	require.NoError(t, err)
	t.Cleanup(out.Stop)
	assert.Equal(t, channel.DirectionOutbound, out.Direction())

	in, err := inbound.Receive(ctx)
	require.NoError(t, err)
	t.Cleanup(in.Stop)
	assert.Equal(t, channel.DirectionInbound, in.Direction())

	pings := in.SubscribeMsg(messages.PacketPing)
	require.NoError(t, in.Start(ctx))
	require.NoError(t, out.Start(ctx))
	require.NoError(t, out.Send(ctx, &messages.Ping{Nonce: []byte("hi")}))

	ping, err := channel.ReceiveAs[*messages.Ping](ctx, pings)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), ping.Nonce)
	t.Logf("✅ 回环拨号/接受成功")
}

// TestConnector_Unreachable 测试拨号失败
func TestConnector_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = NewConnector(config.Default()).Connect(ctxTimeout(t), addr)
	assert.ErrorIs(t, err, ErrConnectFailed)
}

// TestConnector_CustomDialer 测试注入拨号器
func TestConnector_CustomDialer(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := NewMockDialer(ctrl)

	local, remote := net.Pipe()
	t.Cleanup(func() { _ = remote.Close() })
	d.EXPECT().
		DialContext(gomock.Any(), "tcp", "seed.example.org:7700").
		DoAndReturn(func(ctx context.Context, _, _ string) (net.Conn, error) {
			_, ok := ctx.Deadline()
			assert.True(t, ok, "dial must be bounded by ConnectTimeout")
			return local, nil
		}).
		Times(1)

	c := NewConnector(config.Default(), WithDialer(d))
	ch, err := c.Connect(ctxTimeout(t), "seed.example.org:7700")
	require.NoError(t, err)
	t.Cleanup(ch.Stop)
	assert.Equal(t, channel.DirectionOutbound, ch.Direction())
}

// TestConnector_DialerError 测试拨号器错误被包装
func TestConnector_DialerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := NewMockDialer(ctrl)

	refused := errors.New("connection refused")
	d.EXPECT().DialContext(gomock.Any(), "tcp", "seed.example.org:7700").Return(nil, refused)

	_, err := NewConnector(config.Default(), WithDialer(d)).Connect(ctxTimeout(t), "seed.example.org:7700")
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "seed.example.org:7700")
}

// TestAcceptor_NoSubscriberClosesConn 测试无订阅者时关闭连接
func TestAcceptor_NoSubscriberClosesConn(t *testing.T) {
	a := newAcceptor(t, config.Default())

	conn, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "unsubscribed inbound connection must be closed")
}

// TestAcceptor_ListenTwice 测试重复监听
func TestAcceptor_ListenTwice(t *testing.T) {
	a := newAcceptor(t, config.Default())
	assert.ErrorIs(t, a.Listen(context.Background(), "127.0.0.1:0"), ErrAlreadyListening)
}

// TestAcceptor_Stop 测试停止后拒绝连接
func TestAcceptor_Stop(t *testing.T) {
	a := newAcceptor(t, config.Default())
	addr := a.Addr().String()

	a.Stop()
	a.Stop()

	_, err := NewConnector(config.Default()).Connect(ctxTimeout(t), addr)
	assert.ErrorIs(t, err, ErrConnectFailed)
}

// TestAcceptor_RateLimit 测试接受速率限制
func TestAcceptor_RateLimit(t *testing.T) {
	settings := config.Default()
	settings.AcceptRate = 1
	settings.AcceptBurst = 1
	a := newAcceptor(t, settings)
	inbound := a.SubscribeChannels()

	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
	}

	ch, err := inbound.Receive(ctxTimeout(t))
	require.NoError(t, err)
	ch.Stop()

	// 第二个连接要等令牌
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = inbound.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ch, err = inbound.Receive(ctxTimeout(t))
	require.NoError(t, err)
	ch.Stop()
}

type tempErr struct{}

func (tempErr) Error() string   { return "temporary" }
func (tempErr) Temporary() bool { return true }

// TestAcceptor_TemporaryErrorClassifier 测试临时错误分类
func TestAcceptor_TemporaryErrorClassifier(t *testing.T) {
	var c tec.TempErrCatcher
	c.Wait = func(time.Duration) {}

	assert.True(t, c.IsTemporary(tempErr{}))
	assert.False(t, c.IsTemporary(errors.New("fatal")))
}
