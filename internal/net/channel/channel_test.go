package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

func ctxTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

// newPair 创建一对通过 net.Pipe 相连、尚未启动的通道
func newPair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	a, b := net.Pipe()
	settings := config.Default()
	ca := New(a, settings)
	cb := New(b, settings, WithDirection(DirectionInbound))
	t.Cleanup(func() {
		ca.Stop()
		cb.Stop()
	})
	return ca, cb
}

func startPair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	ca, cb := newPair(t)
	require.NoError(t, ca.Start(context.Background()))
	require.NoError(t, cb.Start(context.Background()))
	return ca, cb
}

// ============================================================================
//                              收发测试
// ============================================================================

// TestChannel_SendReceive 测试消息按类型分发
func TestChannel_SendReceive(t *testing.T) {
	ca, cb := newPair(t)

	pings := cb.SubscribeMsg(messages.PacketPing)
	addrs := cb.SubscribeMsg(messages.PacketAddrs)
	require.NoError(t, ca.Start(context.Background()))
	require.NoError(t, cb.Start(context.Background()))

	ctx := ctxTimeout(t, 2*time.Second)
	require.NoError(t, ca.Send(ctx, &messages.Ping{Nonce: []byte("n1")}))
	require.NoError(t, ca.Send(ctx, &messages.Addrs{Addrs: []string{"10.0.0.1:7700"}}))

	ping, err := ReceiveAs[*messages.Ping](ctx, pings)
	require.NoError(t, err)
	assert.Equal(t, []byte("n1"), ping.Nonce)

	got, err := ReceiveAs[*messages.Addrs](ctx, addrs)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:7700"}, got.Addrs)

	assert.Zero(t, pings.sub.Pending(), "addrs must not reach the ping subscription")
	assert.Equal(t, DirectionInbound, cb.Direction())
	assert.NotEmpty(t, cb.Address())
	assert.NotEqual(t, ca.ID(), cb.ID())
	t.Logf("✅ 消息按类型分发")
}

// TestChannel_ConcurrentSends 测试并发发送按帧串行化
func TestChannel_ConcurrentSends(t *testing.T) {
	const n = 32
	ca, cb := newPair(t)

	pings := cb.SubscribeMsg(messages.PacketPing)
	stops := cb.SubscribeStop()
	require.NoError(t, ca.Start(context.Background()))
	require.NoError(t, cb.Start(context.Background()))

	ctx := ctxTimeout(t, 3*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ca.Send(ctx, &messages.Ping{Nonce: []byte(fmt.Sprintf("nonce-%02d", i))}))
		}()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		ping, err := ReceiveAs[*messages.Ping](ctx, pings)
		require.NoError(t, err)
		seen[string(ping.Nonce)] = true
	}
	wg.Wait()

	assert.Len(t, seen, n, "every frame decoded intact")
	assert.False(t, ca.Stopped())
	assert.False(t, cb.Stopped())
	assert.Zero(t, stops.Pending())
	t.Logf("✅ %d 个并发发送全部完整到达", n)
}

// TestChannel_SendWhileReceiving 测试接收循环阻塞时发送不受影响
func TestChannel_SendWhileReceiving(t *testing.T) {
	ca, cb := newPair(t)

	aPings := ca.SubscribeMsg(messages.PacketPing)
	bPings := cb.SubscribeMsg(messages.PacketPing)
	require.NoError(t, ca.Start(context.Background()))
	require.NoError(t, cb.Start(context.Background()))

	// ca 的接收循环正阻塞在读上，此时 ca 发送仍然完成
	ctx := ctxTimeout(t, 2*time.Second)
	require.NoError(t, ca.Send(ctx, &messages.Ping{Nonce: []byte("a->b")}))
	ping, err := ReceiveAs[*messages.Ping](ctx, bPings)
	require.NoError(t, err)
	assert.Equal(t, []byte("a->b"), ping.Nonce)

	// 双向同时发送
	var wg sync.WaitGroup
	for _, side := range []struct {
		ch    *Channel
		nonce string
	}{{ca, "a"}, {cb, "b"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, side.ch.Send(ctx, &messages.Ping{Nonce: []byte(side.nonce)}))
		}()
	}
	wg.Wait()

	fromB, err := ReceiveAs[*messages.Ping](ctx, aPings)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), fromB.Nonce)
	fromA, err := ReceiveAs[*messages.Ping](ctx, bPings)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), fromA.Nonce)
}

// TestChannel_SendAfterStop 测试停止后发送
func TestChannel_SendAfterStop(t *testing.T) {
	ca, _ := startPair(t)

	ca.Stop()
	assert.True(t, ca.Stopped())

	err := ca.Send(context.Background(), &messages.GetAddrs{})
	assert.ErrorIs(t, err, ErrChannelStopped)
}

// TestChannel_SendFailureStops 测试写失败停止通道
func TestChannel_SendFailureStops(t *testing.T) {
	a, b := net.Pipe()
	ca := New(a, config.Default())
	t.Cleanup(ca.Stop)
	stops := ca.SubscribeStop()

	// 对端直接关闭，不经过通道
	require.NoError(t, b.Close())

	err := ca.Send(ctxTimeout(t, 2*time.Second), &messages.GetAddrs{})
	assert.ErrorIs(t, err, ErrChannelStopped)
	assert.True(t, ca.Stopped())

	v, err := stops.Receive(ctxTimeout(t, time.Second))
	require.NoError(t, err)
	assert.ErrorIs(t, v, ErrChannelStopped)
}

// TestChannel_SendHonoursContext 测试发送被 ctx 打断
func TestChannel_SendHonoursContext(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { _ = b.Close() })
	ca := New(a, config.Default())
	t.Cleanup(ca.Stop)

	// 对端不读，写会一直阻塞直到 ctx 到期
	err := ca.Send(ctxTimeout(t, 50*time.Millisecond), &messages.Ping{Nonce: []byte("x")})
	assert.ErrorIs(t, err, ErrChannelStopped)
	assert.True(t, ca.Stopped(), "a partially written frame leaves the stream unusable")
}

// ============================================================================
//                              停止测试
// ============================================================================

// TestChannel_RemoteEOF 测试对端断开
func TestChannel_RemoteEOF(t *testing.T) {
	a, b := net.Pipe()
	cb := New(b, config.Default())
	t.Cleanup(cb.Stop)

	stops := cb.SubscribeStop()
	pings := cb.SubscribeMsg(messages.PacketPing)
	pongs := cb.SubscribeMsg(messages.PacketPong)
	require.NoError(t, cb.Start(context.Background()))

	require.NoError(t, a.Close())

	ctx := ctxTimeout(t, 2*time.Second)
	v, err := stops.Receive(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, v, ErrChannelStopped)

	for _, sub := range []*MessageSubscription{pings, pongs} {
		_, err := sub.Receive(ctx)
		assert.ErrorIs(t, err, ErrChannelStopped)
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, sub.sub.Pending(), "terminal error is delivered once")
	}
	assert.Zero(t, stops.Pending())
	t.Logf("✅ 对端断开后所有订阅者收到终止错误")
}

// TestChannel_StopBroadcastsServiceStopped 测试主动停止的终止错误
func TestChannel_StopBroadcastsServiceStopped(t *testing.T) {
	ca, _ := startPair(t)
	sub := ca.SubscribeMsg(messages.PacketGetAddrs)

	ca.Stop()

	_, err := sub.Receive(ctxTimeout(t, time.Second))
	assert.ErrorIs(t, err, ErrChannelStopped)
}

// TestChannel_ConcurrentStop 测试并发停止只通知一次
func TestChannel_ConcurrentStop(t *testing.T) {
	ca, _ := startPair(t)
	stops := ca.SubscribeStop()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ca.Stop()
		}()
	}
	wg.Wait()

	v, err := stops.Receive(ctxTimeout(t, time.Second))
	require.NoError(t, err)
	assert.ErrorIs(t, v, ErrChannelStopped)

	_, err = stops.Receive(ctxTimeout(t, 50*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-ca.Done():
	default:
		t.Fatal("Done must be closed after Stop returns")
	}
	t.Logf("✅ 16 个并发 Stop 只产生一次停止通知")
}

// TestChannel_LateStopSubscriber 测试停止后订阅
func TestChannel_LateStopSubscriber(t *testing.T) {
	ca, _ := startPair(t)
	ca.Stop()

	late := ca.SubscribeStop()
	v, err := late.Receive(ctxTimeout(t, time.Second))
	require.NoError(t, err)
	assert.ErrorIs(t, v, ErrChannelStopped)

	lateMsg := ca.SubscribeMsg(messages.PacketPing)
	_, err = lateMsg.Receive(ctxTimeout(t, time.Second))
	assert.ErrorIs(t, err, ErrChannelStopped)
}

// TestChannel_StopBeforeStart 测试未启动即停止
func TestChannel_StopBeforeStart(t *testing.T) {
	ca, _ := newPair(t)
	sub := ca.SubscribeMsg(messages.PacketPong)

	ca.Stop()

	_, err := sub.Receive(ctxTimeout(t, time.Second))
	assert.ErrorIs(t, err, ErrChannelStopped)
	assert.ErrorIs(t, ca.Start(context.Background()), ErrChannelStopped)
}

// TestChannel_StartTwice 测试重复启动
func TestChannel_StartTwice(t *testing.T) {
	ca, _ := startPair(t)
	assert.ErrorIs(t, ca.Start(context.Background()), lifecycle.ErrAlreadyStarted)
}

// TestChannel_ParentContextCancel 测试父 ctx 取消停止通道
func TestChannel_ParentContextCancel(t *testing.T) {
	ca, _ := newPair(t)
	stops := ca.SubscribeStop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ca.Start(ctx))
	cancel()

	_, err := stops.Receive(ctxTimeout(t, time.Second))
	require.NoError(t, err)
	assert.True(t, ca.Stopped())
}

// ============================================================================
//                              路由测试
// ============================================================================

// TestMessageRouter_WrapsTerminalError 测试终止错误包装
func TestMessageRouter_WrapsTerminalError(t *testing.T) {
	r := NewMessageRouter()
	sub := r.Subscribe(messages.PacketAddrs)

	boom := errors.New("boom")
	assert.Equal(t, 1, r.NotifyError(boom))
	assert.Zero(t, r.NotifyError(boom))
	assert.Zero(t, r.Notify(&messages.Addrs{}))

	_, err := sub.Receive(ctxTimeout(t, time.Second))
	assert.ErrorIs(t, err, ErrChannelStopped)
	assert.ErrorIs(t, err, boom)
}

// TestReceiveAs_TypeMismatch 测试类型断言失败
func TestReceiveAs_TypeMismatch(t *testing.T) {
	r := NewMessageRouter()
	sub := r.Subscribe(messages.PacketPing)
	r.Notify(&messages.Ping{})

	_, err := ReceiveAs[*messages.Pong](ctxTimeout(t, time.Second), sub)
	assert.ErrorIs(t, err, ErrUnexpectedMessage)

	sub.Unsubscribe()
	assert.Zero(t, r.Subscribers(messages.PacketPing))
}
