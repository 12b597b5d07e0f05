package protocols

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/hosts"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startPair 返回两个相连并已启动的通道
func startPair(t *testing.T, sa, sb *config.Settings) (*channel.Channel, *channel.Channel) {
	t.Helper()
	a, b := net.Pipe()
	ca := channel.New(a, sa)
	cb := channel.New(b, sb, channel.WithDirection(channel.DirectionInbound))
	require.NoError(t, ca.Start(context.Background()))
	require.NoError(t, cb.Start(context.Background()))
	t.Cleanup(func() {
		ca.Stop()
		cb.Stop()
	})
	return ca, cb
}

func newHosts(t *testing.T, addrs ...string) *hosts.Hosts {
	t.Helper()
	h, err := hosts.New(64)
	require.NoError(t, err)
	h.Store(addrs...)
	return h
}

// advanceUntil 推进 mock 时钟直到 cond 成立
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		mock.Add(step)
		return cond()
	}, 3*time.Second, 5*time.Millisecond)
}

// ============================================================================
//                              ProtocolPing
// ============================================================================

// TestProtocolPing_RespondsWithPong 测试响应 Ping
func TestProtocolPing_RespondsWithPong(t *testing.T) {
	settings := config.Default()
	ca, cb := startPair(t, settings, settings)

	p := NewProtocolPing(ca, settings, WithClock(clock.NewMock()))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	pongs := cb.SubscribeMsg(messages.PacketPong)
	ctx := ctxTimeout(t)
	require.NoError(t, cb.Send(ctx, &messages.Ping{Nonce: []byte("abc")}))

	pong, err := channel.ReceiveAs[*messages.Pong](ctx, pongs)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), pong.Nonce)
}

// TestProtocolPing_KeepsChannelAlive 测试 Pong 按时到达
func TestProtocolPing_KeepsChannelAlive(t *testing.T) {
	settings := config.Default()
	ca, cb := startPair(t, settings, settings)

	mock := clock.NewMock()
	prober := NewProtocolPing(ca, settings, WithClock(mock))
	responder := NewProtocolPing(cb, settings, WithClock(clock.NewMock()))
	require.NoError(t, responder.Start(context.Background()))
	require.NoError(t, prober.Start(context.Background()))
	t.Cleanup(prober.Stop)
	t.Cleanup(responder.Stop)

	observed := ca.SubscribeMsg(messages.PacketPong)
	ctx := ctxTimeout(t)
	got := make(chan error, 1)
	go func() {
		_, err := channel.ReceiveAs[*messages.Pong](ctx, observed)
		got <- err
	}()

	var err error
	advanceUntil(t, mock, time.Second, func() bool {
		select {
		case err = <-got:
			return true
		default:
			return false
		}
	})
	require.NoError(t, err)
	assert.False(t, ca.Stopped())
	t.Logf("✅ Pong 按时到达，通道保持")
}

// TestProtocolPing_TimeoutStopsChannel 测试探测超时停止通道
func TestProtocolPing_TimeoutStopsChannel(t *testing.T) {
	settings := config.Default()
	ca, cb := startPair(t, settings, settings)
	stops := cb.SubscribeStop()

	mock := clock.NewMock()
	p := NewProtocolPing(ca, settings, WithClock(mock))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	// cb 不运行 ProtocolPing，Ping 无人响应
	advanceUntil(t, mock, time.Second, ca.Stopped)

	_, err := stops.Receive(ctxTimeout(t))
	require.NoError(t, err, "peer observes the disconnect")
	t.Logf("✅ Ping 超时后通道被停止")
}

// TestProtocolPing_EndsWithChannel 测试通道停止后循环结束
func TestProtocolPing_EndsWithChannel(t *testing.T) {
	settings := config.Default()
	ca, _ := startPair(t, settings, settings)

	p := NewProtocolPing(ca, settings, WithClock(clock.NewMock()))
	require.NoError(t, p.Start(context.Background()))

	ca.Stop()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ping loops did not end after channel stop")
	}
}

// ============================================================================
//                              ProtocolSeed / ProtocolAddress
// ============================================================================

// TestProtocolSeed_Exchange 测试种子交换
func TestProtocolSeed_Exchange(t *testing.T) {
	client := config.Default()
	client.ExternalAddr = "192.0.2.10:7700"
	server := config.Default()
	ca, cb := startPair(t, client, server)

	clientHosts := newHosts(t)
	serverHosts := newHosts(t, "10.0.0.1:7700", "10.0.0.2:7700")

	addr := NewProtocolAddress(cb, server, serverHosts)
	require.NoError(t, addr.Start(context.Background()))
	t.Cleanup(addr.Stop)

	seed := NewProtocolSeed(ca, client, clientHosts)
	require.NoError(t, seed.Start(ctxTimeout(t)))

	assert.ElementsMatch(t, []string{"10.0.0.1:7700", "10.0.0.2:7700"}, clientHosts.All())
	assert.Eventually(t, func() bool {
		return serverHosts.Contains("192.0.2.10:7700")
	}, 2*time.Second, 10*time.Millisecond, "seed records the announced external address")
	t.Logf("✅ 种子交换成功")
}

// TestProtocolSeed_TruncatesReply 测试地址数上限
func TestProtocolSeed_TruncatesReply(t *testing.T) {
	client := config.Default()
	client.MaxAddrsPerMessage = 2
	server := config.Default()
	ca, cb := startPair(t, client, server)

	var known []string
	for i := 1; i <= 5; i++ {
		known = append(known, fmt.Sprintf("10.0.0.%d:7700", i))
	}
	clientHosts := newHosts(t)
	addr := NewProtocolAddress(cb, server, newHosts(t, known...))
	require.NoError(t, addr.Start(context.Background()))
	t.Cleanup(addr.Stop)

	require.NoError(t, NewProtocolSeed(ca, client, clientHosts).Start(ctxTimeout(t)))
	assert.Equal(t, 2, clientHosts.Len())
}

// TestProtocolSeed_Timeout 测试种子无响应
func TestProtocolSeed_Timeout(t *testing.T) {
	settings := config.Default()
	ca, _ := startPair(t, settings, settings)

	mock := clock.NewMock()
	seed := NewProtocolSeed(ca, settings, newHosts(t), WithClock(mock))

	errc := make(chan error, 1)
	go func() { errc <- seed.Start(context.Background()) }()

	var err error
	advanceUntil(t, mock, time.Second, func() bool {
		select {
		case err = <-errc:
			return true
		default:
			return false
		}
	})
	assert.ErrorIs(t, err, ErrSeedQueryTimeout)
}

// TestProtocolSeed_StoppedChannel 测试通道已停止
func TestProtocolSeed_StoppedChannel(t *testing.T) {
	settings := config.Default()
	ca, _ := startPair(t, settings, settings)
	ca.Stop()

	err := NewProtocolSeed(ca, settings, newHosts(t)).Start(ctxTimeout(t))
	assert.True(t, errors.Is(err, channel.ErrChannelStopped), "got %v", err)
}
