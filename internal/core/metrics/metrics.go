// Package metrics 提供 Prometheus 指标
//
// 所有方法对 nil *Metrics 安全，未启用指标时直接传 nil。
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	ch := channel.New(conn, settings, channel.WithMetrics(m))
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "p2pnet"

// 种子尝试结果标签
const (
	SeedOK     = "ok"
	SeedFailed = "failed"
)

// Metrics 网络核心指标集合
type Metrics struct {
	channelsActive   prometheus.Gauge
	channelsOpened   *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	sendErrors       prometheus.Counter
	seedAttempts     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New 创建并注册指标
//
// reg 为 nil 时使用独立的新 Registry。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		channelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "active",
			Help:      "Channels currently started and not yet stopped.",
		}),
		channelsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "opened_total",
			Help:      "Channels started, by direction.",
		}, []string{"direction"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Messages decoded by receive loops, by packet type.",
		}, []string{"packet"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_sent_total",
			Help:      "Messages written to channels, by packet type.",
		}, []string{"packet"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "send_errors_total",
			Help:      "Sends that failed with an I/O error and stopped the channel.",
		}),
		seedAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seed",
			Name:      "attempts_total",
			Help:      "Seed bootstrap attempts, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.channelsActive,
		m.channelsOpened,
		m.messagesReceived,
		m.messagesSent,
		m.sendErrors,
		m.seedAttempts,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ChannelStarted 记录通道启动
func (m *Metrics) ChannelStarted(direction string) {
	if m == nil {
		return
	}
	m.channelsActive.Inc()
	m.channelsOpened.WithLabelValues(direction).Inc()
}

// ChannelStopped 记录通道停止
func (m *Metrics) ChannelStopped() {
	if m == nil {
		return
	}
	m.channelsActive.Dec()
}

// MessageReceived 记录收到的消息
func (m *Metrics) MessageReceived(packet string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(packet).Inc()
}

// MessageSent 记录发送的消息
func (m *Metrics) MessageSent(packet string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(packet).Inc()
}

// SendError 记录发送失败
func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// SeedAttempt 记录一次种子尝试
func (m *Metrics) SeedAttempt(result string) {
	if m == nil {
		return
	}
	m.seedAttempts.WithLabelValues(result).Inc()
}

// Handler 返回 /metrics HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
