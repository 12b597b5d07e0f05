package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/hosts"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("debug/introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// ============================================================================
//                              配置
// ============================================================================

// Node 被观察的网络上下文（*p2p.P2p 满足该接口）
type Node interface {
	Phase() lifecycle.Phase
	Hosts() *hosts.Hosts
	Channels() []*channel.Channel
	SeedResults() []error
	ListenAddr() net.Addr
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Node 可选的网络上下文
	Node Node

	// Metrics 可选的 /metrics 处理器
	Metrics http.Handler
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地自省 HTTP 服务
type Server struct {
	config Config

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{config: cfg}
}

// Start 启动服务，重复调用无效
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /debug/introspect", s.handleIntrospect)
	mux.HandleFunc("GET /debug/introspect/channels", s.handleChannels)
	mux.HandleFunc("GET /debug/introspect/hosts", s.handleHosts)
	mux.HandleFunc("GET /debug/introspect/seeds", s.handleSeeds)
	mux.HandleFunc("GET /debug/introspect/runtime", s.handleRuntime)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if s.config.Metrics != nil {
		mux.Handle("GET /metrics", s.config.Metrics)
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("introspect server exited", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	logger.Info("introspect server started", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务，重复调用无效
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("introspect server shutdown failed", "error", err)
		return err
	}

	s.running = false
	logger.Info("introspect server stopped")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Node      *NodeInfo     `json:"node,omitempty"`
	Channels  []ChannelInfo `json:"channels,omitempty"`
	Seeds     []SeedResult  `json:"seeds,omitempty"`
	Runtime   *RuntimeInfo  `json:"runtime"`
}

// NodeInfo 节点信息
type NodeInfo struct {
	Phase      string `json:"phase"`
	ListenAddr string `json:"listen_addr,omitempty"`
	Hosts      int    `json:"hosts"`
	Channels   int    `json:"channels"`
}

// ChannelInfo 通道信息
type ChannelInfo struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Direction string `json:"direction"`
}

// SeedResult 单个种子的同步结果
type SeedResult struct {
	Index int    `json:"index"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	Phase     string    `json:"phase,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

func (s *Server) handleIntrospect(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, IntrospectResponse{
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
		Node:      s.collectNodeInfo(),
		Channels:  s.collectChannels(),
		Seeds:     s.collectSeeds(),
		Runtime:   collectRuntimeInfo(),
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	if s.config.Node == nil {
		http.Error(w, "node not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.collectChannels())
}

func (s *Server) handleHosts(w http.ResponseWriter, _ *http.Request) {
	if s.config.Node == nil {
		http.Error(w, "node not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.config.Node.Hosts().All())
}

func (s *Server) handleSeeds(w http.ResponseWriter, _ *http.Request) {
	if s.config.Node == nil {
		http.Error(w, "node not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.collectSeeds())
}

func (s *Server) handleRuntime(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, collectRuntimeInfo())
}

// handleHealth 节点运行中时为 ok，否则为 degraded
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
	}
	if s.config.Node == nil {
		health.Status = "degraded"
	} else {
		phase := s.config.Node.Phase()
		health.Phase = phase.String()
		if phase != lifecycle.PhaseRunning {
			health.Status = "degraded"
		}
	}
	s.writeJSON(w, health)
}

// ============================================================================
//                              数据收集
// ============================================================================

func (s *Server) collectNodeInfo() *NodeInfo {
	if s.config.Node == nil {
		return nil
	}
	info := &NodeInfo{
		Phase:    s.config.Node.Phase().String(),
		Hosts:    s.config.Node.Hosts().Len(),
		Channels: len(s.config.Node.Channels()),
	}
	if addr := s.config.Node.ListenAddr(); addr != nil {
		info.ListenAddr = addr.String()
	}
	return info
}

func (s *Server) collectChannels() []ChannelInfo {
	if s.config.Node == nil {
		return nil
	}
	channels := s.config.Node.Channels()
	out := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ChannelInfo{
			ID:        ch.ID().String(),
			Address:   ch.Address(),
			Direction: ch.Direction(),
		})
	}
	return out
}

func (s *Server) collectSeeds() []SeedResult {
	if s.config.Node == nil {
		return nil
	}
	results := s.config.Node.SeedResults()
	out := make([]SeedResult, 0, len(results))
	for i, err := range results {
		r := SeedResult{Index: i, OK: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		out = append(out, r)
	}
	return out
}

func collectRuntimeInfo() *RuntimeInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

// ============================================================================
//                              辅助方法
// ============================================================================

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("encode response failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
