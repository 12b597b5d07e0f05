// Package main 提供 p2pnode 命令行入口
//
// 启动一个网络核心节点：从种子同步地址簿，可选接受入站连接并提供指标服务。
//
//	p2pnode -config node.toml
//	p2pnode -listen 0.0.0.0:7700 -seeds seed1.example.org:7700,seed2.example.org:7700
//	p2pnode -listen 0.0.0.0:7700 -skip-seed -metrics 127.0.0.1:6060
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/debug/introspect"
	"github.com/dep2p/go-p2pnet/internal/p2p"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("cmd/p2pnode")

// ════════════════════════════════════════════════════════════════════════════
// 命令行参数
// ════════════════════════════════════════════════════════════════════════════
//
// 命令行参数覆盖配置文件中的同名设置。
var (
	configFile = flag.String("config", "", "配置文件路径（.json 或 .toml）")
	listenAddr = flag.String("listen", "", "入站监听地址（host:port）")
	external   = flag.String("external", "", "对外公布的地址（host:port）")
	seeds      = flag.String("seeds", "", "种子地址列表，逗号分隔")
	skipSeed   = flag.Bool("skip-seed", false, "跳过种子同步")
	hostsPath  = flag.String("hosts", "", "地址簿持久化目录")
	metrics    = flag.String("metrics", "", "指标与诊断 HTTP 地址")
	logJSON    = flag.Bool("log-json", false, "以 JSON 格式输出日志")
	fxLog      = flag.Bool("fx-log", false, "输出依赖注入事件日志")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	log.ConfigureFromEnv()
	if *logJSON {
		log.SetOutputJSON(os.Stderr)
	}

	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	app := fx.New(
		fx.WithLogger(fxLogger),
		fx.StartTimeout(startTimeout(settings)),
		fx.Supply(settings),
		p2p.Module(),
		introspect.Module(),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout(settings))
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	logger.Info("node running", "inbound", settings.InboundAddr, "seeds", len(settings.Seeds), "metrics", settings.MetricsAddr)

	waitForSignal()
	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}

// loadSettings 加载配置文件并应用命令行覆盖
func loadSettings() (*config.Settings, error) {
	settings := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}

	if *listenAddr != "" {
		settings.InboundAddr = *listenAddr
	}
	if *external != "" {
		settings.ExternalAddr = *external
	}
	if *seeds != "" {
		settings.Seeds = nil
		for _, s := range strings.Split(*seeds, ",") {
			if s = strings.TrimSpace(s); s != "" {
				settings.Seeds = append(settings.Seeds, s)
			}
		}
	}
	if *skipSeed {
		settings.SkipSeedSync = true
	}
	if *hostsPath != "" {
		settings.HostsPath = *hostsPath
	}
	if *metrics != "" {
		settings.MetricsAddr = *metrics
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// startTimeout 估算种子同步所需的最长启动时间
//
// 每轮并发尝试最多耗时 ConnectTimeout + SeedQueryTimeout。
func startTimeout(s *config.Settings) time.Duration {
	rounds := 1
	if s.SeedConcurrency > 0 && len(s.Seeds) > s.SeedConcurrency {
		rounds = (len(s.Seeds) + s.SeedConcurrency - 1) / s.SeedConcurrency
	}
	perRound := s.ConnectTimeout.Duration() + s.SeedQueryTimeout.Duration()
	return time.Duration(rounds)*perRound + 10*time.Second
}

func fxLogger() fxevent.Logger {
	if !*fxLog {
		return fxevent.NopLogger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: l}
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
