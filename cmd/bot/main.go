package main

import (
	"context"
	"flag"
	"indodax-monitor-bot/internal/bot"
	"indodax-monitor-bot/internal/config"
	"indodax-monitor-bot/internal/downloader"
	"indodax-monitor-bot/internal/logger"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/persistence"
	"indodax-monitor-bot/internal/reporter"
	"indodax-monitor-bot/internal/statemanager"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file (json or yaml)")
	mode := flag.String("mode", "run", "running mode: run, status or pairs")
	flag.Parse()

	// 先用默认配置初始化日志, 以便记录配置加载过程
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	zlog := logger.InitLogger(cfg.LogConfig)
	defer zlog.Sync()

	switch *mode {
	case "run":
		runMonitor(cfg, zlog)
	case "status":
		runStatus(cfg)
	case "pairs":
		runPairs(cfg, zlog)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'run'、'status' 或 'pairs'。", *mode)
	}
}

// runMonitor 启动所有监控循环, 直到收到中断信号
func runMonitor(cfg *models.Config, log *zap.Logger) {
	logger.S().Info("--- 启动监控模式 ---")

	monitorBot, err := bot.New(cfg, log)
	if err != nil {
		logger.S().Fatalf("机器人初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitorBot.Start(ctx); err != nil {
		logger.S().Fatalf("机器人启动失败: %v", err)
	}

	// 等待中断信号以实现优雅退出
	<-ctx.Done()
	monitorBot.Stop()
	logger.S().Info("机器人已成功停止。")
}

// runStatus 打印存储中的告警、订单和止损
func runStatus(cfg *models.Config) {
	repo, err := persistence.Open(cfg.Storage)
	if err != nil {
		logger.S().Fatalf("打开存储失败: %v", err)
	}
	defer repo.Close()

	stores := statemanager.NewStores(repo, logger.L())
	reporter.PrintSnapshot(os.Stdout, reporter.Snapshot{
		Alerts:     stores.Alerts.Read(),
		Orders:     stores.Orders.Read(),
		Stoplosses: stores.Stoplosses.Read(),
	})
}

// runPairs 从 CoinGecko 刷新交易对目录文件
func runPairs(cfg *models.Config, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pairs, err := downloader.NewPairsDownloader(cfg.Exchange.PairsSourceURL, log).Download(ctx)
	if err != nil {
		logger.S().Fatalf("下载交易对失败: %v", err)
	}
	if len(pairs) == 0 {
		logger.S().Warn("未获取到任何交易对，保留现有目录文件。")
		return
	}
	if err := downloader.Save(cfg.PairsFile, pairs); err != nil {
		logger.S().Fatalf("保存交易对目录失败: %v", err)
	}
	logger.S().Infof("已保存 %d 个交易对到 %s", len(pairs), cfg.PairsFile)
}
