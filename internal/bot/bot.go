package bot

import (
	"context"
	"fmt"
	"indodax-monitor-bot/internal/downloader"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/metrics"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/monitor"
	"indodax-monitor-bot/internal/notifier"
	"indodax-monitor-bot/internal/persistence"
	"indodax-monitor-bot/internal/statemanager"
	"indodax-monitor-bot/internal/usecase"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timeSyncer 由需要校准服务器时间的交易所实现 (Indodax)
type timeSyncer interface {
	SyncTime(ctx context.Context) error
}

// MonitorBot 是监控机器人的核心结构, 负责组装并管理所有组件的生命周期
type MonitorBot struct {
	config     *models.Config
	repo       persistence.Repository
	stores     *statemanager.Stores
	exchange   exchange.Exchange
	dispatcher *notifier.Dispatcher
	metrics    *metrics.Metrics
	supervisor *monitor.Supervisor
	server     *metrics.Server
	logger     *zap.Logger

	alerts     *usecase.AlertUsecase
	orders     *usecase.OrderUsecase
	stoplosses *usecase.StoplossUsecase
	account    *usecase.AccountUsecase

	mu        sync.Mutex
	isRunning bool
}

// New 根据配置创建存储、交易所和通知渠道, 并组装机器人
func New(cfg *models.Config, logger *zap.Logger) (*MonitorBot, error) {
	repo, err := persistence.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}

	ex, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("初始化交易所失败: %w", err)
	}

	var n notifier.Notifier
	switch cfg.Notifier.Kind {
	case "telegram":
		tg, err := notifier.NewTelegramNotifier(cfg.Notifier.TelegramToken, logger)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("初始化Telegram失败: %w", err)
		}
		n = tg
	default:
		n = notifier.NewLogNotifier(logger)
	}

	return newMonitorBot(cfg, repo, ex, n, logger)
}

func newMonitorBot(cfg *models.Config, repo persistence.Repository, ex exchange.Exchange, n notifier.Notifier, logger *zap.Logger) (*MonitorBot, error) {
	pairs, err := downloader.LoadPairs(cfg.PairsFile)
	if err != nil {
		logger.Warn("Failed to load pair catalogue, accepting every pair", zap.String("path", cfg.PairsFile), zap.Error(err))
		pairs = nil
	}
	if len(pairs) == 0 {
		logger.Info("Pair catalogue is empty, accepting every pair")
	}

	m := metrics.New()
	dispatcher := notifier.NewDispatcher(n, notifier.DispatcherConfig{
		Workers:  cfg.Notifier.Workers,
		Capacity: cfg.Notifier.Capacity,
		Timeout:  time.Duration(cfg.Notifier.TimeoutSec) * time.Second,
		OnFailure: func(userID string, err error) {
			m.IncNotificationFailed()
		},
	}, logger)

	stores := statemanager.NewStores(repo, logger)
	catalogue := usecase.NewPairCatalogue(cfg.Exchange.QuoteAsset, pairs)
	access := usecase.NewAccess(cfg.Maintenance, cfg.Owners)

	b := &MonitorBot{
		config:     cfg,
		repo:       repo,
		stores:     stores,
		exchange:   ex,
		dispatcher: dispatcher,
		metrics:    m,
		supervisor: monitor.NewEngine(cfg.Monitor, stores, ex, dispatcher, m, logger),
		logger:     logger,
		alerts:     usecase.NewAlertUsecase(stores.Alerts, ex, catalogue, access),
		orders:     usecase.NewOrderUsecase(stores.Orders, ex, catalogue, access, logger),
		stoplosses: usecase.NewStoplossUsecase(stores.Stoplosses, ex, catalogue, access),
		account:    usecase.NewAccountUsecase(ex, access),
	}
	if cfg.Metrics.Port > 0 {
		b.server = metrics.NewServer(cfg.Metrics.Port, m, b.supervisor, logger)
	}
	return b, nil
}

// Start 启动所有监控循环和指标服务
func (b *MonitorBot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isRunning {
		return fmt.Errorf("机器人已在运行")
	}

	if s, ok := b.exchange.(timeSyncer); ok {
		if err := s.SyncTime(ctx); err != nil {
			// 时间校准失败时使用本地时钟继续运行
			b.logger.Warn("Failed to sync exchange time", zap.Error(err))
		}
	}

	b.supervisor.Start(ctx)
	if b.server != nil {
		b.server.Start()
	}
	b.isRunning = true
	b.logger.Info("Monitor bot started",
		zap.String("exchange", b.config.Exchange.Name),
		zap.String("storage", b.config.Storage.Driver),
		zap.Bool("maintenance", b.config.Maintenance))
	return nil
}

// Stop 停止循环, 等待待发送的通知完成, 然后关闭存储
func (b *MonitorBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.supervisor.Stop()
	b.dispatcher.Stop()
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.server.Stop(ctx); err != nil {
			b.logger.Warn("Failed to stop metrics server", zap.Error(err))
		}
		cancel()
	}
	if b.repo != nil {
		if err := b.repo.Close(); err != nil {
			b.logger.Warn("Failed to close storage", zap.Error(err))
		}
		b.repo = nil
	}
	b.isRunning = false
	b.logger.Info("Monitor bot stopped")
}

func (b *MonitorBot) Alerts() *usecase.AlertUsecase        { return b.alerts }
func (b *MonitorBot) Orders() *usecase.OrderUsecase        { return b.orders }
func (b *MonitorBot) Stoplosses() *usecase.StoplossUsecase { return b.stoplosses }
func (b *MonitorBot) Account() *usecase.AccountUsecase     { return b.account }
func (b *MonitorBot) Stores() *statemanager.Stores         { return b.stores }
func (b *MonitorBot) Supervisor() *monitor.Supervisor      { return b.supervisor }
