package models

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Exchange    ExchangeConfig `json:"exchange" yaml:"exchange"`
	Storage     StorageConfig  `json:"storage" yaml:"storage"`
	Notifier    NotifierConfig `json:"notifier" yaml:"notifier"`
	Monitor     MonitorConfig  `json:"monitor" yaml:"monitor"`
	Metrics     MetricsConfig  `json:"metrics" yaml:"metrics"`
	LogConfig   LogConfig      `json:"log" yaml:"log"`
	PairsFile   string         `json:"pairs_file" yaml:"pairs_file"`   // 交易对目录文件, 例如 "pairs.json"
	Maintenance bool           `json:"maintenance" yaml:"maintenance"` // 维护模式: 仅 owners 可以修改数据
	Owners      []string       `json:"owners" yaml:"owners"`           // 拥有者用户ID列表
}

// ExchangeConfig 定义了交易所连接配置
type ExchangeConfig struct {
	Name           string `json:"name" yaml:"name"`         // "indodax" 或 "binance"
	BaseURL        string `json:"base_url" yaml:"base_url"` // REST API基础地址
	APIKey         string `json:"api_key" yaml:"api_key"`
	SecretKey      string `json:"secret_key" yaml:"secret_key"`
	TimeoutSec     int    `json:"timeout_sec" yaml:"timeout_sec"`           // 单次HTTP请求超时(秒)
	RequestsPerSec int    `json:"requests_per_sec" yaml:"requests_per_sec"` // 请求速率上限
	RetryAttempts  int    `json:"retry_attempts" yaml:"retry_attempts"`     // 网络失败时的重试次数
	RetryInitialMs int    `json:"retry_initial_delay_ms" yaml:"retry_initial_delay_ms"`
	PairsSourceURL string `json:"pairs_source_url" yaml:"pairs_source_url"` // 交易对目录来源 (CoinGecko)
	MinOrderTotal  int    `json:"min_order_total" yaml:"min_order_total"`   // 买单最小总额 (IDR)
	QuoteAsset     string `json:"quote_asset" yaml:"quote_asset"`           // 裸币种符号补全的计价资产, indodax 默认 idr, binance 默认 usdt
}

// StorageConfig 定义了持久化配置
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "file", "badger" 或 "sqlite"
	Path   string `json:"path" yaml:"path"`     // file: 目录; badger: 目录; sqlite: 数据库文件
}

// NotifierConfig 定义了通知渠道配置
type NotifierConfig struct {
	Kind          string `json:"kind" yaml:"kind"` // "telegram" 或 "log"
	TelegramToken string `json:"telegram_token" yaml:"telegram_token"`
	Workers       int    `json:"workers" yaml:"workers"`   // 异步发送的工作协程数
	Capacity      int    `json:"capacity" yaml:"capacity"` // 待发送队列容量
	TimeoutSec    int    `json:"timeout_sec" yaml:"timeout_sec"`
}

// MonitorConfig 定义了三个对账循环的运行参数
type MonitorConfig struct {
	AlertIntervalSec     int `json:"alert_interval_sec" yaml:"alert_interval_sec"`
	OrderFillIntervalSec int `json:"order_fill_interval_sec" yaml:"order_fill_interval_sec"`
	StoplossIntervalSec  int `json:"stoploss_interval_sec" yaml:"stoploss_interval_sec"`
	OrderHistoryWindow   int `json:"order_history_window" yaml:"order_history_window"` // 每次查询的最近订单数量
	TickTimeoutSec       int `json:"tick_timeout_sec" yaml:"tick_timeout_sec"`
	RecordTimeoutSec     int `json:"record_timeout_sec" yaml:"record_timeout_sec"` // 单条记录评估的超时, 不大于 tick_timeout_sec
}

// MetricsConfig 定义了 Prometheus 指标服务配置
type MetricsConfig struct {
	Port int `json:"port" yaml:"port"` // 0 表示关闭
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}
