package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/persistence"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultSourceURL 是 CoinGecko 上 Indodax 的行情列表
const DefaultSourceURL = "https://api.coingecko.com/api/v3/exchanges/indodax/tickers"

type tickersResponse struct {
	Tickers []struct {
		Base   string `json:"base"`
		Target string `json:"target"`
	} `json:"tickers"`
}

type pairsFile struct {
	Symbols []string `json:"symbols"`
}

// PairsDownloader 用于从 CoinGecko 下载交易对目录
type PairsDownloader struct {
	http      *exchange.HTTPClient
	sourceURL string
	logger    *zap.Logger
}

// NewPairsDownloader 创建一个新的下载器实例
func NewPairsDownloader(sourceURL string, logger *zap.Logger) *PairsDownloader {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &PairsDownloader{
		http: exchange.NewHTTPClient(exchange.HTTPOptions{
			Timeout:       10 * time.Second,
			RetryAttempts: 2,
		}),
		sourceURL: sourceURL,
		logger:    logger,
	}
}

// Download 返回排序去重后的 "<base>_<target>" 小写交易对
func (d *PairsDownloader) Download(ctx context.Context) ([]string, error) {
	body, err := d.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, d.sourceURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("下载交易对目录失败: %w", err)
	}

	var resp tickersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析交易对目录失败: %w", err)
	}

	var pairs []string
	for _, t := range resp.Tickers {
		base := strings.ToLower(strings.TrimSpace(t.Base))
		target := strings.ToLower(strings.TrimSpace(t.Target))
		if base == "" || target == "" {
			continue
		}
		pairs = append(pairs, base+"_"+target)
	}
	pairs = lo.Uniq(pairs)
	sort.Strings(pairs)

	d.logger.Info("Downloaded pair catalogue", zap.Int("pairs", len(pairs)), zap.String("source", d.sourceURL))
	return pairs, nil
}

// Save 以 {"symbols": [...]} 格式原子地写入目录文件
func Save(path string, pairs []string) error {
	if pairs == nil {
		pairs = []string{}
	}
	data, err := json.MarshalIndent(pairsFile{Symbols: pairs}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("无法创建目录 %s: %w", dir, err)
		}
	}
	return persistence.WriteFileAtomic(path, data, 0o644)
}

// LoadPairs 读取目录文件, 返回大写且排序后的交易对; 文件不存在时返回空列表
func LoadPairs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var f pairsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析目录文件 %s 失败: %w", path, err)
	}
	pairs := lo.Map(f.Symbols, func(s string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
	sort.Strings(pairs)
	return pairs, nil
}
