package app

import (
	"context"
	"fmt"
	"strings"

	"botcore/internal/agent"
	"botcore/internal/analysis/visual"
	"botcore/internal/chartobs"
	brcfg "botcore/internal/config"
	"botcore/internal/gateway/binance"
	"botcore/internal/gateway/chartimg"
	"botcore/internal/gateway/marketdata"
	"botcore/internal/gateway/provider"
	"botcore/internal/logger"
	"botcore/internal/metrics"
	"botcore/internal/prompt"
)

const (
	chartProviderRemote = "chartimg"
	chartProviderLocal  = "local"
	chartProviderNone   = "none"
)

// buildMarketService 组装市场环境来源；未配置密钥的来源直接跳过。
// 没有任何来源时返回 nil，市场分支在上下文中输出错误段落。
func buildMarketService(cfg brcfg.Config, models *modelSet, rec *metrics.Recorder) (agent.MarketFetcher, []string, error) {
	opts := marketdata.Options{
		Timeout:         cfg.Market.Timeout(),
		BreakerFailures: cfg.Market.BreakerFailures,
		BreakerCooldown: cfg.Market.BreakerCooldown(),
		Metrics:         rec,
	}
	var sources []string

	if key := strings.TrimSpace(cfg.Secrets.RapidAPIKey); key != "" {
		quotes, err := marketdata.NewYahooQuotes(marketdata.YahooConfig{
			Host:    cfg.Market.RapidAPIHost,
			APIKey:  key,
			Symbols: cfg.Market.RiskSymbols,
			Timeout: cfg.Market.Timeout(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init yahoo quotes: %w", err)
		}
		opts.Quotes = quotes
		sources = append(sources, "yahoo")
	}
	if models != nil && models.research != nil {
		opts.Research = marketdata.NewResearcher(models.research)
		sources = append(sources, "research:"+models.research.ID())
	}
	if sym := strings.TrimSpace(cfg.Market.BinanceSymbol); sym != "" {
		opts.Funding = binance.New(binance.Config{
			RESTBaseURL: cfg.Market.BinanceBaseURL,
			HTTPTimeout: cfg.Market.Timeout(),
			Symbol:      sym,
		})
		sources = append(sources, "binance:"+strings.ToUpper(sym))
	}

	svc := marketdata.NewService(opts)
	if !svc.Configured() {
		logger.Warnf("未配置任何市场环境来源，市场分支将降级")
		return nil, nil, nil
	}
	logger.Infof("✓ 市场环境来源: %s", strings.Join(sources, ", "))
	return svc, sources, nil
}

// buildChartObserver 选择图表来源：chartimg 为主、本地 echarts 渲染为后备。
func buildChartObserver(ctx context.Context, cfg brcfg.Config, models *modelSet, prompts *prompt.Registry, rec *metrics.Recorder) (agent.ChartDescriber, string, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Chart.Provider))
	if kind == chartProviderNone {
		return nil, chartProviderNone, nil
	}
	if models == nil || models.vision == nil {
		logger.Warnf("没有可用的视觉模型，图表分析关闭")
		return nil, chartProviderNone, nil
	}

	opts := chartobs.Options{
		Model:         models.vision,
		Instruction:   func() string { return prompts.MustGet(prompt.NameVision) },
		RenderTimeout: cfg.Chart.Timeout(),
		CallTimeout:   cfg.AI.Timeout(),
		MaxTokens:     cfg.AI.MaxTokens,
		Temperature:   provider.Float(cfg.AI.Temperature),
		Metrics:       rec,
	}
	local := localRenderer(ctx, cfg.Chart)

	var names []string
	switch kind {
	case chartProviderLocal:
		if local == nil {
			return nil, chartProviderNone, nil
		}
		opts.Renderer = local
		names = append(names, local.Name())
	default:
		remote, err := chartimg.New(chartimg.Config{
			BaseURL:      cfg.Chart.APIURL,
			APIKey:       cfg.Secrets.ChartImgKey,
			Width:        cfg.Chart.Width,
			Height:       cfg.Chart.Height,
			Theme:        cfg.Chart.Theme,
			SymbolPrefix: cfg.Chart.SymbolPrefix,
			Timeout:      cfg.Chart.Timeout(),
		})
		if err != nil {
			logger.Warnf("chart-img 不可用: %v", err)
		} else {
			opts.Renderer = remote
			names = append(names, remote.Name())
		}
		if local != nil {
			opts.Fallback = local
			names = append(names, local.Name())
		}
		if opts.Renderer == nil && opts.Fallback == nil {
			return nil, chartProviderNone, nil
		}
	}

	client, err := chartobs.New(opts)
	if err != nil {
		return nil, "", fmt.Errorf("init chart observer: %w", err)
	}
	source := strings.Join(names, "+")
	logger.Infof("✓ 图表来源 %s，视觉模型 %s", source, models.vision.ID())
	return client, source, nil
}

// localRenderer 仅在本机可启动 headless Chrome 时返回渲染器。
func localRenderer(ctx context.Context, cfg brcfg.ChartConfig) *visual.Renderer {
	if err := visual.EnsureHeadlessAvailable(ctx); err != nil {
		logger.Warnf("headless Chrome 不可用，本地图表渲染关闭: %v", err)
		return nil
	}
	return visual.NewRenderer(cfg.Width, cfg.Height)
}
