package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"botcore/internal/agent"
	"botcore/internal/analysis/pattern"
	brcfg "botcore/internal/config"
	"botcore/internal/decision"
	"botcore/internal/gateway/provider"
	"botcore/internal/logger"
	"botcore/internal/metrics"
	"botcore/internal/notecache"
	"botcore/internal/prompt"
	"botcore/internal/scheduler"
	"botcore/internal/store"
	"botcore/internal/store/decisionlog"
	"botcore/internal/store/gormstore"
	apihttp "botcore/internal/transport/http/api"
)

// AppBuilder 按配置装配依赖；各 *Fn 字段可在测试中替换。
type AppBuilder struct {
	cfg *brcfg.Config

	storeFn       func(dsn string) (store.Store, error)
	decisionLogFn func(path string) (*decisionlog.Store, error)
	modelsFn      func(brcfg.Config) (*modelSet, error)
	chartsFn      func(context.Context, brcfg.Config, *modelSet, *prompt.Registry, *metrics.Recorder) (agent.ChartDescriber, string, error)
	marketFn      func(brcfg.Config, *modelSet, *metrics.Recorder) (agent.MarketFetcher, []string, error)

	now func() time.Time
}

type AppBuilderOption func(*AppBuilder)

// WithStore 跳过 DSN 解析，直接使用给定存储。
func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(string) (store.Store, error) { return st, nil }
	}
}

// WithModels 替换模型构建（测试用）。
func WithModels(fn func(brcfg.Config) (*modelSet, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.modelsFn = fn }
}

func WithClock(now func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) { b.now = now }
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		storeFn:       openStore,
		decisionLogFn: openDecisionLog,
		modelsFn:      buildModelSet,
		chartsFn:      buildChartObserver,
		marketFn:      buildMarketService,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(dsn string) (store.Store, error) {
	st, err := gormstore.NewGormStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("初始化状态存储失败: %w", err)
	}
	return st, nil
}

func openDecisionLog(path string) (*decisionlog.Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	logs, err := decisionlog.Open(path)
	if err != nil {
		return nil, fmt.Errorf("初始化决策日志存储失败: %w", err)
	}
	logPath := path
	if abs, err := filepath.Abs(logPath); err == nil && path != ":memory:" {
		logPath = abs
	}
	logger.Infof("✓ 决策日志写入 %s", logPath)
	return logs, nil
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	rec := metrics.New()

	prompts, err := prompt.NewRegistry(cfg.Prompts.OverridePath)
	if err != nil {
		return nil, err
	}

	models, err := b.modelsFn(*cfg)
	if err != nil {
		return nil, err
	}

	st, err := b.storeFn(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	logs, err := b.decisionLogFn(cfg.Database.DecisionLogPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	closeAll := func() {
		_ = st.Close()
		if logs != nil {
			_ = logs.Close()
		}
	}

	engine, err := decision.NewEngine(models.decision, decision.EngineOptions{
		Policy:      policyFromConfig(cfg.Decision),
		Timeout:     cfg.AI.Timeout(),
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: provider.Float(cfg.AI.Temperature),
		Metrics:     rec,
		Now:         b.now,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	charts, chartSource, err := b.chartsFn(ctx, *cfg, models, prompts, rec)
	if err != nil {
		closeAll()
		return nil, err
	}
	marketSvc, marketSources, err := b.marketFn(*cfg, models, rec)
	if err != nil {
		closeAll()
		return nil, err
	}

	params := agent.ServiceParams{
		Store:   st,
		Engine:  engine,
		Prompts: prompts,
		Charts:  charts,
		Market:  marketSvc,
		Notes: notecache.New(st,
			notecache.WithClock(b.now),
			notecache.WithMetrics(rec),
		),
		Metrics:        rec,
		PatternOptions: patternOptions(cfg.Analysis),
		MarketTTL:      cfg.Market.CacheTTL(),
		Bounds:         boundsFromConfig(cfg.Scheduler),
		Now:            b.now,
	}
	if logs != nil {
		params.Audit = logs
	}
	svc, err := agent.NewService(params)
	if err != nil {
		closeAll()
		return nil, err
	}

	serverCfg := apihttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Version:   cfg.App.Version,
		Decisions: svc,
		Trades:    st,
		Metrics:   rec,
		Now:       b.now,
	}
	if logs != nil {
		serverCfg.Logs = logs
	}
	api, err := apihttp.NewServer(serverCfg)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		service: svc,
		api:     api,
		store:   st,
		logs:    logs,
		prompts: prompts,
		Summary: &StartupSummary{
			Version:       cfg.App.Version,
			HTTPAddr:      api.Addr(),
			Database:      redactDSN(cfg.Database.DSN),
			DecisionLog:   cfg.Database.DecisionLogPath,
			DecisionModel: models.decision.ID(),
			VisionModel:   modelID(models.vision),
			ChartSource:   chartSource,
			MarketSources: marketSources,
			Prompts:       prompts.Snapshot().Prompts,
			Endpoints:     apihttp.Endpoints,
		},
	}, nil
}

func policyFromConfig(cfg brcfg.DecisionConfig) decision.Policy {
	return decision.Policy{
		DefaultNextRun:  time.Duration(cfg.DefaultNextRunMinutes) * time.Minute,
		ParseRetry:      time.Duration(cfg.ParseRetryMinutes) * time.Minute,
		ErrorRetry:      time.Duration(cfg.ErrorRetryMinutes) * time.Minute,
		MaxTradesPerDay: cfg.MaxTradesPerDay,
	}
}

// boundsFromConfig 在内置窗口基础上覆盖配置中出现的动作。
func boundsFromConfig(cfg brcfg.SchedulerConfig) scheduler.Bounds {
	bounds := scheduler.DefaultBounds()
	for action, w := range cfg.Windows {
		key := strings.ToUpper(strings.TrimSpace(action))
		if key == "" {
			continue
		}
		bounds[key] = scheduler.Window{
			Min: time.Duration(w.MinMinutes) * time.Minute,
			Max: time.Duration(w.MaxMinutes) * time.Minute,
		}
	}
	return bounds
}

func patternOptions(cfg brcfg.AnalysisConfig) func(string) pattern.Options {
	return func(symbol string) pattern.Options {
		return pattern.Options{
			PipScale:        cfg.PipScaleFor(symbol),
			NearPips:        cfg.NearPips,
			ApproachingPips: cfg.ApproachingPips,
			ImbalanceRatio:  cfg.ImbalanceRatio,
			TrendWindow:     cfg.TrendWindow,
		}
	}
}

// redactDSN 隐藏 Postgres 连接串中的密码。
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return dsn[:scheme+3] + creds[:colon] + ":***" + dsn[at:]
	}
	return dsn
}

func modelID(m provider.ModelProvider) string {
	if m == nil {
		return "-"
	}
	return m.ID()
}
