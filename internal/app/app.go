package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"botcore/internal/agent"
	brcfg "botcore/internal/config"
	"botcore/internal/logger"
	"botcore/internal/prompt"
	"botcore/internal/store"
	"botcore/internal/store/decisionlog"
	apihttp "botcore/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg     *brcfg.Config
	service *agent.Service
	api     *apihttp.Server
	store   store.Store
	logs    *decisionlog.Store
	prompts *prompt.Registry
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFmt)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务，ctx 取消后释放存储。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.api == nil {
		return fmt.Errorf("api server not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.prompts != nil {
		a.prompts.Subscribe(func(snap prompt.Snapshot) {
			logger.Infof("[prompt] 已重新加载 v%d（%d 个模板）", snap.Version, len(snap.Prompts))
		})
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.api.Start(ctx); err != nil {
			return fmt.Errorf("api http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	if cerr := a.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Close 释放数据库连接；可重复调用。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// Service exposes the decision service (for replay harnesses and tests).
func (a *App) Service() *agent.Service {
	if a == nil {
		return nil
	}
	return a.service
}

// Handler 返回 HTTP 路由，测试时可直接使用 httptest。
func (a *App) Handler() http.Handler {
	if a == nil || a.api == nil {
		return nil
	}
	return a.api.Handler()
}
