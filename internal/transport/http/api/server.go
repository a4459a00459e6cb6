// Package apihttp 是 MT5 EA 轮询使用的 HTTP 接口。
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"botcore/internal/agent"
	"botcore/internal/decision"
	"botcore/internal/logger"
	"botcore/internal/metrics"
	"botcore/internal/store"
	"botcore/internal/store/decisionlog"

	"github.com/gin-gonic/gin"
)

// DecisionService 对应 agent.Service。
type DecisionService interface {
	RunSOD(ctx context.Context, req agent.Request) decision.Decision
	RunIntraday(ctx context.Context, req agent.Request) decision.Decision
	Snapshot(ctx context.Context, req agent.Request) decision.Decision
}

// TradeStore 是 execute / store_positions 需要的持久化能力。
type TradeStore interface {
	SaveTradeEvent(ctx context.Context, event store.TradeEvent) error
	ReplacePositions(ctx context.Context, symbol string, positions []store.Position) error
}

type DecisionLog interface {
	Recent(ctx context.Context, symbol string, limit int) ([]decisionlog.Record, error)
}

// Server 提供 /api/health 与 /api/trading/* 接口。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr      string
	Version   string
	Decisions DecisionService
	Trades    TradeStore
	// Logs 为 nil 时 /api/trading/decisions 返回 503。
	Logs    DecisionLog
	Metrics *metrics.Recorder
	// MaxBodyBytes 限制请求体大小（K 线数组可能较大）。
	MaxBodyBytes int64
	Now          func() time.Time
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Decisions == nil {
		return nil, errors.New("api server requires a decision service")
	}
	if cfg.Trades == nil {
		return nil, errors.New("api server requires a trade store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Metrics), bodyLimit(cfg.MaxBodyBytes))

	NewRouter(cfg).Register(router)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":               "Endpoint not found",
			"available_endpoints": Endpoints,
		})
	})
	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录每个请求并上报 HTTP 指标。
func requestLogger(rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.ObserveHTTP(route, c.Request.Method, status, dur)
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, c.Request.URL.Path, status, c.ClientIP(), dur)
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.router
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[api] 监听 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
