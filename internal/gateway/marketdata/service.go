package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"botcore/internal/gateway/binance"
	"botcore/internal/logger"
	"botcore/internal/metrics"
	"botcore/internal/pkg/circuit"

	"golang.org/x/sync/errgroup"
)

var ErrNoSources = errors.New("no market data sources configured")

const (
	sourceRiskAssets = "risk_assets"
	sourceMacro      = "macro_and_fed"
	sourceCatalysts  = "catalysts_news"
	sourceFunding    = "crypto_funding"
)

type QuoteSource interface {
	Quotes(ctx context.Context) (map[string]Asset, error)
}

type ResearchSource interface {
	Research(ctx context.Context, topic Topic, now time.Time) (string, error)
}

type FundingSource interface {
	FundingPulse(ctx context.Context) (binance.FundingPulse, error)
}

// Context 是一次市场环境快照，整体以 JSON 写入 market_data_note。
type Context struct {
	Symbol        string                `json:"symbol"`
	Timestamp     time.Time             `json:"timestamp"`
	RiskAssets    map[string]Asset      `json:"risk_assets"`
	MacroAndFed   string                `json:"macro_and_fed,omitempty"`
	CatalystsNews string                `json:"catalysts_news,omitempty"`
	CryptoFunding *binance.FundingPulse `json:"crypto_funding,omitempty"`
	// Errors 记录失败的子来源；成功来源仍然可用。
	Errors map[string]string `json:"errors,omitempty"`
}

type Options struct {
	Quotes   QuoteSource
	Research ResearchSource
	Funding  FundingSource
	Timeout  time.Duration
	// BreakerFailures/BreakerCooldown 配置每个来源的熔断器。
	BreakerFailures int
	BreakerCooldown time.Duration
	Metrics         *metrics.Recorder
	Now             func() time.Time
}

// Service 并发拉取各子来源；任一来源失败只降级为错误条目。
type Service struct {
	opts     Options
	breakers map[string]*circuit.CircuitBreaker
}

func NewService(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 3
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 5 * time.Minute
	}
	s := &Service{opts: opts, breakers: make(map[string]*circuit.CircuitBreaker)}
	for _, name := range []string{sourceRiskAssets, sourceMacro, sourceCatalysts, sourceFunding} {
		cb := circuit.NewCircuitBreaker(name, opts.BreakerFailures, opts.BreakerCooldown).WithClock(opts.Now)
		rec := opts.Metrics
		cb.SetStateChangeHandler(func(source string, from, to circuit.State) {
			logger.Warnf("[market] 上游 %s 熔断状态 %s -> %s", source, from, to)
			rec.SetBreakerState(source, int(to))
		})
		s.breakers[name] = cb
	}
	return s
}

func (s *Service) Configured() bool {
	return s != nil && (s.opts.Quotes != nil || s.opts.Research != nil || s.opts.Funding != nil)
}

// Fetch 收集完整的市场环境。只有全部已配置来源都失败时才返回错误。
func (s *Service) Fetch(ctx context.Context, symbol string) (Context, error) {
	if !s.Configured() {
		return Context{}, ErrNoSources
	}
	now := s.opts.Now().UTC()
	out := Context{Symbol: symbol, Timestamp: now, RiskAssets: map[string]Asset{}}

	var (
		mu        sync.Mutex
		attempted int
		failed    int
	)
	record := func(source string, err error) {
		mu.Lock()
		defer mu.Unlock()
		attempted++
		if err == nil {
			return
		}
		failed++
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[source] = err.Error()
		logger.Warnf("[market] %s %s 拉取失败: %v", symbol, source, err)
	}

	var group errgroup.Group
	if s.opts.Quotes != nil {
		group.Go(func() error {
			err := s.guard(ctx, sourceRiskAssets, func(cctx context.Context) error {
				assets, err := s.opts.Quotes.Quotes(cctx)
				if err != nil {
					return err
				}
				mu.Lock()
				out.RiskAssets = assets
				mu.Unlock()
				return nil
			})
			record(sourceRiskAssets, err)
			return nil
		})
	}
	if s.opts.Research != nil {
		for _, topic := range []Topic{TopicMacro, TopicCatalysts} {
			topic := topic
			group.Go(func() error {
				err := s.guard(ctx, string(topic), func(cctx context.Context) error {
					text, err := s.opts.Research.Research(cctx, topic, now)
					if err != nil {
						return err
					}
					mu.Lock()
					if topic == TopicMacro {
						out.MacroAndFed = text
					} else {
						out.CatalystsNews = text
					}
					mu.Unlock()
					return nil
				})
				record(string(topic), err)
				return nil
			})
		}
	}
	if s.opts.Funding != nil {
		group.Go(func() error {
			err := s.guard(ctx, sourceFunding, func(cctx context.Context) error {
				pulse, err := s.opts.Funding.FundingPulse(cctx)
				if err != nil {
					return err
				}
				mu.Lock()
				out.CryptoFunding = &pulse
				mu.Unlock()
				return nil
			})
			record(sourceFunding, err)
			return nil
		})
	}
	_ = group.Wait()

	if attempted > 0 && failed == attempted {
		return out, fmt.Errorf("market data for %s: all %d sources failed", symbol, failed)
	}
	return out, nil
}

func (s *Service) guard(ctx context.Context, source string, fn func(context.Context) error) error {
	cb := s.breakers[source]
	return cb.Do(func() error {
		cctx := ctx
		if s.opts.Timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
		}
		return fn(cctx)
	})
}
