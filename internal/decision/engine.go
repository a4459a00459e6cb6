package decision

import (
	"context"
	"fmt"
	"time"

	"botcore/internal/gateway/provider"
	"botcore/internal/logger"
	"botcore/internal/metrics"

	"github.com/google/uuid"
)

const purpose = "decision"

// Engine 调用推理服务一次，并把自由文本转为经过校验的 Decision。
type Engine struct {
	model       provider.ModelProvider
	policy      Policy
	timeout     time.Duration
	maxTokens   int
	temperature *float64
	metrics     *metrics.Recorder
	now         func() time.Time
}

type EngineOptions struct {
	Policy      Policy
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
	Metrics     *metrics.Recorder
	Now         func() time.Time
}

func NewEngine(model provider.ModelProvider, opts EngineOptions) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("decision engine requires a model")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		model:       model,
		policy:      opts.Policy.withDefaults(),
		timeout:     opts.Timeout,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		metrics:     opts.Metrics,
		now:         now,
	}, nil
}

// Policy returns the validation parameters in use.
func (e *Engine) Policy() Policy { return e.policy }

// Decide 只在调用推理服务失败时返回 error（不重试）；解析失败返回 Fallback。
func (e *Engine) Decide(ctx context.Context, systemPrompt, bundle string, acct AccountState) (Decision, Trace, error) {
	trace := Trace{ID: uuid.NewString(), Model: e.model.ID(), StartedAt: e.now().UTC()}
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	start := time.Now()
	raw, err := e.model.Call(callCtx, provider.ChatPayload{
		System:      systemPrompt,
		User:        bundle,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		Purpose:     purpose,
	})
	trace.Latency = time.Since(start)
	e.metrics.ObserveLLM(purpose, trace.Latency, err)
	if err != nil {
		return Decision{}, trace, fmt.Errorf("reasoning call failed: %w", err)
	}
	trace.RawOutput = raw

	now := e.now()
	parsed, perr := Parse(raw)
	if perr != nil {
		trace.ParseError = perr.Error()
		logger.Warnf("[decision] trace=%s 解析失败，回退 WAIT: %v", trace.ID, perr)
		return Fallback(now, e.policy.ParseRetry, perr), trace, nil
	}
	return e.policy.Validate(parsed, acct, now), trace, nil
}
