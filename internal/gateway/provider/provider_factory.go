package provider

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	// KindOpenRouter 走 OpenAI 兼容协议，用于 Perplexity 等检索模型。
	KindOpenRouter = "openrouter"
)

type ModelCfg struct {
	ID, Provider, APIURL, APIKey, Model string
	SupportsVision                      bool
	MaxTokens                           int
	Temperature                         *float64
	Headers                             map[string]string
}

// Build 根据配置创建单个 provider；未知类型返回错误。
func Build(m ModelCfg, timeout time.Duration) (ModelProvider, error) {
	switch strings.ToLower(strings.TrimSpace(m.Provider)) {
	case KindOpenAI, KindOpenRouter, "":
		return NewOpenAIModelProvider(OpenAIOptions{
			ID:          m.ID,
			BaseURL:     m.APIURL,
			APIKey:      m.APIKey,
			Model:       m.Model,
			Vision:      m.SupportsVision,
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			Timeout:     timeout,
			Headers:     m.Headers,
		})
	case KindAnthropic:
		return NewAnthropicModelProvider(AnthropicOptions{
			ID:          m.ID,
			BaseURL:     m.APIURL,
			APIKey:      m.APIKey,
			Model:       m.Model,
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			Timeout:     timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported model provider %q", m.Provider)
	}
}
