package app

import (
	"fmt"
	"strings"

	brcfg "botcore/internal/config"
	"botcore/internal/gateway/provider"
	"botcore/internal/logger"
)

// modelSet 是一次装配用到的全部推理服务。
type modelSet struct {
	// decision 负责最终交易决策，必需。
	decision provider.ModelProvider
	// vision 负责图表描述；nil 时图表分支降级。
	vision provider.ModelProvider
	// research 是检索型模型（OpenRouter），用于宏观/新闻摘要。
	research provider.ModelProvider
}

func buildModelSet(cfg brcfg.Config) (*modelSet, error) {
	ai := cfg.AI
	key := apiKeyFor(ai.Provider, cfg.Secrets)
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("missing API key for provider %s", ai.Provider)
	}
	temp := provider.Float(ai.Temperature)
	decisionModel, err := provider.Build(provider.ModelCfg{
		ID:          ai.Provider + ":" + ai.Model,
		Provider:    ai.Provider,
		APIURL:      baseURLFor(ai.Provider, ai.APIURL),
		APIKey:      key,
		Model:       ai.Model,
		MaxTokens:   ai.MaxTokens,
		Temperature: temp,
	}, ai.Timeout())
	if err != nil {
		return nil, fmt.Errorf("build decision model: %w", err)
	}
	set := &modelSet{decision: decisionModel}
	logger.Infof("✓ 决策模型 %s", decisionModel.ID())

	if visionName := strings.TrimSpace(ai.VisionModel); visionName != "" && !strings.EqualFold(cfg.Chart.Provider, "none") {
		vision, err := provider.Build(provider.ModelCfg{
			ID:             ai.Provider + ":" + visionName + "#vision",
			Provider:       ai.Provider,
			APIURL:         baseURLFor(ai.Provider, ai.APIURL),
			APIKey:         key,
			Model:          visionName,
			SupportsVision: true,
			MaxTokens:      ai.MaxTokens,
			Temperature:    temp,
		}, ai.Timeout())
		if err != nil {
			logger.Warnf("视觉模型 %s 初始化失败，图表分析将降级: %v", visionName, err)
		} else {
			set.vision = vision
		}
	}

	if orKey := strings.TrimSpace(cfg.Secrets.OpenRouterKey); orKey != "" && strings.TrimSpace(cfg.Market.PerplexityModel) != "" {
		research, err := provider.Build(provider.ModelCfg{
			ID:       provider.KindOpenRouter + ":" + cfg.Market.PerplexityModel,
			Provider: provider.KindOpenRouter,
			APIURL:   cfg.Market.OpenRouterURL,
			APIKey:   orKey,
			Model:    cfg.Market.PerplexityModel,
		}, cfg.Market.Timeout())
		if err != nil {
			logger.Warnf("检索模型初始化失败，宏观/新闻来源关闭: %v", err)
		} else {
			set.research = research
		}
	} else {
		logger.Infof("未配置 OPENROUTER_API_KEY，宏观/新闻来源关闭")
	}
	return set, nil
}

func apiKeyFor(kind string, s brcfg.Secrets) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case provider.KindAnthropic:
		return s.AnthropicKey
	case provider.KindOpenRouter:
		return s.OpenRouterKey
	default:
		return s.OpenAIKey
	}
}

// baseURLFor 避免把 OpenAI 的默认地址传给 Anthropic SDK。
func baseURLFor(kind, url string) string {
	if strings.EqualFold(kind, provider.KindAnthropic) && strings.Contains(url, "openai.com") {
		return ""
	}
	return url
}
