package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"botcore/internal/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIModelProvider 通过 openai-go 调用 /chat/completions；兼容 OpenRouter 等同构网关。
type OpenAIModelProvider struct {
	id        string
	model     string
	vision    bool
	maxTokens int
	temp      *float64
	client    openai.Client
}

type OpenAIOptions struct {
	ID          string
	BaseURL     string
	APIKey      string
	Model       string
	Vision      bool
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	MaxRetries  int
	Headers     map[string]string
}

func NewOpenAIModelProvider(opts OpenAIOptions) (*OpenAIModelProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("openai %s: %w", opts.Model, ErrMissingAPIKey)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	for k, v := range opts.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = "openai:" + opts.Model
	}
	return &OpenAIModelProvider{
		id:        id,
		model:     opts.Model,
		vision:    opts.Vision,
		maxTokens: opts.MaxTokens,
		temp:      opts.Temperature,
		client:    openai.NewClient(reqOpts...),
	}, nil
}

// normalizeBaseURL 去掉误写进配置的 /chat/completions，并保证结尾斜杠。
func normalizeBaseURL(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	if url == "" {
		return ""
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/"
}

func (p *OpenAIModelProvider) ID() string           { return p.id }
func (p *OpenAIModelProvider) Enabled() bool        { return true }
func (p *OpenAIModelProvider) SupportsVision() bool { return p.vision }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(payload.System) != "" {
		messages = append(messages, openai.SystemMessage(payload.System))
	}
	user, err := p.userMessage(payload)
	if err != nil {
		return "", err
	}
	messages = append(messages, user)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	if n := firstPositive(payload.MaxTokens, p.maxTokens); n > 0 {
		params.MaxTokens = openai.Int(int64(n))
	}
	if t := firstFloat(payload.Temperature, p.temp); t != nil {
		params.Temperature = openai.Float(*t)
	}

	logger.LogLLMRequest("chat", p.id, payload.Purpose, payload.System, payload.User, imageLabels(payload.Images))
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.LogLLMError("chat", p.id, payload.Purpose, err)
		return "", fmt.Errorf("%s: %w", p.id, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.id, ErrEmptyResponse)
	}
	out := resp.Choices[0].Message.Content
	logger.LogLLMResponse("chat", p.id, payload.Purpose, out)
	logger.Debugf("[AI] %s 完成 purpose=%s elapsed=%s tokens=%d", p.id, payload.Purpose,
		time.Since(start).Truncate(time.Millisecond), resp.Usage.TotalTokens)
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s: %w", p.id, ErrEmptyResponse)
	}
	return out, nil
}

func (p *OpenAIModelProvider) userMessage(payload ChatPayload) (openai.ChatCompletionMessageParamUnion, error) {
	if len(payload.Images) == 0 {
		return openai.UserMessage(payload.User), nil
	}
	if !p.vision {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("%s does not accept images", p.id)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, 1+2*len(payload.Images))
	if strings.TrimSpace(payload.User) != "" {
		parts = append(parts, openai.TextContentPart(payload.User))
	}
	for _, img := range payload.Images {
		if img.Description != "" {
			parts = append(parts, openai.TextContentPart(img.Description))
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.DataURI}))
	}
	return openai.UserMessage(parts), nil
}

func imageLabels(images []ImagePayload) []string {
	if len(images) == 0 {
		return nil
	}
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, fmt.Sprintf("%s (%d bytes)", img.Description, len(img.DataURI)))
	}
	return out
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
