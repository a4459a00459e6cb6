package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"botcore/internal/logger"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4000

type AnthropicModelProvider struct {
	id        string
	model     string
	maxTokens int
	temp      *float64
	client    anthropic.Client
}

type AnthropicOptions struct {
	ID          string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	MaxRetries  int
}

func NewAnthropicModelProvider(opts AnthropicOptions) (*AnthropicModelProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("anthropic %s: %w", opts.Model, ErrMissingAPIKey)
	}
	reqOpts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(opts.APIKey),
		anthropicopt.WithMaxRetries(opts.MaxRetries),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, anthropicopt.WithBaseURL(base))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, anthropicopt.WithRequestTimeout(opts.Timeout))
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = "anthropic:" + opts.Model
	}
	return &AnthropicModelProvider{
		id:        id,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		temp:      opts.Temperature,
		client:    anthropic.NewClient(reqOpts...),
	}, nil
}

func (p *AnthropicModelProvider) ID() string           { return p.id }
func (p *AnthropicModelProvider) Enabled() bool        { return true }
func (p *AnthropicModelProvider) SupportsVision() bool { return true }

func (p *AnthropicModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+2*len(payload.Images))
	if strings.TrimSpace(payload.User) != "" {
		blocks = append(blocks, anthropic.NewTextBlock(payload.User))
	}
	for _, img := range payload.Images {
		mediaType, data, err := img.MediaType()
		if err != nil {
			return "", err
		}
		if img.Description != "" {
			blocks = append(blocks, anthropic.NewTextBlock(img.Description))
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
	}

	maxTokens := firstPositive(payload.MaxTokens, p.maxTokens, defaultAnthropicMaxTokens)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if strings.TrimSpace(payload.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: payload.System}}
	}
	if t := firstFloat(payload.Temperature, p.temp); t != nil {
		params.Temperature = anthropic.Float(*t)
	}

	logger.LogLLMRequest("chat", p.id, payload.Purpose, payload.System, payload.User, imageLabels(payload.Images))
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		logger.LogLLMError("chat", p.id, payload.Purpose, err)
		return "", fmt.Errorf("%s: %w", p.id, err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := b.String()
	logger.LogLLMResponse("chat", p.id, payload.Purpose, out)
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s: %w", p.id, ErrEmptyResponse)
	}
	return out, nil
}
