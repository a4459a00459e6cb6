package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a model replies without any text.
	ErrEmptyResponse = errors.New("model returned empty response")
	ErrMissingAPIKey = errors.New("model api key is empty")
)

// ImagePayload 是一张随请求发送的图片，DataURI 形如 data:image/png;base64,...
type ImagePayload struct {
	DataURI string
	// Description is sent as a text part right before the image.
	Description string
}

// MediaType returns the mime type and the raw base64 body of the data URI.
func (p ImagePayload) MediaType() (mediaType, data string, err error) {
	uri := strings.TrimSpace(p.DataURI)
	if !strings.HasPrefix(uri, "data:") {
		return "", "", fmt.Errorf("image %q is not a data uri", p.Description)
	}
	head, body, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || body == "" {
		return "", "", fmt.Errorf("image %q has no payload", p.Description)
	}
	mediaType, _, _ = strings.Cut(head, ";")
	if mediaType == "" {
		mediaType = "image/png"
	}
	return mediaType, body, nil
}

type ChatPayload struct {
	System      string
	User        string
	Images      []ImagePayload
	MaxTokens   int
	Temperature *float64
	// Purpose 仅用于日志标注（如 "decision"、"chart"）。
	Purpose string
}

type ModelProvider interface {
	ID() string
	Enabled() bool
	SupportsVision() bool

	Call(ctx context.Context, payload ChatPayload) (string, error)
}

func Float(v float64) *float64 { return &v }
