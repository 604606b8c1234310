package assistant

import (
	"context"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// FallbackClient tries primary first and falls back on error.
type FallbackClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackClient returns primary unwrapped when fallback is nil.
func NewFallbackClient(primary, fallback LLMClient, logger *logging.Logger) LLMClient {
	if fallback == nil {
		return primary
	}
	if primary == nil {
		return fallback
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Prompt) (Completion, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	c.logger.Warn("assistant: primary model failed, trying fallback", "error", err)
	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("assistant: fallback model failed", "primary_error", err, "fallback_error", fallbackErr)
		return Completion{}, fallbackErr
	}
	return resp, nil
}
