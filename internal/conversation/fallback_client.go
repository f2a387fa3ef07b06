package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// Provider is a named language model in a fallback chain.
type Provider struct {
	Name   string
	Client LLMClient
}

// FallbackLLMClient tries each provider in order until one answers.
type FallbackLLMClient struct {
	providers []Provider
	logger    *logging.Logger
}

// NewFallbackLLMClient builds a chain from providers, skipping nil clients.
func NewFallbackLLMClient(logger *logging.Logger, providers ...Provider) *FallbackLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Client != nil {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		panic("conversation: fallback chain needs at least one llm client")
	}
	return &FallbackLLMClient{providers: chain, logger: logger}
}

// Complete returns the first successful answer. A cancelled context stops the
// chain; the error then carries every provider failure seen so far.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	var errs []error
	for i, p := range c.providers {
		resp, err := p.Client.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("llm fallback answered", "provider", p.Name, "failed", len(errs))
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		c.logger.Warn("llm provider failed",
			"provider", p.Name,
			"error", err,
			"remaining", len(c.providers)-i-1,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return LLMResponse{}, errors.Join(errs...)
}
