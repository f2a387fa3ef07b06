package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/internal/conversation"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// BuildLLMClient wires the configured language model. With LLM_PROVIDER=gemini
// and a Bedrock model id, Bedrock is the fallback when Gemini fails.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var bedrock conversation.LLMClient
	if cfg.BedrockModelID != "" && awsCfg != nil {
		bedrock = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
	}

	switch cfg.LLMProvider {
	case "stub":
		logger.Warn("using stub language model; replies are canned")
		return conversation.StubLLMClient{}, nil
	case "bedrock":
		if bedrock == nil {
			return nil, fmt.Errorf("bootstrap: LLM_PROVIDER=bedrock requires BEDROCK_MODEL_ID")
		}
		logger.Info("using bedrock language model", "model", cfg.BedrockModelID)
		return bedrock, nil
	case "gemini", "":
		if cfg.GeminiAPIKey == "" {
			if bedrock != nil {
				logger.Warn("GEMINI_API_KEY not set; using bedrock only", "model", cfg.BedrockModelID)
				return bedrock, nil
			}
			logger.Warn("no language model credentials configured; using stub language model")
			return conversation.StubLLMClient{}, nil
		}
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		if bedrock == nil {
			logger.Info("using gemini language model", "model", cfg.GeminiModel)
			return gemini, nil
		}
		logger.Info("using gemini language model with bedrock fallback",
			"model", cfg.GeminiModel,
			"fallback_model", cfg.BedrockModelID,
		)
		return conversation.NewFallbackLLMClient(logger,
			conversation.Provider{Name: "gemini", Client: gemini},
			conversation.Provider{Name: "bedrock", Client: bedrock},
		), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
