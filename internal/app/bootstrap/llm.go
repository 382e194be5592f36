package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/clinic-booking-agent/internal/config"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

var errNoModel = errors.New("bootstrap: no language model configured (set BEDROCK_MODEL_ID or GEMINI_API_KEY)")

// BuildLLMClient wires Bedrock as the primary model and Gemini as the
// fallback. Either one alone is enough. The returned model id is the one the
// agent puts on each request.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (conversation.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var (
		primary  conversation.LLMClient
		fallback conversation.LLMClient
		model    string
	)
	if id := strings.TrimSpace(cfg.BedrockModelID); id != "" {
		if awsCfg == nil {
			return nil, "", errors.New("bootstrap: bedrock model configured without aws config")
		}
		primary = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg))
		model = id
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", err
		}
		if primary == nil {
			primary = gemini
			model = cfg.GeminiModelID
		} else {
			fallback = gemini
		}
	}
	if primary == nil {
		return nil, "", errNoModel
	}
	if fallback == nil {
		logger.Info("language model configured", "model", model)
		return primary, model, nil
	}
	logger.Info("language model configured with fallback", "model", model, "fallback", cfg.GeminiModelID)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), model, nil
}
