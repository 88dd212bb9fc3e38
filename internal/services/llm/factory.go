package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
)

// Services bundles the providers the pipeline needs. Text follows the
// configured default provider; Grounded and Vision always come from
// Gemini because Claude supports neither.
type Services struct {
	Text     interfaces.TextService
	Grounded interfaces.TextService
	Vision   interfaces.VisionService
}

// NewServices creates the LLM services for the configured providers.
func NewServices(cfg *common.Config, logger arbor.ILogger) (*Services, error) {
	gemini, err := NewGeminiService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini service: %w", err)
	}

	services := &Services{
		Text:     gemini,
		Grounded: gemini,
		Vision:   gemini,
	}

	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		// Gemini already selected
	case common.LLMProviderClaude:
		claude, err := NewClaudeService(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude service: %w", err)
		}
		services.Text = claude
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.DefaultProvider)
	}

	logger.Info().
		Str("default_provider", string(cfg.LLM.DefaultProvider)).
		Msg("LLM services initialized")

	return services, nil
}

// Close shuts down all providers.
func (s *Services) Close() error {
	var firstErr error
	if err := s.Text.Close(); err != nil {
		firstErr = err
	}
	if s.Grounded != s.Text {
		if err := s.Grounded.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
