package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
)

// ClaudeService implements TextService using the Anthropic API. Claude has
// no web-search grounding here; grounded calls are refused so the factory
// can route them to Gemini.
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  *anthropic.Client
	timeout time.Duration
}

// NewClaudeService creates a new Claude service instance.
func NewClaudeService(config *common.Config, logger arbor.ILogger) (*ClaudeService, error) {
	if config.Claude.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set claude.api_key or SUBSIDIA_CLAUDE_API_KEY)")
	}

	timeout, err := time.ParseDuration(config.Claude.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.Claude.Timeout, err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.Claude.APIKey),
	)

	service := &ClaudeService{
		config:  &config.Claude,
		logger:  logger,
		client:  &client,
		timeout: timeout,
	}

	logger.Info().
		Str("model", config.Claude.Model).
		Int("max_tokens", config.Claude.MaxTokens).
		Dur("timeout", timeout).
		Msg("Claude service initialized")

	return service, nil
}

// Generate produces a completion for the given prompt.
func (s *ClaudeService) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temperature := s.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.config.Model),
		MaxTokens:   int64(s.config.MaxTokens),
		Temperature: anthropic.Float(float64(temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.System},
		}
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("claude generation failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from model %s", s.config.Model)
	}

	return response.String(), nil
}

// GenerateGrounded is not available for Claude.
func (s *ClaudeService) GenerateGrounded(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (*interfaces.GroundedResult, error) {
	return nil, interfaces.ErrGroundingUnsupported
}

// SupportsGrounding reports that Claude cannot ground against web search.
func (s *ClaudeService) SupportsGrounding() bool {
	return false
}

// Close releases provider resources.
func (s *ClaudeService) Close() error {
	return nil
}
