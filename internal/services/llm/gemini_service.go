package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
)

// GeminiService implements TextService and VisionService using the Gemini
// API. It is the only provider that supports web-search grounding, so all
// grounded discovery calls land here regardless of the configured default.
type GeminiService struct {
	config      *common.GeminiConfig
	logger      arbor.ILogger
	client      *genai.Client
	limiter     *rate.Limiter
	retryConfig *RetryConfig
	timeout     time.Duration
}

// NewGeminiService creates a new Gemini service instance.
func NewGeminiService(config *common.Config, logger arbor.ILogger) (*GeminiService, error) {
	if config.Gemini.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set gemini.api_key or SUBSIDIA_GEMINI_API_KEY)")
	}

	timeout, err := time.ParseDuration(config.Gemini.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.Gemini.Timeout, err)
	}

	rateLimit, err := time.ParseDuration(config.Gemini.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit duration '%s': %w", config.Gemini.RateLimit, err)
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:      &config.Gemini,
		logger:      logger,
		client:      client,
		limiter:     rate.NewLimiter(rate.Every(rateLimit), 1),
		retryConfig: NewDefaultRetryConfig(),
		timeout:     timeout,
	}

	logger.Info().
		Str("model", config.Gemini.Model).
		Str("rate_limit", config.Gemini.RateLimit).
		Dur("timeout", timeout).
		Msg("Gemini service initialized")

	return service, nil
}

// Generate produces a completion for the given prompt.
func (s *GeminiService) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	resp, err := s.generateContent(ctx, prompt, opts, nil)
	if err != nil {
		return "", err
	}
	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("no response generated from model %s", s.config.Model)
	}
	return text, nil
}

// GenerateGrounded produces a completion with the GoogleSearch tool
// enabled and returns the grounding sources the model consulted.
func (s *GeminiService) GenerateGrounded(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (*interfaces.GroundedResult, error) {
	searchTool := &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}

	resp, err := s.generateContent(ctx, prompt, opts, []*genai.Tool{searchTool})
	if err != nil {
		return nil, err
	}

	result := &interfaces.GroundedResult{Text: extractText(resp)}
	if result.Text == "" {
		return nil, fmt.Errorf("no response generated from model %s", s.config.Model)
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		gm := resp.Candidates[0].GroundingMetadata
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil {
				result.Sources = append(result.Sources, interfaces.GroundingSource{
					URL:   chunk.Web.URI,
					Title: chunk.Web.Title,
				})
			}
		}
	}

	s.logger.Debug().
		Int("response_length", len(result.Text)).
		Int("sources", len(result.Sources)).
		Msg("Grounded generation completed")

	return result, nil
}

// SupportsGrounding reports that Gemini can perform grounded generation.
func (s *GeminiService) SupportsGrounding() bool {
	return true
}

// AnalyzeImage sends a PNG screenshot with an instruction prompt and
// returns the model's text response.
func (s *GeminiService) AnalyzeImage(ctx context.Context, png []byte, prompt string) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("screenshot cannot be empty")
	}

	model := s.config.VisionModel
	if model == "" {
		model = s.config.Model
	}

	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(png, "image/png"),
			genai.NewPartFromText(prompt),
		},
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}

	resp, err := s.callWithRetry(ctx, model, []*genai.Content{content}, config)
	if err != nil {
		return "", fmt.Errorf("image analysis failed: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("no response generated for image analysis")
	}
	return text, nil
}

// Close releases provider resources.
func (s *GeminiService) Close() error {
	return nil
}

func (s *GeminiService) generateContent(ctx context.Context, prompt string, opts interfaces.GenerateOptions, tools []*genai.Tool) (*genai.GenerateContentResponse, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	temperature := s.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if len(tools) > 0 {
		config.Tools = tools
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	return s.callWithRetry(ctx, s.config.Model, contents, config)
}

// callWithRetry runs a GenerateContent call under the rate limiter and
// retries rate-limit errors using the API-suggested delay when present.
func (s *GeminiService) callWithRetry(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		if err := s.limiter.Wait(timeoutCtx); err != nil {
			return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
		}

		resp, err := s.client.Models.GenerateContent(timeoutCtx, model, contents, config)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRateLimitError(err) {
			return nil, fmt.Errorf("generation failed: %w", err)
		}

		backoff := s.retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(err))
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", s.retryConfig.MaxRetries).
			Dur("backoff", backoff).
			Msg("Gemini rate limit hit, backing off")

		select {
		case <-time.After(backoff):
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("generation cancelled during backoff: %w", timeoutCtx.Err())
		}
	}

	return nil, fmt.Errorf("generation failed after %d retries: %w", s.retryConfig.MaxRetries, lastErr)
}

// extractText concatenates text parts from the first candidate that
// produced any.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var response strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				response.WriteString(part.Text)
			}
		}
		if response.Len() > 0 {
			break
		}
	}
	return response.String()
}
