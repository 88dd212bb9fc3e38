package visual

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
	"github.com/ternarybob/subsidia/internal/models"
)

// Viewport dimensions the screenshots are captured at. Model-reported
// click coordinates are clamped into this box.
const (
	viewportWidth  = 1280
	viewportHeight = 720
)

// PageType classifies what a screenshot shows.
type PageType string

const (
	PageTypeApplication PageType = "application"
	PageTypeDownload    PageType = "download"
	PageTypeGeneric     PageType = "generic"
	PageTypeError       PageType = "error"
)

// DownloadElement is a clickable document link located visually.
type DownloadElement struct {
	Text       string            `json:"text"`
	FileType   models.FileType   `json:"file_type"`
	X          int               `json:"x"`
	Y          int               `json:"y"`
	Confidence models.Confidence `json:"confidence"`
	Reason     string            `json:"reason"`
}

// Analyzer finds download elements in screenshots when structural link
// extraction comes up short. Strictly additive: every failure degrades
// to an empty result.
type Analyzer struct {
	vision  interfaces.VisionService
	prompts *common.Prompts
	logger  arbor.ILogger
}

// NewAnalyzer creates a visual analyzer.
func NewAnalyzer(vision interfaces.VisionService, prompts *common.Prompts, logger arbor.ILogger) *Analyzer {
	return &Analyzer{
		vision:  vision,
		prompts: prompts,
		logger:  logger,
	}
}

// FindDownloadElements asks the vision model to locate document download
// links in the screenshot.
func (a *Analyzer) FindDownloadElements(ctx context.Context, png []byte) []DownloadElement {
	if len(png) == 0 {
		return nil
	}

	response, err := a.vision.AnalyzeImage(ctx, png, a.prompts.VisualDownload)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Visual download analysis failed")
		return nil
	}

	var parsed struct {
		Elements []DownloadElement `json:"elements"`
	}
	if err := unmarshalLenient(response, &parsed); err != nil {
		a.logger.Warn().Err(err).Int("response_length", len(response)).Msg("Could not parse visual analysis response")
		return nil
	}

	elements := make([]DownloadElement, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		el.X = clamp(el.X, 0, viewportWidth)
		el.Y = clamp(el.Y, 0, viewportHeight)
		if el.FileType == "" {
			el.FileType = models.FileTypeUnknown
		}
		if el.Confidence == "" {
			el.Confidence = models.ConfidenceLow
		}
		elements = append(elements, el)
	}

	a.logger.Debug().Int("elements", len(elements)).Msg("Visual download analysis completed")
	return elements
}

// VerifyPageType classifies the screenshot as an application page, a
// download page, a generic page or an error page.
func (a *Analyzer) VerifyPageType(ctx context.Context, png []byte) (PageType, string) {
	if len(png) == 0 {
		return PageTypeGeneric, "no screenshot"
	}

	response, err := a.vision.AnalyzeImage(ctx, png, a.prompts.VisualPageType)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Visual page type analysis failed")
		return PageTypeGeneric, "analysis failed"
	}

	var parsed struct {
		PageType string `json:"page_type"`
		Reason   string `json:"reason"`
	}
	if err := unmarshalLenient(response, &parsed); err == nil {
		switch PageType(parsed.PageType) {
		case PageTypeApplication, PageTypeDownload, PageTypeGeneric, PageTypeError:
			return PageType(parsed.PageType), parsed.Reason
		}
	}

	// Regex fallback for models that answer in prose.
	if m := pageTypeRegex.FindStringSubmatch(response); m != nil {
		return PageType(m[1]), "matched in prose response"
	}

	return PageTypeGeneric, "unrecognized response"
}

var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	jsonBlockRegex = regexp.MustCompile(`(?s)\{.*\}`)
	pageTypeRegex  = regexp.MustCompile(`(application|download|generic|error)`)
)

// unmarshalLenient parses model output that may wrap JSON in code fences
// or surrounding prose.
func unmarshalLenient(response string, v interface{}) error {
	text := strings.TrimSpace(response)

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	if m := jsonBlockRegex.FindString(text); m != "" {
		return json.Unmarshal([]byte(m), v)
	}

	return json.Unmarshal([]byte(text), v)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
