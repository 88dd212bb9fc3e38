package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the prompt templates used by the discovery pipeline.
// Templates are loaded from a YAML file so operators can tune wording
// without a rebuild; missing keys fall back to the compiled-in defaults.
type Prompts struct {
	QueryGeneration string `yaml:"query_generation"`
	Search          string `yaml:"search"`
	OfficialPage    string `yaml:"official_page"`
	VisualDownload  string `yaml:"visual_download"`
	VisualPageType  string `yaml:"visual_page_type"`
}

// DefaultPrompts returns the compiled-in prompt templates.
func DefaultPrompts() *Prompts {
	return &Prompts{
		QueryGeneration: `Organization profile:
{{profile}}

Task:
Generate 3 distinct search queries to find the best funding opportunities (grants, subsidies, CSR programs) for this organization.
Focus on the mission, target issue, and unique strengths.
Output ONLY the queries, one per line.`,

		Search: `You are a funding research assistant. Today's date is {{date}}.

Organization profile:
{{profile}}

Search strategy:
I have generated these search queries to find opportunities:
{{queries}}

{{exclusions}}Task:
Using web search, find current grants or CSR funding opportunities that fit this profile.
Report the top 3 opportunities in exactly this format:

### Opportunity 1: <title>
**URL**: <page url>
**Amount**: <funding amount or "unknown">
**Resonance Score**: <0-100>
**Reason**: <why this fits the profile>

Repeat the block for each opportunity.`,

		OfficialPage: `You are verifying a funding opportunity. Today's date is {{date}}.

Opportunity: {{name}}
{{strategy}}

Task:
Find the OFFICIAL application page for this opportunity. Prefer domains in this order: .or.jp, .go.jp, .lg.jp, .ac.jp, .org, .co.jp.
Prefer an HTML landing page over a direct PDF link.
Answer in exactly this format:

**Official URL**: <url>
**Domain**: <host>
**Deadline Start**: <YYYY-MM-DD or "unknown">
**Deadline End**: <YYYY-MM-DD or "unknown">
**Status**: <open|closed|upcoming|unknown>
**Confidence**: <low|medium|high>
**Confidence Reason**: <one sentence>`,

		VisualDownload: `This is a screenshot of a grant application page (viewport 1280x720).
Find clickable elements that download application documents (PDF, Word, Excel, ZIP).
Respond with JSON only:
{"elements": [{"text": "...", "file_type": "pdf|word|excel|zip|unknown", "x": 0, "y": 0, "confidence": "low|medium|high", "reason": "..."}]}
If there are none, respond {"elements": []}.`,

		VisualPageType: `This is a screenshot of a web page.
Classify it and respond with JSON only:
{"page_type": "application|download|generic|error", "reason": "..."}`,
	}
}

// LoadPrompts loads prompt templates from a YAML file, falling back to
// defaults for the whole file or any empty key.
func LoadPrompts(path string) (*Prompts, error) {
	prompts := DefaultPrompts()

	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prompts, nil
		}
		return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}

	loaded := &Prompts{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}

	if loaded.QueryGeneration != "" {
		prompts.QueryGeneration = loaded.QueryGeneration
	}
	if loaded.Search != "" {
		prompts.Search = loaded.Search
	}
	if loaded.OfficialPage != "" {
		prompts.OfficialPage = loaded.OfficialPage
	}
	if loaded.VisualDownload != "" {
		prompts.VisualDownload = loaded.VisualDownload
	}
	if loaded.VisualPageType != "" {
		prompts.VisualPageType = loaded.VisualPageType
	}

	return prompts, nil
}
