package models

import (
	"time"

	"github.com/google/uuid"
)

// OpportunityStatus describes the application window of a funding opportunity.
type OpportunityStatus string

const (
	StatusOpen     OpportunityStatus = "open"
	StatusClosed   OpportunityStatus = "closed"
	StatusUpcoming OpportunityStatus = "upcoming"
	StatusUnknown  OpportunityStatus = "unknown"
)

// Confidence is the model-reported certainty that an official URL is correct.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Opportunity is a single funding candidate moving through the pipeline.
// During verification exactly one worker owns the record; the orchestrator
// only sees it again when it comes back on the results channel.
type Opportunity struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
	Amount string `json:"amount"`

	// ResonanceScore is the model's 0-100 fit estimate against the profile.
	ResonanceScore int `json:"resonance_score"`

	OfficialURL      string            `json:"official_url"`
	Domain           string            `json:"domain"`
	DeadlineStart    string            `json:"deadline_start"`
	DeadlineEnd      string            `json:"deadline_end"`
	Status           OpportunityStatus `json:"status"`
	Confidence       Confidence        `json:"confidence"`
	ConfidenceReason string            `json:"confidence_reason"`

	// QualityScore is the 0-100 domain trust score computed by the trust
	// evaluator, independent of anything the model reported.
	QualityScore  int    `json:"quality_score"`
	QualityReason string `json:"quality_reason"`

	Accessible   bool   `json:"accessible"`
	AccessStatus string `json:"access_status"`

	// IsValid is true only when the URL resolved, the page is reachable
	// and the quality score cleared the configured threshold.
	IsValid       bool   `json:"is_valid"`
	ExcludeReason string `json:"exclude_reason,omitempty"`

	FormatFiles []FormatFile `json:"format_files,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewOpportunity creates an opportunity with a fresh ID and timestamp.
func NewOpportunity(title string) *Opportunity {
	return &Opportunity{
		ID:           uuid.New().String(),
		Title:        title,
		Status:       StatusUnknown,
		Confidence:   ConfidenceLow,
		DiscoveredAt: time.Now(),
	}
}

// Validate applies the validity rule. Model-reported status text never
// overrides the computed fields.
func (o *Opportunity) Validate(qualityThreshold int) {
	o.IsValid = o.OfficialURL != "" && o.Accessible && o.QualityScore >= qualityThreshold
	if o.IsValid {
		o.ExcludeReason = ""
		return
	}
	switch {
	case o.OfficialURL == "":
		o.ExcludeReason = "no official URL resolved"
	case !o.Accessible:
		o.ExcludeReason = "official URL not reachable: " + o.AccessStatus
	default:
		o.ExcludeReason = "quality score below threshold: " + o.QualityReason
	}
}

// FileType classifies a downloadable application document.
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeWord    FileType = "word"
	FileTypeExcel   FileType = "excel"
	FileTypeZip     FileType = "zip"
	FileTypeUnknown FileType = "unknown"
)

// FormatFile is a downloadable application form or template discovered on
// an opportunity page.
type FormatFile struct {
	URL            string   `json:"url"`
	Text           string   `json:"text"`
	Filename       string   `json:"filename"`
	Type           FileType `json:"type"`
	RelevanceScore int      `json:"relevance_score"`
	FoundAt        string   `json:"found_at,omitempty"`
	Depth          int      `json:"depth,omitempty"`
}
