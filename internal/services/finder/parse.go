package finder

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/subsidia/internal/models"
)

var (
	sectionRegex = regexp.MustCompile(`(?m)^###\s*Opportunity\s*\d+\s*[::]\s*(.+)$`)

	urlMarker        = markerRegex("URL")
	amountMarker     = markerRegex("Amount")
	resonanceMarker  = markerRegex("Resonance Score")
	reasonMarker     = markerRegex("Reason")
	officialMarker   = markerRegex("Official URL")
	domainMarker     = markerRegex("Domain")
	startMarker      = markerRegex("Deadline Start")
	endMarker        = markerRegex("Deadline End")
	statusMarker     = markerRegex("Status")
	confidenceMarker = markerRegex("Confidence")
	confReasonMarker = markerRegex("Confidence Reason")
)

func markerRegex(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^\s*\*\*` + regexp.QuoteMeta(name) + `\*\*\s*[::]\s*(.+)$`)
}

// parseSearchResults splits a search response into candidate
// opportunities. Sections missing a title are skipped; everything else
// degrades field by field.
func parseSearchResults(raw string) []*models.Opportunity {
	matches := sectionRegex.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	var candidates []*models.Opportunity
	for i, match := range matches {
		title := strings.TrimSpace(raw[match[2]:match[3]])
		if title == "" {
			continue
		}

		sectionStart := match[1]
		sectionEnd := len(raw)
		if i+1 < len(matches) {
			sectionEnd = matches[i+1][0]
		}
		section := raw[sectionStart:sectionEnd]

		opp := models.NewOpportunity(title)
		opp.OfficialURL = firstMatch(urlMarker, section)
		opp.Amount = firstMatch(amountMarker, section)
		opp.Reason = firstMatch(reasonMarker, section)
		opp.ResonanceScore = parseScore(firstMatch(resonanceMarker, section))

		candidates = append(candidates, opp)
	}

	return candidates
}

// officialPageAnswer is the parsed marker block of an official-page
// lookup response.
type officialPageAnswer struct {
	URL              string
	Domain           string
	DeadlineStart    string
	DeadlineEnd      string
	Status           models.OpportunityStatus
	Confidence       models.Confidence
	ConfidenceReason string
}

// parseOfficialPage extracts the marker fields of an official-page
// response. Returns nil when no URL marker is present.
func parseOfficialPage(raw string) *officialPageAnswer {
	url := firstMatch(officialMarker, raw)
	if url == "" || strings.EqualFold(url, "unknown") || strings.EqualFold(url, "none") {
		return nil
	}

	return &officialPageAnswer{
		URL:              url,
		Domain:           firstMatch(domainMarker, raw),
		DeadlineStart:    normalizeUnknown(firstMatch(startMarker, raw)),
		DeadlineEnd:      normalizeUnknown(firstMatch(endMarker, raw)),
		Status:           parseStatus(firstMatch(statusMarker, raw)),
		Confidence:       parseConfidence(firstMatch(confidenceMarker, raw)),
		ConfidenceReason: firstMatch(confReasonMarker, raw),
	}
}

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func parseScore(text string) int {
	digits := regexp.MustCompile(`\d+`).FindString(text)
	if digits == "" {
		return 0
	}
	score, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func parseStatus(text string) models.OpportunityStatus {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "open", "募集中":
		return models.StatusOpen
	case "closed", "終了", "募集終了":
		return models.StatusClosed
	case "upcoming", "募集予定":
		return models.StatusUpcoming
	default:
		return models.StatusUnknown
	}
}

func parseConfidence(text string) models.Confidence {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "high":
		return models.ConfidenceHigh
	case "medium":
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func normalizeUnknown(text string) string {
	if strings.EqualFold(text, "unknown") || text == "不明" {
		return ""
	}
	return text
}
