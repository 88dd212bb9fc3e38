package discovery

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/ternarybob/subsidia/internal/models"
)

// emptyReportMessage is shown when a run verifies nothing new.
const emptyReportMessage = "No new funding opportunities matched your profile this time. " +
	"The next run will search again with fresh queries."

// RenderReport renders verified opportunities as a Markdown report.
func RenderReport(opps []*models.Opportunity, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString("# Funding Opportunities\n\n")
	b.WriteString(fmt.Sprintf("_Generated %s_\n\n", generatedAt.Format("2006-01-02 15:04")))

	if len(opps) == 0 {
		b.WriteString(emptyReportMessage)
		b.WriteString("\n")
		return b.String()
	}

	for i, opp := range opps {
		b.WriteString(fmt.Sprintf("## %d. %s %s\n\n", i+1, qualityIndicator(opp.QualityScore), opp.Title))

		if opp.Amount != "" {
			b.WriteString(fmt.Sprintf("- **Amount**: %s\n", opp.Amount))
		}
		if window := deadlineWindow(opp); window != "" {
			b.WriteString(fmt.Sprintf("- **Deadline**: %s\n", window))
		}
		b.WriteString(fmt.Sprintf("- **Match**: %s %d/100\n", resonanceBar(opp.ResonanceScore), opp.ResonanceScore))
		b.WriteString(fmt.Sprintf("- **Link**: [%s](%s)\n", opp.Domain, opp.OfficialURL))
		if opp.Reason != "" {
			b.WriteString(fmt.Sprintf("- **Why it fits**: %s\n", opp.Reason))
		}
		if len(opp.FormatFiles) > 0 {
			b.WriteString(fmt.Sprintf("- **Application documents**: %d found\n", len(opp.FormatFiles)))
			for _, file := range opp.FormatFiles {
				if file.URL == "" {
					continue
				}
				b.WriteString(fmt.Sprintf("  - [%s](%s)\n", file.Text, file.URL))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML converts a Markdown report to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render report HTML: %w", err)
	}
	return buf.String(), nil
}

// qualityIndicator maps the trust score to a traffic light.
func qualityIndicator(score int) string {
	switch {
	case score >= 70:
		return "🟢"
	case score >= 50:
		return "🟡"
	default:
		return "🔴"
	}
}

// resonanceBar renders a bar of one block per ten points.
func resonanceBar(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return strings.Repeat("█", score/10)
}

// deadlineWindow formats the application window from whichever bounds
// are known.
func deadlineWindow(opp *models.Opportunity) string {
	switch {
	case opp.DeadlineStart != "" && opp.DeadlineEnd != "":
		return opp.DeadlineStart + " to " + opp.DeadlineEnd
	case opp.DeadlineEnd != "":
		return "until " + opp.DeadlineEnd
	case opp.DeadlineStart != "":
		return "from " + opp.DeadlineStart
	default:
		return ""
	}
}
