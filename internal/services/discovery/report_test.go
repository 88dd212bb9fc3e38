package discovery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/subsidia/internal/models"
)

func TestRenderReport(t *testing.T) {
	opp := models.NewOpportunity("子ども未来財団 地域活動助成")
	opp.Amount = "上限100万円"
	opp.DeadlineStart = "2026-01-06"
	opp.DeadlineEnd = "2026-03-31"
	opp.ResonanceScore = 85
	opp.QualityScore = 80
	opp.OfficialURL = "https://example.or.jp/kodomo/boshu"
	opp.Domain = "example.or.jp"
	opp.Reason = "子ども食堂支援に合致"
	opp.FormatFiles = []models.FormatFile{
		{URL: "https://example.or.jp/form.pdf", Text: "申請書"},
	}

	report := RenderReport([]*models.Opportunity{opp}, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	assert.Contains(t, report, "子ども未来財団 地域活動助成")
	assert.Contains(t, report, "🟢")
	assert.Contains(t, report, "2026-01-06 to 2026-03-31")
	assert.Contains(t, report, "[example.or.jp](https://example.or.jp/kodomo/boshu)")
	assert.Contains(t, report, "[申請書](https://example.or.jp/form.pdf)")
	assert.Contains(t, report, "85/100")
}

func TestRenderReportEmpty(t *testing.T) {
	report := RenderReport(nil, time.Now())
	assert.Contains(t, report, "No new funding opportunities")
	assert.NotContains(t, report, "## ")
}

func TestQualityIndicator(t *testing.T) {
	assert.Equal(t, "🟢", qualityIndicator(70))
	assert.Equal(t, "🟡", qualityIndicator(50))
	assert.Equal(t, "🔴", qualityIndicator(49))
}

func TestResonanceBar(t *testing.T) {
	assert.Equal(t, 8, strings.Count(resonanceBar(85), "█"))
	assert.Equal(t, 10, strings.Count(resonanceBar(100), "█"))
	assert.Empty(t, resonanceBar(5))
	assert.Equal(t, 10, strings.Count(resonanceBar(250), "█"))
}

func TestDeadlineWindow(t *testing.T) {
	opp := models.NewOpportunity("x")
	assert.Empty(t, deadlineWindow(opp))

	opp.DeadlineEnd = "2026-03-31"
	assert.Equal(t, "until 2026-03-31", deadlineWindow(opp))

	opp.DeadlineStart = "2026-01-06"
	assert.Equal(t, "2026-01-06 to 2026-03-31", deadlineWindow(opp))
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Funding Opportunities\n\nsome **bold** text")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
}
