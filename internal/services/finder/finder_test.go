package finder

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
	"github.com/ternarybob/subsidia/internal/models"
	"github.com/ternarybob/subsidia/internal/services/explorer"
	"github.com/ternarybob/subsidia/internal/services/scraper"
	"github.com/ternarybob/subsidia/internal/services/trust"
	"github.com/ternarybob/subsidia/internal/services/visual"
)

// stubGrounded replays canned responses. Generate and GenerateGrounded
// consume the same queue so tests can script a whole verification run.
type stubGrounded struct {
	responses   []string
	generateErr error
	prompts     []string
	calls       int
}

func (s *stubGrounded) next() string {
	if s.calls >= len(s.responses) {
		return ""
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp
}

func (s *stubGrounded) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.generateErr != nil {
		return "", s.generateErr
	}
	resp := s.next()
	if resp == "" {
		return "", fmt.Errorf("no scripted response")
	}
	return resp, nil
}

func (s *stubGrounded) GenerateGrounded(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (*interfaces.GroundedResult, error) {
	s.prompts = append(s.prompts, prompt)
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	resp := s.next()
	if resp == "" {
		return nil, fmt.Errorf("no scripted response")
	}
	return &interfaces.GroundedResult{Text: resp}, nil
}

func (s *stubGrounded) SupportsGrounding() bool { return true }
func (s *stubGrounded) Close() error            { return nil }

// newTestFinder wires a finder against stubbed generation and a real
// trust evaluator. The browser pool is left uninitialized so rendering
// degrades gracefully.
func newTestFinder(stub *stubGrounded) *Finder {
	cfg := common.NewDefaultConfig()
	logger := common.GetLogger()
	trustEval := trust.NewEvaluator(cfg, logger)

	pool := explorer.NewBrowserPool(&cfg.Browser, logger)
	exp := explorer.NewExplorer(pool, cfg, logger)
	vis := visual.NewAnalyzer(stub2vision{}, common.DefaultPrompts(), logger)
	scr := scraper.NewScraper(exp, vis, cfg, logger)

	return NewFinder(stub, trustEval, scr, exp, common.DefaultPrompts(), cfg, logger)
}

type stub2vision struct{}

func (stub2vision) AnalyzeImage(ctx context.Context, png []byte, prompt string) (string, error) {
	return `{"elements": []}`, nil
}

func TestGenerateQueries(t *testing.T) {
	t.Run("limits to three queries", func(t *testing.T) {
		stub := &stubGrounded{responses: []string{"NPO 子ども食堂 助成金\n地域福祉 助成 2026\nこども支援 CSR 募集\n余分なクエリ"}}
		f := newTestFinder(stub)

		queries := f.GenerateQueries(context.Background(), "子ども食堂を運営するNPO")
		require.Len(t, queries, 3)
		assert.Equal(t, "NPO 子ども食堂 助成金", queries[0])
	})

	t.Run("strips list markers", func(t *testing.T) {
		stub := &stubGrounded{responses: []string{"- query one\n* query two\n1. query three"}}
		f := newTestFinder(stub)

		queries := f.GenerateQueries(context.Background(), "profile")
		require.Len(t, queries, 3)
		assert.Equal(t, "query one", queries[0])
		assert.Equal(t, "query three", queries[2])
	})

	t.Run("falls back on model failure", func(t *testing.T) {
		stub := &stubGrounded{generateErr: fmt.Errorf("unavailable")}
		f := newTestFinder(stub)

		queries := f.GenerateQueries(context.Background(), "子ども食堂を運営するNPOです。地域の子どもに無料で食事を提供しています。活動は10年目になります。")
		require.Len(t, queries, 1)
		assert.True(t, strings.HasPrefix(queries[0], "NPO助成金 "))
		// Profile is truncated to 50 runes in the fallback query.
		assert.LessOrEqual(t, len([]rune(queries[0])), len([]rune("NPO助成金 "))+50)
	})

	t.Run("never returns empty", func(t *testing.T) {
		stub := &stubGrounded{responses: []string{"\n\n\n"}}
		f := newTestFinder(stub)

		queries := f.GenerateQueries(context.Background(), "p")
		require.NotEmpty(t, queries)
	})
}

func TestSearch(t *testing.T) {
	searchResponse := `Here are the results.

### Opportunity 1: 子ども未来財団 地域活動助成
**URL**: https://example.or.jp/kodomo/boshu
**Amount**: 上限100万円
**Resonance Score**: 85
**Reason**: 子ども食堂支援に合致

### Opportunity 2: みらい基金 福祉助成
**URL**: https://mirai.or.jp/josei
**Amount**: unknown
**Resonance Score**: 70
**Reason**: 地域福祉分野
`
	stub := &stubGrounded{responses: []string{"query one", searchResponse}}
	f := newTestFinder(stub)

	candidates, _, err := f.Search(context.Background(), "子ども食堂NPO", []string{"既出助成A"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "子ども未来財団 地域活動助成", candidates[0].Title)
	assert.Equal(t, "https://example.or.jp/kodomo/boshu", candidates[0].OfficialURL)
	assert.Equal(t, 85, candidates[0].ResonanceScore)
	assert.Equal(t, "上限100万円", candidates[0].Amount)

	// The exclusion list must reach the model.
	searchPrompt := stub.prompts[len(stub.prompts)-1]
	assert.Contains(t, searchPrompt, "既出助成A")
}

func TestSearchParseSkipsBrokenSections(t *testing.T) {
	response := `### Opportunity 1: 正常な助成
**URL**: https://example.or.jp/a
**Resonance Score**: 60
**Reason**: ok

### Opportunity 2: 壊れたセクション
no markers here at all
`
	candidates := parseSearchResults(response)
	require.Len(t, candidates, 2)
	assert.Equal(t, "https://example.or.jp/a", candidates[0].OfficialURL)
	// Broken section still yields a candidate with degraded fields.
	assert.Empty(t, candidates[1].OfficialURL)
	assert.Equal(t, 0, candidates[1].ResonanceScore)
}

func TestParseOfficialPage(t *testing.T) {
	t.Run("full answer", func(t *testing.T) {
		answer := parseOfficialPage(`**Official URL**: https://example.or.jp/boshu
**Domain**: example.or.jp
**Deadline Start**: 2026-01-06
**Deadline End**: 2026-03-31
**Status**: open
**Confidence**: high
**Confidence Reason**: matches organization portal`)

		require.NotNil(t, answer)
		assert.Equal(t, "https://example.or.jp/boshu", answer.URL)
		assert.Equal(t, "2026-03-31", answer.DeadlineEnd)
		assert.Equal(t, models.StatusOpen, answer.Status)
		assert.Equal(t, models.ConfidenceHigh, answer.Confidence)
	})

	t.Run("unknown url means no answer", func(t *testing.T) {
		assert.Nil(t, parseOfficialPage("**Official URL**: unknown"))
		assert.Nil(t, parseOfficialPage("no markers"))
	})

	t.Run("unknown deadline normalized to empty", func(t *testing.T) {
		answer := parseOfficialPage(`**Official URL**: https://example.or.jp/a
**Deadline End**: unknown`)
		require.NotNil(t, answer)
		assert.Empty(t, answer.DeadlineEnd)
	})
}

func TestParseScore(t *testing.T) {
	assert.Equal(t, 85, parseScore("85"))
	assert.Equal(t, 85, parseScore("85/100"))
	assert.Equal(t, 100, parseScore("150"))
	assert.Equal(t, 0, parseScore("n/a"))
}

func TestVerifyCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/grant", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>募集要項と申請書はこちら</body></html>"))
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Run("primary lookup succeeds", func(t *testing.T) {
		stub := &stubGrounded{responses: []string{
			"**Official URL**: " + server.URL + "/grant\n**Status**: open\n**Confidence**: high\n**Confidence Reason**: portal match",
		}}
		f := newTestFinder(stub)

		opp := models.NewOpportunity("テスト財団 地域助成プログラム")
		f.VerifyCandidate(context.Background(), opp)

		assert.True(t, opp.IsValid)
		assert.True(t, opp.Accessible)
		assert.Equal(t, models.StatusOpen, opp.Status)
		assert.GreaterOrEqual(t, opp.QualityScore, 50)
		assert.Empty(t, opp.ExcludeReason)
	})

	t.Run("retry ladder skips failed URL and recovers", func(t *testing.T) {
		badAnswer := "**Official URL**: " + server.URL + "/bad"
		goodAnswer := "**Official URL**: " + server.URL + "/grant"
		stub := &stubGrounded{responses: []string{
			badAnswer, // primary lookup
			badAnswer, // full_name strategy returns the same dead URL
			goodAnswer, // org_keyword strategy recovers
		}}
		f := newTestFinder(stub)

		opp := models.NewOpportunity("テスト財団 地域助成プログラム")
		f.VerifyCandidate(context.Background(), opp)

		assert.True(t, opp.IsValid)
		assert.Equal(t, server.URL+"/grant", opp.OfficialURL)
		assert.Equal(t, 3, stub.calls)
	})

	t.Run("exhausted ladder yields invalid with reason", func(t *testing.T) {
		stub := &stubGrounded{responses: []string{
			"**Official URL**: " + server.URL + "/bad",
		}}
		f := newTestFinder(stub)

		opp := models.NewOpportunity("テスト財団 地域助成プログラム")
		f.VerifyCandidate(context.Background(), opp)

		assert.False(t, opp.IsValid)
		assert.NotEmpty(t, opp.ExcludeReason)
	})
}

func TestProgramKeywords(t *testing.T) {
	assert.Equal(t, "地域助成プログラム 2026年度", programKeywords("テスト財団 地域助成プログラム 2026年度"))
	assert.Empty(t, programKeywords(""))
}

func TestIsOutboundResult(t *testing.T) {
	assert.True(t, isOutboundResult("https://example.or.jp/boshu"))
	assert.False(t, isOutboundResult("https://www.bing.com/search?q=x"))
	assert.False(t, isOutboundResult("https://google.com/url?q=x"))
	assert.False(t, isOutboundResult("/relative/path"))
}
