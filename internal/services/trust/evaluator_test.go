package trust

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/subsidia/internal/common"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	cfg := common.NewDefaultConfig()
	return NewEvaluator(cfg, common.GetLogger())
}

func TestExtractOrgName(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		expected  string
	}{
		{
			name:      "foundation with legal prefix",
			candidate: "公益財団法人トヨタ財団 研究助成プログラム",
			expected:  "トヨタ財団",
		},
		{
			name:      "npo legal prefix",
			candidate: "特定非営利活動法人フローレンス 子育て支援助成",
			expected:  "フローレンス",
		},
		{
			name:      "kyokai suffix",
			candidate: "日本郵便協会 年賀寄付金配分",
			expected:  "日本郵便協会",
		},
		{
			name:      "company suffix",
			candidate: "トヨタ自動車株式会社 環境活動助成",
			expected:  "トヨタ自動車株式会社",
		},
		{
			name:      "generic stem rejected",
			candidate: "公益財団法人",
			expected:  "",
		},
		{
			name:      "empty input",
			candidate: "",
			expected:  "",
		},
		{
			name:      "plain name falls back to first token",
			candidate: "さわやか福祉財団 地域助成",
			expected:  "さわやか福祉財団",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractOrgName(tt.candidate))
		})
	}
}

func TestDomainToken(t *testing.T) {
	tests := []struct {
		name     string
		orgName  string
		expected string
	}{
		{"foundation suffix stripped", "LUSH財団", "lush"},
		{"company suffix stripped", "トヨタ自動車株式会社", "トヨタ自動車"},
		{"houjin suffix stripped", "さわやか法人", "さわやか"},
		{"no suffix lowercased", "Nippon Foundation", "nippon foundation"},
		{"bare suffix kept", "財団", "財団"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DomainToken(tt.orgName))
		})
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain", "https://example.or.jp/grant", "https://example.or.jp/grant"},
		{"markdown link", "[応募ページ](https://example.or.jp/grant)", "https://example.or.jp/grant"},
		{"angle brackets", "<https://example.or.jp/grant>", "https://example.or.jp/grant"},
		{"trailing punctuation", "https://example.or.jp/grant.", "https://example.or.jp/grant"},
		{"surrounding whitespace", "  https://example.or.jp/grant  ", "https://example.or.jp/grant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanURL(tt.raw))
		})
	}
}

func TestEvaluateQuality(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name      string
		url       string
		candidate string
		minScore  int
		maxScore  int
	}{
		{
			name:      "institutional domain with application path",
			url:       "https://www.toyota-foundation.or.jp/boshu/2026",
			candidate: "公益財団法人トヨタ財団 研究助成",
			minScore:  90,
			maxScore:  90,
		},
		{
			name:      "aggregator domain penalized",
			url:       "https://josei-navi.example.com/list",
			candidate: "テスト財団 助成金",
			minScore:  0,
			maxScore:  49,
		},
		{
			name:      "blog domain penalized",
			url:       "https://grant-info.hatenablog.com/entry/1",
			candidate: "テスト財団 助成金",
			minScore:  0,
			maxScore:  49,
		},
		{
			name:      "corporate domain modest bonus",
			url:       "https://www.example.co.jp/csr",
			candidate: "テスト株式会社 CSR助成",
			minScore:  60,
			maxScore:  60,
		},
		{
			name:      "unparseable URL scores zero",
			url:       "not a url",
			candidate: "テスト財団",
			minScore:  0,
			maxScore:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reason := e.EvaluateQuality(tt.url, tt.candidate, "")
			assert.GreaterOrEqual(t, score, tt.minScore, reason)
			assert.LessOrEqual(t, score, tt.maxScore, reason)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestEvaluateQualityAggregatorPath(t *testing.T) {
	e := newTestEvaluator(t)

	// The penalty applies to aggregator keywords in the path, not just
	// the hostname.
	clean, _ := e.EvaluateQuality("https://example.or.jp/posts/list", "テスト財団 助成金", "")
	aggregated, reason := e.EvaluateQuality("https://example.or.jp/matome/list", "テスト財団 助成金", "")

	assert.Equal(t, 20, clean-aggregated, reason)
	assert.Contains(t, reason, "aggregator")
}

func TestEvaluateQualityOrgNameSuffixStripped(t *testing.T) {
	e := newTestEvaluator(t)

	// LUSH財団 registers lush.com; the entity suffix must not block the
	// domain-match bonus.
	score, reason := e.EvaluateQuality("https://lush.com/charity", "LUSH財団 チャリティバンク助成", "")
	assert.Equal(t, 75, score, reason)
	assert.Contains(t, reason, "organization name in domain")

	without, _ := e.EvaluateQuality("https://lush.com/charity", "別財団 チャリティ助成", "")
	assert.Equal(t, 25, score-without)
}

func TestEvaluateQualityCopyrightBonus(t *testing.T) {
	e := newTestEvaluator(t)

	html := `<html><body><main>grant page</main><footer>© 2026 トヨタ財団</footer></body></html>`
	withCopyright, _ := e.EvaluateQuality("https://example.com/about", "公益財団法人トヨタ財団 研究助成", html)
	without, _ := e.EvaluateQuality("https://example.com/about", "公益財団法人トヨタ財団 研究助成", "")

	assert.Equal(t, 20, withCopyright-without)
}

func TestEvaluateQualityClamped(t *testing.T) {
	e := newTestEvaluator(t)

	html := `<html><body><footer>© トヨタ財団</footer></body></html>`
	score, _ := e.EvaluateQuality("https://xn--toyota.or.jp/boshu", "公益財団法人トヨタ財団", html)
	assert.LessOrEqual(t, score, 100)
	assert.GreaterOrEqual(t, score, 0)
}

func TestCheckAccessible(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>応募要項はこちら</body></html>"))
	})
	mux.HandleFunc("/soft404", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>お探しのページが見つかりません</body></html>"))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := newTestEvaluator(t)
	ctx := context.Background()

	t.Run("reachable page", func(t *testing.T) {
		result := e.CheckAccessible(ctx, server.URL+"/ok")
		require.True(t, result.Accessible)
		assert.Equal(t, "ok", result.Status)
		assert.Contains(t, result.BodySample, "応募要項")
	})

	t.Run("soft 404 under http 200", func(t *testing.T) {
		result := e.CheckAccessible(ctx, server.URL+"/soft404")
		assert.False(t, result.Accessible)
		assert.Contains(t, result.Status, "error page content")
	})

	t.Run("forbidden", func(t *testing.T) {
		result := e.CheckAccessible(ctx, server.URL+"/forbidden")
		assert.False(t, result.Accessible)
		assert.Equal(t, "forbidden (403)", result.Status)
	})

	t.Run("not found", func(t *testing.T) {
		result := e.CheckAccessible(ctx, server.URL+"/missing")
		assert.False(t, result.Accessible)
		assert.Equal(t, "not found (404)", result.Status)
	})

	t.Run("redirect followed to final URL", func(t *testing.T) {
		result := e.CheckAccessible(ctx, server.URL+"/moved")
		require.True(t, result.Accessible)
		assert.Equal(t, server.URL+"/ok", result.FinalURL)
	})

	t.Run("connection refused", func(t *testing.T) {
		result := e.CheckAccessible(ctx, "http://127.0.0.1:1/nothing")
		assert.False(t, result.Accessible)
		assert.NotEqual(t, "ok", result.Status)
	})

	t.Run("markdown wrapped URL", func(t *testing.T) {
		result := e.CheckAccessible(ctx, "[link]("+server.URL+"/ok)")
		assert.True(t, result.Accessible)
	})
}

func TestResolveRedirectIdempotent(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	// Non-grounding URLs pass through untouched, no network call needed.
	url := "https://example.or.jp/grant"
	assert.Equal(t, url, e.ResolveRedirect(ctx, url))
	assert.Equal(t, url, e.ResolveRedirect(ctx, e.ResolveRedirect(ctx, url)))
}
