package trust

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/httpclient"
)

// groundingRedirectHost is the search-grounding redirect endpoint. Only
// URLs pointing there are rewritten; everything else passes through.
const groundingRedirectHost = "vertexaisearch.cloud.google.com"

// bodySampleSize bounds the soft-404 scan. Error phrasing appears near
// the top of the page when it appears at all.
const bodySampleSize = 2000

// errorPagePhrases mark a page as an error page even under HTTP 200.
var errorPagePhrases = []string{
	"404",
	"not found",
	"page not found",
	"ページが見つかりません",
	"存在しません",
}

var (
	markdownLinkRegex = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)

	aggregatorKeywords = []string{"matome", "navi", "info", "guide", "portal", "まとめ", "ナビ", "ガイド", "ポータル"}
	newsKeywords       = []string{"news", "blog", "note", "fc2", "ameblo", "hatenablog"}
	pathKeywords       = []string{"boshu", "kobo", "josei", "grant", "application", "募集", "公募", "助成", "申請"}
)

// ProbeResult is the outcome of an accessibility check.
type ProbeResult struct {
	Accessible bool
	Status     string
	FinalURL   string
	BodySample string
	HTML       string
}

// Evaluator scores and probes candidate URLs. It never renders pages;
// browser work belongs to the explorer.
type Evaluator struct {
	config   *common.TrustConfig
	logger   arbor.ILogger
	client   *http.Client
	noFollow *http.Client
	ua       string
}

// NewEvaluator creates a trust evaluator.
func NewEvaluator(config *common.Config, logger arbor.ILogger) *Evaluator {
	return &Evaluator{
		config:   &config.Trust,
		logger:   logger,
		client:   httpclient.NewProbeClient(config.Trust.RequestTimeout, config.Trust.MaxRedirects),
		noFollow: httpclient.NewNoFollowClient(config.Trust.RequestTimeout),
		ua:       config.Browser.UserAgent,
	}
}

// CleanURL strips markdown link wrapping, angle brackets and stray
// punctuation from a model-reported URL.
func CleanURL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if m := markdownLinkRegex.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[2]
	}
	cleaned = strings.Trim(cleaned, "<>")
	cleaned = strings.TrimRight(cleaned, ".,;:!?)\"'")
	return cleaned
}

// ResolveRedirect rewrites search-grounding redirect URLs to their real
// destination. Any other URL is returned unchanged, so the operation is
// idempotent.
func (e *Evaluator) ResolveRedirect(ctx context.Context, rawURL string) string {
	cleaned := CleanURL(rawURL)

	parsed, err := url.Parse(cleaned)
	if err != nil || parsed.Host != groundingRedirectHost {
		return cleaned
	}

	// First try HEAD without following, reading the Location header.
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cleaned, nil)
	if err == nil {
		req.Header.Set("User-Agent", e.ua)
		if resp, err := e.noFollow.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if loc := resp.Header.Get("Location"); loc != "" {
				e.logger.Debug().Str("from", cleaned).Str("to", loc).Msg("Resolved grounding redirect via HEAD")
				return loc
			}
		}
	}

	// Fall back to GET with redirects followed.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, cleaned, nil)
	if err != nil {
		return cleaned
	}
	req.Header.Set("User-Agent", e.ua)
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", cleaned).Msg("Failed to resolve grounding redirect")
		return cleaned
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	final := resp.Request.URL.String()
	if final != cleaned {
		e.logger.Debug().Str("from", cleaned).Str("to", final).Msg("Resolved grounding redirect via GET")
	}
	return final
}

// CheckAccessible probes a URL with a plain GET and classifies the
// outcome. An HTTP 200 serving error-page content is not accessible.
func (e *Evaluator) CheckAccessible(ctx context.Context, rawURL string) *ProbeResult {
	cleaned := CleanURL(rawURL)
	result := &ProbeResult{FinalURL: cleaned}

	if cleaned == "" {
		result.Status = "empty URL"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cleaned, nil)
	if err != nil {
		result.Status = fmt.Sprintf("invalid URL: %v", err)
		return result
	}
	req.Header.Set("User-Agent", e.ua)

	resp, err := e.client.Do(req)
	if err != nil {
		result.Status = classifyTransportError(err)
		return result
	}
	defer resp.Body.Close()

	result.FinalURL = resp.Request.URL.String()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to the soft-404 scan below
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		result.Status = fmt.Sprintf("unresolved redirect (%d)", resp.StatusCode)
		return result
	case resp.StatusCode == http.StatusForbidden:
		result.Status = "forbidden (403)"
		return result
	case resp.StatusCode == http.StatusNotFound:
		result.Status = "not found (404)"
		return result
	default:
		result.Status = fmt.Sprintf("http error (%d)", resp.StatusCode)
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		result.Status = fmt.Sprintf("read error: %v", err)
		return result
	}
	result.HTML = string(body)

	sample := result.HTML
	if len(sample) > bodySampleSize {
		sample = sample[:bodySampleSize]
	}
	result.BodySample = sample

	lower := strings.ToLower(sample)
	for _, phrase := range errorPagePhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			result.Status = "error page content: " + phrase
			return result
		}
	}

	result.Accessible = true
	result.Status = "ok"
	return result
}

// EvaluateQuality scores how likely a URL is the opportunity's official
// page. html may be empty; when present it enables the copyright check.
func (e *Evaluator) EvaluateQuality(rawURL, candidateName, html string) (int, string) {
	score := 50
	var reasons []string

	parsed, err := url.Parse(CleanURL(rawURL))
	if err != nil || parsed.Host == "" {
		return 0, "unparseable URL"
	}

	host := strings.ToLower(parsed.Host)
	path := strings.ToLower(parsed.Path)
	orgName := ExtractOrgName(candidateName)

	if orgName != "" && strings.Contains(host, DomainToken(orgName)) {
		score += 25
		reasons = append(reasons, "organization name in domain")
	}

	switch {
	case strings.HasSuffix(host, ".or.jp") || strings.HasSuffix(host, ".go.jp") || strings.HasSuffix(host, ".lg.jp"):
		score += 30
		reasons = append(reasons, "institutional Japanese domain")
	case strings.HasSuffix(host, ".ac.jp") || strings.HasSuffix(host, ".org"):
		score += 25
		reasons = append(reasons, "academic or nonprofit domain")
	case strings.HasSuffix(host, ".co.jp"):
		score += 10
		reasons = append(reasons, "corporate Japanese domain")
	}

	for _, kw := range aggregatorKeywords {
		if strings.Contains(host, kw) || strings.Contains(path, kw) {
			score -= 20
			reasons = append(reasons, "aggregator-style domain or path: "+kw)
			break
		}
	}

	for _, kw := range newsKeywords {
		if strings.Contains(host, kw) {
			score -= 15
			reasons = append(reasons, "news or blog domain: "+kw)
			break
		}
	}

	for _, kw := range pathKeywords {
		if strings.Contains(path, strings.ToLower(kw)) {
			score += 10
			reasons = append(reasons, "application keyword in path")
			break
		}
	}

	if orgName != "" && html != "" && copyrightMatches(html, orgName) {
		score += 20
		reasons = append(reasons, "copyright matches organization")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	reason := "no trust signals"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	e.logger.Debug().
		Str("host", host).
		Str("org_name", orgName).
		Int("score", score).
		Msg("Quality evaluated")

	return score, reason
}

// copyrightMatches looks for the organization name near footer or
// copyright markup.
func copyrightMatches(html, orgName string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	footer := doc.Find("footer, .copyright, #copyright, .footer, #footer").Text()
	if footer != "" && strings.Contains(footer, orgName) {
		return true
	}

	// Some sites put the copyright line in a bare paragraph.
	body := doc.Find("body").Text()
	idx := strings.Index(body, "©")
	if idx < 0 {
		idx = strings.Index(strings.ToLower(body), "copyright")
	}
	if idx < 0 {
		return false
	}
	window := body[idx:]
	if len(window) > 200 {
		window = window[:200]
	}
	return strings.Contains(window, orgName)
}

func classifyTransportError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "Client.Timeout"):
		return "timeout"
	case strings.Contains(msg, "stopped after"):
		return "too many redirects"
	default:
		return "connection error: " + msg
	}
}
