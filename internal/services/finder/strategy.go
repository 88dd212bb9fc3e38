package finder

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/subsidia/internal/models"
	"github.com/ternarybob/subsidia/internal/services/trust"
)

// retryStrategy is one rung of the verification retry ladder. attempt
// returns a candidate URL to try, or ok=false when the strategy does
// not apply.
type retryStrategy interface {
	name() string
	attempt(ctx context.Context, f *Finder, opp *models.Opportunity) (string, bool)
}

// strategies returns the ladder in order. Cheap model-only searches
// first, the browser fallback last.
func (f *Finder) strategies() []retryStrategy {
	return []retryStrategy{
		fullNameStrategy{},
		orgKeywordStrategy{},
		keywordOnlyStrategy{},
		browserSearchStrategy{},
	}
}

// fullNameStrategy re-runs the lookup with the complete candidate title
// and an explicit re-search instruction.
type fullNameStrategy struct{}

func (fullNameStrategy) name() string { return "full_name" }

func (fullNameStrategy) attempt(ctx context.Context, f *Finder, opp *models.Opportunity) (string, bool) {
	hint := "Search strategy: the previously reported URL was wrong. Search again for the exact program name and return a different official page."
	answer := f.lookupOfficialPage(ctx, opp.Title, hint)
	if answer == nil {
		return "", false
	}
	return answer.URL, true
}

// orgKeywordStrategy searches for the organization plus a grant keyword.
type orgKeywordStrategy struct{}

func (orgKeywordStrategy) name() string { return "org_keyword" }

func (orgKeywordStrategy) attempt(ctx context.Context, f *Finder, opp *models.Opportunity) (string, bool) {
	orgName := trust.ExtractOrgName(opp.Title)
	if orgName == "" {
		return "", false
	}

	hint := fmt.Sprintf("Search strategy: search for %q together with 助成金 or 募集 and locate the current program page on the organization's own site.", orgName)
	answer := f.lookupOfficialPage(ctx, orgName+" 助成金 募集", hint)
	if answer == nil {
		return "", false
	}
	return answer.URL, true
}

// keywordOnlyStrategy drops the organization and searches by the
// program's descriptive tokens alone.
type keywordOnlyStrategy struct{}

func (keywordOnlyStrategy) name() string { return "keyword_only" }

func (keywordOnlyStrategy) attempt(ctx context.Context, f *Finder, opp *models.Opportunity) (string, bool) {
	keywords := programKeywords(opp.Title)
	if keywords == "" {
		return "", false
	}

	hint := "Search strategy: search by program keywords only and pick the most official-looking result."
	answer := f.lookupOfficialPage(ctx, keywords, hint)
	if answer == nil {
		return "", false
	}
	return answer.URL, true
}

// browserSearchStrategy renders a web search results page and picks the
// first outbound link that looks like a grant page. Last resort: it
// needs no model at all.
type browserSearchStrategy struct{}

func (browserSearchStrategy) name() string { return "browser_search" }

func (browserSearchStrategy) attempt(ctx context.Context, f *Finder, opp *models.Opportunity) (string, bool) {
	if f.explorer == nil {
		return "", false
	}

	query := opp.Title + " 募集要項"
	searchURL := "https://www.bing.com/search?q=" + url.QueryEscape(query)

	pg, err := f.explorer.Open(ctx, searchURL)
	if err != nil {
		f.logger.Debug().Err(err).Msg("Browser search fallback could not open results page")
		return "", false
	}
	defer f.explorer.Close(pg)

	for _, link := range f.explorer.ExtractLinks(ctx, pg) {
		if link.IsFile || !isOutboundResult(link.URL) {
			continue
		}
		haystack := strings.ToLower(link.URL + " " + link.Text)
		if strings.Contains(haystack, "助成") || strings.Contains(haystack, "募集") ||
			strings.Contains(haystack, "grant") || strings.Contains(haystack, "josei") {
			return link.URL, true
		}
	}

	return "", false
}

// searchEngineHosts are never valid official pages.
var searchEngineHosts = []string{"bing.com", "google.com", "yahoo.co.jp", "duckduckgo.com", "microsoft.com"}

func isOutboundResult(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := strings.ToLower(parsed.Host)
	for _, engine := range searchEngineHosts {
		if host == engine || strings.HasSuffix(host, "."+engine) {
			return false
		}
	}
	return true
}

// programKeywords keeps the descriptive tokens of a title, skipping the
// organization name.
func programKeywords(title string) string {
	orgName := trust.ExtractOrgName(title)
	var kept []string
	for _, token := range strings.Fields(title) {
		if token == orgName || len([]rune(token)) < 2 {
			continue
		}
		kept = append(kept, token)
		if len(kept) == 3 {
			break
		}
	}
	return strings.Join(kept, " ")
}
