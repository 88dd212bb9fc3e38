package finder

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
	"github.com/ternarybob/subsidia/internal/models"
	"github.com/ternarybob/subsidia/internal/services/explorer"
	"github.com/ternarybob/subsidia/internal/services/scraper"
	"github.com/ternarybob/subsidia/internal/services/trust"
)

const maxQueries = 3

// Finder discovers funding candidates with grounded search and verifies
// their official pages.
type Finder struct {
	grounded interfaces.TextService
	trust    *trust.Evaluator
	scraper  *scraper.Scraper
	explorer *explorer.Explorer
	prompts  *common.Prompts
	config   *common.Config
	logger   arbor.ILogger
}

// NewFinder creates a candidate finder.
func NewFinder(
	grounded interfaces.TextService,
	trustEval *trust.Evaluator,
	scr *scraper.Scraper,
	exp *explorer.Explorer,
	prompts *common.Prompts,
	config *common.Config,
	logger arbor.ILogger,
) *Finder {
	return &Finder{
		grounded: grounded,
		trust:    trustEval,
		scraper:  scr,
		explorer: exp,
		prompts:  prompts,
		config:   config,
		logger:   logger,
	}
}

// GenerateQueries derives up to three search queries from the profile.
// On model failure it falls back to a single profile-derived query, so
// the result is never empty.
func (f *Finder) GenerateQueries(ctx context.Context, profile string) []string {
	prompt := strings.ReplaceAll(f.prompts.QueryGeneration, "{{profile}}", profile)

	response, err := f.grounded.Generate(ctx, prompt, interfaces.GenerateOptions{})
	if err != nil {
		f.logger.Warn().Err(err).Msg("Query generation failed, using profile-derived fallback")
		return []string{fallbackQuery(profile)}
	}

	var queries []string
	for _, line := range strings.Split(response, "\n") {
		query := strings.TrimSpace(line)
		query = strings.TrimLeft(query, "-*0123456789. ")
		if query == "" {
			continue
		}
		queries = append(queries, query)
		if len(queries) == maxQueries {
			break
		}
	}

	if len(queries) == 0 {
		queries = []string{fallbackQuery(profile)}
	}

	f.logger.Info().Int("count", len(queries)).Msg("Search queries generated")
	return queries
}

// Search runs one grounded search over the profile-derived queries and
// parses the response into candidate opportunities. Previously shown
// titles are passed to the model as exclusions.
func (f *Finder) Search(ctx context.Context, profile string, excluded []string) ([]*models.Opportunity, []interfaces.GroundingSource, error) {
	queries := f.GenerateQueries(ctx, profile)

	exclusions := ""
	if len(excluded) > 0 {
		exclusions = "Already shown, do NOT report again:\n- " + strings.Join(excluded, "\n- ") + "\n\n"
	}

	prompt := f.prompts.Search
	prompt = strings.ReplaceAll(prompt, "{{date}}", time.Now().Format("2006-01-02"))
	prompt = strings.ReplaceAll(prompt, "{{profile}}", profile)
	prompt = strings.ReplaceAll(prompt, "{{queries}}", strings.Join(queries, "\n"))
	prompt = strings.ReplaceAll(prompt, "{{exclusions}}", exclusions)

	result, err := f.grounded.GenerateGrounded(ctx, prompt, interfaces.GenerateOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("grounded search failed: %w", err)
	}

	candidates := parseSearchResults(result.Text)
	f.logger.Info().
		Int("candidates", len(candidates)).
		Int("sources", len(result.Sources)).
		Msg("Search completed")

	return candidates, result.Sources, nil
}

// VerifyCandidate finds and verifies the official page for a candidate.
// The opportunity is mutated in place; IsValid reflects the outcome.
// Failures never surface as errors, only as invalid candidates.
func (f *Finder) VerifyCandidate(ctx context.Context, opp *models.Opportunity) {
	answer := f.lookupOfficialPage(ctx, opp.Title, "")
	if answer != nil {
		f.applyAnswer(ctx, opp, answer)
		if opp.IsValid {
			f.enrich(ctx, opp)
			return
		}
	}

	failedURL := opp.OfficialURL
	f.logger.Info().
		Str("candidate", opp.Title).
		Str("failed_url", failedURL).
		Msg("Primary verification failed, running retry ladder")

	for _, strategy := range f.strategies() {
		candidateURL, ok := strategy.attempt(ctx, f, opp)
		if !ok || candidateURL == "" {
			continue
		}
		if candidateURL == failedURL {
			f.logger.Debug().
				Str("strategy", strategy.name()).
				Str("url", candidateURL).
				Msg("Strategy returned the already-failed URL, skipping")
			continue
		}

		f.applyURL(ctx, opp, candidateURL)
		if opp.IsValid {
			f.logger.Info().
				Str("candidate", opp.Title).
				Str("strategy", strategy.name()).
				Str("url", opp.OfficialURL).
				Msg("Retry strategy recovered official page")
			f.enrich(ctx, opp)
			return
		}
	}

	opp.Validate(f.config.Trust.QualityThreshold)
	f.logger.Info().
		Str("candidate", opp.Title).
		Str("exclude_reason", opp.ExcludeReason).
		Msg("Verification exhausted all strategies")
}

// lookupOfficialPage asks the grounded model for the official page.
// strategyHint alters the search instruction for retry strategies.
func (f *Finder) lookupOfficialPage(ctx context.Context, name, strategyHint string) *officialPageAnswer {
	hint := strategyHint
	if hint == "" {
		if orgName := trust.ExtractOrgName(name); orgName != "" {
			hint = fmt.Sprintf("Search strategy: start from the portal of %q and navigate to the program page.", orgName)
		}
	}

	prompt := f.prompts.OfficialPage
	prompt = strings.ReplaceAll(prompt, "{{date}}", time.Now().Format("2006-01-02"))
	prompt = strings.ReplaceAll(prompt, "{{name}}", name)
	prompt = strings.ReplaceAll(prompt, "{{strategy}}", hint)

	result, err := f.grounded.GenerateGrounded(ctx, prompt, interfaces.GenerateOptions{})
	if err != nil {
		f.logger.Warn().Err(err).Str("candidate", name).Msg("Official page lookup failed")
		return nil
	}

	answer := parseOfficialPage(result.Text)
	if answer == nil {
		f.logger.Debug().Str("candidate", name).Msg("Official page response carried no URL")
	}
	return answer
}

// applyAnswer merges a parsed official-page answer into the opportunity
// and runs resolution, probing, scoring and validation.
func (f *Finder) applyAnswer(ctx context.Context, opp *models.Opportunity, answer *officialPageAnswer) {
	if answer.DeadlineStart != "" {
		opp.DeadlineStart = answer.DeadlineStart
	}
	if answer.DeadlineEnd != "" {
		opp.DeadlineEnd = answer.DeadlineEnd
	}
	opp.Status = answer.Status
	opp.Confidence = answer.Confidence
	opp.ConfidenceReason = answer.ConfidenceReason

	f.applyURL(ctx, opp, answer.URL)
}

// applyURL resolves, probes and scores a candidate URL, then validates
// the opportunity against the quality threshold.
func (f *Finder) applyURL(ctx context.Context, opp *models.Opportunity, rawURL string) {
	resolved := f.trust.ResolveRedirect(ctx, rawURL)
	opp.OfficialURL = resolved
	opp.Domain = hostOf(resolved)

	probe := f.trust.CheckAccessible(ctx, resolved)
	opp.Accessible = probe.Accessible
	opp.AccessStatus = probe.Status
	if probe.Accessible && probe.FinalURL != "" {
		opp.OfficialURL = probe.FinalURL
		opp.Domain = hostOf(probe.FinalURL)
	}

	opp.QualityScore, opp.QualityReason = f.trust.EvaluateQuality(opp.OfficialURL, opp.Title, probe.HTML)
	opp.Validate(f.config.Trust.QualityThreshold)
}

// enrich scrapes the verified page for format files and a deadline.
// An obstacle found during scraping invalidates the candidate.
func (f *Finder) enrich(ctx context.Context, opp *models.Opportunity) {
	exploration := f.scraper.Explore(ctx, opp.OfficialURL, opp.Title)

	switch exploration.Obstacle {
	case models.ObstacleAuthWall, models.ObstacleNotFound, models.ObstacleAccessDenied:
		// The rendered page contradicts the HTTP probe; the rendered
		// view wins.
		opp.Accessible = false
		opp.AccessStatus = fmt.Sprintf("%s: %s", exploration.Obstacle, exploration.ObstacleDetail)
		opp.Validate(f.config.Trust.QualityThreshold)
		return
	case models.ObstacleErrorPage:
		// Browser-side failure. The plain HTTP probe already reached the
		// page, so keep validity but skip enrichment.
		f.logger.Warn().
			Str("url", opp.OfficialURL).
			Str("detail", exploration.ObstacleDetail).
			Msg("Enrichment skipped, page could not be rendered")
		return
	}

	opp.FormatFiles = exploration.FormatFiles
	if opp.DeadlineEnd == "" && exploration.Deadline != nil {
		opp.DeadlineEnd = exploration.Deadline.Date
	}
}

func fallbackQuery(profile string) string {
	summary := []rune(strings.TrimSpace(profile))
	if len(summary) > 50 {
		summary = summary[:50]
	}
	return "NPO助成金 " + string(summary)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
