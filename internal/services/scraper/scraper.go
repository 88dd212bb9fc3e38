package scraper

import (
	"context"
	"regexp"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/models"
	"github.com/ternarybob/subsidia/internal/services/explorer"
	"github.com/ternarybob/subsidia/internal/services/visual"
)

// bareFileURLRegex catches document URLs that appear in page text
// without being wrapped in an anchor.
var bareFileURLRegex = regexp.MustCompile(`https?://[^\s"'<>)\]]+\.(?:pdf|docx?|xlsx?|zip)`)

// Scraper explores candidate pages for application documents, deadlines
// and related navigation.
type Scraper struct {
	explorer  *explorer.Explorer
	visual    *visual.Analyzer
	config    *common.DiscoveryConfig
	logger    arbor.ILogger
	converter *md.Converter
}

// NewScraper creates a candidate page scraper. The visual analyzer may
// be nil, in which case the fallback step is skipped.
func NewScraper(exp *explorer.Explorer, vis *visual.Analyzer, config *common.Config, logger arbor.ILogger) *Scraper {
	return &Scraper{
		explorer:  exp,
		visual:    vis,
		config:    &config.Discovery,
		logger:    logger,
		converter: md.NewConverter("", true, nil),
	}
}

// Explore scrapes a single candidate page. It always returns a result;
// failures are reported through the Accessible and Obstacle fields.
func (s *Scraper) Explore(ctx context.Context, rawURL, candidateName string) *models.Exploration {
	result := &models.Exploration{FinalURL: rawURL}

	pg, err := s.explorer.Open(ctx, rawURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to open candidate page")
		result.Obstacle = models.ObstacleErrorPage
		result.ObstacleDetail = err.Error()
		return result
	}
	defer s.explorer.Close(pg)

	info := s.explorer.Info(ctx, pg)
	result.Title = info.Title
	result.MetaDescription = info.MetaDescription
	if info.FinalURL != "" {
		result.FinalURL = info.FinalURL
	}

	if obstacle, phrase := detectObstacle(info.Title); obstacle != models.ObstacleNone {
		result.Obstacle = obstacle
		result.ObstacleDetail = "title matched: " + phrase
		s.logger.Info().
			Str("url", result.FinalURL).
			Str("obstacle", string(obstacle)).
			Str("phrase", phrase).
			Msg("Candidate page blocked by obstacle")
		return result
	}

	result.Accessible = true

	links := s.explorer.ExtractLinks(ctx, pg)
	result.FormatFiles = s.collectFormatFiles(links, result.FinalURL, candidateName, 0)
	result.RelatedLinks = collectRelatedLinks(links)

	pageText := s.explorer.TextContent(ctx, pg, "")
	if pageText == "" {
		if html := s.explorer.HTML(ctx, pg); html != "" {
			if converted, err := s.converter.ConvertString(html); err == nil {
				pageText = converted
			}
		}
	}

	result.FormatFiles = mergeFiles(result.FormatFiles, s.bareURLFiles(pageText, result.FinalURL, candidateName))
	result.Deadline = ExtractDeadline(pageText)

	if len(result.FormatFiles) < s.config.MinFilesForDeep {
		s.followDownloadPages(ctx, result, candidateName)
	}

	if len(result.FormatFiles) < s.config.MinFilesForDeep && s.config.DeepSearchDepth > 1 {
		found := s.DeepSearch(ctx, result.FinalURL, s.config.DeepSearchDepth, candidateName)
		result.FormatFiles = mergeFiles(result.FormatFiles, found)
	}

	if len(result.FormatFiles) < s.config.MinFilesForDeep && s.visual != nil {
		s.visualFallback(ctx, pg, result)
	}

	sortFilesByRelevance(result.FormatFiles)

	s.logger.Info().
		Str("url", result.FinalURL).
		Int("files", len(result.FormatFiles)).
		Int("related_links", len(result.RelatedLinks)).
		Bool("deadline_found", result.Deadline != nil).
		Msg("Candidate page explored")

	return result
}

// collectFormatFiles turns file links into scored FormatFile records.
func (s *Scraper) collectFormatFiles(links []explorer.Link, foundAt, candidateName string, depth int) []models.FormatFile {
	var files []models.FormatFile
	for _, link := range links {
		if !link.IsFile {
			continue
		}
		files = append(files, models.FormatFile{
			URL:            link.URL,
			Text:           link.Text,
			Filename:       explorer.FilenameFromURL(link.URL),
			Type:           link.Type,
			RelevanceScore: scoreFileRelevance(link.URL, link.Text, candidateName),
			FoundAt:        foundAt,
			Depth:          depth,
		})
	}
	return files
}

// bareURLFiles scans page text for document URLs not present as anchors.
func (s *Scraper) bareURLFiles(pageText, foundAt, candidateName string) []models.FormatFile {
	var files []models.FormatFile
	for _, match := range bareFileURLRegex.FindAllString(pageText, -1) {
		fileType := explorer.ClassifyFileURL(match)
		if fileType == models.FileTypeUnknown {
			continue
		}
		files = append(files, models.FormatFile{
			URL:            match,
			Filename:       explorer.FilenameFromURL(match),
			Type:           fileType,
			RelevanceScore: scoreFileRelevance(match, "", candidateName),
			FoundAt:        foundAt,
		})
	}
	return files
}

// followDownloadPages opens the highest-scoring related links one level
// deep, looking for file links the landing page did not carry.
func (s *Scraper) followDownloadPages(ctx context.Context, result *models.Exploration, candidateName string) {
	limit := s.config.FollowLinksLimit
	if limit <= 0 {
		limit = 3
	}

	followed := 0
	for _, related := range result.RelatedLinks {
		if followed >= limit || len(result.FormatFiles) >= s.config.MinFilesForDeep {
			return
		}
		if related.URL == result.FinalURL {
			continue
		}

		pg, err := s.explorer.Open(ctx, related.URL)
		if err != nil {
			s.logger.Debug().Err(err).Str("url", related.URL).Msg("Failed to follow related link")
			continue
		}

		links := s.explorer.ExtractLinks(ctx, pg)
		s.explorer.Close(pg)

		found := s.collectFormatFiles(links, related.URL, candidateName, 1)
		result.FormatFiles = mergeFiles(result.FormatFiles, found)
		followed++
	}
}

// visualFallback screenshots the page and asks the vision model for
// download elements structural extraction missed.
func (s *Scraper) visualFallback(ctx context.Context, pg *explorer.Page, result *models.Exploration) {
	png, err := s.explorer.Screenshot(ctx, pg)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Screenshot for visual fallback failed")
		return
	}

	elements := s.visual.FindDownloadElements(ctx, png)
	for _, el := range elements {
		// Visual hits have no URL; they record that a document exists
		// and where to click for it.
		result.FormatFiles = append(result.FormatFiles, models.FormatFile{
			Text:           el.Text,
			Type:           el.FileType,
			RelevanceScore: 5,
			FoundAt:        result.FinalURL,
		})
	}

	if len(elements) > 0 {
		s.logger.Info().
			Int("elements", len(elements)).
			Str("url", result.FinalURL).
			Msg("Visual fallback located download elements")
	}
}

// collectRelatedLinks keeps non-file links that look like grant pages,
// best first.
func collectRelatedLinks(links []explorer.Link) []models.RelatedLink {
	var related []models.RelatedLink
	for _, link := range links {
		if link.IsFile {
			continue
		}
		score := scorePageRelevance(link.URL, link.Text)
		if score == 0 {
			continue
		}
		related = append(related, models.RelatedLink{
			URL:            link.URL,
			Text:           link.Text,
			RelevanceScore: score,
		})
	}
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].RelevanceScore > related[j].RelevanceScore
	})
	return related
}

// mergeFiles appends new files, deduplicating by URL. Visual hits with
// no URL are deduplicated by text.
func mergeFiles(existing, found []models.FormatFile) []models.FormatFile {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[fileKey(f)] = true
	}
	for _, f := range found {
		key := fileKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, f)
	}
	return existing
}

func fileKey(f models.FormatFile) string {
	if f.URL != "" {
		return strings.ToLower(f.URL)
	}
	return "text:" + strings.ToLower(f.Text)
}

func sortFilesByRelevance(files []models.FormatFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].RelevanceScore > files[j].RelevanceScore
	})
}
