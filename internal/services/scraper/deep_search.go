package scraper

import (
	"context"

	"github.com/ternarybob/subsidia/internal/models"
)

// relatedLinksPerPage caps how many navigation links each visited page
// may queue during a deep search.
const relatedLinksPerPage = 5

// DeepSearch walks the site breadth-first from startURL collecting
// format files, up to maxDepth levels. Pages are visited at most once
// and files are deduplicated by URL.
func (s *Scraper) DeepSearch(ctx context.Context, startURL string, maxDepth int, candidateName string) []models.FormatFile {
	if maxDepth <= 0 {
		maxDepth = s.config.DeepSearchDepth
	}

	type queued struct {
		url   string
		depth int
	}

	visited := map[string]bool{startURL: true}
	queue := []queued{{url: startURL, depth: 0}}
	var files []models.FormatFile

	for len(queue) > 0 {
		if ctx.Err() != nil {
			s.logger.Debug().Str("start_url", startURL).Msg("Deep search cancelled")
			break
		}

		item := queue[0]
		queue = queue[1:]

		pg, err := s.explorer.Open(ctx, item.url)
		if err != nil {
			s.logger.Debug().Err(err).Str("url", item.url).Msg("Deep search could not open page")
			continue
		}

		links := s.explorer.ExtractLinks(ctx, pg)
		s.explorer.Close(pg)

		files = mergeFiles(files, s.collectFormatFiles(links, item.url, candidateName, item.depth))

		if item.depth >= maxDepth {
			continue
		}

		enqueued := 0
		for _, related := range collectRelatedLinks(links) {
			if enqueued >= relatedLinksPerPage {
				break
			}
			if visited[related.URL] {
				continue
			}
			visited[related.URL] = true
			queue = append(queue, queued{url: related.URL, depth: item.depth + 1})
			enqueued++
		}
	}

	sortFilesByRelevance(files)

	s.logger.Info().
		Str("start_url", startURL).
		Int("pages_visited", len(visited)).
		Int("files", len(files)).
		Msg("Deep search completed")

	return files
}
