package explorer

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/models"
)

// fileExtensions maps downloadable extensions to document types.
var fileExtensions = map[string]models.FileType{
	".pdf":  models.FileTypePDF,
	".doc":  models.FileTypeWord,
	".docx": models.FileTypeWord,
	".xls":  models.FileTypeExcel,
	".xlsx": models.FileTypeExcel,
	".zip":  models.FileTypeZip,
}

// politeSuffixes are government domains that get a short delay before
// navigation.
var politeSuffixes = []string{".go.jp", ".lg.jp"}

// Link is a hyperlink extracted from a rendered page.
type Link struct {
	URL    string
	Text   string
	IsFile bool
	Type   models.FileType
}

// PageInfo holds basic metadata about a rendered page.
type PageInfo struct {
	Title           string
	FinalURL        string
	MetaDescription string
}

// Page is an open browser tab. Callers must Close it on every path.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
}

// Explorer renders pages with a headless browser pool and extracts
// structure from them. All operations degrade to zero values on failure.
type Explorer struct {
	pool   *BrowserPool
	config *common.BrowserConfig
	logger arbor.ILogger
}

// NewExplorer creates a page explorer on top of an initialized pool.
func NewExplorer(pool *BrowserPool, config *common.Config, logger arbor.ILogger) *Explorer {
	return &Explorer{
		pool:   pool,
		config: &config.Browser,
		logger: logger,
	}
}

// Open navigates a fresh tab to the URL. The wait strategy degrades in
// steps: body-ready, then a fixed settle delay, then bare navigation.
func (e *Explorer) Open(ctx context.Context, rawURL string) (*Page, error) {
	if err := e.politenessWait(ctx, rawURL); err != nil {
		return nil, err
	}

	browserCtx, release, err := e.pool.GetBrowser()
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	pg := &Page{ctx: tabCtx, cancel: tabCancel, release: release}

	timeout := e.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := e.runWithTimeout(tabCtx, timeout,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err == nil {
		return pg, nil
	}

	e.logger.Debug().Str("url", rawURL).Msg("Body-ready wait failed, retrying with settle delay")
	if err := e.runWithTimeout(tabCtx, timeout,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(2*time.Second),
	); err == nil {
		return pg, nil
	}

	e.logger.Debug().Str("url", rawURL).Msg("Settle-delay navigation failed, trying bare navigation")
	if err := e.runWithTimeout(tabCtx, timeout/2, chromedp.Navigate(rawURL)); err != nil {
		e.Close(pg)
		return nil, err
	}

	return pg, nil
}

// Close tears down the tab. Safe to call multiple times and on every
// exit path.
func (e *Explorer) Close(pg *Page) {
	if pg == nil {
		return
	}
	if pg.cancel != nil {
		pg.cancel()
		pg.cancel = nil
	}
	if pg.release != nil {
		pg.release()
		pg.release = nil
	}
}

// Info returns the page title, final URL and meta description.
func (e *Explorer) Info(ctx context.Context, pg *Page) PageInfo {
	var info PageInfo

	if err := e.runWithTimeout(pg.ctx, 10*time.Second,
		chromedp.Title(&info.Title),
		chromedp.Location(&info.FinalURL),
		chromedp.Evaluate(`(() => {
			const meta = document.querySelector('meta[name="description"]');
			return meta ? meta.content : '';
		})()`, &info.MetaDescription),
	); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read page info")
	}

	return info
}

// ExtractLinks returns all anchors on the page with relative URLs
// resolved against the page's final URL.
func (e *Explorer) ExtractLinks(ctx context.Context, pg *Page) []Link {
	var base string
	var raw []struct {
		Href string `json:"href"`
		Text string `json:"text"`
	}

	if err := e.runWithTimeout(pg.ctx, 15*time.Second,
		chromedp.Location(&base),
		chromedp.Evaluate(`Array.from(document.querySelectorAll('a[href]')).map(a => ({
			href: a.getAttribute('href') || '',
			text: (a.innerText || '').trim().substring(0, 100)
		}))`, &raw),
	); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to extract links")
		return nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		e.logger.Warn().Err(err).Str("base", base).Msg("Unparseable page URL")
		return nil
	}

	links := make([]Link, 0, len(raw))
	for _, item := range raw {
		href := strings.TrimSpace(item.Href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := baseURL.ResolveReference(ref).String()
		fileType := ClassifyFileURL(absolute)

		links = append(links, Link{
			URL:    absolute,
			Text:   item.Text,
			IsFile: fileType != models.FileTypeUnknown,
			Type:   fileType,
		})
	}

	e.logger.Debug().Int("links", len(links)).Str("url", base).Msg("Extracted page links")
	return links
}

// TextContent returns the text of the selected element, or of body when
// the selector is empty.
func (e *Explorer) TextContent(ctx context.Context, pg *Page, selector string) string {
	if selector == "" {
		selector = "body"
	}

	var text string
	if err := e.runWithTimeout(pg.ctx, 15*time.Second,
		chromedp.Text(selector, &text, chromedp.ByQuery),
	); err != nil {
		e.logger.Warn().Err(err).Str("selector", selector).Msg("Failed to read text content")
		return ""
	}
	return text
}

// HTML returns the rendered document markup.
func (e *Explorer) HTML(ctx context.Context, pg *Page) string {
	var html string
	if err := e.runWithTimeout(pg.ctx, 15*time.Second,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to capture page HTML")
		return ""
	}
	return html
}

// Screenshot captures the current viewport as PNG.
func (e *Explorer) Screenshot(ctx context.Context, pg *Page) ([]byte, error) {
	var buf []byte
	err := e.runWithTimeout(pg.ctx, 20*time.Second,
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *Explorer) runWithTimeout(tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (e *Explorer) politenessWait(ctx context.Context, rawURL string) error {
	if e.config.PolitenessWait <= 0 {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(parsed.Host)

	for _, suffix := range politeSuffixes {
		if strings.HasSuffix(host, suffix) {
			select {
			case <-time.After(e.config.PolitenessWait):
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
	}
	return nil
}

// ClassifyFileURL returns the document type implied by the URL's path
// extension, or FileTypeUnknown for non-file links.
func ClassifyFileURL(rawURL string) models.FileType {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.FileTypeUnknown
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if fileType, ok := fileExtensions[ext]; ok {
		return fileType
	}
	return models.FileTypeUnknown
}

// FilenameFromURL returns the last path segment of a file URL.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Base(parsed.Path)
}
