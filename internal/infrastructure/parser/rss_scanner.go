package parser

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/scanner"
)

const (
	arxivRSSBaseURL = "https://rss.arxiv.org/rss"
	abstractLabel   = "Abstract:"
)

// RSSScanner reads a category's announcement feed. The feed only covers the
// latest announcement, so it is useful when the target day is today.
type RSSScanner struct {
	parser  *gofeed.Parser
	logger  *slog.Logger
	baseURL string
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner builds a feed-backed scanner; baseURL defaults to rss.arxiv.org.
func NewRSSScanner(client *http.Client, logger *slog.Logger, baseURL, userAgent string) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if baseURL == "" {
		baseURL = arxivRSSBaseURL
	}
	fp := gofeed.NewParser()
	fp.Client = client
	if userAgent != "" {
		fp.UserAgent = userAgent
	}
	return &RSSScanner{parser: fp, logger: logger, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name identifies the strategy inside the registry.
func (r *RSSScanner) Name() string {
	return "arxiv-rss"
}

// Scan keeps feed items published on req.Day.
func (r *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, errCategoryMissing
	}
	day := req.Day
	if day.IsZero() {
		day = time.Now()
	}
	target := calendarDay(day)

	feed, err := r.parser.ParseURLWithContext(r.baseURL+"/"+url.PathEscape(category), ctx)
	if err != nil {
		r.logger.Warn("feed fetch failed", "category", category, "error", err)
		return nil, nil
	}

	papers := make([]domain.Paper, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.PublishedParsed != nil && !calendarDay(*item.PublishedParsed).Equal(target) {
			continue
		}
		paper, ok := paperFromItem(item)
		if !ok {
			r.logger.Warn("skip feed item without identifier", "link", item.Link)
			continue
		}
		papers = append(papers, paper)
	}

	r.logger.Info("feed scan done", "category", category, "day", target.Format(time.DateOnly), "papers", len(papers))
	return papers, nil
}

func paperFromItem(item *gofeed.Item) (domain.Paper, bool) {
	id := ""
	if idx := strings.Index(item.Link, "/abs/"); idx >= 0 {
		id = strings.TrimSpace(item.Link[idx+len("/abs/"):])
	}
	if id == "" {
		return domain.Paper{}, false
	}

	abstract := item.Description
	if idx := strings.Index(abstract, abstractLabel); idx >= 0 {
		abstract = abstract[idx+len(abstractLabel):]
	}

	return newPaper(id, strings.Join(strings.Fields(item.Title), " "), itemAuthors(item), strings.TrimSpace(abstract)), true
}

// itemAuthors handles feeds that put every author into a single comma-separated creator.
func itemAuthors(item *gofeed.Item) []string {
	var raw []string
	for _, person := range item.Authors {
		if person != nil {
			raw = append(raw, person.Name)
		}
	}
	if len(raw) == 0 && item.DublinCoreExt != nil {
		raw = item.DublinCoreExt.Creator
	}

	authors := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, name := range strings.Split(entry, ",") {
			if name = strings.TrimSpace(name); name != "" {
				authors = append(authors, name)
			}
		}
	}
	return authors
}
