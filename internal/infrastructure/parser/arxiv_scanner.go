package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/scanner"
)

const (
	arxivBaseURL    = "https://arxiv.org"
	listingPageSize = 50
	defaultMaxPages = 5
	defaultPause    = time.Second
	identifierLabel = "arXiv:"
	titleLabel      = "Title:"
)

var (
	headerDateExpr = regexp.MustCompile(`\w+,\s+(\d{1,2})\s+(\w+)\s+(\d{4})`)

	errMissingIdentifier = errors.New("entry has no arXiv identifier")
	errMissingDetails    = errors.New("entry has no detail block")
	errCategoryMissing   = errors.New("no category provided")
)

// ArxivScannerOptions tunes the listing walk. Zero values fall back to defaults.
type ArxivScannerOptions struct {
	BaseURL   string
	UserAgent string
	MaxPages  int
	Pause     time.Duration
}

// ArxivScanner walks the paginated "recent" listing of a category and keeps
// only the entries announced under the requested day's header.
type ArxivScanner struct {
	client    *http.Client
	logger    *slog.Logger
	baseURL   string
	userAgent string
	pageSize  int
	maxPages  int
	pause     time.Duration
}

var _ scanner.Scanner = (*ArxivScanner)(nil)

// NewArxivScanner wires an HTTP client; pages hold 50 entries and at most 5 are fetched by default.
func NewArxivScanner(client *http.Client, logger *slog.Logger, opts ArxivScannerOptions) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	a := &ArxivScanner{
		client:    client,
		logger:    logger,
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		pageSize:  listingPageSize,
		maxPages:  opts.MaxPages,
		pause:     opts.Pause,
	}
	if a.baseURL == "" {
		a.baseURL = arxivBaseURL
	}
	if a.userAgent == "" {
		a.userAgent = "PaperDigest/1.0 (academic research digest)"
	}
	if a.maxPages <= 0 {
		a.maxPages = defaultMaxPages
	}
	switch {
	case a.pause == 0:
		a.pause = defaultPause
	case a.pause < 0:
		a.pause = 0
	}
	return a
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return "arxiv"
}

// Scan returns the papers listed under the header equal to req.Day.
// Fetch failures end the walk early; whatever was collected so far is returned.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, errCategoryMissing
	}

	day := req.Day
	if day.IsZero() {
		day = time.Now()
	}
	target := calendarDay(day)
	listing := a.listingURL(category)

	var (
		papers      []domain.Paper
		foundTarget bool
	)

	for page := 0; page < a.maxPages; page++ {
		if page > 0 && !a.wait(ctx) {
			break
		}

		pageURL, err := buildPageURL(listing, page, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", category, err)
		}

		doc, err := a.fetchDocument(ctx, pageURL)
		if err != nil {
			a.logger.Warn("listing fetch failed, stopping walk", "category", category, "page", page, "error", err)
			break
		}

		scan := a.scanPage(doc, target)
		papers = append(papers, scan.papers...)

		next := shouldContinue(scan, foundTarget, a.pageSize)
		foundTarget = foundTarget || scan.foundTarget
		a.logger.Debug("listing page scanned",
			"category", category,
			"page", page,
			"entries", scan.entries,
			"matched", len(scan.papers),
			"found_target", scan.foundTarget,
			"continue", next,
		)
		if !next {
			break
		}
	}

	a.logger.Info("listing walk done", "category", category, "day", target.Format(time.DateOnly), "papers", len(papers))
	return papers, nil
}

func (a *ArxivScanner) listingURL(category string) string {
	return fmt.Sprintf("%s/list/%s/recent", a.baseURL, url.PathEscape(category))
}

func (a *ArxivScanner) wait(ctx context.Context) bool {
	if a.pause <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(a.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// pageScan is what one listing page contributed to the walk.
type pageScan struct {
	papers      []domain.Paper
	foundTarget bool
	entries     int
	hasListing  bool
}

// scanPage visits headers and entries in document order. An entry belongs to
// the most recent header before it; entries after an unparseable header are
// attributed to no date.
func (a *ArxivScanner) scanPage(doc *goquery.Document, target time.Time) pageScan {
	var scan pageScan

	content := doc.Find("div#dlpage").First()
	if content.Length() == 0 {
		return scan
	}
	scan.hasListing = true

	inTarget := false
	content.Find("*").Filter("h3, dt").Each(func(_ int, el *goquery.Selection) {
		switch goquery.NodeName(el) {
		case "h3":
			day, ok := parseDateHeader(el.Text())
			inTarget = ok && day.Equal(target)
			if inTarget {
				scan.foundTarget = true
			}
		case "dt":
			scan.entries++
			if !inTarget {
				return
			}
			paper, err := parseEntry(el)
			if err != nil {
				a.logger.Warn("skip listing entry", "error", err)
				return
			}
			scan.papers = append(scan.papers, paper)
		}
	})

	return scan
}

// shouldContinue decides whether the next listing page is needed. Listings are
// date-descending, so once the target section has been passed the walk stops.
func shouldContinue(scan pageScan, foundBefore bool, pageSize int) bool {
	if !scan.hasListing {
		return false
	}
	if len(scan.papers) > 0 {
		return true
	}
	if foundBefore && !scan.foundTarget {
		return false
	}
	if !foundBefore && !scan.foundTarget {
		return scan.entries >= pageSize
	}
	return false
}

func parseDateHeader(text string) (time.Time, bool) {
	match := headerDateExpr.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return time.Time{}, false
	}
	value := match[1] + " " + match[2] + " " + match[3]
	for _, layout := range []string{"2 Jan 2006", "2 January 2006"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// parseEntry extracts one paper from a <dt> and its following <dd>.
func parseEntry(dt *goquery.Selection) (domain.Paper, error) {
	id := strings.TrimSpace(dt.Find(`a[title="Abstract"]`).First().Text())
	id = strings.TrimSpace(strings.TrimPrefix(id, identifierLabel))
	if id == "" {
		return domain.Paper{}, errMissingIdentifier
	}

	dd := dt.NextAllFiltered("dd").First()
	if dd.Length() == 0 {
		return domain.Paper{}, fmt.Errorf("%s: %w", id, errMissingDetails)
	}

	title := dd.Find("div.list-title").First().Text()
	title = strings.Replace(title, titleLabel, "", 1)
	title = strings.Join(strings.Fields(title), " ")

	authors := make([]string, 0)
	dd.Find("div.list-authors a").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	abstract := strings.TrimSpace(dd.Find("p.mathjax").First().Text())

	return newPaper(id, title, authors, abstract), nil
}

func newPaper(id, title string, authors []string, abstract string) domain.Paper {
	return domain.Paper{
		ArxivID:  id,
		Title:    title,
		Authors:  authors,
		Abstract: abstract,
		URL:      arxivBaseURL + "/abs/" + id,
		PDFURL:   arxivBaseURL + "/pdf/" + id + ".pdf",
	}
}

// buildPageURL returns the bare listing for page 0 and a skip/show window otherwise.
func buildPageURL(base string, page, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}
	if page == 0 {
		return parsed.String(), nil
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(page*pageSize))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
