package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	defaultMaxChars = 50000
	defaultTimeout  = 60 * time.Second
	maxDownload     = 64 << 20
)

// ErrNoText is returned when a PDF yields no extractable text.
var ErrNoText = errors.New("no text extracted from pdf")

// Source downloads a paper's PDF and extracts its plain text.
type Source struct {
	client    *http.Client
	userAgent string
	maxChars  int
	logger    *slog.Logger
}

var _ ports.FullTextSource = (*Source)(nil)

// NewSource wires the HTTP client; maxChars bounds the extracted text.
func NewSource(client *http.Client, userAgent string, maxChars int, logger *slog.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Source{client: client, userAgent: userAgent, maxChars: maxChars, logger: logging.OrDiscard(logger)}
}

// FullText downloads paper.PDFURL and extracts text page by page.
func (s *Source) FullText(ctx context.Context, paper domain.Paper) (string, error) {
	link := paper.PDFURL
	if link == "" {
		link = strings.Replace(paper.URL, "/abs/", "/pdf/", 1)
	}
	if link == "" {
		return "", fmt.Errorf("paper %s has no pdf link", paper.ArxivID)
	}

	data, err := s.download(ctx, link)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", paper.ArxivID, err)
	}

	text, pages, err := ExtractText(data, s.maxChars)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", paper.ArxivID, err)
	}
	s.logger.Debug("pdf text extracted", "arxiv_id", paper.ArxivID, "pages", pages, "chars", len(text))
	return text, nil
}

func (s *Source) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return data, nil
}

// ExtractText reads pages in order until more than maxChars characters are
// collected. Pages that fail to extract are skipped.
func ExtractText(data []byte, maxChars int) (text string, pages int, err error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := pageText(page)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
		pages++
		if b.Len() > maxChars {
			break
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", pages, ErrNoText
	}
	return b.String(), pages, nil
}

// pageText guards against panics the pdf reader raises on malformed streams.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page text: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}
