package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scanner"
)

// StrategySource implements PaperSource via a registered scanner strategy.
type StrategySource struct {
	registry *scanner.Registry
	strategy string
	logger   *slog.Logger
}

var _ ports.PaperSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the configured strategy name.
func NewStrategySource(reg *scanner.Registry, strategy string, log *slog.Logger) *StrategySource {
	if log == nil {
		log = logging.Discard()
	}
	return &StrategySource{
		registry: reg,
		strategy: strategy,
		logger:   log,
	}
}

// FetchDaily scrapes every unique category once. A failing category yields
// an empty list instead of aborting the whole fetch.
func (s *StrategySource) FetchDaily(ctx context.Context, day time.Time, categories []string) (map[string][]domain.Paper, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	strategy, err := s.registry.Resolve(s.strategy)
	if err != nil {
		return nil, fmt.Errorf("resolve strategy: %w", err)
	}

	unique := uniqueCategories(categories)
	s.logger.Info("fetch daily", "strategy", s.strategy, "categories", len(unique), "day", day.Format(time.DateOnly))

	results := make(map[string][]domain.Paper, len(unique))
	total := 0
	for i, category := range unique {
		s.logger.Debug("scrape category", "index", i+1, "of", len(unique), "category", category)

		papers, err := strategy.Scan(ctx, scanner.Request{Day: day, Category: category})
		if err != nil {
			s.logger.Warn("scrape category failed", "category", category, "error", err)
			papers = nil
		}
		results[category] = papers
		total += len(papers)
	}

	s.logger.Info("fetch daily done", "categories", len(unique), "papers", total)
	return results, nil
}

func uniqueCategories(categories []string) []string {
	seen := make(map[string]struct{}, len(categories))
	unique := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	sort.Strings(unique)
	return unique
}
