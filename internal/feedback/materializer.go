package feedback

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// Materializer persists patterns above the confidence threshold as pending suggestions.
type Materializer struct {
	threshold   float64
	suggestions ports.SuggestionRepository
	logger      *slog.Logger
}

// NewMaterializer wires the suggestion store.
func NewMaterializer(policy Policy, suggestions ports.SuggestionRepository, logger *slog.Logger) *Materializer {
	return &Materializer{
		threshold:   policy.ConfidenceThreshold,
		suggestions: suggestions,
		logger:      logging.OrDiscard(logger),
	}
}

// Materialize stores every pattern strictly above the threshold and returns
// how many were persisted. A failed insert is logged and skipped.
func (m *Materializer) Materialize(ctx context.Context, userID, currentPrompt string, patterns domain.Patterns, now time.Time) int {
	groups := []struct {
		kind    domain.PatternType
		entries []domain.Pattern
	}{
		{domain.PatternPositive, patterns.StrongPositive},
		{domain.PatternNegative, patterns.StrongNegative},
		{domain.PatternNuanced, patterns.Nuanced},
	}

	created := 0
	for _, g := range groups {
		for _, p := range g.entries {
			if p.Confidence <= m.threshold {
				continue
			}
			s := domain.PromptSuggestion{
				ID:            uuid.NewString(),
				UserID:        userID,
				Type:          g.kind,
				Description:   p.Description,
				Confidence:    p.Confidence,
				Evidence:      p.Evidence,
				SuggestedText: p.SuggestedText(g.kind == domain.PatternNuanced),
				CurrentPrompt: currentPrompt,
				Status:        domain.SuggestionPending,
				CreatedAt:     now,
			}
			if err := m.suggestions.CreateSuggestion(ctx, s); err != nil {
				m.logger.Warn("could not store suggestion", "user_id", userID, "pattern", truncate(p.Description, 30), "error", err)
				continue
			}
			created++
			m.logger.Info("suggestion created", "user_id", userID, "type", g.kind, "pattern", truncate(p.Description, 50))
		}
	}
	return created
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
