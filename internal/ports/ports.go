package ports

import (
	"context"
	"time"

	"PaperDigest/internal/domain"
)

// PaperSource pulls one day's announcements for a set of categories.
type PaperSource interface {
	FetchDaily(ctx context.Context, day time.Time, categories []string) (map[string][]domain.Paper, error)
}

// SubscriberRepository reads profiles and records per-user timestamps.
type SubscriberRepository interface {
	ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	EmailSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	RecordLastSent(ctx context.Context, userID string, at time.Time) error
	AddPapersSent(ctx context.Context, userID string, n int) error
	RecordAnalysisAttempt(ctx context.Context, userID string, at time.Time) error
}

// VoteRepository exposes a subscriber's feedback history.
type VoteRepository interface {
	VoteCounts(ctx context.Context, userID string) (domain.VoteStats, error)
	Votes(ctx context.Context, userID string) ([]domain.VoteRecord, error)
}

// SuggestionRepository persists prompt suggestions.
type SuggestionRepository interface {
	CreateSuggestion(ctx context.Context, s domain.PromptSuggestion) error
	CountPending(ctx context.Context, userID string) (int, error)
}

// PaperRepository keeps delivered papers keyed by (user, arxiv id).
type PaperRepository interface {
	StorePaper(ctx context.Context, paper domain.DeliveredPaper) (bool, error)
	PapersSince(ctx context.Context, userID string, since time.Time) ([]domain.DeliveredPaper, error)
}

// ChatRequest is a single oracle invocation.
type ChatRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	Seed        *int64
	Timeout     time.Duration
}

// ChatClient is the language-model oracle.
type ChatClient interface {
	CompleteJSON(ctx context.Context, req ChatRequest) ([]byte, error)
	CompleteText(ctx context.Context, req ChatRequest) (string, error)
}

// PaperClassifier judges a paper against a subscriber prompt. It never fails;
// errors surface as a negative verdict.
type PaperClassifier interface {
	Classify(ctx context.Context, prompt string, paper domain.Paper) domain.Classification
}

// PaperReviewer writes the digest review of a relevant paper for a subscriber prompt.
type PaperReviewer interface {
	Review(ctx context.Context, prompt string, paper domain.Paper) string
}

// FullTextSource extracts a paper's body text (usually from its PDF).
type FullTextSource interface {
	FullText(ctx context.Context, paper domain.Paper) (string, error)
}

// Mailer delivers an HTML digest.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Notifier streams run reports to operators.
type Notifier interface {
	PublishReport(ctx context.Context, report string) error
}
