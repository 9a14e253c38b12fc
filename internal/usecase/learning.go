package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/feedback"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// EligibilityChecker decides whether a subscriber is due for analysis.
type EligibilityChecker interface {
	Evaluate(ctx context.Context, sub domain.Subscriber, now time.Time) feedback.Decision
}

// PatternExtractor asks the oracle for preference patterns in a vote history.
type PatternExtractor interface {
	Extract(ctx context.Context, userID string) (domain.Patterns, error)
}

// SuggestionMaterializer turns confident patterns into pending suggestions.
type SuggestionMaterializer interface {
	Materialize(ctx context.Context, userID, currentPrompt string, patterns domain.Patterns, now time.Time) int
}

// LearningDeps wires the learning agent.
type LearningDeps struct {
	Subscribers  ports.SubscriberRepository
	Evaluator    EligibilityChecker
	Extractor    PatternExtractor
	Materializer SuggestionMaterializer
	Policy       feedback.Policy
	Logger       *slog.Logger
}

// LearningAgent proposes prompt edits from each subscriber's votes.
type LearningAgent struct {
	subscribers  ports.SubscriberRepository
	evaluator    EligibilityChecker
	extractor    PatternExtractor
	materializer SuggestionMaterializer
	policy       feedback.Policy
	logger       *slog.Logger
}

// AgentStats summarizes one agent pass.
type AgentStats struct {
	UsersChecked    int
	SkippedVotes    int
	SkippedCooldown int
	SkippedPending  int
	Analyzed        int
	SuggestionsMade int
	NoPatterns      int
	Failures        int
}

// Report renders the operator summary.
func (s AgentStats) Report(now time.Time) string {
	return fmt.Sprintf("Learning agent %s\nUsers checked: %d\nSkipped: %d votes, %d cooldown, %d pending\nAnalyzed: %d, suggestions: %d, no pattern: %d, failures: %d",
		now.Format(time.DateOnly),
		s.UsersChecked,
		s.SkippedVotes, s.SkippedCooldown, s.SkippedPending,
		s.Analyzed, s.SuggestionsMade, s.NoPatterns, s.Failures,
	)
}

// NewLearningAgent constructs the agent.
func NewLearningAgent(deps LearningDeps) *LearningAgent {
	return &LearningAgent{
		subscribers:  deps.Subscribers,
		evaluator:    deps.Evaluator,
		extractor:    deps.Extractor,
		materializer: deps.Materializer,
		policy:       deps.Policy,
		logger:       logging.OrDiscard(deps.Logger),
	}
}

// Run evaluates every active subscriber in listing order. Only a failure to
// load subscribers is returned; per-user problems are counted and logged.
func (a *LearningAgent) Run(ctx context.Context, now time.Time) (AgentStats, error) {
	var stats AgentStats
	if a.subscribers == nil || a.evaluator == nil || a.extractor == nil || a.materializer == nil {
		return stats, errors.New("learning agent is not configured")
	}

	subs, err := a.subscribers.ActiveSubscribers(ctx)
	if err != nil {
		return stats, fmt.Errorf("load active subscribers: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.UsersChecked++
		a.process(ctx, sub, now, &stats)
	}

	a.logger.Info("learning agent done",
		"checked", stats.UsersChecked,
		"analyzed", stats.Analyzed,
		"suggestions", stats.SuggestionsMade,
		"failures", stats.Failures,
	)
	return stats, nil
}

func (a *LearningAgent) process(ctx context.Context, sub domain.Subscriber, now time.Time, stats *AgentStats) {
	log := a.logger.With("user_id", sub.ID)

	decision := a.evaluator.Evaluate(ctx, sub, now)
	switch decision.State {
	case feedback.StateIneligibleVotes:
		stats.SkippedVotes++
		log.Debug("not enough votes", "total", decision.Votes.Total, "positive", decision.Votes.Positive, "negative", decision.Votes.Negative)
		return
	case feedback.StateIneligibleCooldown:
		stats.SkippedCooldown++
		log.Debug("in cooldown", "remaining_days", decision.RemainingDays)
		return
	case feedback.StateIneligiblePending:
		stats.SkippedPending++
		log.Debug("pending suggestions", "pending", decision.Pending)
		return
	}

	stats.Analyzed++
	outcome := feedback.OutcomeFailed
	patterns, err := a.extractor.Extract(ctx, sub.ID)
	if err != nil {
		stats.Failures++
		log.Warn("pattern extraction failed", "error", err)
	} else {
		created := a.materializer.Materialize(ctx, sub.ID, sub.CustomPrompt, patterns, now)
		stats.SuggestionsMade += created
		outcome = feedback.OutcomeFor(created)
		if outcome == feedback.OutcomeNoPatternFound {
			stats.NoPatterns++
		}
	}

	recorded, err := a.policy.RecordAttempt(ctx, a.subscribers, sub, outcome, now)
	if err != nil {
		log.Warn("record analysis attempt failed", "error", err)
		return
	}
	log.Info("analysis recorded", "outcome", outcome, "attempt_at", recorded)
}
