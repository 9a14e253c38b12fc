package feedback

import (
	"context"
	"log/slog"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// State is the per-subscriber eligibility verdict, rebuilt from stored fields on every run.
type State string

const (
	StateIneligibleVotes    State = "ineligible_votes"
	StateIneligibleCooldown State = "ineligible_cooldown"
	StateIneligiblePending  State = "ineligible_pending_suggestions"
	StateEligible           State = "eligible"
)

// Decision explains a State.
type Decision struct {
	State         State
	Votes         domain.VoteStats
	RemainingDays int
	Pending       int
}

// Eligible reports whether the analysis may run.
func (d Decision) Eligible() bool {
	return d.State == StateEligible
}

// Evaluator applies the eligibility checks in a fixed order; the first failing check wins.
type Evaluator struct {
	policy      Policy
	votes       ports.VoteRepository
	suggestions ports.SuggestionRepository
	logger      *slog.Logger
}

// NewEvaluator wires the vote and suggestion stores.
func NewEvaluator(policy Policy, votes ports.VoteRepository, suggestions ports.SuggestionRepository, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		policy:      policy,
		votes:       votes,
		suggestions: suggestions,
		logger:      logging.OrDiscard(logger),
	}
}

// Evaluate decides whether sub may be analysed at now. Store errors fail closed.
func (e *Evaluator) Evaluate(ctx context.Context, sub domain.Subscriber, now time.Time) Decision {
	log := e.logger.With("user_id", sub.ID)

	stats, err := e.votes.VoteCounts(ctx, sub.ID)
	if err != nil {
		log.Warn("could not fetch vote counts", "error", err)
		return Decision{State: StateIneligibleVotes}
	}
	d := Decision{Votes: stats}

	if stats.Total < e.policy.MinTotalVotes {
		log.Info("not enough votes", "total", stats.Total, "required", e.policy.MinTotalVotes)
		d.State = StateIneligibleVotes
		return d
	}
	if stats.Positive < e.policy.MinPositiveVotes || stats.Negative < e.policy.MinNegativeVotes {
		log.Info("votes not diverse enough",
			"positive", stats.Positive, "negative", stats.Negative,
			"need_positive", e.policy.MinPositiveVotes, "need_negative", e.policy.MinNegativeVotes)
		d.State = StateIneligibleVotes
		return d
	}

	if remaining := e.policy.RemainingCooldown(sub, now); remaining > 0 {
		log.Info("cooldown active", "days_remaining", remaining)
		d.State = StateIneligibleCooldown
		d.RemainingDays = remaining
		return d
	}

	pending, err := e.suggestions.CountPending(ctx, sub.ID)
	if err != nil {
		log.Warn("could not count pending suggestions", "error", err)
		d.State = StateIneligiblePending
		return d
	}
	if pending > 0 {
		log.Info("pending suggestions exist", "pending", pending)
		d.State = StateIneligiblePending
		d.Pending = pending
		return d
	}

	d.State = StateEligible
	return d
}
