// Package feedback turns subscriber votes into prompt suggestions. It decides
// per subscriber whether an analysis may run, drives the pattern analysis and
// persists the suggestions that clear the confidence threshold.
package feedback

import (
	"context"
	"fmt"
	"math"
	"time"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
)

const day = 24 * time.Hour

// Policy holds the thresholds of the learning loop.
type Policy struct {
	MinTotalVotes       int
	MinPositiveVotes    int
	MinNegativeVotes    int
	CooldownDays        int
	FailureRetryDays    int
	ConfidenceThreshold float64
	SampleSize          int
	SnippetChars        int
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinTotalVotes:       20,
		MinPositiveVotes:    5,
		MinNegativeVotes:    3,
		CooldownDays:        14,
		FailureRetryDays:    1,
		ConfidenceThreshold: 0.75,
		SampleSize:          20,
		SnippetChars:        600,
	}
}

// PolicyFromConfig overlays configured values on the defaults; zero values keep the default.
func PolicyFromConfig(cfg config.FeedbackConfig) Policy {
	p := DefaultPolicy()
	setInt(&p.MinTotalVotes, cfg.MinTotalVotes)
	setInt(&p.MinPositiveVotes, cfg.MinPositiveVotes)
	setInt(&p.MinNegativeVotes, cfg.MinNegativeVotes)
	setInt(&p.CooldownDays, cfg.CooldownDays)
	setInt(&p.FailureRetryDays, cfg.FailureRetryDays)
	setInt(&p.SampleSize, cfg.SampleSize)
	setInt(&p.SnippetChars, cfg.SnippetChars)
	if cfg.ConfidenceThreshold > 0 {
		p.ConfidenceThreshold = cfg.ConfidenceThreshold
	}
	return p
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Outcome is the result of one analysis attempt.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeNoPatternFound Outcome = "no_pattern_found"
	OutcomeFailed         Outcome = "failed"
)

// OutcomeFor maps the materialized suggestion count to an outcome.
func OutcomeFor(created int) Outcome {
	if created > 0 {
		return OutcomeSucceeded
	}
	return OutcomeNoPatternFound
}

// DaysSince counts whole days elapsed since t, rounding down.
func DaysSince(t, now time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// RemainingCooldown returns the whole days left before the subscriber may be
// analysed again. Zero means no cooldown is active.
func (p Policy) RemainingCooldown(sub domain.Subscriber, now time.Time) int {
	if sub.LastAnalysisAttempt == nil {
		return 0
	}
	return max(0, p.CooldownDays-DaysSince(*sub.LastAnalysisAttempt, now))
}

// AttemptTimestamp is the last-attempt value to store for an outcome.
// Failures are backdated by (cooldown - retry) days, so RemainingCooldown
// reports only the retry delay on the next check.
func (p Policy) AttemptTimestamp(outcome Outcome, now time.Time) time.Time {
	if outcome != OutcomeFailed {
		return now
	}
	backdate := p.CooldownDays - p.FailureRetryDays
	if backdate <= 0 {
		return now
	}
	return now.Add(-time.Duration(backdate) * day)
}

// AttemptRecorder stores the last-attempt timestamp.
type AttemptRecorder interface {
	RecordAnalysisAttempt(ctx context.Context, userID string, at time.Time) error
}

// RecordAttempt persists the attempt for outcome and returns the stored timestamp.
func (p Policy) RecordAttempt(ctx context.Context, rec AttemptRecorder, sub domain.Subscriber, outcome Outcome, now time.Time) (time.Time, error) {
	at := p.AttemptTimestamp(outcome, now)
	if err := rec.RecordAnalysisAttempt(ctx, sub.ID, at); err != nil {
		return at, fmt.Errorf("record analysis attempt for %s: %w", sub.ID, err)
	}
	return at, nil
}
