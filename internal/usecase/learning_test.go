package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/feedback"
)

const patternsJSON = `{
  "strong_positive": [
    {"pattern": "JWST observations", "confidence": 0.9, "evidence": "12 of 18", "suggested_addition": "Prioritize JWST high-redshift results."},
    {"pattern": "Dwarf galaxies", "confidence": 0.6, "evidence": "5 of 18", "suggested_addition": "Include dwarf galaxies."}
  ],
  "strong_negative": [],
  "nuanced": [
    {"pattern": "Simulations only with observations", "confidence": 0.8, "evidence": "mixed", "suggested_nuance": "Include simulations only when compared to data."}
  ]
}`

func votes(userID string, up, down int) []domain.VoteRecord {
	records := make([]domain.VoteRecord, 0, up+down)
	for i := 0; i < up+down; i++ {
		vote := domain.VoteUp
		if i >= up {
			vote = domain.VoteDown
		}
		records = append(records, domain.VoteRecord{
			UserID:        userID,
			PaperTitle:    fmt.Sprintf("Paper %d", i),
			PaperArxivID:  fmt.Sprintf("2509.%05d", i),
			PaperAbstract: "Abstract text.",
			Vote:          vote,
		})
	}
	return records
}

type agentFixture struct {
	store     *memStore
	chat      *scriptedChat
	evaluator *feedback.Evaluator
	agent     *LearningAgent
}

func newAgentFixture(subs ...domain.Subscriber) *agentFixture {
	policy := feedback.DefaultPolicy()
	f := &agentFixture{
		store: newMemStore(subs...),
		chat:  &scriptedChat{raw: []byte(patternsJSON)},
	}
	f.evaluator = feedback.NewEvaluator(policy, f.store, f.store, nil)
	f.agent = NewLearningAgent(LearningDeps{
		Subscribers: f.store,
		Evaluator:   f.evaluator,
		Extractor: feedback.NewExtractor(policy, f.store, f.chat, feedback.ExtractorOptions{
			Rand: rand.New(rand.NewPCG(1, 2)),
		}, nil),
		Materializer: feedback.NewMaterializer(policy, f.store, nil),
		Policy:       policy,
	})
	return f
}

func TestLearningAgentCreatesSuggestions(t *testing.T) {
	t.Parallel()

	sub := subscriber("u1", "galaxy evolution", domain.FrequencyDaily)
	f := newAgentFixture(sub)
	f.store.votes["u1"] = votes("u1", 18, 7)

	stats, err := f.agent.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, AgentStats{UsersChecked: 1, Analyzed: 1, SuggestionsMade: 2}, stats)

	require.Len(t, f.store.suggestions, 2)
	for _, s := range f.store.suggestions {
		assert.Equal(t, domain.SuggestionPending, s.Status)
		assert.Equal(t, "galaxy evolution", s.CurrentPrompt)
		assert.Greater(t, s.Confidence, 0.75)
	}
	assert.Equal(t, domain.PatternPositive, f.store.suggestions[0].Type)
	assert.Equal(t, domain.PatternNuanced, f.store.suggestions[1].Type)
	assert.Equal(t, "Include simulations only when compared to data.", f.store.suggestions[1].SuggestedText)

	attempt := f.store.subscriber("u1").LastAnalysisAttempt
	require.NotNil(t, attempt)
	assert.True(t, attempt.Equal(runDay))

	// Pending suggestions now block the next analysis.
	f.store.subs[0].LastAnalysisAttempt = nil
	stats, err = f.agent.Run(context.Background(), runDay.AddDate(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedPending)
}

func TestLearningAgentFailureRetriesNextDay(t *testing.T) {
	t.Parallel()

	f := newAgentFixture(subscriber("u1", "galaxy evolution", domain.FrequencyDaily))
	f.store.votes["u1"] = votes("u1", 18, 7)
	f.chat.err = errBoom

	stats, err := f.agent.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failures)
	assert.Empty(t, f.store.suggestions)

	sub := f.store.subscriber("u1")
	require.NotNil(t, sub.LastAnalysisAttempt)
	assert.True(t, sub.LastAnalysisAttempt.Equal(runDay.AddDate(0, 0, -13)))

	decision := f.evaluator.Evaluate(context.Background(), sub, runDay)
	assert.Equal(t, feedback.StateIneligibleCooldown, decision.State)
	assert.Equal(t, 1, decision.RemainingDays)

	f.chat.err = nil
	stats, err = f.agent.Run(context.Background(), runDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 2, stats.SuggestionsMade)
}

func TestLearningAgentMalformedReplyTakesFailurePath(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`null`, `{"strong_positive": [{"pattern": "x", "evidence": "y"}]}`} {
		f := newAgentFixture(subscriber("u1", "galaxy evolution", domain.FrequencyDaily))
		f.store.votes["u1"] = votes("u1", 18, 7)
		f.chat.raw = []byte(raw)

		stats, err := f.agent.Run(context.Background(), runDay)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failures, raw)
		assert.Zero(t, stats.NoPatterns, raw)

		attempt := f.store.subscriber("u1").LastAnalysisAttempt
		require.NotNil(t, attempt)
		assert.True(t, attempt.Equal(runDay.AddDate(0, 0, -13)), "retry after one day for %s", raw)
	}
}

func TestLearningAgentNoPatternStartsFullCooldown(t *testing.T) {
	t.Parallel()

	f := newAgentFixture(subscriber("u1", "galaxy evolution", domain.FrequencyDaily))
	f.store.votes["u1"] = votes("u1", 18, 7)
	f.chat.raw = []byte(`{"strong_positive": [{"pattern": "weak", "confidence": 0.75}]}`)

	stats, err := f.agent.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NoPatterns)
	assert.Zero(t, stats.SuggestionsMade)

	decision := f.evaluator.Evaluate(context.Background(), f.store.subscriber("u1"), runDay.AddDate(0, 0, 13))
	assert.Equal(t, feedback.StateIneligibleCooldown, decision.State)
	assert.Equal(t, 1, decision.RemainingDays)
}

func TestLearningAgentCountsSkips(t *testing.T) {
	t.Parallel()

	recent := runDay.AddDate(0, 0, -3)
	cooling := subscriber("cooling", "p", domain.FrequencyDaily)
	cooling.LastAnalysisAttempt = &recent
	inactive := subscriber("inactive", "p", domain.FrequencyDaily)
	inactive.Active = false

	f := newAgentFixture(
		subscriber("few", "p", domain.FrequencyDaily),
		subscriber("onesided", "p", domain.FrequencyDaily),
		cooling,
		subscriber("pending", "p", domain.FrequencyDaily),
		inactive,
	)
	f.store.votes["few"] = votes("few", 10, 5)
	f.store.votes["onesided"] = votes("onesided", 25, 0)
	f.store.votes["cooling"] = votes("cooling", 18, 7)
	f.store.votes["pending"] = votes("pending", 18, 7)
	f.store.suggestions = []domain.PromptSuggestion{{ID: "s", UserID: "pending", Status: domain.SuggestionPending}}

	stats, err := f.agent.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, AgentStats{
		UsersChecked:    4,
		SkippedVotes:    2,
		SkippedCooldown: 1,
		SkippedPending:  1,
	}, stats)
	assert.True(t, f.store.subscriber("cooling").LastAnalysisAttempt.Equal(recent), "skips leave the attempt untouched")
}

func TestLearningAgentReturnsLoadError(t *testing.T) {
	t.Parallel()

	f := newAgentFixture()
	f.store.loadErr = errBoom
	_, err := f.agent.Run(context.Background(), runDay)
	assert.ErrorIs(t, err, errBoom)
}

func TestAgentStatsReport(t *testing.T) {
	t.Parallel()

	report := AgentStats{UsersChecked: 3, Analyzed: 1, SuggestionsMade: 2}.Report(runDay)
	assert.Contains(t, report, "2025-09-17")
	assert.Contains(t, report, "suggestions: 2")
	assert.Less(t, len(report), 4096)
}
