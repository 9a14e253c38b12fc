package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDigest/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "digest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db, DriverSQLite)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func seedSubscriber(t *testing.T, repo *Repository, id string, active, email bool, created time.Time) {
	t.Helper()
	require.NoError(t, repo.UpsertSubscriber(context.Background(), domain.Subscriber{
		ID:           id,
		Email:        id + "@example.org",
		FullName:     "User " + id,
		CustomPrompt: "galaxy evolution",
		Category:     "astro-ph.GA",
		Active:       active,
		EmailEnabled: email,
		CreatedAt:    created,
	}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}

func TestNewRepositoryPlaceholders(t *testing.T) {
	t.Parallel()

	for driver, want := range map[string]string{
		DriverPostgres: "SELECT id FROM user_profiles WHERE id = $1",
		DriverSQLite:   "SELECT id FROM user_profiles WHERE id = ?",
	} {
		repo := NewRepository(nil, driver)
		stmt, _, err := repo.sb.Select("id").From("user_profiles").Where(sq.Eq{"id": "u1"}).ToSql()
		require.NoError(t, err)
		assert.Equal(t, want, stmt, driver)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	assert.NoError(t, repo.Migrate(context.Background()))
}

func TestSubscriberQueries(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	seedSubscriber(t, repo, "b", true, true, base.Add(time.Hour))
	seedSubscriber(t, repo, "a", true, false, base)
	seedSubscriber(t, repo, "c", false, true, base)

	active, err := repo.ActiveSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID, "ordered by creation time")
	assert.Equal(t, "b", active[1].ID)
	assert.Nil(t, active[0].LastAnalysisAttempt)
	assert.Equal(t, domain.FrequencyDaily, active[0].Frequency)

	mailable, err := repo.EmailSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, mailable, 1)
	assert.Equal(t, "b", mailable[0].ID)

	_, err = repo.Subscriber(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriberTimestampsAndCounters(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	seedSubscriber(t, repo, "u1", true, true, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))

	sent := time.Date(2025, 9, 17, 7, 30, 0, 0, time.UTC)
	attempt := time.Date(2025, 9, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordLastSent(ctx, "u1", sent))
	require.NoError(t, repo.RecordAnalysisAttempt(ctx, "u1", attempt))
	require.NoError(t, repo.AddPapersSent(ctx, "u1", 3))
	require.NoError(t, repo.AddPapersSent(ctx, "u1", 2))

	sub, err := repo.Subscriber(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sub.LastSent)
	require.NotNil(t, sub.LastAnalysisAttempt)
	assert.True(t, sub.LastSent.Equal(sent))
	assert.True(t, sub.LastAnalysisAttempt.Equal(attempt))
	assert.Equal(t, 5, sub.PapersSentTotal)

	assert.ErrorIs(t, repo.RecordAnalysisAttempt(ctx, "ghost", attempt), ErrNotFound)
}

func TestVotes(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	at := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)

	stats, err := repo.VoteCounts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteStats{}, stats)

	for i, v := range []domain.Vote{domain.VoteUp, domain.VoteUp, domain.VoteDown} {
		require.NoError(t, repo.AddVote(ctx, domain.VoteRecord{
			UserID:       "u1",
			PaperTitle:   "Paper",
			PaperArxivID: string(rune('a' + i)),
			Vote:         v,
			CreatedAt:    at.Add(time.Duration(i) * time.Minute),
		}))
	}
	// A second vote on the same paper replaces the first.
	require.NoError(t, repo.AddVote(ctx, domain.VoteRecord{UserID: "u1", PaperArxivID: "a", Vote: domain.VoteDown, CreatedAt: at}))
	assert.Error(t, repo.AddVote(ctx, domain.VoteRecord{UserID: "u1", PaperArxivID: "z", Vote: "maybe"}))

	stats, err = repo.VoteCounts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteStats{Total: 3, Positive: 1, Negative: 2}, stats)

	votes, err := repo.Votes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, votes, 3)
	assert.Equal(t, "a", votes[0].PaperArxivID)
	assert.Equal(t, domain.VoteDown, votes[0].Vote)
}

func TestSuggestionLifecycle(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	seedSubscriber(t, repo, "u1", true, true, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, repo.CreateSuggestion(ctx, domain.PromptSuggestion{
			ID:            id,
			UserID:        "u1",
			Type:          domain.PatternPositive,
			Description:   "likes JWST",
			Confidence:    0.9,
			SuggestedText: "Include JWST high-redshift results.",
			CurrentPrompt: "galaxy evolution",
		}))
	}

	pending, err := repo.CountPending(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	accepted, err := repo.AcceptSuggestion(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SuggestionAccepted, accepted.Status)

	sub, err := repo.Subscriber(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "galaxy evolution\n\nInclude JWST high-redshift results.", sub.CustomPrompt)

	_, err = repo.AcceptSuggestion(ctx, "s1")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	require.NoError(t, repo.RejectSuggestion(ctx, "s2"))
	assert.ErrorIs(t, repo.RejectSuggestion(ctx, "s2"), ErrAlreadyResolved)
	assert.ErrorIs(t, repo.RejectSuggestion(ctx, "nope"), ErrNotFound)

	pending, err = repo.CountPending(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, pending)

	all, err := repo.Suggestions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rejected, err := repo.Suggestions(ctx, "u1", domain.SuggestionRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "s2", rejected[0].ID)
}

func TestStorePaperInsertsOnce(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	day := time.Date(2025, 9, 17, 9, 0, 0, 0, time.UTC)

	paper := domain.DeliveredPaper{
		UserID:      "u1",
		ArxivID:     "2509.00001",
		Title:       "Dwarf galaxies",
		Authors:     []string{"A. Author", "B. Author"},
		Review:      "Paper Overview: ...",
		ProcessedAt: day,
	}

	inserted, err := repo.StorePaper(ctx, paper)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.StorePaper(ctx, paper)
	require.NoError(t, err)
	assert.False(t, inserted, "second insert of the same (user, id) is a no-op")

	other := paper
	other.UserID = "u2"
	inserted, err = repo.StorePaper(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	old := paper
	old.ArxivID = "2509.00000"
	old.ProcessedAt = day.AddDate(0, 0, -10)
	_, err = repo.StorePaper(ctx, old)
	require.NoError(t, err)

	recent, err := repo.PapersSince(ctx, "u1", day.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2509.00001", recent[0].ArxivID)
	assert.Equal(t, []string{"A. Author", "B. Author"}, recent[0].Authors)
}

func TestAppendToPrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\n\nb", AppendToPrompt("a\n", " b "))
	assert.Equal(t, "b", AppendToPrompt("", "b"))
	assert.Equal(t, "a", AppendToPrompt("a", "  "))
}
