package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

var errStore = errors.New("store unavailable")

type fakeVotes struct {
	stats      domain.VoteStats
	statsErr   error
	records    []domain.VoteRecord
	recordsErr error
}

func (f *fakeVotes) VoteCounts(context.Context, string) (domain.VoteStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeVotes) Votes(context.Context, string) ([]domain.VoteRecord, error) {
	return f.records, f.recordsErr
}

type fakeSuggestions struct {
	pending    int
	pendingErr error
	failOn     map[string]bool
	created    []domain.PromptSuggestion
}

func (f *fakeSuggestions) CreateSuggestion(_ context.Context, s domain.PromptSuggestion) error {
	if f.failOn[s.Description] {
		return errStore
	}
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSuggestions) CountPending(context.Context, string) (int, error) {
	return f.pending, f.pendingErr
}

type fakeChat struct {
	raw     []byte
	err     error
	prompts []string
}

func (f *fakeChat) CompleteJSON(_ context.Context, req ports.ChatRequest) ([]byte, error) {
	f.prompts = append(f.prompts, req.Prompt)
	return f.raw, f.err
}

func (f *fakeChat) CompleteText(context.Context, ports.ChatRequest) (string, error) {
	return "", errors.New("not used")
}

type fakeRecorder struct {
	at  map[string]time.Time
	err error
}

func (f *fakeRecorder) RecordAnalysisAttempt(_ context.Context, userID string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	if f.at == nil {
		f.at = map[string]time.Time{}
	}
	f.at[userID] = at
	return nil
}

// voteHistory builds up positive and down negative votes with distinct ids.
func voteHistory(up, down int) []domain.VoteRecord {
	records := make([]domain.VoteRecord, 0, up+down)
	for i := 0; i < up; i++ {
		records = append(records, domain.VoteRecord{
			UserID:        "u1",
			PaperTitle:    fmt.Sprintf("Relevant paper %d", i),
			PaperArxivID:  fmt.Sprintf("2509.%05d", i),
			PaperAbstract: "JWST observations of dwarf galaxies.",
			Vote:          domain.VoteUp,
		})
	}
	for i := 0; i < down; i++ {
		records = append(records, domain.VoteRecord{
			UserID:        "u1",
			PaperTitle:    fmt.Sprintf("Irrelevant paper %d", i),
			PaperArxivID:  fmt.Sprintf("2509.%05d", up+i),
			PaperAbstract: "Quasar variability.",
			Vote:          domain.VoteDown,
		})
	}
	return records
}
