package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

var errBoom = errors.New("boom")

// memStore keeps subscribers, votes, suggestions and delivered papers in memory.
type memStore struct {
	mu          sync.Mutex
	subs        []domain.Subscriber
	votes       map[string][]domain.VoteRecord
	suggestions []domain.PromptSuggestion
	papers      []domain.DeliveredPaper
	loadErr     error
}

func newMemStore(subs ...domain.Subscriber) *memStore {
	return &memStore{subs: subs, votes: map[string][]domain.VoteRecord{}}
}

func (m *memStore) ActiveSubscribers(context.Context) ([]domain.Subscriber, error) {
	return m.filter(func(s domain.Subscriber) bool { return s.Active })
}

func (m *memStore) EmailSubscribers(context.Context) ([]domain.Subscriber, error) {
	return m.filter(func(s domain.Subscriber) bool { return s.Active && s.EmailEnabled })
}

func (m *memStore) filter(keep func(domain.Subscriber) bool) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []domain.Subscriber
	for _, s := range m.subs {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) subscriber(id string) domain.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return s
		}
	}
	return domain.Subscriber{}
}

func (m *memStore) update(id string, apply func(*domain.Subscriber)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id {
			apply(&m.subs[i])
			return nil
		}
	}
	return fmt.Errorf("subscriber %s not found", id)
}

func (m *memStore) RecordLastSent(_ context.Context, userID string, at time.Time) error {
	return m.update(userID, func(s *domain.Subscriber) { s.LastSent = &at })
}

func (m *memStore) AddPapersSent(_ context.Context, userID string, n int) error {
	return m.update(userID, func(s *domain.Subscriber) { s.PapersSentTotal += n })
}

func (m *memStore) RecordAnalysisAttempt(_ context.Context, userID string, at time.Time) error {
	return m.update(userID, func(s *domain.Subscriber) { s.LastAnalysisAttempt = &at })
}

func (m *memStore) VoteCounts(_ context.Context, userID string) (domain.VoteStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.VoteStats
	for _, v := range m.votes[userID] {
		stats.Total++
		switch v.Vote {
		case domain.VoteUp:
			stats.Positive++
		case domain.VoteDown:
			stats.Negative++
		}
	}
	return stats, nil
}

func (m *memStore) Votes(_ context.Context, userID string) ([]domain.VoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.VoteRecord(nil), m.votes[userID]...), nil
}

func (m *memStore) CreateSuggestion(_ context.Context, s domain.PromptSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions = append(m.suggestions, s)
	return nil
}

func (m *memStore) CountPending(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.suggestions {
		if s.UserID == userID && s.Status == domain.SuggestionPending {
			n++
		}
	}
	return n, nil
}

func (m *memStore) StorePaper(_ context.Context, p domain.DeliveredPaper) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.papers {
		if existing.UserID == p.UserID && existing.ArxivID == p.ArxivID {
			return false, nil
		}
	}
	m.papers = append(m.papers, p)
	return true, nil
}

func (m *memStore) PapersSince(_ context.Context, userID string, since time.Time) ([]domain.DeliveredPaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeliveredPaper
	for _, p := range m.papers {
		if p.UserID == userID && !p.ProcessedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSource struct {
	papers     map[string][]domain.Paper
	err        error
	categories []string
}

func (f *fakeSource) FetchDaily(_ context.Context, _ time.Time, categories []string) (map[string][]domain.Paper, error) {
	f.categories = categories
	if f.err != nil {
		return nil, f.err
	}
	return f.papers, nil
}

// fakeClassifier marks a paper relevant when its id has a confidence for the prompt.
type fakeClassifier struct {
	relevant map[string]map[string]float64
}

func (f *fakeClassifier) Classify(_ context.Context, prompt string, paper domain.Paper) domain.Classification {
	conf, ok := f.relevant[prompt][paper.ArxivID]
	if !ok {
		return domain.Classification{Reasoning: "off topic"}
	}
	return domain.Classification{Relevant: true, Confidence: conf, Reasoning: "on topic"}
}

type fakeReviewer struct{}

func (fakeReviewer) Review(_ context.Context, prompt string, paper domain.Paper) string {
	return "Paper Overview:\nReview of " + paper.Title + " for " + prompt
}

type sentMail struct {
	to, subject, html string
}

type fakeMailer struct {
	failFor map[string]bool
	sent    []sentMail
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	if f.failFor[to] {
		return errBoom
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

type fakeNotifier struct {
	reports []string
}

func (f *fakeNotifier) PublishReport(_ context.Context, report string) error {
	f.reports = append(f.reports, report)
	return nil
}

type scriptedChat struct {
	raw []byte
	err error
}

func (s *scriptedChat) CompleteJSON(context.Context, ports.ChatRequest) ([]byte, error) {
	return s.raw, s.err
}

func (s *scriptedChat) CompleteText(context.Context, ports.ChatRequest) (string, error) {
	return "", errors.New("not used")
}

var (
	_ ports.SubscriberRepository = (*memStore)(nil)
	_ ports.VoteRepository       = (*memStore)(nil)
	_ ports.SuggestionRepository = (*memStore)(nil)
	_ ports.PaperRepository      = (*memStore)(nil)
)
