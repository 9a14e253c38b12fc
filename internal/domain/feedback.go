package domain

import "time"

// Vote is a binary relevance judgment.
type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// Valid reports whether v is one of the known votes.
func (v Vote) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// VoteRecord is one subscriber's judgment on one paper.
type VoteRecord struct {
	UserID        string
	PaperTitle    string
	PaperArxivID  string
	PaperAbstract string
	Vote          Vote
	CreatedAt     time.Time
}

// VoteStats aggregates a subscriber's votes.
type VoteStats struct {
	Total    int
	Positive int
	Negative int
}

// PatternType classifies a prompt suggestion.
type PatternType string

const (
	PatternPositive PatternType = "positive"
	PatternNegative PatternType = "negative"
	PatternNuanced  PatternType = "nuanced"
)

// SuggestionStatus is the lifecycle of a prompt suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionPending, SuggestionAccepted, SuggestionRejected:
		return true
	}
	return false
}

// PromptSuggestion is a proposed edit to a subscriber's classification prompt.
type PromptSuggestion struct {
	ID            string
	UserID        string
	Type          PatternType
	Description   string
	Confidence    float64
	Evidence      string
	SuggestedText string
	CurrentPrompt string
	Status        SuggestionStatus
	CreatedAt     time.Time
}

// Pattern is one entry of the oracle's vote analysis.
type Pattern struct {
	Description       string  `json:"pattern"`
	Confidence        float64 `json:"confidence"`
	Evidence          string  `json:"evidence"`
	SuggestedAddition string  `json:"suggested_addition"`
	SuggestedNuance   string  `json:"suggested_nuance"`
}

// SuggestedText prefers the field matching the pattern kind and falls back to the other.
func (p Pattern) SuggestedText(nuanced bool) string {
	if nuanced && p.SuggestedNuance != "" {
		return p.SuggestedNuance
	}
	if p.SuggestedAddition != "" {
		return p.SuggestedAddition
	}
	return p.SuggestedNuance
}

// Patterns is the structured result of a vote analysis.
type Patterns struct {
	StrongPositive []Pattern `json:"strong_positive"`
	StrongNegative []Pattern `json:"strong_negative"`
	Nuanced        []Pattern `json:"nuanced"`
}

// Count returns how many patterns are strictly above threshold.
func (p Patterns) Count(threshold float64) int {
	n := 0
	for _, group := range [][]Pattern{p.StrongPositive, p.StrongNegative, p.Nuanced} {
		for _, pattern := range group {
			if pattern.Confidence > threshold {
				n++
			}
		}
	}
	return n
}
