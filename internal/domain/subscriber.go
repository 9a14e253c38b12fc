package domain

import (
	"strings"
	"time"
)

// Frequency controls how often a subscriber receives a digest.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// DefaultCategory is used when a subscriber has not picked an arXiv category.
const DefaultCategory = "astro-ph.GA"

// Subscriber is a user profile with its classification prompt and delivery settings.
type Subscriber struct {
	ID                  string
	Email               string
	FullName            string
	CustomPrompt        string
	Category            string
	Frequency           Frequency
	PreferredDay        int // 1=Monday .. 7=Sunday
	Active              bool
	EmailEnabled        bool
	LastSent            *time.Time
	LastAnalysisAttempt *time.Time
	PapersSentTotal     int
	CreatedAt           time.Time
}

// ArxivCategory returns the subscriber category or the default one.
func (s Subscriber) ArxivCategory() string {
	if c := strings.TrimSpace(s.Category); c != "" {
		return c
	}
	return DefaultCategory
}
