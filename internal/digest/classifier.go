// Package digest classifies and reviews papers for one subscriber and renders
// the resulting newsletter.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const classificationSeed int64 = 42

// Classifier asks the oracle whether a paper matches a subscriber's prompt.
type Classifier struct {
	chat    ports.ChatClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.PaperClassifier = (*Classifier)(nil)

// NewClassifier wires the oracle; timeout applies per paper.
func NewClassifier(chat ports.ChatClient, model string, timeout time.Duration, logger *slog.Logger) *Classifier {
	if model == "" {
		model = "gpt-4o"
	}
	return &Classifier{chat: chat, model: model, timeout: timeout, logger: logging.OrDiscard(logger)}
}

// Classify never fails: oracle or decoding errors yield "not relevant" with zero confidence.
func (c *Classifier) Classify(ctx context.Context, prompt string, paper domain.Paper) domain.Classification {
	seed := classificationSeed
	raw, err := c.chat.CompleteJSON(ctx, ports.ChatRequest{
		Model:       c.model,
		Prompt:      classificationPrompt(prompt, paper),
		Temperature: 0,
		Seed:        &seed,
		Timeout:     c.timeout,
	})
	if err != nil {
		c.logger.Warn("classification failed", "arxiv_id", paper.ArxivID, "error", err)
		return classificationError(err)
	}

	var result domain.Classification
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("classification not decodable", "arxiv_id", paper.ArxivID, "error", err)
		return classificationError(err)
	}
	return result
}

func classificationError(err error) domain.Classification {
	return domain.Classification{Relevant: false, Confidence: 0, Reasoning: fmt.Sprintf("Classification error: %v", err)}
}

func classificationPrompt(userPrompt string, paper domain.Paper) string {
	return fmt.Sprintf(`You are a researcher evaluating whether an arXiv paper is relevant based on the user's research interests.

%s

Paper to evaluate:
Title: %s
Abstract: %s

Respond as JSON:
{"is_relevant": true/false,
"confidence": 0.0-1.0,
"reasoning": "Brief explanation"
}`, userPrompt, paper.Title, paper.Abstract)
}
