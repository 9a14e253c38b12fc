package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	defaultMaxReviewChars = 40000
	truncationMarker      = "\n\n[Text truncated for length]"
)

const reviewSections = `Provide a detailed review with these sections:

Paper Overview
Brief summary of what this paper accomplishes and why it matters.

Methodology
Important methods, data sources, and analytical approaches used.

Main Findings
The paper's primary results, measurements, and conclusions.

Relevance to Your Prompt
Explain how this work connects to the users' research interests described in the prompt.

Be thorough but focused. This is for a science newsletter for researchers, so make it informative and engaging. Use plain text for section names - no bold, no bullets, no emojis or special symbols, no special formatting. Write clear paragraphs for each section.`

// ReviewerOptions configures review generation.
type ReviewerOptions struct {
	Model          string
	Timeout        time.Duration
	MaxReviewChars int
}

// Reviewer writes the per-paper review. With a full-text source it reviews
// the paper body, otherwise only the abstract.
type Reviewer struct {
	chat     ports.ChatClient
	fullText ports.FullTextSource
	model    string
	timeout  time.Duration
	maxChars int
	logger   *slog.Logger
}

var _ ports.PaperReviewer = (*Reviewer)(nil)

// NewReviewer wires the oracle; fullText may be nil for abstract-only reviews.
func NewReviewer(chat ports.ChatClient, fullText ports.FullTextSource, opts ReviewerOptions, logger *slog.Logger) *Reviewer {
	r := &Reviewer{
		chat:     chat,
		fullText: fullText,
		model:    opts.Model,
		timeout:  opts.Timeout,
		maxChars: opts.MaxReviewChars,
		logger:   logging.OrDiscard(logger),
	}
	if r.model == "" {
		r.model = "gpt-4o-mini"
	}
	if r.maxChars <= 0 {
		r.maxChars = defaultMaxReviewChars
	}
	return r
}

// Review falls back from full text to abstract, and to the abstract itself
// when no review can be generated.
func (r *Reviewer) Review(ctx context.Context, prompt string, paper domain.Paper) string {
	log := r.logger.With("arxiv_id", paper.ArxivID)

	if r.fullText != nil {
		text, err := r.fullText.FullText(ctx, paper)
		if err != nil {
			log.Warn("full text unavailable, reviewing abstract", "error", err)
		} else {
			review, err := r.complete(ctx, fullTextPrompt(prompt, paper, truncateText(text, r.maxChars)))
			if err == nil {
				return review
			}
			log.Warn("full review failed, reviewing abstract", "error", err)
		}
	}

	review, err := r.complete(ctx, abstractPrompt(prompt, paper))
	if err != nil {
		log.Warn("abstract review failed, using abstract", "error", err)
		return paper.Abstract
	}
	return review
}

func (r *Reviewer) complete(ctx context.Context, prompt string) (string, error) {
	seed := classificationSeed
	text, err := r.chat.CompleteText(ctx, ports.ChatRequest{
		Model:       r.model,
		Prompt:      prompt,
		Temperature: 0,
		Seed:        &seed,
		Timeout:     r.timeout,
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("empty review")
	}
	return text, nil
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + truncationMarker
}

func fullTextPrompt(interests string, p domain.Paper, text string) string {
	return fmt.Sprintf(`Create a comprehensive review for a scientist based on their research interests. Do NOT repeat the paper title or list authors in your summary - jump straight into the content.

Research Interests: %s

Title: %s
Abstract: %s

Full Paper Text:
%s

%s`, interests, p.Title, p.Abstract, text, reviewSections)
}

func abstractPrompt(interests string, p domain.Paper) string {
	return fmt.Sprintf(`Create a comprehensive review for a scientist based on their research interests. Do NOT repeat the paper title or list authors in your summary - jump straight into the content.

Research Interests: %s

Title: %s
Abstract: %s

%s`, interests, p.Title, p.Abstract, reviewSections)
}
