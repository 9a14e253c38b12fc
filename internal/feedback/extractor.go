package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const analysisTemperature = 0.3

var (
	// ErrNotEnoughVotes is returned when the vote history is below the minimum.
	ErrNotEnoughVotes = errors.New("not enough votes for analysis")
	// ErrNotDiverse is returned when either vote side is below its minimum.
	ErrNotDiverse = errors.New("votes are not diverse enough")
	// ErrMalformedPatterns is returned when the oracle reply has the wrong shape.
	ErrMalformedPatterns = errors.New("malformed pattern reply")
)

// ExtractorOptions configures the oracle call.
type ExtractorOptions struct {
	Model   string
	Timeout time.Duration
	Rand    *rand.Rand
}

// Extractor samples a subscriber's votes and asks the oracle for preference patterns.
type Extractor struct {
	policy  Policy
	votes   ports.VoteRepository
	chat    ports.ChatClient
	model   string
	timeout time.Duration
	rng     *rand.Rand
	logger  *slog.Logger
}

// NewExtractor wires the vote store and the oracle.
func NewExtractor(policy Policy, votes ports.VoteRepository, chat ports.ChatClient, opts ExtractorOptions, logger *slog.Logger) *Extractor {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &Extractor{
		policy:  policy,
		votes:   votes,
		chat:    chat,
		model:   model,
		timeout: opts.Timeout,
		rng:     rng,
		logger:  logging.OrDiscard(logger),
	}
}

// Extract returns the validated patterns for userID. Any error means no
// structured result; nothing is retried here.
func (x *Extractor) Extract(ctx context.Context, userID string) (domain.Patterns, error) {
	log := x.logger.With("user_id", userID)

	records, err := x.votes.Votes(ctx, userID)
	if err != nil {
		return domain.Patterns{}, fmt.Errorf("load votes: %w", err)
	}
	if len(records) < x.policy.MinTotalVotes {
		return domain.Patterns{}, fmt.Errorf("%w: %d/%d", ErrNotEnoughVotes, len(records), x.policy.MinTotalVotes)
	}

	var positive, negative []domain.VoteRecord
	for _, r := range records {
		switch r.Vote {
		case domain.VoteUp:
			positive = append(positive, r)
		case domain.VoteDown:
			negative = append(negative, r)
		}
	}
	if len(positive) < x.policy.MinPositiveVotes || len(negative) < x.policy.MinNegativeVotes {
		return domain.Patterns{}, fmt.Errorf("%w: %d positive, %d negative", ErrNotDiverse, len(positive), len(negative))
	}

	sampledPositive := sampleVotes(x.rng, positive, x.policy.SampleSize)
	sampledNegative := sampleVotes(x.rng, negative, x.policy.SampleSize)
	log.Info("analysing vote sample",
		"votes", len(records),
		"sampled_positive", len(sampledPositive),
		"sampled_negative", len(sampledNegative))

	prompt := x.buildPrompt(
		len(positive), len(negative),
		formatVotes(sampledPositive, x.policy.SampleSize, x.policy.SnippetChars),
		formatVotes(sampledNegative, x.policy.SampleSize, x.policy.SnippetChars),
	)

	raw, err := x.chat.CompleteJSON(ctx, ports.ChatRequest{
		Model:       x.model,
		Prompt:      prompt,
		Temperature: analysisTemperature,
		Timeout:     x.timeout,
	})
	if err != nil {
		return domain.Patterns{}, fmt.Errorf("pattern analysis: %w", err)
	}

	patterns, err := parsePatterns(raw)
	if err != nil {
		return domain.Patterns{}, err
	}
	log.Info("pattern analysis done", "high_confidence", patterns.Count(x.policy.ConfidenceThreshold))
	return patterns, nil
}

// sampleVotes draws up to n records without replacement.
func sampleVotes(rng *rand.Rand, records []domain.VoteRecord, n int) []domain.VoteRecord {
	pool := append([]domain.VoteRecord(nil), records...)
	if n <= 0 || n >= len(pool) {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		return pool
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// formatVotes numbers titles with abstract snippets and notes records beyond limit.
func formatVotes(records []domain.VoteRecord, limit, snippetChars int) string {
	var b strings.Builder
	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, r := range shown {
		fmt.Fprintf(&b, "\n%d. Title: %s\n", i+1, r.PaperTitle)
		if r.PaperAbstract != "" {
			fmt.Fprintf(&b, "   Abstract: %s\n", snippet(r.PaperAbstract, snippetChars))
		}
	}
	if len(records) > len(shown) {
		fmt.Fprintf(&b, "\n... and %d more papers\n", len(records)-len(shown))
	}
	return b.String()
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func (x *Extractor) buildPrompt(positive, negative int, positiveText, negativeText string) string {
	threshold := x.policy.ConfidenceThreshold
	var b strings.Builder
	b.WriteString("You are analyzing a researcher's voting patterns to improve their paper classification system.\n\n")
	fmt.Fprintf(&b, "The researcher has voted on %d papers:\n", positive+negative)
	fmt.Fprintf(&b, "- %d marked as RELEVANT\n- %d marked as NOT RELEVANT\n\n", positive, negative)
	fmt.Fprintf(&b, "Here are the papers they marked RELEVANT:\n%s\n", positiveText)
	fmt.Fprintf(&b, "Here are the papers they marked NOT RELEVANT:\n%s\n", negativeText)
	b.WriteString(`Your task is to identify clear, actionable patterns that could improve their classification prompt.

Analyze these votes and identify:

1. STRONG POSITIVE PATTERNS
   - Topics, methods, instruments, or research areas that appear FREQUENTLY in RELEVANT papers but RARELY/NEVER in IRRELEVANT papers
   - Look for: specific instruments (JWST, Gaia), methods (machine learning, photometry), objects (dwarf galaxies, LSB features), research areas

2. STRONG NEGATIVE PATTERNS
   - Topics that appear FREQUENTLY in IRRELEVANT papers but RARELY/NEVER in RELEVANT papers

3. NUANCED PATTERNS
   - More subtle preferences that depend on context
   - Example: "User likes stellar population papers ONLY in galactic context, not in star clusters"

For each pattern you identify, you MUST provide:
- Clear description of the pattern
`)
	fmt.Fprintf(&b, "- Confidence score (0.0-1.0): How consistent is this pattern? Only suggest patterns with confidence > %g\n", threshold)
	b.WriteString("- Evidence: Count of papers showing this pattern\n- Suggested text: Exact wording to add to the user's prompt\n\n")
	fmt.Fprintf(&b, "CRITICAL: Only include patterns you are very confident about (>%d%% consistency).\n\n", int(threshold*100))
	b.WriteString(`Respond as valid JSON with this exact structure:
{
    "strong_positive": [
        {"pattern": "description of what user likes", "confidence": 0.85, "evidence": "7/8 JWST papers marked relevant", "suggested_addition": "Papers using JWST near-infrared observations"}
    ],
    "strong_negative": [
        {"pattern": "description of what user dislikes", "confidence": 0.92, "evidence": "1/12 AGN papers marked relevant", "suggested_addition": "Not interested in: Active galactic nuclei (AGN) or quasars"}
    ],
    "nuanced": [
        {"pattern": "description of contextual preference", "confidence": 0.78, "evidence": "5/5 stellar pop papers in galaxies relevant, 0/3 in clusters", "suggested_nuance": "Stellar populations in galactic context, not star clusters"}
    ]
}

Only include patterns with high confidence. If no strong patterns exist, return empty arrays.`)
	return b.String()
}

type wirePattern struct {
	Description       string   `json:"pattern"`
	Confidence        *float64 `json:"confidence"`
	Evidence          string   `json:"evidence"`
	SuggestedAddition string   `json:"suggested_addition"`
	SuggestedNuance   string   `json:"suggested_nuance"`
}

type wirePatterns struct {
	StrongPositive []wirePattern `json:"strong_positive"`
	StrongNegative []wirePattern `json:"strong_negative"`
	Nuanced        []wirePattern `json:"nuanced"`
}

// parsePatterns decodes the oracle answer. The reply must be a JSON object and
// every entry must carry a confidence. Missing lists stay empty and entries
// with a confidence outside [0,1] are dropped.
func parsePatterns(raw []byte) (domain.Patterns, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return domain.Patterns{}, fmt.Errorf("decode patterns: %w", err)
	}
	if top == nil {
		return domain.Patterns{}, fmt.Errorf("%w: reply is not an object", ErrMalformedPatterns)
	}

	var wire wirePatterns
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.Patterns{}, fmt.Errorf("decode patterns: %w", err)
	}

	var patterns domain.Patterns
	groups := []struct {
		name string
		in   []wirePattern
		out  *[]domain.Pattern
	}{
		{"strong_positive", wire.StrongPositive, &patterns.StrongPositive},
		{"strong_negative", wire.StrongNegative, &patterns.StrongNegative},
		{"nuanced", wire.Nuanced, &patterns.Nuanced},
	}
	for _, g := range groups {
		converted := make([]domain.Pattern, 0, len(g.in))
		for i, w := range g.in {
			if w.Confidence == nil {
				return domain.Patterns{}, fmt.Errorf("%w: %s[%d] has no confidence", ErrMalformedPatterns, g.name, i)
			}
			converted = append(converted, domain.Pattern{
				Description:       w.Description,
				Confidence:        *w.Confidence,
				Evidence:          w.Evidence,
				SuggestedAddition: w.SuggestedAddition,
				SuggestedNuance:   w.SuggestedNuance,
			})
		}
		*g.out = validPatterns(converted)
	}
	return patterns, nil
}

func validPatterns(in []domain.Pattern) []domain.Pattern {
	out := make([]domain.Pattern, 0, len(in))
	for _, p := range in {
		if p.Confidence < 0 || p.Confidence > 1 {
			continue
		}
		out = append(out, p)
	}
	return out
}
