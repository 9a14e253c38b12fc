package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDigest/internal/domain"
)

func TestMaterializeFiltersStrictlyAboveThreshold(t *testing.T) {
	t.Parallel()

	store := &fakeSuggestions{}
	m := NewMaterializer(DefaultPolicy(), store, nil)

	patterns := domain.Patterns{
		StrongPositive: []domain.Pattern{
			{Description: "jwst", Confidence: 0.9, SuggestedAddition: "JWST papers"},
			{Description: "weak", Confidence: 0.6, SuggestedAddition: "weak"},
		},
		StrongNegative: []domain.Pattern{
			{Description: "boundary", Confidence: 0.75, SuggestedAddition: "exactly at threshold"},
		},
		Nuanced: []domain.Pattern{
			{Description: "context", Confidence: 0.8, SuggestedNuance: "only galactic context"},
		},
	}

	created := m.Materialize(context.Background(), "u1", "galaxies", patterns, now)
	require.Equal(t, 2, created)
	require.Len(t, store.created, 2)

	first := store.created[0]
	assert.Equal(t, domain.PatternPositive, first.Type)
	assert.Equal(t, "JWST papers", first.SuggestedText)
	assert.Equal(t, "galaxies", first.CurrentPrompt)
	assert.Equal(t, domain.SuggestionPending, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, now, first.CreatedAt)

	second := store.created[1]
	assert.Equal(t, domain.PatternNuanced, second.Type)
	assert.Equal(t, "only galactic context", second.SuggestedText)

	for _, s := range store.created {
		assert.Greater(t, s.Confidence, 0.75)
	}
}

func TestMaterializeExactlyAtThresholdCreatesNothing(t *testing.T) {
	t.Parallel()

	store := &fakeSuggestions{}
	created := NewMaterializer(DefaultPolicy(), store, nil).Materialize(context.Background(), "u1", "",
		domain.Patterns{Nuanced: []domain.Pattern{{Description: "edge", Confidence: 0.75}}}, now)

	assert.Zero(t, created)
	assert.Empty(t, store.created)
}

func TestMaterializeIsolatesStoreFailures(t *testing.T) {
	t.Parallel()

	store := &fakeSuggestions{failOn: map[string]bool{"broken": true}}
	patterns := domain.Patterns{StrongPositive: []domain.Pattern{
		{Description: "broken", Confidence: 0.95},
		{Description: "fine", Confidence: 0.9},
	}}

	created := NewMaterializer(DefaultPolicy(), store, nil).Materialize(context.Background(), "u1", "", patterns, now)
	assert.Equal(t, 1, created)
	require.Len(t, store.created, 1)
	assert.Equal(t, "fine", store.created[0].Description)
}
