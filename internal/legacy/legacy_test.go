package legacy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/contentorc/internal/core"
)

func TestEveryContentTypeRenders(t *testing.T) {
	catalog := core.DefaultCatalog()
	g, err := New(catalog)
	require.NoError(t, err)

	for _, ct := range catalog.ContentTypes() {
		t.Run(string(ct), func(t *testing.T) {
			req := core.NewContentRequest("solar panels", core.WithContentType(ct), core.WithKeywords("cost", "install"))
			res, err := g.Run(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, Name, res.Strategy)
			assert.Contains(t, res.Content, "Solar Panels")
			assert.True(t, res.QualityEstimated)
			assert.InDelta(t, core.DefaultQualityEstimate, res.QualityScore, 1e-9)
			assert.Equal(t, []string{"legacy_generate"}, res.FunctionsExecuted)
		})
	}
}

func TestDeterministicOutput(t *testing.T) {
	g, err := New(core.DefaultCatalog())
	require.NoError(t, err)

	req := core.NewContentRequest("urban gardening", core.WithWordCount(600), core.WithKeywords("soil"))
	first, err := g.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := g.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 4, strings.Count(first.Content, "## Soil"))
}

func TestLocalizedToneLabel(t *testing.T) {
	g, err := New(core.DefaultCatalog())
	require.NoError(t, err)

	req := core.NewContentRequest("fjellturer", core.WithLanguage("nb-NO"), core.WithTone(core.ToneFriendly))
	res, err := g.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, res.Content, "vennlig")
}

func TestValidatorScoresOutput(t *testing.T) {
	v := core.ValidateFunc(func(ctx context.Context, content string, vc core.ValidationContext) (core.ValidationOutput, error) {
		return core.ValidationOutput{OverallScore: 0.42}, nil
	})
	g, err := New(core.DefaultCatalog(), WithValidator(v, 0))
	require.NoError(t, err)

	res, err := g.Run(context.Background(), core.NewContentRequest("topic"))
	require.NoError(t, err)
	assert.False(t, res.QualityEstimated)
	assert.InDelta(t, 0.42, res.QualityScore, 1e-9)
	assert.Contains(t, res.FunctionsExecuted, "validate")
}

func TestValidatorFailureKeepsEstimate(t *testing.T) {
	v := core.ValidateFunc(func(ctx context.Context, content string, vc core.ValidationContext) (core.ValidationOutput, error) {
		return core.ValidationOutput{}, errors.New("validator offline")
	})
	g, err := New(core.DefaultCatalog(), WithValidator(v, 0), WithEstimate(0.6))
	require.NoError(t, err)

	res, err := g.Run(context.Background(), core.NewContentRequest("topic"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.QualityEstimated)
	assert.InDelta(t, 0.6, res.QualityScore, 1e-9)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], core.ErrStageProvider)
}

func TestInvalidRequestRejected(t *testing.T) {
	g, err := New(core.DefaultCatalog())
	require.NoError(t, err)

	_, err = g.Run(context.Background(), core.NewContentRequest("   "))
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}
