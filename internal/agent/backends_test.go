package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/contentorc/internal/core"
)

func TestBackendsWithMockClient(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	b := NewBackends(New(mock, nil, nil))
	req := core.NewContentRequest("Remote work", core.WithResearch(true))

	research, err := b.Research.Research(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, research.Sources)
	assert.Contains(t, research.EnrichedContent, "Remote work")

	gen, err := b.Generate.Generate(ctx, req, core.GenerationContext{Research: &research})
	require.NoError(t, err)
	assert.Contains(t, gen.Content, "Remote work")
	assert.Equal(t, "true", gen.Metadata["with_research"])

	opt, err := b.Optimize.Optimize(ctx, gen.Content, req)
	require.NoError(t, err)
	assert.Contains(t, opt.OptimizedContent, "Get in touch")
	assert.InDelta(t, 0.8, opt.Confidence, 1e-9)

	val, err := b.Validate.Validate(ctx, gen.Content, core.ValidationContext{Request: req})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, val.OverallScore, 1e-9)
	assert.Len(t, val.Details, 5)

	for _, op := range []string{PromptResearch, PromptGenerate, PromptOptimize, PromptValidate} {
		assert.Equal(t, 1, mock.Calls(op), op)
	}
}

func TestAlternativesOnlyGenerate(t *testing.T) {
	alt := NewAlternatives(New(NewMockClient(), nil, nil))
	assert.Nil(t, alt.Research)
	assert.Nil(t, alt.Optimize)
	assert.Nil(t, alt.Validate)

	out, err := alt.Generate.Generate(context.Background(), core.NewContentRequest("Tea"), core.GenerationContext{})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "Tea in brief")
}

func TestUndecodableResponseIsInvalidOutput(t *testing.T) {
	b := NewBackends(New(stubClient{response: "not json at all"}, nil, nil))
	_, err := b.Validate.Validate(context.Background(), "text", core.ValidationContext{Request: core.NewContentRequest("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStageInvalidOutput))
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSON(`Sure! {"a":{"b":2}} hope this helps`))
	assert.Equal(t, "plain", extractJSON("plain"))
}

func TestMockClientFailureInjection(t *testing.T) {
	boom := errors.New("provider down")
	mock := NewMockClient().FailOn(PromptGenerate, boom)
	b := NewBackends(New(mock, nil, nil))

	_, err := b.Generate.Generate(context.Background(), core.NewContentRequest("x"), core.GenerationContext{})
	assert.ErrorIs(t, err, boom)
}

type stubClient struct {
	response string
	err      error
}

func (s stubClient) CompleteWithSystem(context.Context, string, string) (string, error) {
	return s.response, s.err
}

func (s stubClient) CompleteJSONWithSystem(context.Context, string, string) (string, error) {
	return s.response, s.err
}
