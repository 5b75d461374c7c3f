package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/contentorc/internal/core"
)

func TestToneLabels(t *testing.T) {
	catalog := core.DefaultCatalog()

	assert.Equal(t, "vennlig", catalog.ToneLabel(core.ToneFriendly, "nb_NO"))
	assert.Equal(t, "friendly", catalog.ToneLabel(core.ToneFriendly, "fr"))
	assert.Equal(t, "friendly", catalog.ToneLabel(core.ToneFriendly, "EN-gb"))
	assert.Len(t, catalog.ContentTypes(), 6)
}

func TestNewCatalogRejectsGaps(t *testing.T) {
	_, err := core.NewCatalog(map[core.ContentType]core.ContentTypeProfile{
		core.ContentBlogPost: {Label: "blog post", Weight: 0.5},
	}, nil)
	require.Error(t, err)

	_, err = core.NewCatalog(map[core.ContentType]core.ContentTypeProfile{
		"limerick": {Label: "limerick", Weight: 0.5},
	}, nil)
	assert.ErrorContains(t, err, "unknown content type")
}

func TestValidateRequest(t *testing.T) {
	catalog := core.DefaultCatalog()

	assert.NoError(t, core.ValidateRequest(core.NewContentRequest("ok", core.WithWordCount(500)), catalog))

	err := core.ValidateRequest(core.NewContentRequest("x", core.WithWordCount(50000)), catalog)
	var reqErr *core.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "wordcount", reqErr.Field)

	err = core.ValidateRequest(core.NewContentRequest("x", core.WithLanguage("")), catalog)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestRequiresTranslation(t *testing.T) {
	assert.False(t, core.NewContentRequest("x").RequiresTranslation())
	assert.False(t, core.NewContentRequest("x", core.WithTranslation("EN")).RequiresTranslation())
	assert.True(t, core.NewContentRequest("x", core.WithTranslation("de")).RequiresTranslation())
}
