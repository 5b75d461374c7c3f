package core

import (
	"fmt"
	"sort"
	"strings"
)

// ContentType identifies the kind of content being requested.
type ContentType string

const (
	ContentBlogPost           ContentType = "blog_post"
	ContentArticle            ContentType = "article"
	ContentSocialMedia        ContentType = "social_media"
	ContentEmail              ContentType = "email"
	ContentLandingPage        ContentType = "landing_page"
	ContentProductDescription ContentType = "product_description"
)

// Tone identifies the voice of the generated content.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFriendly     Tone = "friendly"
	ToneFormal       Tone = "formal"
	TonePersuasive   Tone = "persuasive"
)

var knownContentTypes = map[ContentType]bool{
	ContentBlogPost:           true,
	ContentArticle:            true,
	ContentSocialMedia:        true,
	ContentEmail:              true,
	ContentLandingPage:        true,
	ContentProductDescription: true,
}

var knownTones = map[Tone]bool{
	ToneProfessional: true,
	ToneCasual:       true,
	ToneFriendly:     true,
	ToneFormal:       true,
	TonePersuasive:   true,
}

// ContentTypeProfile holds the per-type values used by planning, routing and
// the legacy templates.
type ContentTypeProfile struct {
	Label            string
	Weight           float64 // 0..1, contribution to request complexity
	DefaultWordCount int
}

// ToneProfile maps a tone to its label per language base ("en", "nb", ...).
type ToneProfile struct {
	Labels map[string]string
}

// Catalog is the validated content-type and tone mapping.
type Catalog struct {
	types map[ContentType]ContentTypeProfile
	tones map[Tone]ToneProfile
}

// NewCatalog validates the mapping tables. Unknown keys and missing entries
// are rejected so a typo cannot silently fall back to a default.
func NewCatalog(types map[ContentType]ContentTypeProfile, tones map[Tone]ToneProfile) (*Catalog, error) {
	for ct, p := range types {
		if !knownContentTypes[ct] {
			return nil, fmt.Errorf("catalog: unknown content type %q", ct)
		}
		if p.Weight < 0 || p.Weight > 1 {
			return nil, fmt.Errorf("catalog: content type %q weight %.2f outside [0,1]", ct, p.Weight)
		}
		if p.Label == "" {
			return nil, fmt.Errorf("catalog: content type %q has no label", ct)
		}
	}
	for ct := range knownContentTypes {
		if _, ok := types[ct]; !ok {
			return nil, fmt.Errorf("catalog: content type %q not mapped", ct)
		}
	}
	for tone, p := range tones {
		if !knownTones[tone] {
			return nil, fmt.Errorf("catalog: unknown tone %q", tone)
		}
		if p.Labels["en"] == "" {
			return nil, fmt.Errorf("catalog: tone %q has no english label", tone)
		}
	}
	for tone := range knownTones {
		if _, ok := tones[tone]; !ok {
			return nil, fmt.Errorf("catalog: tone %q not mapped", tone)
		}
	}
	return &Catalog{types: types, tones: tones}, nil
}

// DefaultCatalog returns the built-in mapping.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultContentTypes(), defaultTones())
	if err != nil {
		panic(err)
	}
	return c
}

func defaultContentTypes() map[ContentType]ContentTypeProfile {
	return map[ContentType]ContentTypeProfile{
		ContentBlogPost:           {Label: "blog post", Weight: 0.5, DefaultWordCount: 800},
		ContentArticle:            {Label: "article", Weight: 0.7, DefaultWordCount: 1500},
		ContentSocialMedia:        {Label: "social media post", Weight: 0.1, DefaultWordCount: 60},
		ContentEmail:              {Label: "email", Weight: 0.3, DefaultWordCount: 250},
		ContentLandingPage:        {Label: "landing page", Weight: 0.6, DefaultWordCount: 600},
		ContentProductDescription: {Label: "product description", Weight: 0.2, DefaultWordCount: 150},
	}
}

func defaultTones() map[Tone]ToneProfile {
	return map[Tone]ToneProfile{
		ToneProfessional: {Labels: map[string]string{"en": "professional", "nb": "profesjonell"}},
		ToneCasual:       {Labels: map[string]string{"en": "casual", "nb": "uformell"}},
		ToneFriendly:     {Labels: map[string]string{"en": "friendly", "nb": "vennlig"}},
		ToneFormal:       {Labels: map[string]string{"en": "formal", "nb": "formell"}},
		TonePersuasive:   {Labels: map[string]string{"en": "persuasive", "nb": "overbevisende"}},
	}
}

// ContentType returns the profile for ct.
func (c *Catalog) ContentType(ct ContentType) (ContentTypeProfile, bool) {
	p, ok := c.types[ct]
	return p, ok
}

// ToneLabel returns the tone label for a language base, falling back to
// english.
func (c *Catalog) ToneLabel(tone Tone, lang string) string {
	p, ok := c.tones[tone]
	if !ok {
		return string(tone)
	}
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if label, ok := p.Labels[base]; ok {
		return label
	}
	return p.Labels["en"]
}

// HasTone reports whether tone is mapped.
func (c *Catalog) HasTone(tone Tone) bool {
	_, ok := c.tones[tone]
	return ok
}

// ContentTypes lists the mapped content types in sorted order.
func (c *Catalog) ContentTypes() []ContentType {
	out := make([]ContentType, 0, len(c.types))
	for ct := range c.types {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
