package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RequestFlags toggles optional pipeline behaviour.
type RequestFlags struct {
	EnableResearch bool `json:"enable_research"`
	// ImmediateGeneration runs research alongside generate instead of
	// awaiting it as context.
	ImmediateGeneration bool `json:"immediate_generation"`
}

// ContentRequest is the immutable input to a pipeline run.
type ContentRequest struct {
	ID             string       `json:"id" validate:"required"`
	Topic          string       `json:"topic" validate:"required,max=2000"`
	ContentType    ContentType  `json:"content_type" validate:"required"`
	TargetLanguage string       `json:"target_language" validate:"required"`
	SourceLanguage string       `json:"source_language,omitempty"`
	Audience       string       `json:"audience,omitempty"`
	Tone           Tone         `json:"tone" validate:"required"`
	Keywords       []string     `json:"keywords,omitempty"`
	WordCount      int          `json:"word_count" validate:"min=0,max=20000"`
	UserID         string       `json:"user_id,omitempty"`
	Flags          RequestFlags `json:"flags"`
	CreatedAt      time.Time    `json:"created_at"`
}

// RequestOption customizes a new ContentRequest.
type RequestOption func(*ContentRequest)

func WithContentType(ct ContentType) RequestOption {
	return func(r *ContentRequest) { r.ContentType = ct }
}

func WithTone(t Tone) RequestOption {
	return func(r *ContentRequest) { r.Tone = t }
}

func WithLanguage(target string) RequestOption {
	return func(r *ContentRequest) { r.TargetLanguage = target }
}

// WithTranslation marks the request as requiring translation from source.
func WithTranslation(source string) RequestOption {
	return func(r *ContentRequest) { r.SourceLanguage = source }
}

func WithAudience(audience string) RequestOption {
	return func(r *ContentRequest) { r.Audience = audience }
}

func WithKeywords(keywords ...string) RequestOption {
	return func(r *ContentRequest) { r.Keywords = append(r.Keywords, keywords...) }
}

func WithWordCount(n int) RequestOption {
	return func(r *ContentRequest) { r.WordCount = n }
}

func WithUser(userID string) RequestOption {
	return func(r *ContentRequest) { r.UserID = userID }
}

func WithResearch(enabled bool) RequestOption {
	return func(r *ContentRequest) { r.Flags.EnableResearch = enabled }
}

func WithImmediateGeneration() RequestOption {
	return func(r *ContentRequest) { r.Flags.ImmediateGeneration = true }
}

// NewContentRequest creates a request with a fresh ID, the current time and
// defaults for content type, tone and language.
func NewContentRequest(topic string, opts ...RequestOption) ContentRequest {
	r := ContentRequest{
		ID:             uuid.New().String(),
		Topic:          topic,
		ContentType:    ContentBlogPost,
		TargetLanguage: "en",
		Tone:           ToneProfessional,
		CreatedAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// RequiresTranslation reports whether source and target languages differ.
func (r ContentRequest) RequiresTranslation() bool {
	return r.SourceLanguage != "" && !strings.EqualFold(r.SourceLanguage, r.TargetLanguage)
}

var requestValidator = validator.New()

// ValidateRequest checks the request shape against the catalog.
func ValidateRequest(req ContentRequest, catalog *Catalog) error {
	if strings.TrimSpace(req.Topic) == "" {
		return invalidRequest("topic", "must not be empty")
	}
	if err := requestValidator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return invalidRequest(strings.ToLower(verrs[0].Field()), fmt.Sprintf("failed %q check", verrs[0].Tag()))
		}
		return invalidRequest("request", err.Error())
	}
	if _, ok := catalog.ContentType(req.ContentType); !ok {
		return invalidRequest("content_type", fmt.Sprintf("unknown value %q", req.ContentType))
	}
	if !catalog.HasTone(req.Tone) {
		return invalidRequest("tone", fmt.Sprintf("unknown value %q", req.Tone))
	}
	return nil
}
