package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/contentorc/internal/core"
)

type requestFlags struct {
	contentType    string
	tone           string
	language       string
	sourceLanguage string
	audience       string
	keywords       []string
	words          int
	user           string
	research       bool
	immediate      bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.contentType, "type", "t", string(core.ContentBlogPost), "Content type")
	flags.StringVar(&f.tone, "tone", string(core.ToneProfessional), "Tone of voice")
	flags.StringVarP(&f.language, "language", "l", "en", "Target language (BCP 47)")
	flags.StringVar(&f.sourceLanguage, "source-language", "", "Source language when translating")
	flags.StringVar(&f.audience, "audience", "", "Intended audience")
	flags.StringSliceVarP(&f.keywords, "keyword", "k", nil, "Keyword to include (repeatable)")
	flags.IntVarP(&f.words, "words", "w", 0, "Target word count (0 uses the content type default)")
	flags.StringVarP(&f.user, "user", "u", "", "User identifier for rollout bucketing")
	flags.BoolVar(&f.research, "research", false, "Run the research stage")
	flags.BoolVar(&f.immediate, "immediate", false, "Generate without waiting for research")
}

func (f *requestFlags) request(args []string) core.ContentRequest {
	opts := []core.RequestOption{
		core.WithContentType(core.ContentType(f.contentType)),
		core.WithTone(core.Tone(f.tone)),
		core.WithLanguage(f.language),
		core.WithWordCount(f.words),
		core.WithResearch(f.research),
	}
	if f.sourceLanguage != "" {
		opts = append(opts, core.WithTranslation(f.sourceLanguage))
	}
	if f.audience != "" {
		opts = append(opts, core.WithAudience(f.audience))
	}
	if len(f.keywords) > 0 {
		opts = append(opts, core.WithKeywords(f.keywords...))
	}
	if f.user != "" {
		opts = append(opts, core.WithUser(f.user))
	}
	if f.immediate {
		opts = append(opts, core.WithImmediateGeneration())
	}
	return core.NewContentRequest(strings.Join(args, " "), opts...)
}
