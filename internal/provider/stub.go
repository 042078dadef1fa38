package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// StubGateway is a deterministic in-memory Gateway used by tests and
// local/dev runs — the default `DefaultProviderConfig().Kind`, mirroring
// the teacher's dev/real LLM client split. It never calls out over the
// network and never returns an error on its own.
type StubGateway struct{}

// NewStubGateway builds a StubGateway.
func NewStubGateway() *StubGateway { return &StubGateway{} }

func (g *StubGateway) CorrectSpelling(ctx context.Context, in CorrectSpellingInput) (CorrectSpellingOutput, error) {
	return CorrectSpellingOutput{Text: strings.TrimSpace(in.Text)}, nil
}

func (g *StubGateway) ResolveIntent(ctx context.Context, in ResolveIntentInput) (ResolveIntentOutput, error) {
	base := strings.TrimSpace(in.Query)
	if base == "" {
		base = "general"
	}
	return ResolveIntentOutput{
		Items: []IntentCandidate{
			{
				Intent:  "overview",
				Title:   fmt.Sprintf("%s overview", base),
				Summary: fmt.Sprintf("An overview of %s.", base),
			},
			{
				Intent:  "how-to",
				Title:   fmt.Sprintf("How to use %s", base),
				Summary: fmt.Sprintf("Step-by-step guidance on %s.", base),
			},
		},
	}, nil
}

func (g *StubGateway) CreateArticle(ctx context.Context, in CreateArticleInput) (CreateArticleOutput, error) {
	title := fmt.Sprintf("%s: %s", in.Query, in.Intent)
	return CreateArticleOutput{
		Article: ArticleContent{
			Title:       title,
			Slug:        slugify(title),
			Content:     fmt.Sprintf("# %s\n\nGenerated content for intent %q on query %q.", title, in.Intent, in.Query),
			GeneratedBy: "stubgateway",
		},
		Recommendations: []ArticleRecommendation{
			{Title: fmt.Sprintf("Related to %s", in.Query), Summary: "A related read."},
		},
	}, nil
}

func (g *StubGateway) CreateImage(ctx context.Context, in CreateImageInput) (CreateImageOutput, error) {
	sum := sha1.Sum([]byte(in.Description))
	return CreateImageOutput{
		MimeType: "image/png",
		Binary:   []byte(hex.EncodeToString(sum[:])),
	}, nil
}

func (g *StubGateway) Summarize(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	if len(in.Messages) == 0 {
		return SummarizeOutput{Summary: ""}, nil
	}
	return SummarizeOutput{Summary: fmt.Sprintf("Summary of %d message(s), most recent: %q.", len(in.Messages), truncate(in.Messages[len(in.Messages)-1].Content, 80))}, nil
}

func (g *StubGateway) GenerateReply(ctx context.Context, in GenerateReplyInput) (GenerateReplyOutput, error) {
	return GenerateReplyOutput{
		Content: fmt.Sprintf("Reply to: %s", truncate(in.UserInput, 200)),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
