// Package provider implements the Provider Gateway (base spec §4.2): the
// capability set the engine invokes to resolve a query or mail message into
// structured artifacts. It is stateless to the engine — every call carries
// its own input and returns its own output, with no session affinity.
package provider

import "context"

// ImageQuality is the requested render quality for createImage.
type ImageQuality string

const (
	ImageQualityLow    ImageQuality = "low"
	ImageQualityNormal ImageQuality = "normal"
	ImageQualityHigh   ImageQuality = "high"
)

// CorrectSpellingInput/Output — §4.2 correctSpelling.
type CorrectSpellingInput struct {
	Text     string
	Language string
}

type CorrectSpellingOutput struct {
	Text string
}

// ResolveIntentInput/Output — §4.2 resolveIntent.
type ResolveIntentInput struct {
	Query    string
	Language string
	Filetype string
}

type IntentCandidate struct {
	Intent  string
	Title   string
	Summary string
}

type ResolveIntentOutput struct {
	Items []IntentCandidate
}

// CreateArticleInput/Output — §4.2 createArticle.
type CreateArticleInput struct {
	Query    string
	Intent   string
	Language string
	Filetype string
}

type ArticleContent struct {
	Title       string
	Slug        string
	Content     string
	GeneratedBy string
}

type ArticleRecommendation struct {
	Title   string
	Summary string
}

type CreateArticleOutput struct {
	Article         ArticleContent
	Recommendations []ArticleRecommendation
}

// CreateImageInput/Output — §4.2 createImage.
type CreateImageInput struct {
	Description string
	Quality     ImageQuality
}

type CreateImageOutput struct {
	MimeType string
	Binary   []byte
}

// SummarizeInput/Output — §4.2 summarize.
type SummarizeMessage struct {
	Role    string
	Content string
}

type SummarizeInput struct {
	Messages []SummarizeMessage
}

type SummarizeOutput struct {
	Summary string
}

// AttachmentPolicy bounds what generateReply is allowed to produce.
type AttachmentPolicy struct {
	MaxCount     int
	MaxTextChars int
}

// GenerateReplyInput/Output — §4.2 generateReply.
type GenerateReplyInput struct {
	History          []SummarizeMessage
	Summary          string
	UserInput        string
	AttachmentPolicy AttachmentPolicy
}

// ReplyAttachmentKind mirrors store.MailAttachmentKind* without importing
// the store package — the Gateway is a leaf dependency of the pipelines,
// not the other way around.
type ReplyAttachmentKind string

const (
	ReplyAttachmentText  ReplyAttachmentKind = "text"
	ReplyAttachmentImage ReplyAttachmentKind = "image"
)

type ReplyAttachment struct {
	Kind     ReplyAttachmentKind
	Text     string
	MimeType string
	Binary   []byte
}

type GenerateReplyOutput struct {
	Content     string
	Attachments []ReplyAttachment
}

// Gateway is the capability set consumed by the Search Generation and Mail
// Reply pipelines, each call wrapped individually by executor.Execute.
type Gateway interface {
	CorrectSpelling(ctx context.Context, in CorrectSpellingInput) (CorrectSpellingOutput, error)
	ResolveIntent(ctx context.Context, in ResolveIntentInput) (ResolveIntentOutput, error)
	CreateArticle(ctx context.Context, in CreateArticleInput) (CreateArticleOutput, error)
	CreateImage(ctx context.Context, in CreateImageInput) (CreateImageOutput, error)
	Summarize(ctx context.Context, in SummarizeInput) (SummarizeOutput, error)
	GenerateReply(ctx context.Context, in GenerateReplyInput) (GenerateReplyOutput, error)
}
