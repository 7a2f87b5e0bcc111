package extract

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/kilupskalvis/avc/internal/models"
)

// ReadabilityExtractor finds the article body with go-readability and reads
// page metadata with goquery.
type ReadabilityExtractor struct {
	logger *slog.Logger
}

// NewReadabilityExtractor creates an extractor.
func NewReadabilityExtractor(logger *slog.Logger) *ReadabilityExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadabilityExtractor{logger: logger}
}

// Extract returns the article as Markdown plus its metadata. Metadata
// problems are logged and never fail the extraction; a page with no
// readable body does.
func (x *ReadabilityExtractor) Extract(ctx context.Context, pageURL, html string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !looksLikeHTML(html) {
		return nil, &Error{URL: pageURL, Err: ErrInvalidHTML}
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, &Error{URL: pageURL, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &Error{URL: pageURL, Err: err}
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return nil, &Error{URL: pageURL, Err: err}
	}
	body, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, &Error{URL: pageURL, Err: err}
	}
	content := toMarkdown(body.Find("body"))
	if strings.TrimSpace(content) == "" {
		return nil, &Error{URL: pageURL, Err: ErrNoContent}
	}

	meta := metadataFromDocument(doc, pageURL)
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(article.Title)
	}
	if meta.Author == "" {
		meta.Author = strings.TrimSpace(article.Byline)
	}
	if meta.Description == "" {
		meta.Description = strings.TrimSpace(article.Excerpt)
	}
	meta.TextDirection = documentDirection(doc)

	if meta.TextDirection == models.TextDirectionRTL {
		content = "<div dir=\"rtl\">\n\n" + content + "\n\n</div>"
	}

	x.logger.Debug("extracted content",
		"url", pageURL,
		"length", len(content),
		"title", meta.Title,
	)
	return &Result{Content: content, Metadata: meta}, nil
}

// ExtractMetadata reads only the metadata of the page.
func (x *ReadabilityExtractor) ExtractMetadata(ctx context.Context, pageURL, html string) (models.ExtractedMetadata, error) {
	if err := ctx.Err(); err != nil {
		return models.ExtractedMetadata{}, err
	}
	if !looksLikeHTML(html) {
		return models.ExtractedMetadata{}, &Error{URL: pageURL, Err: ErrInvalidHTML}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ExtractedMetadata{}, &Error{URL: pageURL, Err: err}
	}
	meta := metadataFromDocument(doc, pageURL)
	meta.TextDirection = documentDirection(doc)
	return meta, nil
}

func looksLikeHTML(s string) bool {
	return strings.TrimSpace(s) != "" && strings.Contains(s, "<") && strings.Contains(s, ">")
}
