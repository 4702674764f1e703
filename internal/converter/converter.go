package converter

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/kbforge/kbsync/internal/domain"
)

var blankRunRegex = regexp.MustCompile(`\n{3,}`)

// Pipeline converts raw Help Center articles into normalized documents.
// The output text is the exact byte sequence the fingerprinter hashes
// and the segmenter splits, so the normalization here is part of the
// change-detection contract: identical article HTML must always produce
// identical text.
type Pipeline struct {
	sanitizer *Sanitizer
}

// NewPipeline creates a conversion pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		sanitizer: NewSanitizer(),
	}
}

var _ domain.Converter = (*Pipeline)(nil)

// Convert cleans and converts an article body to a Markdown document.
// The text opens with the article title as a heading and an
// "Article URL:" line so retrieval answers can cite their source.
func (p *Pipeline) Convert(article domain.Article) (*domain.Document, error) {
	body, err := ToUTF8([]byte(article.BodyHTML))
	if err != nil {
		return nil, fmt.Errorf("encoding normalization failed: %w", err)
	}

	sanitized, err := p.sanitizer.Sanitize(string(body))
	if err != nil {
		return nil, fmt.Errorf("sanitize failed: %w", err)
	}

	markdown, err := md.ConvertString(sanitized)
	if err != nil {
		return nil, fmt.Errorf("markdown conversion failed: %w", err)
	}

	identity := Identity(article)

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(strings.TrimSpace(article.Title))
	b.WriteString("\n\n")
	if article.URL != "" {
		b.WriteString("Article URL: ")
		b.WriteString(article.URL)
		b.WriteString("\n\n")
	}
	b.WriteString(markdown)

	return &domain.Document{
		Identity: identity,
		Text:     NormalizeText(b.String()),
		Metadata: map[string]string{
			"title": strings.TrimSpace(article.Title),
			"url":   article.URL,
		},
	}, nil
}

// Identity derives the stable document key for an article. The numeric
// article id survives title renames and URL slug changes, so it keys
// the same logical article across runs.
func Identity(article domain.Article) string {
	return fmt.Sprintf("article/%d", article.ID)
}

// NormalizeText canonicalizes whitespace: runs of blank lines collapse
// to a single blank line, trailing whitespace is stripped per line, and
// the result has no leading or trailing blank lines. After this pass
// the paragraph separator is exactly one blank line everywhere, which
// the segmenter's coverage guarantee relies on.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = blankRunRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
