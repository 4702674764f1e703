package delta

import (
	"strings"

	"github.com/kbforge/kbsync/internal/domain"
)

// ParagraphSeparator joins paragraphs within a segment and is what the
// converter emits between paragraphs, so joining all segments with it
// reproduces the normalized document text.
const ParagraphSeparator = "\n\n"

// Segment splits a document's normalized text into an ordered sequence
// of segments along paragraph boundaries. Consecutive paragraphs are
// accumulated while the segment stays within maxChars (separator bytes
// included); a paragraph that would overflow the bound starts a new
// segment. A single paragraph longer than maxChars becomes its own
// oversized segment rather than being truncated or split mid-paragraph.
func Segment(doc *domain.Document, maxChars int) ([]domain.Segment, error) {
	if maxChars <= 0 {
		return nil, domain.NewConfigurationError("maxSegmentChars", "must be positive")
	}

	paragraphs := SplitParagraphs(doc.Text)
	if len(paragraphs) == 0 {
		return nil, nil
	}

	var segments []domain.Segment
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		ordinal := len(segments)
		segments = append(segments, domain.Segment{
			ID:             SegmentID(doc.Identity, ordinal),
			Ordinal:        ordinal,
			Text:           current.String(),
			SourceIdentity: doc.Identity,
		})
		current.Reset()
	}

	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(ParagraphSeparator)+len(para) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(ParagraphSeparator)
		}
		current.WriteString(para)
	}
	flush()

	return segments, nil
}

// SplitParagraphs splits text on paragraph boundaries: a boundary is a
// maximal run of blank lines (lines that are empty or whitespace-only)
// separating non-blank text. Leading and trailing blank lines produce
// no paragraphs; text with no content yields nil.
func SplitParagraphs(text string) []string {
	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return paragraphs
}
