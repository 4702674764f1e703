package converter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TagsToRemove are HTML tags stripped from article bodies before
// conversion. Help Center bodies occasionally embed widgets and forms
// that carry no retrievable content.
var TagsToRemove = []string{
	"script",
	"style",
	"noscript",
	"iframe",
	"object",
	"embed",
	"form",
	"input",
	"button",
	"select",
	"textarea",
	"nav",
	"footer",
	"header",
	"aside",
}

// ClassesToRemove are CSS classes that mark non-content elements
var ClassesToRemove = []string{
	"sidebar",
	"navigation",
	"nav",
	"menu",
	"footer",
	"header",
	"banner",
	"advertisement",
	"ad",
	"social",
	"share",
	"related",
	"recommended",
}

// Sanitizer strips non-content elements from article HTML
type Sanitizer struct{}

// NewSanitizer creates a new sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize removes non-content tags and class-marked junk from HTML
func (s *Sanitizer) Sanitize(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	for _, tag := range TagsToRemove {
		doc.Find(tag).Remove()
	}

	for _, class := range ClassesToRemove {
		doc.Find("." + class).Remove()
	}

	// Drop anchors with no text, they render as empty links
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		if strings.TrimSpace(sel.Text()) == "" {
			sel.Remove()
		}
	})

	return doc.Find("body").Html()
}
