package domain

import "time"

// Fingerprint is an opaque content digest used to detect document changes
// without storing the full text.
type Fingerprint string

// Article represents a raw knowledge-base article as returned by the
// Help Center API, before cleaning and conversion.
type Article struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"html_url"`
	BodyHTML  string    `json:"body"`
	Draft     bool      `json:"draft"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a normalized article ready for change detection and
// segmentation. Immutable once produced by the converter.
type Document struct {
	Identity string            `json:"identity"`
	Text     string            `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Title returns the document title from metadata, falling back to the identity.
func (d *Document) Title() string {
	if t := d.Metadata["title"]; t != "" {
		return t
	}
	return d.Identity
}

// SourceURL returns the source URL from metadata, if any.
func (d *Document) SourceURL() string {
	return d.Metadata["url"]
}

// Segment is a bounded-size chunk of a document's text, the unit
// uploaded to the search index.
type Segment struct {
	ID             string `json:"id"`
	Ordinal        int    `json:"ordinal"`
	Text           string `json:"text"`
	SourceIdentity string `json:"source_identity"`
}

// IdentityRecord is the persisted per-document state: the fingerprint
// last synchronized to the index and the segment ids it produced.
type IdentityRecord struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	SegmentIDs  []string    `json:"segment_ids"`
}

// Classification is the change status of one identity for a run.
type Classification string

const (
	Added     Classification = "added"
	Updated   Classification = "updated"
	Unchanged Classification = "unchanged"
	Removed   Classification = "removed"
)

// Upsert pairs an identity with the full replacement segment set for
// that document. Segments are always replaced as a whole unit, never
// patched individually.
type Upsert struct {
	Identity string
	Segments []Segment
}

// SyncPlan is the exact set of index mutations needed to reconcile the
// remote index with the current corpus. Unchanged documents never appear.
type SyncPlan struct {
	Upserts   []Upsert
	Deletions []string
}

// Empty reports whether the plan contains no work.
func (p *SyncPlan) Empty() bool {
	return len(p.Upserts) == 0 && len(p.Deletions) == 0
}

// SegmentCount returns the total number of segments across all upserts.
func (p *SyncPlan) SegmentCount() int {
	n := 0
	for _, u := range p.Upserts {
		n += len(u.Segments)
	}
	return n
}
