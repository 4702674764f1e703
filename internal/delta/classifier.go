package delta

import (
	"github.com/kbforge/kbsync/internal/domain"
)

// Delta is the result of classifying the current corpus against the
// previous identity snapshot. Classifications partition the union of
// current and previously known identities; Fingerprints holds the
// current fingerprint of every supplied document.
type Delta struct {
	Classifications map[string]domain.Classification
	Fingerprints    map[string]domain.Fingerprint
}

// Count returns the number of identities with the given classification.
func (d *Delta) Count(c domain.Classification) int {
	n := 0
	for _, v := range d.Classifications {
		if v == c {
			n++
		}
	}
	return n
}

// Classify compares the current document set against the previous
// snapshot and assigns each identity exactly one classification.
// Documents absent from the snapshot are Added; known documents are
// Unchanged or Updated depending on their fingerprint; identities known
// but no longer supplied are Removed. Duplicate identities in docs are
// a caller error. An empty docs slice classifies every previously known
// identity as Removed; whether that is intended is the caller's call.
func Classify(docs []domain.Document, previous map[string]domain.IdentityRecord) (*Delta, error) {
	d := &Delta{
		Classifications: make(map[string]domain.Classification, len(docs)+len(previous)),
		Fingerprints:    make(map[string]domain.Fingerprint, len(docs)),
	}

	for _, doc := range docs {
		if _, dup := d.Fingerprints[doc.Identity]; dup {
			return nil, domain.NewValidationError("docs", "duplicate identity: "+doc.Identity)
		}

		fp := Fingerprint(doc.Text)
		d.Fingerprints[doc.Identity] = fp

		prev, known := previous[doc.Identity]
		switch {
		case !known:
			d.Classifications[doc.Identity] = domain.Added
		case prev.Fingerprint == fp:
			d.Classifications[doc.Identity] = domain.Unchanged
		default:
			d.Classifications[doc.Identity] = domain.Updated
		}
	}

	for identity := range previous {
		if _, current := d.Fingerprints[identity]; !current {
			d.Classifications[identity] = domain.Removed
		}
	}

	return d, nil
}
