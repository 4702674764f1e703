package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/kbforge/kbsync/internal/domain"
)

// Fingerprint computes the content fingerprint of normalized document
// text: the hex SHA-256 digest of its exact bytes. The same bytes the
// segmenter consumes must be hashed, so "fingerprint changed" and
// "segments will differ" stay consistent.
func Fingerprint(text string) domain.Fingerprint {
	sum := sha256.Sum256([]byte(text))
	return domain.Fingerprint(hex.EncodeToString(sum[:]))
}

// identityKeyLen is the length of the identity hash prefix embedded in
// segment ids. Twelve hex chars keep ids filename-safe while leaving a
// negligible collision chance for any realistic corpus.
const identityKeyLen = 12

// IdentityKey derives the stable, filename-safe key for a document
// identity used as the prefix of its segment ids.
func IdentityKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:identityKeyLen]
}

// SegmentID computes the deterministic id for the segment at the given
// ordinal of a document. The id depends only on (identity, ordinal), not
// on content, so re-running over unchanged documents yields identical
// upsert keys.
func SegmentID(identity string, ordinal int) string {
	return fmt.Sprintf("%s-%04d", IdentityKey(identity), ordinal)
}
