package delta

import (
	"context"
	"sort"

	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/state"
	"github.com/kbforge/kbsync/internal/utils"
)

// Planner turns a classified delta into a SyncPlan and, once the caller
// confirms the plan was applied remotely, commits the resulting identity
// snapshot. The snapshot is never touched between planning and Commit,
// so an interrupted run re-derives the same plan next time.
type Planner struct {
	store    *state.Store
	previous map[string]domain.IdentityRecord
	logger   *utils.Logger
}

// NewPlanner creates a planner over the snapshot loaded at run start.
func NewPlanner(store *state.Store, previous map[string]domain.IdentityRecord, logger *utils.Logger) *Planner {
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}
	return &Planner{
		store:    store,
		previous: previous,
		logger:   logger.WithComponent("planner"),
	}
}

// Plan builds the mutation plan for a classified delta: a full segment
// replacement for every Added or Updated document, a deletion for every
// Removed identity, and nothing at all for Unchanged documents. Upserts
// follow the order of docs; deletions are sorted for determinism.
func (p *Planner) Plan(d *Delta, docs []domain.Document, maxSegmentChars int) (*domain.SyncPlan, error) {
	plan := &domain.SyncPlan{}

	for i := range docs {
		doc := &docs[i]
		switch d.Classifications[doc.Identity] {
		case domain.Added, domain.Updated:
			segments, err := Segment(doc, maxSegmentChars)
			if err != nil {
				return nil, err
			}
			plan.Upserts = append(plan.Upserts, domain.Upsert{
				Identity: doc.Identity,
				Segments: segments,
			})
		}
	}

	for identity, class := range d.Classifications {
		if class == domain.Removed {
			plan.Deletions = append(plan.Deletions, identity)
		}
	}
	sort.Strings(plan.Deletions)

	p.logger.Debug().
		Int("upserts", len(plan.Upserts)).
		Int("segments", plan.SegmentCount()).
		Int("deletions", len(plan.Deletions)).
		Msg("Sync plan built")

	return plan, nil
}

// Commit persists the post-apply snapshot: upserted identities get their
// new fingerprint and segment ids, deleted identities drop out, and
// everything else carries forward unmodified. Call only after the plan
// was successfully applied against the remote index; on write failure
// the prior snapshot stays intact on disk.
func (p *Planner) Commit(ctx context.Context, plan *domain.SyncPlan, fingerprints map[string]domain.Fingerprint) error {
	next := make(map[string]domain.IdentityRecord, len(p.previous)+len(plan.Upserts))
	for identity, record := range p.previous {
		next[identity] = record
	}

	for _, upsert := range plan.Upserts {
		fp, ok := fingerprints[upsert.Identity]
		if !ok {
			return domain.NewValidationError("fingerprints", "missing fingerprint for "+upsert.Identity)
		}
		ids := make([]string, len(upsert.Segments))
		for i, seg := range upsert.Segments {
			ids[i] = seg.ID
		}
		next[upsert.Identity] = domain.IdentityRecord{
			Fingerprint: fp,
			SegmentIDs:  ids,
		}
	}

	for _, identity := range plan.Deletions {
		delete(next, identity)
	}

	if err := p.store.Commit(ctx, next); err != nil {
		return err
	}

	p.previous = next
	p.logger.Debug().Int("records", len(next)).Msg("Identity snapshot committed")
	return nil
}
