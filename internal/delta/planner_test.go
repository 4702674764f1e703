package delta_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbsync/internal/delta"
	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/state"
	"github.com/kbforge/kbsync/internal/utils"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	return state.NewStore(state.StoreOptions{
		BaseDir: t.TempDir(),
		Logger:  utils.NewLogger(utils.LoggerOptions{Level: "error"}),
	})
}

func classifyAndPlan(t *testing.T, store *state.Store, docs []domain.Document, previous map[string]domain.IdentityRecord, maxChars int) (*delta.Planner, *delta.Delta, *domain.SyncPlan) {
	t.Helper()

	d, err := delta.Classify(docs, previous)
	require.NoError(t, err)

	planner := delta.NewPlanner(store, previous, nil)
	plan, err := planner.Plan(d, docs, maxChars)
	require.NoError(t, err)

	return planner, d, plan
}

func TestPlan_AllNewDocuments(t *testing.T) {
	docs := []domain.Document{
		doc("article/1", "one"),
		doc("article/2", "two"),
		doc("article/3", "three"),
	}

	_, _, plan := classifyAndPlan(t, newTestStore(t), docs, map[string]domain.IdentityRecord{}, 100)

	assert.Len(t, plan.Upserts, 3)
	assert.Empty(t, plan.Deletions)
	assert.False(t, plan.Empty())
}

func TestPlan_UnchangedProducesNoWork(t *testing.T) {
	previous := map[string]domain.IdentityRecord{
		"article/1": record("stable", delta.SegmentID("article/1", 0)),
	}
	docs := []domain.Document{doc("article/1", "stable")}

	_, _, plan := classifyAndPlan(t, newTestStore(t), docs, previous, 100)

	assert.True(t, plan.Empty())
}

func TestPlan_UpdatedGetsFullReplacementSet(t *testing.T) {
	previous := map[string]domain.IdentityRecord{
		"article/1": record("old", delta.SegmentID("article/1", 0)),
	}
	docs := []domain.Document{doc("article/1", "a\n\nb\n\nc")}

	_, _, plan := classifyAndPlan(t, newTestStore(t), docs, previous, 1)

	require.Len(t, plan.Upserts, 1)
	assert.Equal(t, "article/1", plan.Upserts[0].Identity)
	assert.Len(t, plan.Upserts[0].Segments, 3)
}

func TestPlan_RemovedBecomesDeletion(t *testing.T) {
	previous := map[string]domain.IdentityRecord{
		"article/1": record("one"),
		"article/2": record("two"),
	}
	docs := []domain.Document{doc("article/2", "two")}

	_, _, plan := classifyAndPlan(t, newTestStore(t), docs, previous, 100)

	assert.Empty(t, plan.Upserts)
	assert.Equal(t, []string{"article/1"}, plan.Deletions)
}

func TestPlan_DeletionsSorted(t *testing.T) {
	previous := map[string]domain.IdentityRecord{
		"article/3": record("c"),
		"article/1": record("a"),
		"article/2": record("b"),
	}

	_, _, plan := classifyAndPlan(t, newTestStore(t), nil, previous, 100)

	assert.Equal(t, []string{"article/1", "article/2", "article/3"}, plan.Deletions)
}

func TestPlan_PropagatesSegmenterError(t *testing.T) {
	docs := []domain.Document{doc("article/1", "text")}

	d, err := delta.Classify(docs, map[string]domain.IdentityRecord{})
	require.NoError(t, err)

	planner := delta.NewPlanner(newTestStore(t), map[string]domain.IdentityRecord{}, nil)
	_, err = planner.Plan(d, docs, 0)

	var configErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}

func TestCommit_WritesNewRecords(t *testing.T) {
	store := newTestStore(t)
	docs := []domain.Document{doc("article/1", "a\n\nb")}

	planner, d, plan := classifyAndPlan(t, store, docs, map[string]domain.IdentityRecord{}, 1)

	err := planner.Commit(context.Background(), plan, d.Fingerprints)
	require.NoError(t, err)

	records, err := store.Load(context.Background())
	require.NoError(t, err)

	require.Contains(t, records, "article/1")
	assert.Equal(t, delta.Fingerprint("a\n\nb"), records["article/1"].Fingerprint)
	assert.Equal(t, []string{
		delta.SegmentID("article/1", 0),
		delta.SegmentID("article/1", 1),
	}, records["article/1"].SegmentIDs)
}

func TestCommit_CarriesUnchangedForward(t *testing.T) {
	store := newTestStore(t)
	previous := map[string]domain.IdentityRecord{
		"article/1": record("stable", delta.SegmentID("article/1", 0)),
	}
	docs := []domain.Document{
		doc("article/1", "stable"),
		doc("article/2", "fresh"),
	}

	planner, d, plan := classifyAndPlan(t, store, docs, previous, 100)

	err := planner.Commit(context.Background(), plan, d.Fingerprints)
	require.NoError(t, err)

	records, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Len(t, records, 2)
	assert.Equal(t, previous["article/1"], records["article/1"])
}

func TestCommit_DropsDeletedRecords(t *testing.T) {
	store := newTestStore(t)
	previous := map[string]domain.IdentityRecord{
		"article/1": record("one"),
		"article/2": record("two"),
	}
	docs := []domain.Document{doc("article/2", "two")}

	planner, d, plan := classifyAndPlan(t, store, docs, previous, 100)

	err := planner.Commit(context.Background(), plan, d.Fingerprints)
	require.NoError(t, err)

	records, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Len(t, records, 1)
	assert.NotContains(t, records, "article/1")
}

func TestCommit_MissingFingerprint(t *testing.T) {
	store := newTestStore(t)
	docs := []domain.Document{doc("article/1", "text")}

	planner, _, plan := classifyAndPlan(t, store, docs, map[string]domain.IdentityRecord{}, 100)

	err := planner.Commit(context.Background(), plan, map[string]domain.Fingerprint{})

	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestPlanWithoutCommit_LeavesSnapshotUntouched(t *testing.T) {
	store := newTestStore(t)
	docs := []domain.Document{doc("article/1", "text")}

	// Plan but never confirm: a rerun must derive the same plan.
	_, _, first := classifyAndPlan(t, store, docs, store.LoadOrEmpty(context.Background()), 100)
	_, _, second := classifyAndPlan(t, store, docs, store.LoadOrEmpty(context.Background()), 100)

	assert.Equal(t, first, second)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestPlanCommitCycle_SecondRunIsNoop(t *testing.T) {
	store := newTestStore(t)
	docs := []domain.Document{
		doc("article/1", "a\n\nb"),
		doc("article/2", "c"),
	}

	planner, d, plan := classifyAndPlan(t, store, docs, map[string]domain.IdentityRecord{}, 100)
	require.NoError(t, planner.Commit(context.Background(), plan, d.Fingerprints))

	previous, err := store.Load(context.Background())
	require.NoError(t, err)

	_, _, rerunPlan := classifyAndPlan(t, store, docs, previous, 100)
	assert.True(t, rerunPlan.Empty())
}
