package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/utils"
)

const StateFileName = "kbsync-state.json"

// SnapshotVersion is the schema version for snapshot file migration
const SnapshotVersion = 1

// snapshot is the on-disk form of the identity store.
type snapshot struct {
	Version  int                              `json:"version"`
	SyncedAt time.Time                        `json:"synced_at"`
	Records  map[string]domain.IdentityRecord `json:"records"`
}

// Store persists the identity → record snapshot between runs. Reads
// happen at the top of a run; the only writer is the planner's commit
// step, which replaces the snapshot atomically.
type Store struct {
	baseDir string
	logger  *utils.Logger
}

// StoreOptions contains options for creating a Store
type StoreOptions struct {
	BaseDir string
	Logger  *utils.Logger
}

// NewStore creates a store rooted at the given directory.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}
	return &Store{
		baseDir: opts.BaseDir,
		logger:  logger.WithComponent("state"),
	}
}

// Load reads the persisted snapshot. It returns ErrStateNotFound when no
// snapshot exists, ErrStateCorrupted when the file cannot be read or
// parsed, and ErrVersionMismatch on an incompatible schema version.
func (s *Store) Load(ctx context.Context) (map[string]domain.IdentityRecord, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, domain.ErrStateCorrupted
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, domain.ErrStateCorrupted
	}

	if snap.Version != SnapshotVersion {
		return nil, domain.ErrVersionMismatch
	}

	if snap.Records == nil {
		snap.Records = make(map[string]domain.IdentityRecord)
	}
	return snap.Records, nil
}

// LoadOrEmpty is the degraded-mode read used at the top of a run: a
// missing snapshot yields an empty map silently, and a corrupt or
// incompatible one yields an empty map with a warning. Every document
// then classifies as Added, which re-indexes the corpus but never
// halts the pipeline.
func (s *Store) LoadOrEmpty(ctx context.Context) map[string]domain.IdentityRecord {
	records, err := s.Load(ctx)
	switch {
	case err == nil:
		return records
	case errors.Is(err, domain.ErrStateNotFound):
		return make(map[string]domain.IdentityRecord)
	default:
		s.logger.Warn().
			Err(err).
			Str("path", s.path()).
			Msg("Identity snapshot unusable, rebuilding from empty")
		return make(map[string]domain.IdentityRecord)
	}
}

// Commit atomically replaces the persisted snapshot: the new snapshot is
// written to a temporary file in the same directory and renamed over the
// old one, so a concurrent or subsequent Load never observes a partial
// write. On failure the prior snapshot remains intact.
func (s *Store) Commit(ctx context.Context, records map[string]domain.IdentityRecord) error {
	snap := snapshot{
		Version:  SnapshotVersion,
		SyncedAt: time.Now().UTC(),
		Records:  records,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	path := s.path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), StateFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	s.logger.Debug().
		Int("records", len(records)).
		Str("path", path).
		Msg("Snapshot saved")
	return nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path()
}

func (s *Store) path() string {
	return filepath.Join(s.baseDir, StateFileName)
}
