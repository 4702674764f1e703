package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kbforge/kbsync/internal/cache"
	"github.com/kbforge/kbsync/internal/config"
	"github.com/kbforge/kbsync/internal/converter"
	"github.com/kbforge/kbsync/internal/delta"
	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/fetcher"
	"github.com/kbforge/kbsync/internal/indexer"
	"github.com/kbforge/kbsync/internal/output"
	"github.com/kbforge/kbsync/internal/state"
	"github.com/kbforge/kbsync/internal/utils"
)

// Orchestrator wires one synchronization run: fetch the corpus, convert
// it, classify against the identity snapshot, build and apply the sync
// plan, then commit the snapshot. All remote work happens before the
// commit, so an interrupted run leaves the snapshot at the previous
// run's state and the next run re-derives the same plan.
type Orchestrator struct {
	cfg       *config.Config
	logger    *utils.Logger
	source    domain.Source
	converter domain.Converter
	indexer   domain.Indexer
	store     *state.Store
	archive   *output.Writer
	pageCache domain.Cache
}

// Options contains options for creating an orchestrator. Source,
// Converter and Indexer may be injected for testing; nil fields are
// built from the config.
type Options struct {
	Config    *config.Config
	Logger    *utils.Logger
	Source    domain.Source
	Converter domain.Converter
	Indexer   domain.Indexer
	Progress  bool
}

// RunOptions contains per-run flags.
type RunOptions struct {
	// DryRun plans but neither applies nor commits.
	DryRun bool
	// ConfirmFullDeletion allows a plan that removes every known
	// document. Without it such a run aborts before touching the index,
	// since an empty fetch result usually means the source broke.
	ConfirmFullDeletion bool
}

// RunSummary reports what one run did.
type RunSummary struct {
	Articles  int
	Added     int
	Updated   int
	Unchanged int
	Removed   int
	Segments  int
	DryRun    bool
	Duration  time.Duration
}

// NewOrchestrator creates an orchestrator from config, building any
// dependency not supplied in opts.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger(utils.LoggerOptions{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	}

	o := &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		source:    opts.Source,
		converter: opts.Converter,
		indexer:   opts.Indexer,
		store: state.NewStore(state.StoreOptions{
			BaseDir: utils.ExpandPath(cfg.State.Directory),
			Logger:  logger,
		}),
	}

	if cfg.Archive.Enabled {
		o.archive = output.NewWriter(output.WriterOptions{
			BaseDir: utils.ExpandPath(cfg.Archive.Directory),
			Logger:  logger,
		})
	}

	if o.source == nil {
		if cfg.Cache.Enabled {
			pageCache, err := cache.New(cache.Options{
				Directory: utils.ExpandPath(cfg.Cache.Directory),
				TTL:       cfg.Cache.TTL,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to open page cache: %w", err)
			}
			o.pageCache = pageCache
		}

		source, err := fetcher.NewClient(fetcher.Options{
			APIURL:   cfg.Source.APIURL,
			PageSize: cfg.Source.PageSize,
			Timeout:  cfg.Source.Timeout,
			Cache:    o.pageCache,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		o.source = source
	}

	if o.converter == nil {
		o.converter = converter.NewPipeline()
	}

	if o.indexer == nil {
		client, err := indexer.NewClient(indexer.Options{
			BaseURL:       cfg.Index.BaseURL,
			APIKey:        cfg.Index.APIKey,
			VectorStoreID: cfg.Index.VectorStoreID,
			Timeout:       cfg.Index.Timeout,
			Logger:        logger,
			Progress:      opts.Progress,
		})
		if err != nil {
			return nil, err
		}
		o.indexer = client
	}

	return o, nil
}

// Run executes one synchronization pass.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	start := time.Now()

	o.logger.Info().
		Str("source", o.cfg.Source.APIURL).
		Int("max_segment_chars", o.cfg.Segment.MaxChars).
		Bool("dry_run", opts.DryRun).
		Msg("Starting sync run")

	articles, err := o.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	docs := o.convertAll(articles)

	previous := o.store.LoadOrEmpty(ctx)

	d, err := delta.Classify(docs, previous)
	if err != nil {
		return nil, err
	}

	planner := delta.NewPlanner(o.store, previous, o.logger)
	plan, err := planner.Plan(d, docs, o.cfg.Segment.MaxChars)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		Articles:  len(articles),
		Added:     d.Count(domain.Added),
		Updated:   d.Count(domain.Updated),
		Unchanged: d.Count(domain.Unchanged),
		Removed:   d.Count(domain.Removed),
		Segments:  plan.SegmentCount(),
		DryRun:    opts.DryRun,
	}

	o.logger.Info().
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("removed", summary.Removed).
		Msg("Corpus classified")

	if len(previous) > 0 && summary.Removed == len(previous) && summary.Added == 0 && summary.Updated == 0 && summary.Unchanged == 0 {
		if !opts.ConfirmFullDeletion {
			return nil, fmt.Errorf("%w: %d documents; re-run with full deletion confirmed if intended",
				domain.ErrFullDeletion, summary.Removed)
		}
		o.logger.Warn().Int("removed", summary.Removed).Msg("Full corpus deletion confirmed")
	}

	if plan.Empty() {
		o.logger.Info().Msg("Nothing to sync")
		summary.Duration = time.Since(start)
		return summary, nil
	}

	if opts.DryRun {
		o.logger.Info().
			Int("upserts", len(plan.Upserts)).
			Int("segments", plan.SegmentCount()).
			Int("deletions", len(plan.Deletions)).
			Msg("Dry run: plan not applied")
		summary.Duration = time.Since(start)
		return summary, nil
	}

	if err := o.indexer.Apply(ctx, plan); err != nil {
		return nil, fmt.Errorf("index apply failed: %w", err)
	}

	if err := planner.Commit(ctx, plan, d.Fingerprints); err != nil {
		return nil, fmt.Errorf("snapshot commit failed: %w", err)
	}

	o.archiveDocs(docs)

	summary.Duration = time.Since(start)
	o.logger.Info().
		Int("segments", summary.Segments).
		Dur("duration", summary.Duration).
		Msg("Sync run completed")

	return summary, nil
}

// convertAll converts articles to documents, skipping articles whose
// body cannot be converted rather than failing the run.
func (o *Orchestrator) convertAll(articles []domain.Article) []domain.Document {
	docs := make([]domain.Document, 0, len(articles))
	for _, a := range articles {
		doc, err := o.converter.Convert(a)
		if err != nil {
			o.logger.Warn().
				Err(err).
				Int64("article_id", a.ID).
				Str("title", a.Title).
				Msg("Skipping unconvertible article")
			continue
		}
		docs = append(docs, *doc)
	}
	return docs
}

func (o *Orchestrator) archiveDocs(docs []domain.Document) {
	if o.archive == nil {
		return
	}
	if o.cfg.Archive.Cleanup {
		if err := o.archive.Clean(); err != nil {
			o.logger.Warn().Err(err).Msg("Archive cleanup failed")
		}
	}
	if err := o.archive.WriteAll(docs); err != nil {
		o.logger.Warn().Err(err).Msg("Archive write failed")
	}
}

// Close releases resources held by the orchestrator.
func (o *Orchestrator) Close() error {
	var firstErr error
	if o.indexer != nil {
		if err := o.indexer.Close(); err != nil {
			firstErr = err
		}
	}
	if o.pageCache != nil {
		if err := o.pageCache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
