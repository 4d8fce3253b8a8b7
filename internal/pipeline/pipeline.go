// Package pipeline runs one survey: list regions, fetch every region's chart
// on a worker pool, merge the results in region order, rank them, diff
// against the previous snapshot and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clitic/music/internal/aggregator"
	"github.com/clitic/music/internal/config"
	"github.com/clitic/music/internal/notify"
	"github.com/clitic/music/internal/snapshot"
	"github.com/clitic/music/internal/youtube"
)

// Stage names reported in StageError.
const (
	StageLock      = "lock"
	StageRegions   = "regions"
	StageFetch     = "fetch"
	StageAggregate = "aggregate"
	StageSnapshot  = "snapshot"
	StageWrite     = "write"
)

// ErrAllRegionsRejected is returned when the API rejected every region.
var ErrAllRegionsRejected = errors.New("every region was rejected")

// StageError is a fatal run failure and the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result summarises a finished run.
type Result struct {
	RunID           string                   `json:"run_id"`
	Mode            aggregator.Mode          `json:"mode"`
	DryRun          bool                     `json:"dry_run"`
	RegionsSurveyed int                      `json:"regions_surveyed"`
	RegionsSkipped  []string                 `json:"regions_skipped"`
	Stats           aggregator.Stats         `json:"stats"`
	Catalog         []aggregator.VideoRecord `json:"catalog"`
	// New is nil when there was no previous snapshot to diff against.
	New        []aggregator.VideoRecord `json:"new"`
	Notified   int                      `json:"notified"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}

// DiffComputed reports whether a previous snapshot existed.
func (r *Result) DiffComputed() bool {
	return r.New != nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver receives progress events.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.obs = o
		}
	}
}

// WithPublisher announces new videos after a successful write.
func WithPublisher(pub notify.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithDryRun computes everything but writes, locks and publishes nothing.
func WithDryRun(dry bool) Option {
	return func(p *Pipeline) {
		p.dryRun = dry
	}
}

// Pipeline runs surveys. A Pipeline may be reused for several runs but not
// concurrently.
type Pipeline struct {
	cfg       *config.Config
	regions   RegionSource
	trending  TrendingSource
	store     snapshot.Store
	publisher notify.Publisher
	logger    *slog.Logger
	obs       Observer
	dryRun    bool
	newRunID  func() string
	now       func() time.Time
}

// New creates a Pipeline. cfg must already be validated.
func New(cfg *config.Config, regions RegionSource, trending TrendingSource, store snapshot.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		regions:   regions,
		trending:  trending,
		store:     store,
		publisher: notify.Nop{},
		logger:    slog.Default(),
		obs:       nopObserver{},
		newRunID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one survey. On a fatal error nothing is written and the
// error is a *StageError.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     p.newRunID(),
		Mode:      p.cfg.Mode,
		DryRun:    p.dryRun,
		StartedAt: p.now().UTC(),
	}
	log := p.logger.With("run_id", res.RunID)
	log.Info("run started", "mode", res.Mode, "concurrency", p.cfg.Concurrency, "dry_run", p.dryRun)

	if locker, ok := p.store.(snapshot.Locker); ok && !p.dryRun {
		if err := locker.Lock(ctx); err != nil {
			return nil, &StageError{Stage: StageLock, Err: err}
		}
		defer func() {
			if err := locker.Unlock(); err != nil {
				log.Warn("release snapshot lock", "err", err)
			}
		}()
	}

	started := time.Now()
	regions, err := p.regions.Regions(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageRegions, Err: err}
	}
	p.obs.OnStart(res.RunID, len(regions))
	p.obs.OnPhaseDone(StageRegions, map[string]any{"regions": len(regions)}, time.Since(started))
	log.Debug("regions listed", "count", len(regions))

	started = time.Now()
	slots, err := p.fetchAll(ctx, regions)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}
	p.obs.OnPhaseDone(StageFetch, map[string]any{"workers": p.workers(len(regions))}, time.Since(started))
	if err := allRejected(slots); err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	started = time.Now()
	agg := aggregator.New(p.cfg.Mode)
	for i, slot := range slots {
		if slot.err != nil {
			log.Warn("region skipped", "region", regions[i], "err", slot.err)
			_ = agg.Skip(regions[i], slot.err)
			res.RegionsSkipped = append(res.RegionsSkipped, regions[i])
			continue
		}
		_ = agg.Ingest(regions[i], slot.entries)
	}
	catalog, err := agg.Finalize()
	if err != nil {
		return nil, &StageError{Stage: StageAggregate, Err: err}
	}
	res.Stats = agg.Stats()
	res.RegionsSurveyed = agg.Surveyed()

	policy := aggregator.Policy{Mode: p.cfg.Mode, MinRegions: p.cfg.MinRegions}
	res.Catalog = policy.Apply(catalog, res.RegionsSurveyed)
	p.obs.OnPhaseDone(StageAggregate, map[string]any{
		"distinct": catalog.Len(),
		"kept":     len(res.Catalog),
		"skipped":  res.Stats.RegionsSkipped,
	}, time.Since(started))
	if res.Stats.Malformed > 0 {
		log.Warn("entries without id dropped", "count", res.Stats.Malformed)
	}

	started = time.Now()
	previous, err := p.loadPrevious(ctx, log)
	if err != nil {
		return nil, &StageError{Stage: StageSnapshot, Err: err}
	}
	if previous != nil {
		res.New = aggregator.ComputeNew(previous, res.Catalog)
	}
	p.obs.OnPhaseDone(StageSnapshot, map[string]any{
		"previous": previous.Len(),
		"new":      len(res.New),
	}, time.Since(started))

	if !p.dryRun {
		started = time.Now()
		if err := p.store.Write(ctx, snapshot.NameCatalog, res.Catalog); err != nil {
			return nil, &StageError{Stage: StageWrite, Err: err}
		}
		if res.DiffComputed() {
			if err := p.store.Write(ctx, snapshot.NameNew, res.New); err != nil {
				return nil, &StageError{Stage: StageWrite, Err: err}
			}
		} else if err := p.store.Delete(ctx, snapshot.NameNew); err != nil {
			// A diff left by an earlier run no longer describes this catalog.
			return nil, &StageError{Stage: StageWrite, Err: err}
		}
		p.obs.OnPhaseDone(StageWrite, map[string]any{"videos": len(res.Catalog)}, time.Since(started))

		if len(res.New) > 0 {
			if err := p.publisher.PublishNew(ctx, res.New); err != nil {
				log.Warn("notify new videos", "err", err)
			} else {
				res.Notified = len(res.New)
			}
		}
	}

	res.FinishedAt = p.now().UTC()
	log.Info("run finished",
		"regions", res.RegionsSurveyed,
		"skipped", len(res.RegionsSkipped),
		"entries", res.Stats.Entries,
		"duplicates", res.Stats.Duplicates,
		"videos", len(res.Catalog),
		"new", len(res.New),
		"diff", res.DiffComputed(),
	)
	return res, nil
}

// loadPrevious reads the main snapshot. It returns nil when none exists, or
// when it is corrupt and IgnoreCorrupt is set.
func (p *Pipeline) loadPrevious(ctx context.Context, log *slog.Logger) (*aggregator.Catalog, error) {
	ok, err := p.store.Exists(ctx, snapshot.NameCatalog)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info("no previous snapshot, skipping diff")
		return nil, nil
	}

	records, err := p.store.Read(ctx, snapshot.NameCatalog)
	if err != nil {
		if errors.Is(err, snapshot.ErrCorrupt) && p.cfg.Snapshot.IgnoreCorrupt {
			log.Warn("previous snapshot corrupt, treating as absent", "err", err)
			return nil, nil
		}
		return nil, err
	}
	return aggregator.CatalogFrom(records), nil
}

// allRejected returns ErrAllRegionsRejected when no region produced a chart.
func allRejected(slots []fetchResult) error {
	if len(slots) == 0 {
		return nil
	}
	for _, slot := range slots {
		if slot.err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w (last: %v)", ErrAllRegionsRejected, slots[len(slots)-1].err)
}

type fetchResult struct {
	idx     int
	entries []aggregator.Entry
	err     error
	dur     time.Duration
}

func (p *Pipeline) workers(regions int) int {
	workers := p.cfg.Concurrency
	if workers > regions {
		workers = regions
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// fetchAll fetches every region on a bounded worker pool. Results land in
// the slot of their region so the caller can merge them in region order.
// The first error other than a rejected region cancels the remaining
// fetches and is returned.
func (p *Pipeline) fetchAll(ctx context.Context, regions []string) ([]fetchResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan int)
	results := make(chan fetchResult, len(regions))

	var wg sync.WaitGroup
	for i := 0; i < p.workers(len(regions)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				started := time.Now()
				entries, err := p.trending.Trending(ctx, regions[idx])
				results <- fetchResult{idx: idx, entries: entries, err: err, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for idx := range regions {
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	slots := make([]fetchResult, len(regions))
	var fatal error
	done := 0
	for r := range results {
		done++
		slots[r.idx] = r
		if r.err != nil && !errors.Is(r.err, youtube.ErrRegionRejected) && fatal == nil {
			fatal = fmt.Errorf("region %s: %w", regions[r.idx], r.err)
			cancel(fatal)
		}
		p.obs.OnRegionDone(done, len(regions), regions[r.idx], len(r.entries), r.err, r.dur)
	}

	if fatal != nil {
		return nil, fatal
	}
	if done < len(regions) {
		return nil, context.Cause(ctx)
	}
	return slots, nil
}
