package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yabodle/sitescan/internal/geocode"
	"github.com/yabodle/sitescan/internal/models"
	"github.com/yabodle/sitescan/internal/scoring"
)

// RunStore persists scan run history.
type RunStore interface {
	InsertRun(ctx context.Context, run *models.ScanRun) error
	FinalizeRun(ctx context.Context, run *models.ScanRun) error
	ListRuns(ctx context.Context, limit, offset int) ([]models.ScanRun, error)
}

// Notifier receives projects whose score crossed the alert threshold during a
// run. Implementations must not block the scan for long.
type Notifier interface {
	ProcessMatches(ctx context.Context, projects []*models.Project)
}

// Geocoder resolves a free-text location to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, location string) (geocode.Point, bool)
}

// StaleMarker deactivates projects not seen since the cutoff.
type StaleMarker interface {
	MarkStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Options tunes orchestrator behavior.
type Options struct {
	SourceTimeout time.Duration // per-adapter fetch budget, default 2m
	StaleAfter    time.Duration // inactivity window before deactivation, default 30d
}

// Orchestrator runs scans: it fans fetches out across adapters, reconciles
// the results into the store, and appends a run record. At most one scan
// runs per process; overlapping triggers are rejected.
type Orchestrator struct {
	registry   *Registry
	adapters   []Adapter
	reconciler *Reconciler
	runs       RunStore
	stale      StaleMarker
	profile    scoring.Profile
	geocoder   Geocoder
	notifier   Notifier
	log        *zap.Logger
	opts       Options

	mu          sync.Mutex
	running     bool
	lastSuccess *time.Time
}

func NewOrchestrator(
	registry *Registry,
	adapters []Adapter,
	projects ProjectStore,
	runs RunStore,
	stale StaleMarker,
	profile scoring.Profile,
	geocoder Geocoder,
	notifier Notifier,
	log *zap.Logger,
	opts Options,
) *Orchestrator {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 2 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * 24 * time.Hour
	}
	return &Orchestrator{
		registry:   registry,
		adapters:   adapters,
		reconciler: NewReconciler(projects),
		runs:       runs,
		stale:      stale,
		profile:    profile,
		geocoder:   geocoder,
		notifier:   notifier,
		log:        log,
		opts:       opts,
	}
}

// Sources lists every configured source, enabled or not.
func (o *Orchestrator) Sources() []SourceDescriptor {
	descs := make([]SourceDescriptor, 0, len(o.registry.Sources))
	for _, cfg := range o.registry.Sources {
		descs = append(descs, cfg.Descriptor())
	}
	return descs
}

// History returns past runs, newest first.
func (o *Orchestrator) History(ctx context.Context, limit, offset int) ([]models.ScanRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return o.runs.ListRuns(ctx, limit, offset)
}

// Running reports whether a scan is currently in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Trigger runs one scan synchronously and returns the finished run. An empty
// sources list scans every adapter; otherwise only the named source ids run.
// It returns ErrAlreadyRunning if a scan is in progress.
func (o *Orchestrator) Trigger(ctx context.Context, sources []string) (*models.ScanRun, error) {
	adapters, err := o.selectAdapters(sources)
	if err != nil {
		return nil, err
	}
	full := len(sources) == 0

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.running = true
	since := o.lastSuccess
	o.mu.Unlock()

	setRunInProgress(true)
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		setRunInProgress(false)
	}()

	run := &models.ScanRun{
		ID:        uuid.New(),
		Status:    models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.runs.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	o.log.Info("scan started", zap.String("run_id", run.ID.String()), zap.Int("sources", len(adapters)))

	fetches := o.fetchAll(ctx, adapters, since)
	run.Sources = o.reconcileAll(ctx, fetches)

	run.Status = runStatus(run.Sources)
	now := time.Now().UTC()
	run.CompletedAt = &now

	// A filtered run never advances the incremental window or deactivates
	// rows, since the unselected sources were not fetched.
	if run.Status == models.RunCompleted && full {
		o.mu.Lock()
		started := run.StartedAt
		o.lastSuccess = &started
		o.mu.Unlock()

		if o.stale != nil {
			if n, err := o.stale.MarkStale(ctx, now.Add(-o.opts.StaleAfter)); err != nil {
				o.log.Warn("mark stale failed", zap.Error(err))
			} else if n > 0 {
				o.log.Info("deactivated stale projects", zap.Int("count", n))
			}
		}
	}

	if err := o.runs.FinalizeRun(ctx, run); err != nil {
		o.log.Error("finalize run failed", zap.Error(err))
	}
	observeRunStatus(run.Status)

	totals := run.Totals()
	o.log.Info("scan finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", run.Status),
		zap.Int("fetched", totals.Fetched),
		zap.Int("new", totals.New),
		zap.Int("updated", totals.Updated),
		zap.Int("unchanged", totals.Unchanged),
		zap.Int("skipped", totals.Skipped))

	return run, nil
}

// selectAdapters resolves a source id filter against the configured adapters.
// Unknown ids are an error so a typo fails loudly instead of scanning nothing.
func (o *Orchestrator) selectAdapters(sources []string) ([]Adapter, error) {
	if len(sources) == 0 {
		return o.adapters, nil
	}
	byID := make(map[string]Adapter, len(o.adapters))
	for _, a := range o.adapters {
		byID[a.Descriptor().ID] = a
	}
	selected := make([]Adapter, 0, len(sources))
	for _, id := range sources {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
		selected = append(selected, a)
	}
	return selected, nil
}

type sourceFetch struct {
	desc  SourceDescriptor
	batch *Batch
	err   error
}

// fetchAll fans out one goroutine per adapter, each with its own timeout.
// A source failure never affects its siblings.
func (o *Orchestrator) fetchAll(ctx context.Context, adapters []Adapter, since *time.Time) []sourceFetch {
	results := make([]sourceFetch, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter Adapter) {
			defer wg.Done()
			desc := adapter.Descriptor()

			fetchCtx, cancel := context.WithTimeout(ctx, o.opts.SourceTimeout)
			defer cancel()

			start := time.Now()
			batch, err := adapter.Fetch(fetchCtx, since)
			observeSourceDuration(desc.ID, time.Since(start))

			results[i] = sourceFetch{desc: desc, batch: batch, err: err}
		}(i, adapter)
	}
	wg.Wait()
	return results
}

// reconcileAll persists fetched batches sequentially. Within a batch,
// duplicate external ids are applied in order, so the last record wins.
func (o *Orchestrator) reconcileAll(ctx context.Context, fetches []sourceFetch) []models.SourceResult {
	var matched []*models.Project
	sources := make([]models.SourceResult, 0, len(fetches))

	for _, f := range fetches {
		res := models.SourceResult{SourceID: f.desc.ID}

		if f.err != nil {
			res.Error = f.err.Error()
			kind := KindNetwork
			var aerr *AdapterError
			if errors.As(f.err, &aerr) {
				kind = aerr.Kind
			}
			observeSourceFailure(f.desc.ID, kind)
			o.log.Error("source failed", zap.String("source", f.desc.ID), zap.Error(f.err))
			sources = append(sources, res)
			continue
		}

		res.Fetched = len(f.batch.Opportunities)
		res.Skipped = f.batch.Skipped

		for _, opp := range f.batch.Opportunities {
			outcome, project, err := o.processOne(ctx, opp)
			if err != nil {
				res.Skipped++
				o.log.Warn("record reconcile failed",
					zap.String("source", opp.SourceID),
					zap.String("external_id", opp.ExternalID),
					zap.Error(err))
				continue
			}

			switch outcome {
			case models.StatusNew:
				res.New++
			case models.StatusUpdated:
				res.Updated++
			case models.StatusUnchanged:
				res.Unchanged++
			}
			observeRecord(opp.SourceID, outcome)

			// Every scored new/updated project goes to the notifier;
			// thresholds are per user and may sit below the profile default.
			if outcome != models.StatusUnchanged && project.MatchScore != nil {
				matched = append(matched, project)
			}
		}

		sources = append(sources, res)
	}

	if o.notifier != nil && len(matched) > 0 {
		o.notifier.ProcessMatches(ctx, matched)
	}

	return sources
}

// processOne classifies, geocodes, scores, and reconciles a single record.
func (o *Orchestrator) processOne(ctx context.Context, opp Opportunity) (string, *models.Project, error) {
	category := scoring.Classify(opp.Title, opp.Description)

	if opp.Latitude == nil && opp.Location != "" && o.geocoder != nil {
		if pt, ok := o.geocoder.Resolve(ctx, opp.Location); ok {
			lat, lng := pt.Lat, pt.Lng
			opp.Latitude = &lat
			opp.Longitude = &lng
		}
	}

	score := scoring.Score(scoring.Input{
		Title:       opp.Title,
		Description: opp.Description,
		TradeTags:   opp.TradeTags,
		Latitude:    opp.Latitude,
		Longitude:   opp.Longitude,
	}, o.profile)

	return o.reconciler.Reconcile(ctx, opp, &score, category)
}

// runStatus derives the terminal status from per-source outcomes.
func runStatus(sources []models.SourceResult) string {
	if len(sources) == 0 {
		return models.RunCompleted
	}
	failed := 0
	for _, s := range sources {
		if s.Error != "" {
			failed++
		}
	}
	switch {
	case failed == 0:
		return models.RunCompleted
	case failed == len(sources):
		return models.RunFailed
	default:
		return models.RunPartiallyFailed
	}
}
