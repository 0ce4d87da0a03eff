// Package pipeline chains discovery, analysis and catalog sync into recorded
// runs, either on demand or on a schedule.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/analysis"
	"github.com/david/product-scout/internal/catalog"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/knowledge"
	"github.com/david/product-scout/internal/metrics"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
)

// Store is everything a run touches in storage.
type Store interface {
	ingest.ListingStore
	analysis.Store
	catalog.Store
	CreateRun(ctx context.Context, trigger string, stage models.Stage) (models.PipelineRun, error)
	FinishRun(ctx context.Context, run models.PipelineRun) error
}

type SettingsSource interface {
	Load(ctx context.Context) settings.Settings
}

// PlatformFactory builds the catalog platform for the current settings.
type PlatformFactory func(cfg settings.IntegrationSettings) (catalog.Platform, error)

// RunReport holds the stage reports of one run. Stages that did not run are nil.
type RunReport struct {
	Run       models.PipelineRun      `json:"run"`
	Discovery *ingest.DiscoveryReport `json:"discovery,omitempty"`
	Analysis  *analysis.Report        `json:"analysis,omitempty"`
	Sync      *catalog.SyncReport     `json:"sync,omitempty"`
}

type Runner struct {
	Store    Store
	Settings SettingsSource
	Searcher ingest.Searcher
	// Supplier joins discovery when integrations.aliexpress enables it.
	Supplier ingest.Searcher
	Enricher ingest.Enricher
	Platform PlatformFactory
	KB       *knowledge.Base
	Now      func() time.Time

	platformMu  sync.Mutex
	platformCfg *settings.IntegrationSettings
	platform    catalog.Platform
}

func NewRunner(store Store, src SettingsSource, searcher ingest.Searcher, platform PlatformFactory) *Runner {
	return &Runner{
		Store:    store,
		Settings: src,
		Searcher: searcher,
		Enricher: ingest.NewPageEnricher(),
		Platform: platform,
		KB:       knowledge.Default(),
		Now:      time.Now,
	}
}

func (r *Runner) Run(ctx context.Context, trigger string) (RunReport, error) {
	return r.RunStage(ctx, trigger, models.StageAll)
}

// RunStage executes one stage, or all of them in order, and records the run.
// Counts live in the returned report only, so overlapping runs do not share
// state. The returned error is the first stage failure; item failures are
// counted instead.
func (r *Runner) RunStage(ctx context.Context, trigger string, stage models.Stage) (report RunReport, err error) {
	if !stage.Valid() {
		return report, fmt.Errorf("unknown stage %q", stage)
	}
	cfg := r.loadSettings(ctx)

	run, err := r.Store.CreateRun(ctx, trigger, stage)
	if err != nil {
		return report, fmt.Errorf("failed to record run start: %w", err)
	}
	report.Run = run
	metrics.RunsInFlight.Inc()
	fields := log.Fields{"run_id": run.ID, "stage": stage, "trigger": trigger}
	log.WithFields(fields).Info("pipeline: run started")

	defer func() {
		metrics.RunsInFlight.Dec()
		finished := r.Now().UTC()
		report.Run.FinishedAt = &finished
		report.Run.Status = runStatus(report.Run.Counts, err)
		if err != nil {
			report.Run.Error = err.Error()
		}
		if ferr := r.Store.FinishRun(context.WithoutCancel(ctx), report.Run); ferr != nil {
			log.WithFields(fields).WithError(ferr).Error("pipeline: failed to record run result")
		}
		log.WithFields(fields).WithFields(log.Fields{
			"status":   report.Run.Status,
			"duration": finished.Sub(report.Run.StartedAt).Round(time.Millisecond).String(),
		}).Info("pipeline: run finished")
	}()

	counts := &report.Run.Counts
	if stage == models.StageAll || stage == models.StageDiscover {
		d := timed(models.StageDiscover, func() ingest.DiscoveryReport {
			return ingest.NewDiscoverer(r.searcherFor(cfg.Integrations), r.Store, r.Enricher).Discover(ctx, cfg)
		})
		report.Discovery = &d
		counts.Discovered = d.Discovered
		counts.Persisted = d.Persisted
	}

	if stage == models.StageAll || stage == models.StageAnalyze {
		var aerr error
		a := timed(models.StageAnalyze, func() analysis.Report {
			var rep analysis.Report
			rep, aerr = analysis.NewAnalyzer(r.Store, r.KB, r.Now).AnalyzePending(ctx, cfg.Analyzer)
			return rep
		})
		if aerr != nil {
			return report, aerr
		}
		report.Analysis = &a
		counts.Analyzed = a.Analyzed
		counts.AnalysisFailed = a.Failed
	}

	if stage == models.StageAll || stage == models.StageSync {
		platform, perr := r.platformFor(cfg.Integrations)
		if perr != nil {
			log.WithFields(fields).WithError(perr).Info("pipeline: catalog sync skipped")
		}
		var serr error
		s := timed(models.StageSync, func() catalog.SyncReport {
			var rep catalog.SyncReport
			syncer := catalog.NewSyncer(r.Store, platform)
			if r.Now != nil {
				syncer.Now = r.Now
			}
			rep, serr = syncer.Sync(ctx, cfg)
			return rep
		})
		if serr != nil {
			return report, serr
		}
		report.Sync = &s
		counts.Indexed = s.Indexed
		counts.Deindexed = s.Deindexed
		counts.SyncFailed = s.Failed
	}

	return report, nil
}

func (r *Runner) searcherFor(cfg settings.IntegrationSettings) ingest.Searcher {
	if r.Supplier == nil || !cfg.SupplierDiscovery() {
		return r.Searcher
	}
	if r.Searcher == nil {
		return r.Supplier
	}
	return ingest.MultiSearcher{r.Searcher, r.Supplier}
}

func (r *Runner) loadSettings(ctx context.Context) settings.Settings {
	if r.Settings == nil {
		return settings.Default()
	}
	return r.Settings.Load(ctx)
}

func timed[T any](stage models.Stage, fn func() T) T {
	start := time.Now()
	out := fn()
	metrics.StageDurationSeconds.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return out
}

// platformFor reuses the platform while the integration settings are
// unchanged, so the simulated catalog keeps its id sequence across runs.
func (r *Runner) platformFor(cfg settings.IntegrationSettings) (catalog.Platform, error) {
	if r.Platform == nil {
		return nil, catalog.ErrPlatformNotConfigured
	}
	r.platformMu.Lock()
	defer r.platformMu.Unlock()
	if r.platformCfg != nil && *r.platformCfg == cfg && r.platform != nil {
		return r.platform, nil
	}
	p, err := r.Platform(cfg)
	if err != nil {
		return nil, err
	}
	r.platform, r.platformCfg = p, &cfg
	return p, nil
}

func runStatus(c models.RunCounts, err error) models.RunStatus {
	switch {
	case err != nil:
		return models.RunFailed
	case c.Failures() > 0:
		return models.RunPartial
	default:
		return models.RunCompleted
	}
}
