package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

// Fetcher runs one provider's live fetch path without touching the cache.
// The orchestrator implements this.
type Fetcher interface {
	FetchProvider(ctx context.Context, providerType config.ProviderType, query model.CostQuery) ([]model.Report, []model.CloudProviderError)
}

// WindowReplacer is the slice of the store the refresh job writes to.
type WindowReplacer interface {
	ReplaceWindow(ctx context.Context, wallet string, provider string, window Window, items []CostItem) error
}

// RefreshJob periodically rebuilds the snapshot for every enabled
// provider and both granularities. One provider's failure is logged and
// does not abort the rest of the run.
type RefreshJob struct {
	store   WindowReplacer
	fetcher Fetcher
	cfg     config.AutoloadConfig
	wallet  string
	types   []config.ProviderType

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRefreshJob builds the job for the given provider types. The mock
// provider is never refreshed: its output is randomized per call and
// would make the snapshot churn between runs.
func NewRefreshJob(store WindowReplacer, fetcher Fetcher, cfg config.AutoloadConfig, wallet string, types []config.ProviderType) *RefreshJob {
	kept := make([]config.ProviderType, 0, len(types))
	for _, t := range types {
		if t == config.ProviderMock {
			continue
		}
		kept = append(kept, t)
	}
	return &RefreshJob{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		wallet:  wallet,
		types:   kept,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start launches the timer loop. An immediate first run warms the
// snapshot before the first tick.
func (j *RefreshJob) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		j.runOnce(ctx)
		for {
			select {
			case <-ticker.C:
				j.runOnce(ctx)
			case <-j.trigger:
				j.runOnce(ctx)
			case <-j.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// TriggerRefresh requests an immediate run. A run already pending
// coalesces with this one.
func (j *RefreshJob) TriggerRefresh() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the timer loop and waits for an in-flight run to finish.
func (j *RefreshJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	j.wg.Wait()
}

// RunOnce refreshes every provider and granularity immediately, for the
// on-demand path and for tests.
func (j *RefreshJob) RunOnce(ctx context.Context) {
	j.runOnce(ctx)
}

func (j *RefreshJob) runOnce(ctx context.Context) {
	started := time.Now()
	// A full run touches every backend; give it room well past normal.
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	for _, providerType := range j.types {
		for _, granularity := range []model.Granularity{model.GranularityDaily, model.GranularityMonthly} {
			if err := j.refreshOne(runCtx, providerType, granularity); err != nil {
				log.WithError(err).WithFields(map[string]any{
					"provider":    providerType,
					"granularity": granularity,
				}).Error("snapshot refresh failed for provider")
			}
		}
	}
	log.WithField("duration", time.Since(started).String()).Info("snapshot refresh run finished")
}

func (j *RefreshJob) refreshOne(ctx context.Context, providerType config.ProviderType, granularity model.Granularity) error {
	now := time.Now().UTC()
	query := model.CostQuery{
		Granularity: granularity,
		StartTime:   lookbackStart(j.cfg, granularity, now),
		EndTime:     now,
	}

	reports, errs := j.fetcher.FetchProvider(ctx, providerType, query)
	for _, e := range errs {
		log.WithFields(map[string]any{
			"provider":    e.Provider,
			"integration": e.Name,
		}).Warn("snapshot refresh: integration failed: " + e.Error)
	}
	if len(reports) == 0 && len(errs) > 0 {
		// Nothing usable came back; keep the previous window intact.
		return nil
	}

	items := ItemsFromReports(j.wallet, granularity, reports)
	window := WindowFor(granularity, query.StartTime, query.EndTime)
	if err := j.store.ReplaceWindow(ctx, j.wallet, string(providerType), window, items); err != nil {
		return err
	}
	log.WithFields(map[string]any{
		"provider":    providerType,
		"granularity": granularity,
		"rows":        len(items),
	}).Debug("snapshot window replaced")
	return nil
}

func lookbackStart(cfg config.AutoloadConfig, granularity model.Granularity, now time.Time) time.Time {
	if granularity == model.GranularityDaily {
		return now.AddDate(0, 0, -cfg.DailyLookbackDays)
	}
	return now.AddDate(0, -cfg.MonthlyLookbackMonths, 0)
}
