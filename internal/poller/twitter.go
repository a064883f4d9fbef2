package poller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/domain"
	"crossposter/internal/metrics"
	"crossposter/internal/models"
	"crossposter/internal/transform"
)

// TwitterPoller walks due tasks with Twitter sources. Each (task, source)
// pair fetches from its own watermark, so two tasks watching one account
// never steal content from each other.
type TwitterPoller struct {
	store    domain.Store
	fetcher  domain.ContentFetcher
	dispatch *Dispatch
	clock    domain.Clock
	logger   zerolog.Logger
	runner   *Runner
}

func NewTwitterPoller(store domain.Store, fetcher domain.ContentFetcher, dispatch *Dispatch, clock domain.Clock, logger zerolog.Logger) *TwitterPoller {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	p := &TwitterPoller{
		store:    store,
		fetcher:  fetcher,
		dispatch: dispatch,
		clock:    clock,
		logger:   logger,
	}
	p.runner = NewRunner("twitter", p.interval, p.poll, logger)
	return p
}

func (p *TwitterPoller) Start(ctx context.Context)         { p.runner.Start(ctx) }
func (p *TwitterPoller) EnsureStarted(ctx context.Context) { p.runner.EnsureStarted(ctx) }
func (p *TwitterPoller) Stop()                             { p.runner.Stop() }
func (p *TwitterPoller) RunOnce(ctx context.Context)       { p.runner.RunOnce(ctx) }

func (p *TwitterPoller) interval(ctx context.Context) time.Duration {
	view, err := loadView(ctx, p.store)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to load tasks for tick")
		return models.DefaultPollIntervalSec * time.Second
	}
	return view.minInterval(models.PlatformTwitter)
}

func (p *TwitterPoller) poll(ctx context.Context) {
	metrics.IncPollRun(models.PlatformTwitter)

	view, err := loadView(ctx, p.store)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to load poll snapshot")
		return
	}

	for _, task := range view.tasks {
		if !task.IsActive() || !due(task, p.clock) {
			continue
		}
		for _, source := range view.sourcesOf(task, models.PlatformTwitter) {
			p.pollSource(ctx, task, source)
		}
	}
}

func (p *TwitterPoller) pollSource(ctx context.Context, task *models.Task, source *models.PlatformAccount) {
	sinceID, err := p.watermark(ctx, task.ID, source.ID)
	if err != nil {
		p.logger.Error().Int64("task_id", task.ID).Int64("source_id", source.ID).Err(err).Msg("failed to derive watermark")
		return
	}

	items, err := p.fetcher.Fetch(ctx, source, task.Filters, sinceID)
	if err != nil {
		p.logger.Error().Int64("task_id", task.ID).Int64("source_id", source.ID).Err(err).Msg("fetch failed")
		if serr := p.store.SetTaskError(ctx, task.ID, fmt.Sprintf("fetch from account %d: %v", source.ID, err)); serr != nil {
			p.logger.Error().Int64("task_id", task.ID).Err(serr).Msg("failed to record task error")
		}
		return
	}
	metrics.AddItemsFetched(models.PlatformTwitter, len(items))
	if len(items) == 0 {
		return
	}

	filtered := items[:0]
	for _, item := range items {
		if transform.ApplyFilters(item, task.Filters) {
			filtered = append(filtered, item)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].SortKey < filtered[j].SortKey })

	p.dispatch.RelayBatch(ctx, task, source, filtered)
}

// watermark is the item id of the newest persisted execution for the pair.
func (p *TwitterPoller) watermark(ctx context.Context, taskID, sourceID int64) (string, error) {
	exec, err := p.store.GetLatestExecution(ctx, taskID, sourceID)
	if err != nil {
		return "", err
	}
	if exec == nil || exec.ResponseData == nil {
		return "", nil
	}
	return exec.ResponseData.SourceItemID, nil
}
