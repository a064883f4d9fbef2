package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/domain"
	"crossposter/internal/events"
	"crossposter/internal/metrics"
	"crossposter/internal/models"
	"crossposter/internal/transform"
)

// TelegramPoller drains getUpdates once per source account and fans the
// result out to every task watching that account. Dedup markers are
// registered before dispatch; album members are buffered until the group
// goes quiet and then relayed as one merged item.
type TelegramPoller struct {
	store    domain.Store
	fetcher  domain.ContentFetcher
	markers  domain.MarkerRepository
	dispatch *Dispatch
	clock    domain.Clock
	logger   zerolog.Logger
	runner   *Runner

	albumQuiet  time.Duration
	albumMaxAge time.Duration

	mu         sync.Mutex
	collectors map[int64]*AlbumCollector
}

func NewTelegramPoller(store domain.Store, fetcher domain.ContentFetcher, markers domain.MarkerRepository, dispatch *Dispatch, albumQuiet, albumMaxAge time.Duration, clock domain.Clock, logger zerolog.Logger) *TelegramPoller {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	p := &TelegramPoller{
		store:       store,
		fetcher:     fetcher,
		markers:     markers,
		dispatch:    dispatch,
		clock:       clock,
		logger:      logger,
		albumQuiet:  albumQuiet,
		albumMaxAge: albumMaxAge,
		collectors:  make(map[int64]*AlbumCollector),
	}
	p.runner = NewRunner("telegram", p.interval, p.poll, logger)
	return p
}

func (p *TelegramPoller) Start(ctx context.Context)         { p.runner.Start(ctx) }
func (p *TelegramPoller) EnsureStarted(ctx context.Context) { p.runner.EnsureStarted(ctx) }
func (p *TelegramPoller) RunOnce(ctx context.Context)       { p.runner.RunOnce(ctx) }

// Stop halts the loop and force-flushes every open album buffer.
func (p *TelegramPoller) Stop() {
	p.runner.Stop()
	p.mu.Lock()
	collectors := make([]*AlbumCollector, 0, len(p.collectors))
	for _, c := range p.collectors {
		collectors = append(collectors, c)
	}
	p.mu.Unlock()
	for _, c := range collectors {
		c.Flush()
	}
}

func (p *TelegramPoller) interval(ctx context.Context) time.Duration {
	view, err := loadView(ctx, p.store)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to load tasks for tick")
		return models.DefaultPollIntervalSec * time.Second
	}
	return view.minInterval(models.PlatformTelegram)
}

func (p *TelegramPoller) poll(ctx context.Context) {
	metrics.IncPollRun(models.PlatformTelegram)

	view, err := loadView(ctx, p.store)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to load poll snapshot")
		return
	}

	// Один getUpdates на аккаунт, сколько бы задач его ни слушало.
	watchers := make(map[int64][]*models.Task)
	for _, task := range view.tasks {
		if !task.IsActive() || !due(task, p.clock) {
			continue
		}
		for _, source := range view.sourcesOf(task, models.PlatformTelegram) {
			watchers[source.ID] = append(watchers[source.ID], task)
		}
	}

	for sourceID, tasks := range watchers {
		p.pollAccount(ctx, view.accounts[sourceID], tasks)
	}
}

func (p *TelegramPoller) pollAccount(ctx context.Context, source *models.PlatformAccount, tasks []*models.Task) {
	items, err := p.fetcher.Fetch(ctx, source, models.Filters{}, "")
	if err != nil {
		p.logger.Error().Int64("source_id", source.ID).Err(err).Msg("fetch failed")
		for _, task := range tasks {
			if serr := p.store.SetTaskError(ctx, task.ID, err.Error()); serr != nil {
				p.logger.Error().Int64("task_id", task.ID).Err(serr).Msg("failed to record task error")
			}
		}
		return
	}
	metrics.AddItemsFetched(models.PlatformTelegram, len(items))

	var singles []models.ContentItem
	for _, item := range items {
		isNew, err := p.markers.Register(ctx, source.ID, item.ChatID, item.MessageID)
		if err != nil {
			p.logger.Error().Int64("source_id", source.ID).Int("message_id", item.MessageID).Err(err).Msg("marker registration failed")
			continue
		}
		if !isNew {
			metrics.IncDuplicateDropped("marker")
			continue
		}
		if item.MediaGroupID != "" {
			p.collectorFor(ctx, source).Add(item)
			continue
		}
		singles = append(singles, item)
	}

	p.relayToTasks(ctx, source, tasks, singles)
}

// relayToTasks applies each task's filters and schedules its share of the
// batch.
func (p *TelegramPoller) relayToTasks(ctx context.Context, source *models.PlatformAccount, tasks []*models.Task, items []models.ContentItem) {
	if len(items) == 0 {
		return
	}
	for _, task := range tasks {
		var matched []models.ContentItem
		for _, item := range items {
			if transform.ApplyFilters(item, task.Filters) {
				matched = append(matched, item)
			}
		}
		p.dispatch.RelayBatch(ctx, task, source, matched)
	}
}

// collectorFor lazily builds the per-account album collector. The flush
// callback re-resolves watching tasks: the set may have changed while the
// album was buffering.
func (p *TelegramPoller) collectorFor(ctx context.Context, source *models.PlatformAccount) *AlbumCollector {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.collectors[source.ID]; ok {
		return c
	}
	c := NewAlbumCollector(p.albumQuiet, p.albumMaxAge, func(items []models.ContentItem) {
		merged := MergeAlbum(items)
		if p.dispatch.events != nil {
			_ = p.dispatch.events.PublishJSON(events.EventAlbumFlushed, events.AlbumEventPayload{
				SourceAccount: source.ID,
				GroupID:       merged.MediaGroupID,
				Parts:         len(items),
			})
		}
		view, err := loadView(ctx, p.store)
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to load tasks for album flush")
			return
		}
		var tasks []*models.Task
		for _, task := range view.tasks {
			if !task.IsActive() {
				continue
			}
			for _, s := range view.sourcesOf(task, models.PlatformTelegram) {
				if s.ID == source.ID {
					tasks = append(tasks, task)
					break
				}
			}
		}
		p.relayToTasks(ctx, source, tasks, []models.ContentItem{merged})
	}, p.logger.With().Int64("source_id", source.ID).Logger())
	p.collectors[source.ID] = c
	return c
}
