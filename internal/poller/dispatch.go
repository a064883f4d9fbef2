package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/domain"
	"crossposter/internal/events"
	"crossposter/internal/metrics"
	"crossposter/internal/models"
	"crossposter/internal/queue"
	"crossposter/internal/transform"
)

// Dispatch turns batches of source items into executions. A batch for one
// (task, source) pair runs as a single queue job: items go out in ascending
// order, targets of one item in parallel. A batch already in flight for the
// same pair is dropped, not queued.
type Dispatch struct {
	store       domain.Store
	queue       *queue.ExecutionQueue
	dispatchers map[string]domain.Dispatcher
	events      domain.EventPublisher
	clock       domain.Clock
	logger      zerolog.Logger
}

func NewDispatch(store domain.Store, q *queue.ExecutionQueue, dispatchers map[string]domain.Dispatcher, events domain.EventPublisher, clock domain.Clock, logger zerolog.Logger) *Dispatch {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Dispatch{
		store:       store,
		queue:       q,
		dispatchers: dispatchers,
		events:      events,
		clock:       clock,
		logger:      logger,
	}
}

// RelayBatch schedules the batch. Items must already be filtered and sorted
// ascending by SortKey.
func (d *Dispatch) RelayBatch(ctx context.Context, task *models.Task, source *models.PlatformAccount, items []models.ContentItem) {
	if len(items) == 0 {
		return
	}

	key := fmt.Sprintf("task:%d:source:%d", task.ID, source.ID)
	err := d.queue.Submit(ctx, key, func(ctx context.Context) {
		d.runBatch(ctx, task, source, items)
	})
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrDuplicate):
		metrics.IncDuplicateDropped("queue")
		d.logger.Debug().Str("key", key).Msg("batch already in flight, dropped")
	case errors.Is(err, queue.ErrBusy):
		d.logger.Warn().Str("key", key).Msg("execution queue full, batch dropped")
	default:
		d.logger.Error().Str("key", key).Err(err).Msg("failed to schedule batch")
	}
}

func (d *Dispatch) runBatch(ctx context.Context, task *models.Task, source *models.PlatformAccount, items []models.ContentItem) {
	var executed, failed int64
	for _, item := range items {
		e, f := d.relayItem(ctx, task, source, item)
		executed += e
		failed += f
	}
	if executed+failed == 0 {
		return
	}
	if err := d.store.RecordTaskBatch(ctx, task.ID, executed, failed, d.clock.Now()); err != nil {
		d.logger.Error().Int64("task_id", task.ID).Err(err).Msg("failed to record batch counters")
	}
	if failed > 0 && d.events != nil {
		_ = d.events.PublishJSON(events.EventTaskErrored, events.TaskErrorPayload{TaskID: task.ID, Failed: failed})
	}
}

// relayItem publishes one item to every target of the task.
func (d *Dispatch) relayItem(ctx context.Context, task *models.Task, source *models.PlatformAccount, item models.ContentItem) (executed, failed int64) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, targetID := range task.TargetAccounts {
		targetID := targetID
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := d.relayToTarget(ctx, task, source, targetID, item)
			mu.Lock()
			if ok {
				executed++
			} else {
				failed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return executed, failed
}

func (d *Dispatch) relayToTarget(ctx context.Context, task *models.Task, source *models.PlatformAccount, targetID int64, item models.ContentItem) bool {
	exec := &models.TaskExecution{
		TaskID:          task.ID,
		SourceAccount:   source.ID,
		TargetAccount:   targetID,
		OriginalContent: item.Text,
		ExecutedAt:      d.clock.Now(),
		// Идентификатор источника пишется всегда: он двигает watermark
		// и для неудачных доставок.
		ResponseData: &models.ExecutionResponse{SourceItemID: item.ID},
	}

	target, err := d.store.GetAccount(ctx, targetID)
	if err != nil {
		d.finishExecution(ctx, exec, "", fmt.Errorf("target account %d: %w", targetID, err))
		return false
	}
	if !target.IsActive {
		d.finishExecution(ctx, exec, target.PlatformID, fmt.Errorf("target account %d is inactive", targetID))
		return false
	}
	dispatcher, ok := d.dispatchers[target.PlatformID]
	if !ok {
		d.finishExecution(ctx, exec, target.PlatformID, fmt.Errorf("no dispatcher for platform %s", target.PlatformID))
		return false
	}

	rendered := transform.Render(task.Transformations, item, source)
	exec.TransformedContent = rendered

	start := time.Now()
	resp, err := dispatcher.Publish(ctx, target, rendered, item.Media, task)
	metrics.ObserveDispatch(target.PlatformID, time.Since(start).Seconds())

	if resp != nil {
		resp.SourceItemID = item.ID
		exec.ResponseData = resp
	}
	d.finishExecution(ctx, exec, target.PlatformID, err)
	return err == nil
}

// finishExecution writes the terminal record and fans out the event.
func (d *Dispatch) finishExecution(ctx context.Context, exec *models.TaskExecution, platformID string, err error) {
	exec.Status = models.ExecutionSuccess
	if err != nil {
		exec.Status = models.ExecutionFailed
		exec.Error = err.Error()
		d.logger.Warn().
			Int64("task_id", exec.TaskID).
			Int64("target_id", exec.TargetAccount).
			Err(err).
			Msg("dispatch failed")
	}
	metrics.IncDispatch(platformID, exec.Status)

	if serr := d.store.CreateExecution(ctx, exec); serr != nil {
		d.logger.Error().Int64("task_id", exec.TaskID).Err(serr).Msg("failed to persist execution")
	}

	if d.events != nil {
		d.events.PublishJSON(events.EventExecutionRecorded, events.ExecutionEventPayload{
			TaskID:        exec.TaskID,
			SourceAccount: exec.SourceAccount,
			TargetAccount: exec.TargetAccount,
			Platform:      platformID,
			Status:        exec.Status,
			Error:         exec.Error,
			ItemID:        exec.ResponseData.SourceItemID,
			ExecutedAt:    exec.ExecutedAt,
		})
	}
}
