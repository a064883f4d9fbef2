// Package processor runs a task on demand: the task's static content goes to
// every target from every source, one execution per pair.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/domain"
	"crossposter/internal/metrics"
	"crossposter/internal/models"
	"crossposter/internal/transform"
)

// ApplyFilters is re-exported for the API layer.
var ApplyFilters = transform.ApplyFilters

type Processor struct {
	store       domain.Store
	dispatchers map[string]domain.Dispatcher
	clock       domain.Clock
	logger      zerolog.Logger
}

func New(store domain.Store, dispatchers map[string]domain.Dispatcher, clock domain.Clock, logger zerolog.Logger) *Processor {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Processor{store: store, dispatchers: dispatchers, clock: clock, logger: logger}
}

// Run sweeps the full source × target matrix. A failed pair is recorded and
// the sweep continues; the task counters move once at the end. A missing
// task or account aborts with an error before anything is dispatched.
func (p *Processor) Run(ctx context.Context, taskID int64) ([]*models.TaskExecution, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", taskID, err)
	}

	sources := make([]*models.PlatformAccount, 0, len(task.SourceAccounts))
	for _, id := range task.SourceAccounts {
		account, err := p.store.GetAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("source account %d: %w", id, err)
		}
		sources = append(sources, account)
	}
	targets := make([]*models.PlatformAccount, 0, len(task.TargetAccounts))
	for _, id := range task.TargetAccounts {
		account, err := p.store.GetAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("target account %d: %w", id, err)
		}
		targets = append(targets, account)
	}

	var (
		executions []*models.TaskExecution
		executed   int64
		failed     int64
	)
	for _, source := range sources {
		item := models.ContentItem{
			ID:             fmt.Sprintf("manual-%d-%d", taskID, p.clock.Now().UnixNano()),
			Text:           task.Content,
			AuthorUsername: source.Username,
			AuthorName:     source.AccountName,
			CreatedAt:      p.clock.Now(),
		}
		rendered := transform.Render(task.Transformations, item, source)

		for _, target := range targets {
			exec := p.runPair(ctx, task, source, target, item, rendered)
			executions = append(executions, exec)
			if exec.Status == models.ExecutionSuccess {
				executed++
			} else {
				failed++
			}
		}
	}

	if err := p.store.RecordTaskBatch(ctx, task.ID, executed, failed, p.clock.Now()); err != nil {
		p.logger.Error().Int64("task_id", task.ID).Err(err).Msg("failed to record batch counters")
	}
	return executions, nil
}

func (p *Processor) runPair(ctx context.Context, task *models.Task, source, target *models.PlatformAccount, item models.ContentItem, rendered string) *models.TaskExecution {
	exec := &models.TaskExecution{
		TaskID:             task.ID,
		SourceAccount:      source.ID,
		TargetAccount:      target.ID,
		OriginalContent:    task.Content,
		TransformedContent: rendered,
		ExecutedAt:         p.clock.Now(),
		ResponseData:       &models.ExecutionResponse{SourceItemID: item.ID},
	}

	resp, err := p.publish(ctx, target, rendered, item, task)
	if resp != nil {
		resp.SourceItemID = item.ID
		exec.ResponseData = resp
	}

	exec.Status = models.ExecutionSuccess
	if err != nil {
		exec.Status = models.ExecutionFailed
		exec.Error = err.Error()
		p.logger.Warn().Int64("task_id", task.ID).Int64("target_id", target.ID).Err(err).Msg("manual dispatch failed")
	}
	metrics.IncDispatch(target.PlatformID, exec.Status)

	if serr := p.store.CreateExecution(ctx, exec); serr != nil {
		p.logger.Error().Int64("task_id", task.ID).Err(serr).Msg("failed to persist execution")
	}
	return exec
}

func (p *Processor) publish(ctx context.Context, target *models.PlatformAccount, rendered string, item models.ContentItem, task *models.Task) (*models.ExecutionResponse, error) {
	if !target.IsActive {
		return nil, fmt.Errorf("target account %d is inactive", target.ID)
	}
	dispatcher, ok := p.dispatchers[target.PlatformID]
	if !ok {
		return nil, fmt.Errorf("no dispatcher for platform %s", target.PlatformID)
	}

	start := time.Now()
	resp, err := dispatcher.Publish(ctx, target, rendered, item.Media, task)
	metrics.ObserveDispatch(target.PlatformID, time.Since(start).Seconds())
	return resp, err
}
