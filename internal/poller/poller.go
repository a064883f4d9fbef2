package poller

import (
	"context"
	"time"

	"crossposter/internal/domain"
	"crossposter/internal/models"
)

// taskView is one poll cycle's snapshot of tasks and accounts.
type taskView struct {
	tasks    []*models.Task
	accounts map[int64]*models.PlatformAccount
}

func loadView(ctx context.Context, store domain.Store) (*taskView, error) {
	tasks, err := store.GetAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := store.GetAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.PlatformAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return &taskView{tasks: tasks, accounts: byID}, nil
}

// sourcesOf returns the task's active source accounts on the given platform.
func (v *taskView) sourcesOf(task *models.Task, platformID string) []*models.PlatformAccount {
	var out []*models.PlatformAccount
	for _, id := range task.SourceAccounts {
		if a, ok := v.accounts[id]; ok && a.IsActive && a.PlatformID == platformID {
			out = append(out, a)
		}
	}
	return out
}

// minInterval picks the shortest interval among active tasks sourcing the
// platform; the default when none do. The runner clamps the result.
func (v *taskView) minInterval(platformID string) time.Duration {
	min := time.Duration(0)
	for _, task := range v.tasks {
		if !task.IsActive() || len(v.sourcesOf(task, platformID)) == 0 {
			continue
		}
		d := task.Filters.PollInterval()
		if min == 0 || d < min {
			min = d
		}
	}
	if min == 0 {
		return models.DefaultPollIntervalSec * time.Second
	}
	return min
}

// due reports whether enough time passed since the task last produced
// executions. A task that never executed is always due.
func due(task *models.Task, clock domain.Clock) bool {
	if task.LastExecuted == nil {
		return true
	}
	return clock.Now().Sub(*task.LastExecuted) >= task.Filters.PollInterval()
}
