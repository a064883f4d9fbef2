package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossposter/internal/database"
	"crossposter/internal/domain"
	"crossposter/internal/models"
)

type fakeDispatcher struct {
	platform string
	mu       sync.Mutex
	calls    []int64
	errFor   map[int64]error
}

func (d *fakeDispatcher) PlatformID() string { return d.platform }

func (d *fakeDispatcher) Publish(ctx context.Context, target *models.PlatformAccount, rendered string, media []models.MediaItem, task *models.Task) (*models.ExecutionResponse, error) {
	d.mu.Lock()
	d.calls = append(d.calls, target.ID)
	d.mu.Unlock()
	if err := d.errFor[target.ID]; err != nil {
		return nil, err
	}
	return &models.ExecutionResponse{Telegram: &models.TelegramResponse{ChatID: target.ID, MessageIDs: []int{1}}}, nil
}

func setup(t *testing.T) (*database.DB, *fakeDispatcher, *Processor) {
	t.Helper()
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "processor.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := &fakeDispatcher{platform: models.PlatformTelegram}
	proc := New(db, map[string]domain.Dispatcher{models.PlatformTelegram: fake}, nil, zerolog.Nop())
	return db, fake, proc
}

func seedAccount(t *testing.T, db *database.DB, name string) *models.PlatformAccount {
	t.Helper()
	account := &models.PlatformAccount{
		Owner:       "ops",
		PlatformID:  models.PlatformTelegram,
		AccountName: name,
		IsActive:    true,
		Credentials: models.Credentials{Telegram: &models.TelegramCredentials{BotToken: "t", ChatID: 1}},
	}
	require.NoError(t, db.CreateAccount(context.Background(), account))
	return account
}

func TestRunFullSweepWithOneFailure(t *testing.T) {
	db, fake, proc := setup(t)

	s1 := seedAccount(t, db, "src-1")
	s2 := seedAccount(t, db, "src-2")
	t1 := seedAccount(t, db, "dst-1")
	t2 := seedAccount(t, db, "dst-2")
	fake.errFor = map[int64]error{t2.ID: errors.New("blocked by page")}

	task := &models.Task{
		Owner:          "ops",
		Name:           "manual",
		Status:         models.TaskStatusActive,
		SourceAccounts: []int64{s1.ID, s2.ID},
		TargetAccounts: []int64{t1.ID, t2.ID},
		ExecutionType:  models.ExecutionImmediate,
		Content:        "announcement",
	}
	require.NoError(t, db.CreateTask(context.Background(), task))

	execs, err := proc.Run(context.Background(), task.ID)
	require.NoError(t, err)

	// 2 источника × 2 цели.
	require.Len(t, execs, 4)
	var ok, failed int
	for _, e := range execs {
		assert.Equal(t, "announcement", e.OriginalContent)
		if e.Status == models.ExecutionSuccess {
			ok++
		} else {
			failed++
			assert.Equal(t, "blocked by page", e.Error)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 2, failed)
	assert.Len(t, fake.calls, 4)

	stored, err := db.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.ExecutionCount)
	assert.Equal(t, int64(2), stored.FailureCount)
	require.NotNil(t, stored.LastExecuted)

	persisted, err := db.GetTaskExecutions(context.Background(), task.ID, 0)
	require.NoError(t, err)
	assert.Len(t, persisted, 4)
}

func TestRunTaskNotFound(t *testing.T) {
	_, _, proc := setup(t)
	_, err := proc.Run(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRunMissingAccountAborts(t *testing.T) {
	db, fake, proc := setup(t)
	src := seedAccount(t, db, "src")

	task := &models.Task{
		Owner:          "ops",
		Name:           "manual",
		Status:         models.TaskStatusActive,
		SourceAccounts: []int64{src.ID},
		TargetAccounts: []int64{12345},
		ExecutionType:  models.ExecutionImmediate,
		Content:        "x",
	}
	require.NoError(t, db.CreateTask(context.Background(), task))

	_, err := proc.Run(context.Background(), task.ID)
	require.Error(t, err)
	assert.Empty(t, fake.calls)
}

func TestRunInactiveTargetRecordedAsFailed(t *testing.T) {
	db, _, proc := setup(t)
	src := seedAccount(t, db, "src")
	dst := seedAccount(t, db, "dst")
	require.NoError(t, db.SetAccountActive(context.Background(), dst.ID, false))

	task := &models.Task{
		Owner:          "ops",
		Name:           "manual",
		Status:         models.TaskStatusActive,
		SourceAccounts: []int64{src.ID},
		TargetAccounts: []int64{dst.ID},
		ExecutionType:  models.ExecutionImmediate,
		Content:        "x",
	}
	require.NoError(t, db.CreateTask(context.Background(), task))

	execs, err := proc.Run(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, models.ExecutionFailed, execs[0].Status)
	assert.Contains(t, execs[0].Error, "inactive")
}
