package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crossposter/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "relay.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAccount(t *testing.T, db *DB, platform string) *models.PlatformAccount {
	t.Helper()
	account := &models.PlatformAccount{
		Owner:      "user-1",
		PlatformID: platform,
		Username:   "acct_" + platform,
		IsActive:   true,
	}
	require.NoError(t, db.CreateAccount(context.Background(), account))
	return account
}

func seedTask(t *testing.T, db *DB, sources, targets []int64) *models.Task {
	t.Helper()
	task := &models.Task{
		Owner:          "user-1",
		Name:           "relay",
		Status:         models.TaskStatusActive,
		SourceAccounts: sources,
		TargetAccounts: targets,
		ExecutionType:  models.ExecutionRecurring,
		Filters:        models.Filters{TriggerType: models.TriggerOnTweet, PollIntervalSec: 30},
	}
	require.NoError(t, db.CreateTask(context.Background(), task))
	return task
}

func TestTaskCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	src := seedAccount(t, db, models.PlatformTwitter)
	dst := seedAccount(t, db, models.PlatformTelegram)
	task := seedTask(t, db, []int64{src.ID}, []int64{dst.ID})
	require.NotZero(t, task.ID)

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "relay", got.Name)
	assert.Equal(t, []int64{src.ID}, got.SourceAccounts)
	assert.Equal(t, 30, got.Filters.PollIntervalSec)
	assert.Nil(t, got.LastExecuted)

	got.Name = "renamed"
	require.NoError(t, db.UpdateTask(ctx, got))

	all, err := db.GetAllTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "renamed", all[0].Name)

	_, err = db.GetTask(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskValidationAtCreateAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Overlapping source/target must never be persisted.
	bad := &models.Task{
		Owner:          "user-1",
		Name:           "bad",
		Status:         models.TaskStatusActive,
		SourceAccounts: []int64{1, 2},
		TargetAccounts: []int64{2},
	}
	require.Error(t, db.CreateTask(ctx, bad))

	tasks, err := db.GetAllTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	task := seedTask(t, db, []int64{1}, []int64{2})
	task.TargetAccounts = []int64{1}
	require.Error(t, db.UpdateTask(ctx, task))
}

func TestTaskBatchBookkeeping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := seedTask(t, db, []int64{1}, []int64{2})
	at := time.Now().Truncate(time.Second)

	require.NoError(t, db.RecordTaskBatch(ctx, task.ID, 3, 1, at))
	require.NoError(t, db.SetTaskError(ctx, task.ID, "telegram: chat not found"))

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ExecutionCount)
	assert.Equal(t, int64(1), got.FailureCount)
	assert.Equal(t, "telegram: chat not found", got.LastError)
	require.NotNil(t, got.LastExecuted)
	assert.WithinDuration(t, at, *got.LastExecuted, time.Second)

	require.NoError(t, db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusPaused))
	got, err = db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPaused, got.Status)
}

func TestAccountCredentialsRotation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	account := &models.PlatformAccount{
		Owner:      "user-1",
		PlatformID: models.PlatformTwitter,
		Username:   "src",
		IsActive:   true,
		Credentials: models.Credentials{
			Twitter: &models.TwitterCredentials{AccessToken: "old-access", RefreshToken: "old-refresh"},
		},
	}
	require.NoError(t, db.CreateAccount(ctx, account))

	rotated := models.Credentials{
		Twitter: &models.TwitterCredentials{AccessToken: "new-access", RefreshToken: "new-refresh"},
	}
	require.NoError(t, db.UpdateAccountCredentials(ctx, account.ID, rotated))

	got, err := db.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Credentials.Twitter)
	assert.Equal(t, "new-access", got.Credentials.Twitter.AccessToken)
	assert.Equal(t, "new-refresh", got.Credentials.Twitter.RefreshToken)

	assert.ErrorIs(t, db.UpdateAccountCredentials(ctx, 999, rotated), ErrNotFound)

	accounts, err := db.GetAllAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, db.SetAccountActive(ctx, account.ID, false))
	got, err = db.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.ErrorIs(t, db.SetAccountActive(ctx, 999, true), ErrNotFound)
}

func TestSyncAccounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed := []models.PlatformAccount{
		{
			Owner: "ops", PlatformID: models.PlatformTelegram, AccountName: "channel", IsActive: true,
			Credentials: models.Credentials{Telegram: &models.TelegramCredentials{BotToken: "tok-1", ChatID: 10}},
		},
		{
			Owner: "ops", PlatformID: models.PlatformTwitter, AccountName: "feed", IsActive: true,
			Credentials: models.Credentials{Twitter: &models.TwitterCredentials{AccessToken: "a", RefreshToken: "r"}},
		},
	}
	require.NoError(t, db.SyncAccounts(ctx, seed))

	accounts, err := db.GetAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	// Повторный sync обновляет, а не дублирует
	seed[0].Credentials.Telegram.BotToken = "tok-2"
	seed[0].IsActive = false
	require.NoError(t, db.SyncAccounts(ctx, seed))

	accounts, err = db.GetAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	got, err := db.GetAccount(ctx, seed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Credentials.Telegram.BotToken)
	assert.False(t, got.IsActive)
}

func TestExecutionJournal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := seedTask(t, db, []int64{1}, []int64{2, 3})

	// Two targets for the same item, one failed: both rows must exist.
	base := time.Now().Add(-time.Minute)
	for i, exec := range []*models.TaskExecution{
		{
			TaskID: task.ID, SourceAccount: 1, TargetAccount: 2,
			OriginalContent: "hello", TransformedContent: "hello!",
			Status:     models.ExecutionSuccess,
			ResponseData: &models.ExecutionResponse{SourceItemID: "100", Twitter: &models.TwitterResponse{TweetID: "t-1"}},
		},
		{
			TaskID: task.ID, SourceAccount: 1, TargetAccount: 3,
			OriginalContent: "hello", TransformedContent: "hello!",
			Status: models.ExecutionFailed, Error: "boom",
		},
	} {
		exec.ExecutedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, db.CreateExecution(ctx, exec))
		require.NotZero(t, exec.ID)
	}

	execs, err := db.GetTaskExecutions(ctx, task.ID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	// Newest first.
	assert.Equal(t, models.ExecutionFailed, execs[0].Status)
	assert.Equal(t, "boom", execs[0].Error)
	assert.Nil(t, execs[0].ResponseData)
	require.NotNil(t, execs[1].ResponseData)
	assert.Equal(t, "100", execs[1].ResponseData.SourceItemID)
	assert.Equal(t, "t-1", execs[1].ResponseData.Twitter.TweetID)

	limited, err := db.GetTaskExecutions(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetLatestExecution(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := seedTask(t, db, []int64{1}, []int64{2})

	latest, err := db.GetLatestExecution(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, latest)

	now := time.Now()
	for i, itemID := range []string{"10", "11", "12"} {
		require.NoError(t, db.CreateExecution(ctx, &models.TaskExecution{
			TaskID: task.ID, SourceAccount: 1, TargetAccount: 2,
			Status:       models.ExecutionSuccess,
			ExecutedAt:   now.Add(time.Duration(i) * time.Second),
			ResponseData: &models.ExecutionResponse{SourceItemID: itemID},
		}))
	}

	latest, err = db.GetLatestExecution(ctx, task.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "12", latest.ResponseData.SourceItemID)

	// Другой источник — отдельный водяной знак
	latest, err = db.GetLatestExecution(ctx, task.ID, 7)
	require.NoError(t, err)
	assert.Nil(t, latest)
}
