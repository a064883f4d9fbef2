package domain

import (
	"context"
	"time"

	"crossposter/internal/models"
)

// Store is the record store consumed by pollers, dispatchers and the
// processor. Implemented by internal/database.
type Store interface {
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	GetAllTasks(ctx context.Context) ([]*models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTask(ctx context.Context, task *models.Task) error
	UpdateTaskStatus(ctx context.Context, id int64, status string) error
	SetTaskError(ctx context.Context, id int64, message string) error
	// RecordTaskBatch updates lastExecuted and both counters once per batch.
	RecordTaskBatch(ctx context.Context, id int64, executed, failed int64, at time.Time) error

	GetAccount(ctx context.Context, id int64) (*models.PlatformAccount, error)
	GetAllAccounts(ctx context.Context) ([]*models.PlatformAccount, error)
	CreateAccount(ctx context.Context, account *models.PlatformAccount) error
	UpdateAccountCredentials(ctx context.Context, id int64, creds models.Credentials) error

	CreateExecution(ctx context.Context, exec *models.TaskExecution) error
	GetTaskExecutions(ctx context.Context, taskID int64, limit int) ([]*models.TaskExecution, error)
	// GetLatestExecution returns the newest execution for a (task, source)
	// pair, or nil when none exists. Used for watermark derivation.
	GetLatestExecution(ctx context.Context, taskID, sourceAccount int64) (*models.TaskExecution, error)
}

// MarkerRepository tracks which source messages have been dispatched.
// Register must be an atomic check-and-set: true on first registration,
// false when the key was already seen.
type MarkerRepository interface {
	Register(ctx context.Context, accountID, chatID int64, messageID int) (bool, error)
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// ContentFetcher returns new source items since a watermark, oldest last or
// in any order; the poller sorts ascending before dispatch.
type ContentFetcher interface {
	Fetch(ctx context.Context, account *models.PlatformAccount, filters models.Filters, sinceID string) ([]models.ContentItem, error)
}

// Dispatcher publishes rendered content to one target account.
type Dispatcher interface {
	PlatformID() string
	Publish(ctx context.Context, target *models.PlatformAccount, rendered string, media []models.MediaItem, task *models.Task) (*models.ExecutionResponse, error)
}

// ClientCredentials are developer application credentials consumed only
// during token refresh.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialResolver provides application credentials per platform.
// The composition root adapts config to this interface.
type CredentialResolver interface {
	GetOAuthClientCredentials(owner, platformID string) (ClientCredentials, error)
}

// EventPublisher decouples execution bookkeeping from metrics/subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Clock abstracts time for poller due-checks and album flushing in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
