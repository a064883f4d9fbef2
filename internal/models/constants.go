package models

// Task statuses.
const (
	TaskStatusActive    = "active"
	TaskStatusPaused    = "paused"
	TaskStatusCompleted = "completed"
	TaskStatusError     = "error"
)

// Execution types.
const (
	ExecutionImmediate = "immediate"
	ExecutionScheduled = "scheduled"
	ExecutionRecurring = "recurring"
)

// Execution statuses.
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
	ExecutionPending = "pending"
)

// Platform identifiers.
const (
	PlatformTwitter  = "twitter"
	PlatformTelegram = "telegram"
	PlatformYouTube  = "youtube"
	PlatformFacebook = "facebook"
)

// Trigger types for source polling.
const (
	TriggerOnTweet   = "on_tweet"
	TriggerOnSearch  = "on_search"
	TriggerOnLike    = "on_like"
	TriggerOnMessage = "on_message"
)

const (
	// MinPollIntervalSec нижняя граница интервала опроса задачи
	MinPollIntervalSec = 5

	// MaxPollIntervalSec верхняя граница интервала опроса задачи
	MaxPollIntervalSec = 300

	// DefaultPollIntervalSec интервал опроса по умолчанию
	DefaultPollIntervalSec = 10

	// DefaultTelegramBatchSize количество сообщений за один getUpdates
	DefaultTelegramBatchSize = 100

	// MinTelegramBatchSize минимальный размер пачки getUpdates
	MinTelegramBatchSize = 10

	// MaxTelegramBatchSize максимальный размер пачки getUpdates
	MaxTelegramBatchSize = 200

	// DefaultMaxDownloadBytes предел размера скачиваемого медиафайла (2 GiB)
	DefaultMaxDownloadBytes = int64(2) << 30

	// DefaultAlbumQuietWindowSec тихое окно для сборки альбома
	DefaultAlbumQuietWindowSec = 3

	// DefaultAlbumMaxAgeSec принудительный сброс зависшего альбома
	DefaultAlbumMaxAgeSec = 30

	// DefaultMarkerRetentionDays срок хранения маркеров обработанных сообщений
	DefaultMarkerRetentionDays = 7

	// DefaultQueueCap максимум одновременно выполняемых задач в очереди
	DefaultQueueCap = 32

	// DefaultUploadStatusPolls предел опросов статуса чанковой загрузки
	DefaultUploadStatusPolls = 10
)
