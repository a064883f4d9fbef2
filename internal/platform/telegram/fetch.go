package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"crossposter/internal/domain"
	"crossposter/internal/models"
)

// Fetcher drains getUpdates for a source account. The confirmed offset
// lives in the account credentials and is persisted after every batch, so a
// restart never re-reads confirmed updates. Duplicate delivery inside an
// unconfirmed batch is absorbed by the marker repository downstream.
type Fetcher struct {
	pool      *BotPool
	store     domain.Store
	batchSize int
	logger    zerolog.Logger
}

func NewFetcher(pool *BotPool, store domain.Store, batchSize int, logger zerolog.Logger) *Fetcher {
	if batchSize < models.MinTelegramBatchSize || batchSize > models.MaxTelegramBatchSize {
		batchSize = models.DefaultTelegramBatchSize
	}
	return &Fetcher{pool: pool, store: store, batchSize: batchSize, logger: logger}
}

func (f *Fetcher) Fetch(ctx context.Context, account *models.PlatformAccount, filters models.Filters, sinceID string) ([]models.ContentItem, error) {
	creds := account.Credentials.Telegram
	if creds == nil {
		return nil, fmt.Errorf("account %d has no telegram credentials", account.ID)
	}

	bot, err := f.pool.Get(creds.BotToken)
	if err != nil {
		return nil, err
	}

	cfg := tgbotapi.NewUpdate(creds.Offset)
	cfg.Limit = f.batchSize
	cfg.AllowedUpdates = []string{"message", "channel_post"}

	updates, err := bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("getUpdates failed: %w", err)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	var items []models.ContentItem
	lastUpdateID := creds.Offset - 1
	for _, update := range updates {
		if update.UpdateID > lastUpdateID {
			lastUpdateID = update.UpdateID
		}
		msg := update.Message
		if msg == nil {
			msg = update.ChannelPost
		}
		if msg == nil {
			continue
		}
		// Слушаем только привязанный чат, если он задан.
		if creds.ChatID != 0 && msg.Chat != nil && msg.Chat.ID != creds.ChatID {
			continue
		}
		items = append(items, f.mapMessage(bot, update.UpdateID, msg))
	}

	// Подтверждаем пачку сдвигом offset.
	creds.Offset = lastUpdateID + 1
	if err := f.store.UpdateAccountCredentials(ctx, account.ID, account.Credentials); err != nil {
		return nil, fmt.Errorf("failed to persist telegram offset: %w", err)
	}

	return items, nil
}

func (f *Fetcher) mapMessage(bot BotAPI, updateID int, msg *tgbotapi.Message) models.ContentItem {
	item := models.ContentItem{
		ID:           strconv.Itoa(msg.MessageID),
		SortKey:      int64(updateID),
		Text:         msg.Text,
		CreatedAt:    time.Unix(int64(msg.Date), 0),
		IsReply:      msg.ReplyToMessage != nil,
		IsForward:    msg.ForwardFrom != nil || msg.ForwardFromChat != nil,
		MessageID:    msg.MessageID,
		MediaGroupID: msg.MediaGroupID,
	}
	if item.Text == "" {
		item.Text = msg.Caption
	}
	if msg.Chat != nil {
		item.ChatID = msg.Chat.ID
		if msg.Chat.UserName != "" {
			item.Link = fmt.Sprintf("https://t.me/%s/%d", msg.Chat.UserName, msg.MessageID)
		}
	}
	if msg.From != nil {
		item.AuthorUsername = msg.From.UserName
		item.AuthorName = msg.From.FirstName
		if msg.From.LastName != "" {
			item.AuthorName += " " + msg.From.LastName
		}
	}

	if len(msg.Photo) > 0 {
		// Последний размер — самый крупный.
		best := msg.Photo[len(msg.Photo)-1]
		item.Media = append(item.Media, f.mediaItem(bot, models.MediaPhoto, best.FileID, "", int64(best.FileSize)))
	}
	if msg.Video != nil {
		item.Media = append(item.Media, f.mediaItem(bot, models.MediaVideo, msg.Video.FileID, msg.Video.MimeType, int64(msg.Video.FileSize)))
	}
	if msg.Animation != nil {
		item.Media = append(item.Media, f.mediaItem(bot, models.MediaAnimation, msg.Animation.FileID, msg.Animation.MimeType, int64(msg.Animation.FileSize)))
	}
	return item
}

// mediaItem resolves the direct download URL eagerly: file_path links expire
// and cross-platform targets need a plain URL.
func (f *Fetcher) mediaItem(bot BotAPI, mediaType, fileID, mime string, size int64) models.MediaItem {
	item := models.MediaItem{Type: mediaType, FileRef: fileID, Mime: mime, Bytes: size}
	url, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		f.logger.Warn().Str("file_id", fileID).Err(err).Msg("failed to resolve file url")
		return item
	}
	item.URL = url
	return item
}
