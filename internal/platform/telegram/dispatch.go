package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"crossposter/internal/models"
)

// Dispatcher publishes to a target chat. One attachment goes out as a
// single photo/video message, several as a media group with the caption on
// the first element.
type Dispatcher struct {
	pool   *BotPool
	logger zerolog.Logger
}

func NewDispatcher(pool *BotPool, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{pool: pool, logger: logger}
}

func (d *Dispatcher) PlatformID() string { return models.PlatformTelegram }

func (d *Dispatcher) Publish(ctx context.Context, target *models.PlatformAccount, rendered string, media []models.MediaItem, task *models.Task) (*models.ExecutionResponse, error) {
	creds := target.Credentials.Telegram
	if creds == nil {
		return nil, fmt.Errorf("account %d has no telegram credentials", target.ID)
	}
	bot, err := d.pool.Get(creds.BotToken)
	if err != nil {
		return nil, err
	}

	opts := task.Transformations.Telegram
	var messageIDs []int

	switch {
	case len(media) == 0:
		msg := tgbotapi.NewMessage(creds.ChatID, rendered)
		msg.DisableWebPagePreview = opts.DisablePreview
		msg.DisableNotification = opts.Silent
		sent, err := bot.Send(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to send message: %w", err)
		}
		messageIDs = append(messageIDs, sent.MessageID)

	case len(media) == 1:
		sent, err := d.sendSingle(bot, creds.ChatID, rendered, media[0], opts)
		if err != nil {
			return nil, err
		}
		messageIDs = append(messageIDs, sent.MessageID)

	default:
		group := tgbotapi.NewMediaGroup(creds.ChatID, inputMedia(rendered, media))
		group.DisableNotification = opts.Silent
		sent, err := bot.SendMediaGroup(group)
		if err != nil {
			return nil, fmt.Errorf("failed to send media group: %w", err)
		}
		for _, m := range sent {
			messageIDs = append(messageIDs, m.MessageID)
		}
	}

	return &models.ExecutionResponse{
		Telegram: &models.TelegramResponse{ChatID: creds.ChatID, MessageIDs: messageIDs},
	}, nil
}

func (d *Dispatcher) sendSingle(bot BotAPI, chatID int64, caption string, item models.MediaItem, opts models.TelegramOptions) (tgbotapi.Message, error) {
	file := fileFor(item)
	var msg tgbotapi.Chattable
	switch item.Type {
	case models.MediaVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = caption
		v.DisableNotification = opts.Silent
		msg = v
	case models.MediaAnimation:
		a := tgbotapi.NewAnimation(chatID, file)
		a.Caption = caption
		a.DisableNotification = opts.Silent
		msg = a
	default:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption = caption
		p.DisableNotification = opts.Silent
		msg = p
	}

	sent, err := bot.Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("failed to send %s: %w", item.Type, err)
	}
	return sent, nil
}

func inputMedia(caption string, media []models.MediaItem) []interface{} {
	out := make([]interface{}, 0, len(media))
	for i, item := range media {
		c := ""
		if i == 0 {
			c = caption
		}
		if item.Type == models.MediaVideo {
			v := tgbotapi.NewInputMediaVideo(fileFor(item))
			v.Caption = c
			out = append(out, v)
			continue
		}
		p := tgbotapi.NewInputMediaPhoto(fileFor(item))
		p.Caption = c
		out = append(out, p)
	}
	return out
}

// fileFor prefers the resolved URL; a raw file id only works when source
// and target share the same bot.
func fileFor(item models.MediaItem) tgbotapi.RequestFileData {
	if item.URL != "" {
		return tgbotapi.FileURL(item.URL)
	}
	return tgbotapi.FileID(item.FileRef)
}
