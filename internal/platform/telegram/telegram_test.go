package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossposter/internal/database"
	"crossposter/internal/models"
)

type mockBot struct {
	updates    []tgbotapi.Update
	getErr     error
	gotConfig  tgbotapi.UpdateConfig
	sent       []tgbotapi.Chattable
	groups     []tgbotapi.MediaGroupConfig
	sendErr    error
	nextMsgID  int
	fileURLs   map[string]string
	fileErr    error
}

func (m *mockBot) GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	m.gotConfig = config
	return m.updates, m.getErr
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	m.sent = append(m.sent, c)
	m.nextMsgID++
	return tgbotapi.Message{MessageID: m.nextMsgID}, nil
}

func (m *mockBot) SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.groups = append(m.groups, config)
	out := make([]tgbotapi.Message, len(config.Media))
	for i := range out {
		m.nextMsgID++
		out[i] = tgbotapi.Message{MessageID: m.nextMsgID}
	}
	return out, nil
}

func (m *mockBot) GetFileDirectURL(fileID string) (string, error) {
	if m.fileErr != nil {
		return "", m.fileErr
	}
	return m.fileURLs[fileID], nil
}

func poolWith(bot BotAPI) *BotPool {
	return NewBotPool(func(token string) (BotAPI, error) { return bot, nil })
}

func newStore(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "telegram.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sourceAccount(t *testing.T, db *database.DB, offset int) *models.PlatformAccount {
	t.Helper()
	account := &models.PlatformAccount{
		Owner:       "ops",
		PlatformID:  models.PlatformTelegram,
		AccountName: "channel",
		Credentials: models.Credentials{
			Telegram: &models.TelegramCredentials{BotToken: "token", ChatID: -100500, Offset: offset},
		},
	}
	require.NoError(t, db.CreateAccount(context.Background(), account))
	return account
}

func textUpdate(updateID, messageID int, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Date:      1767225600,
			Text:      text,
			Chat:      &tgbotapi.Chat{ID: chatID, UserName: "relay_src"},
			From:      &tgbotapi.User{UserName: "author", FirstName: "Ann", LastName: "B"},
		},
	}
}

func TestFetchMapsAndAdvancesOffset(t *testing.T) {
	db := newStore(t)
	account := sourceAccount(t, db, 7)

	photoMsg := textUpdate(12, 102, -100500, "")
	photoMsg.Message.Caption = "photo caption"
	photoMsg.Message.MediaGroupID = "album-1"
	photoMsg.Message.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", FileSize: 100},
		{FileID: "big", FileSize: 900},
	}

	bot := &mockBot{
		updates: []tgbotapi.Update{
			textUpdate(10, 101, -100500, "hello"),
			textUpdate(11, 5, 42, "other chat"), // чужой чат
			photoMsg,
		},
		fileURLs: map[string]string{"big": "https://files.example/big.jpg"},
	}

	f := NewFetcher(poolWith(bot), db, 100, zerolog.Nop())
	items, err := f.Fetch(context.Background(), account, models.Filters{}, "")
	require.NoError(t, err)

	assert.Equal(t, 7, bot.gotConfig.Offset)
	require.Len(t, items, 2)

	assert.Equal(t, "101", items[0].ID)
	assert.Equal(t, "hello", items[0].Text)
	assert.Equal(t, "author", items[0].AuthorUsername)
	assert.Equal(t, "Ann B", items[0].AuthorName)
	assert.Equal(t, "https://t.me/relay_src/101", items[0].Link)
	assert.Equal(t, int64(-100500), items[0].ChatID)

	assert.Equal(t, "photo caption", items[1].Text)
	assert.Equal(t, "album-1", items[1].MediaGroupID)
	require.Len(t, items[1].Media, 1)
	assert.Equal(t, models.MediaPhoto, items[1].Media[0].Type)
	assert.Equal(t, "big", items[1].Media[0].FileRef)
	assert.Equal(t, "https://files.example/big.jpg", items[1].Media[0].URL)

	// Offset подтверждён в хранилище.
	stored, err := db.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 13, stored.Credentials.Telegram.Offset)
}

func TestFetchEmptyBatchKeepsOffset(t *testing.T) {
	db := newStore(t)
	account := sourceAccount(t, db, 50)
	bot := &mockBot{}

	f := NewFetcher(poolWith(bot), db, 100, zerolog.Nop())
	items, err := f.Fetch(context.Background(), account, models.Filters{}, "")
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, err := db.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Credentials.Telegram.Offset)
}

func TestFetchForwardAndReplyFlags(t *testing.T) {
	db := newStore(t)
	account := sourceAccount(t, db, 0)

	fwd := textUpdate(1, 1, -100500, "fwd")
	fwd.Message.ForwardFrom = &tgbotapi.User{UserName: "origin"}
	reply := textUpdate(2, 2, -100500, "re")
	reply.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 1}

	bot := &mockBot{updates: []tgbotapi.Update{fwd, reply}}
	f := NewFetcher(poolWith(bot), db, 100, zerolog.Nop())

	items, err := f.Fetch(context.Background(), account, models.Filters{}, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsForward)
	assert.True(t, items[1].IsReply)
}

func TestPublishText(t *testing.T) {
	bot := &mockBot{}
	d := NewDispatcher(poolWith(bot), zerolog.Nop())

	target := &models.PlatformAccount{
		ID: 2,
		Credentials: models.Credentials{
			Telegram: &models.TelegramCredentials{BotToken: "token", ChatID: 777},
		},
	}
	task := &models.Task{Transformations: models.Transformations{
		Telegram: models.TelegramOptions{DisablePreview: true, Silent: true},
	}}

	resp, err := d.Publish(context.Background(), target, "посмотрите", nil, task)
	require.NoError(t, err)

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(777), msg.ChatID)
	assert.Equal(t, "посмотрите", msg.Text)
	assert.True(t, msg.DisableWebPagePreview)
	assert.True(t, msg.DisableNotification)

	require.NotNil(t, resp.Telegram)
	assert.Equal(t, int64(777), resp.Telegram.ChatID)
	assert.Equal(t, []int{1}, resp.Telegram.MessageIDs)
}

func TestPublishSinglePhoto(t *testing.T) {
	bot := &mockBot{}
	d := NewDispatcher(poolWith(bot), zerolog.Nop())

	target := &models.PlatformAccount{
		Credentials: models.Credentials{Telegram: &models.TelegramCredentials{BotToken: "token", ChatID: 777}},
	}
	media := []models.MediaItem{{Type: models.MediaPhoto, URL: "https://files.example/a.jpg"}}

	resp, err := d.Publish(context.Background(), target, "caption", media, &models.Task{})
	require.NoError(t, err)

	require.Len(t, bot.sent, 1)
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "caption", photo.Caption)
	assert.Equal(t, tgbotapi.FileURL("https://files.example/a.jpg"), photo.File)
	assert.Equal(t, []int{1}, resp.Telegram.MessageIDs)
}

func TestPublishMediaGroup(t *testing.T) {
	bot := &mockBot{}
	d := NewDispatcher(poolWith(bot), zerolog.Nop())

	target := &models.PlatformAccount{
		Credentials: models.Credentials{Telegram: &models.TelegramCredentials{BotToken: "token", ChatID: 777}},
	}
	media := []models.MediaItem{
		{Type: models.MediaPhoto, URL: "https://files.example/a.jpg"},
		{Type: models.MediaVideo, FileRef: "vid-1"},
		{Type: models.MediaPhoto, URL: "https://files.example/b.jpg"},
	}

	resp, err := d.Publish(context.Background(), target, "album caption", media, &models.Task{})
	require.NoError(t, err)

	require.Len(t, bot.groups, 1)
	group := bot.groups[0]
	require.Len(t, group.Media, 3)

	first, ok := group.Media[0].(tgbotapi.InputMediaPhoto)
	require.True(t, ok)
	assert.Equal(t, "album caption", first.Caption)

	second, ok := group.Media[1].(tgbotapi.InputMediaVideo)
	require.True(t, ok)
	assert.Empty(t, second.Caption)
	assert.Equal(t, tgbotapi.FileID("vid-1"), second.Media)

	assert.Equal(t, []int{1, 2, 3}, resp.Telegram.MessageIDs)
}

func TestPublishSendError(t *testing.T) {
	bot := &mockBot{sendErr: errors.New("chat not found")}
	d := NewDispatcher(poolWith(bot), zerolog.Nop())

	target := &models.PlatformAccount{
		Credentials: models.Credentials{Telegram: &models.TelegramCredentials{BotToken: "token", ChatID: 1}},
	}
	_, err := d.Publish(context.Background(), target, "x", nil, &models.Task{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
