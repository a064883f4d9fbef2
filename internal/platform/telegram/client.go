// Package telegram reads source chats through getUpdates and publishes to
// target chats, including media groups.
package telegram

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the slice of the Telegram client both sides of the relay use.
// Satisfied by *tgbotapi.BotAPI; mocked in tests.
type BotAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// BotFactory builds a client for a bot token.
type BotFactory func(token string) (BotAPI, error)

// DefaultBotFactory dials the real Telegram API.
func DefaultBotFactory(token string) (BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", err)
	}
	return bot, nil
}

// BotPool caches one client per bot token. Accounts sharing a token share
// the client.
type BotPool struct {
	mu      sync.Mutex
	factory BotFactory
	bots    map[string]BotAPI
}

func NewBotPool(factory BotFactory) *BotPool {
	if factory == nil {
		factory = DefaultBotFactory
	}
	return &BotPool{factory: factory, bots: make(map[string]BotAPI)}
}

func (p *BotPool) Get(token string) (BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("empty bot token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if bot, ok := p.bots[token]; ok {
		return bot, nil
	}
	bot, err := p.factory(token)
	if err != nil {
		return nil, err
	}
	p.bots[token] = bot
	return bot, nil
}
