package models

import "time"

// PlatformAccount is a connected social account owned by a user.
type PlatformAccount struct {
	ID          int64       `yaml:"id" json:"id"`
	Owner       string      `yaml:"owner" json:"owner"`
	PlatformID  string      `yaml:"platform_id" json:"platform_id"` // twitter, telegram, youtube, facebook
	AccountName string      `yaml:"account_name" json:"account_name"`
	Username    string      `yaml:"username" json:"username"`
	AccountID   string      `yaml:"account_id" json:"account_id"` // platform-native identifier
	Credentials Credentials `yaml:"credentials" json:"credentials"`
	IsActive    bool        `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time   `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `yaml:"updated_at" json:"updated_at"`
}

// Credentials is a tagged per-platform union. Exactly one member is set,
// matching the account's PlatformID.
type Credentials struct {
	Twitter  *TwitterCredentials  `yaml:"twitter,omitempty" json:"twitter,omitempty"`
	Telegram *TelegramCredentials `yaml:"telegram,omitempty" json:"telegram,omitempty"`
	YouTube  *YouTubeCredentials  `yaml:"youtube,omitempty" json:"youtube,omitempty"`
	Facebook *FacebookCredentials `yaml:"facebook,omitempty" json:"facebook,omitempty"`
}

// TwitterCredentials holds the OAuth2 user-context token pair.
type TwitterCredentials struct {
	AccessToken  string `yaml:"access_token" json:"access_token"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
}

// TelegramCredentials identify a bot and the chat it reads from / posts to.
type TelegramCredentials struct {
	BotToken string `yaml:"bot_token" json:"bot_token"`
	ChatID   int64  `yaml:"chat_id" json:"chat_id"`
	// Offset is the last confirmed getUpdates offset for source accounts.
	Offset int `yaml:"offset,omitempty" json:"offset,omitempty"`
}

// YouTubeCredentials holds the OAuth2 token pair for the channel owner.
type YouTubeCredentials struct {
	AccessToken  string `yaml:"access_token" json:"access_token"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
}

// FacebookCredentials hold a user token plus the page the account publishes to.
type FacebookCredentials struct {
	AccessToken string `yaml:"access_token" json:"access_token"`
	PageID      string `yaml:"page_id" json:"page_id"`
	PageToken   string `yaml:"page_token,omitempty" json:"page_token,omitempty"`
}

// DisplayName returns a human-facing label for logs and reports.
func (a *PlatformAccount) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.Username != "" {
		return a.Username
	}
	return a.AccountName
}
