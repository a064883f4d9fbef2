package models

import (
	"fmt"
	"time"
)

// Task describes a relay rule: watch source accounts, republish to targets.
type Task struct {
	ID              int64           `json:"id"`
	Owner           string          `json:"owner"`
	Name            string          `json:"name"`
	Status          string          `json:"status"` // active, paused, completed, error
	SourceAccounts  []int64         `json:"source_accounts"`
	TargetAccounts  []int64         `json:"target_accounts"`
	ExecutionType   string          `json:"execution_type"` // immediate, scheduled, recurring
	Content         string          `json:"content"`        // static content for manual runs
	Filters         Filters         `json:"filters"`
	Transformations Transformations `json:"transformations"`
	ExecutionCount  int64           `json:"execution_count"`
	FailureCount    int64           `json:"failure_count"`
	LastExecuted    *time.Time      `json:"last_executed"`
	LastError       string          `json:"last_error"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Filters select which source items a task relays.
type Filters struct {
	Keywords        []string `json:"keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	ExcludeReplies  bool     `json:"exclude_replies,omitempty"`
	ExcludeRetweets bool     `json:"exclude_retweets,omitempty"`
	ExcludeQuotes   bool     `json:"exclude_quotes,omitempty"`
	OriginalOnly    bool     `json:"original_only,omitempty"`
	PollIntervalSec int      `json:"poll_interval_sec,omitempty"`
	TriggerType     string   `json:"trigger_type,omitempty"` // on_tweet, on_search, on_like, on_message
	TriggerValue    string   `json:"trigger_value,omitempty"`
}

// PollInterval returns the task interval clamped to the allowed bounds.
func (f Filters) PollInterval() time.Duration {
	sec := f.PollIntervalSec
	if sec == 0 {
		sec = DefaultPollIntervalSec
	}
	if sec < MinPollIntervalSec {
		sec = MinPollIntervalSec
	}
	if sec > MaxPollIntervalSec {
		sec = MaxPollIntervalSec
	}
	return time.Duration(sec) * time.Second
}

// Transformations control how a source item becomes outbound content.
type Transformations struct {
	// Template supports %text%, %username%, %name%, %date%, %link%, %media%.
	Template string   `json:"template,omitempty"`
	Prepend  string   `json:"prepend,omitempty"`
	Append   string   `json:"append,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`

	Twitter  TwitterActions  `json:"twitter,omitempty"`
	Telegram TelegramOptions `json:"telegram,omitempty"`
	YouTube  YouTubeOptions  `json:"youtube,omitempty"`
	Facebook FacebookOptions `json:"facebook,omitempty"`
}

// TwitterActions toggles per-item native actions on a Twitter target.
// Post is the primary action; Reply and Quote depend on the posted tweet.
type TwitterActions struct {
	Post      bool   `json:"post"`
	Reply     bool   `json:"reply,omitempty"`
	ReplyText string `json:"reply_text,omitempty"`
	Quote     bool   `json:"quote,omitempty"`
	QuoteText string `json:"quote_text,omitempty"`
	Retweet   bool   `json:"retweet,omitempty"`
	Like      bool   `json:"like,omitempty"`
}

// TelegramOptions tunes Telegram target publishing.
type TelegramOptions struct {
	DisablePreview bool `json:"disable_preview,omitempty"`
	Silent         bool `json:"silent,omitempty"`
}

// YouTubeOptions tunes YouTube target publishing.
type YouTubeOptions struct {
	TitleTemplate string   `json:"title_template,omitempty"`
	Privacy       string   `json:"privacy,omitempty"` // public, unlisted, private
	PlaylistID    string   `json:"playlist_id,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// FacebookOptions tunes Facebook target publishing.
type FacebookOptions struct {
	PageID string `json:"page_id,omitempty"`
}

// ValidateTask enforces invariants checked at create/update time.
// A single account must never appear on both sides of the same task.
func ValidateTask(t *Task) error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	switch t.Status {
	case TaskStatusActive, TaskStatusPaused, TaskStatusCompleted, TaskStatusError:
	default:
		return fmt.Errorf("invalid task status: %q", t.Status)
	}
	if len(t.SourceAccounts) == 0 {
		return fmt.Errorf("task requires at least one source account")
	}
	if len(t.TargetAccounts) == 0 {
		return fmt.Errorf("task requires at least one target account")
	}
	sources := make(map[int64]bool, len(t.SourceAccounts))
	for _, id := range t.SourceAccounts {
		sources[id] = true
	}
	for _, id := range t.TargetAccounts {
		if sources[id] {
			return fmt.Errorf("account %d cannot be both source and target of the same task", id)
		}
	}
	return nil
}

// IsActive reports whether the poller should consider this task at all.
func (t *Task) IsActive() bool {
	return t != nil && t.Status == TaskStatusActive
}
