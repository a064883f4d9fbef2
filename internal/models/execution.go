package models

import "time"

// TaskExecution is the append-only audit record of one (item, target) dispatch
// attempt. Dispatch always writes a terminal success/failed record.
type TaskExecution struct {
	ID                 int64              `json:"id"`
	TaskID             int64              `json:"task_id"`
	SourceAccount      int64              `json:"source_account"`
	TargetAccount      int64              `json:"target_account"`
	OriginalContent    string             `json:"original_content"`
	TransformedContent string             `json:"transformed_content"`
	Status             string             `json:"status"` // success, failed, pending
	Error              string             `json:"error,omitempty"`
	ExecutedAt         time.Time          `json:"executed_at"`
	ResponseData       *ExecutionResponse `json:"response_data,omitempty"`
}

// ExecutionResponse is a tagged per-platform union of dispatch results.
type ExecutionResponse struct {
	SourceItemID string            `json:"source_item_id,omitempty"`
	Twitter      *TwitterResponse  `json:"twitter,omitempty"`
	Telegram     *TelegramResponse `json:"telegram,omitempty"`
	YouTube      *YouTubeResponse  `json:"youtube,omitempty"`
	Facebook     *FacebookResponse `json:"facebook,omitempty"`
}

// ActionOutcome captures one platform-native action inside a dispatch.
type ActionOutcome struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TwitterResponse records the posted tweet and the fan-out action outcomes.
type TwitterResponse struct {
	TweetID string          `json:"tweet_id,omitempty"`
	URL     string          `json:"url,omitempty"`
	Actions []ActionOutcome `json:"actions,omitempty"`
}

// TelegramResponse records the sent message ids.
type TelegramResponse struct {
	ChatID     int64 `json:"chat_id"`
	MessageIDs []int `json:"message_ids"`
}

// YouTubeResponse records the uploaded video and optional playlist insertion.
type YouTubeResponse struct {
	VideoID string          `json:"video_id,omitempty"`
	URL     string          `json:"url,omitempty"`
	Actions []ActionOutcome `json:"actions,omitempty"`
}

// FacebookResponse records the created post and which publish path was used.
type FacebookResponse struct {
	PostID string `json:"post_id,omitempty"`
	Path   string `json:"path,omitempty"` // photo, album, video
}

// PrimaryID returns the platform-native id of the primary published object.
func (r *ExecutionResponse) PrimaryID() string {
	switch {
	case r == nil:
		return ""
	case r.Twitter != nil:
		return r.Twitter.TweetID
	case r.YouTube != nil:
		return r.YouTube.VideoID
	case r.Facebook != nil:
		return r.Facebook.PostID
	}
	return ""
}
