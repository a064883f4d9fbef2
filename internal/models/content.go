package models

import "time"

// Media types inside a ContentItem.
const (
	MediaPhoto     = "photo"
	MediaVideo     = "video"
	MediaAnimation = "animation"
)

// ContentItem is one piece of source content returned by a fetcher.
type ContentItem struct {
	ID             string      `json:"id"`
	SortKey        int64       `json:"sort_key"` // numeric id or unix time, ascending
	Text           string      `json:"text"`
	AuthorUsername string      `json:"author_username"`
	AuthorName     string      `json:"author_name"`
	CreatedAt      time.Time   `json:"created_at"`
	Link           string      `json:"link"`
	Media          []MediaItem `json:"media,omitempty"`

	IsReply   bool `json:"is_reply,omitempty"`
	IsRetweet bool `json:"is_retweet,omitempty"`
	IsQuote   bool `json:"is_quote,omitempty"`
	IsForward bool `json:"is_forward,omitempty"`

	// Telegram source coordinates, used for dedup markers and albums.
	ChatID       int64  `json:"chat_id,omitempty"`
	MessageID    int    `json:"message_id,omitempty"`
	MediaGroupID string `json:"media_group_id,omitempty"`
}

// MediaItem references a downloadable media attachment.
type MediaItem struct {
	Type string `json:"type"` // photo, video, animation
	// URL is a directly downloadable location when the platform exposes one.
	URL string `json:"url,omitempty"`
	// FileRef is a platform file handle that must be resolved before download.
	FileRef string `json:"file_ref,omitempty"`
	Mime    string `json:"mime,omitempty"`
	Bytes   int64  `json:"bytes,omitempty"`
}

// IsOriginal reports whether the item is neither reply, repost nor quote.
func (c *ContentItem) IsOriginal() bool {
	return !c.IsReply && !c.IsRetweet && !c.IsQuote && !c.IsForward
}

// HasVideo reports whether any attachment is a video.
func HasVideo(media []MediaItem) bool {
	for _, m := range media {
		if m.Type == MediaVideo {
			return true
		}
	}
	return false
}

// Photos returns the photo attachments only.
func Photos(media []MediaItem) []MediaItem {
	var out []MediaItem
	for _, m := range media {
		if m.Type == MediaPhoto {
			out = append(out, m)
		}
	}
	return out
}

// FirstVideo returns the first video attachment, if any.
func FirstVideo(media []MediaItem) *MediaItem {
	for i := range media {
		if media[i].Type == MediaVideo {
			return &media[i]
		}
	}
	return nil
}
