package transform

import (
	"strings"

	"crossposter/internal/models"
)

// Render expands a task template against one source item. Deterministic and
// side-effect free: the same rendered string feeds every target dispatch of
// the item.
//
// Supported placeholders: %text%, %username%, %name%, %date%, %link%, %media%.
func Render(trans models.Transformations, item models.ContentItem, source *models.PlatformAccount) string {
	if trans.Template == "" {
		return decorate(trans, item.Text)
	}

	username := item.AuthorUsername
	name := item.AuthorName
	if source != nil {
		if username == "" {
			username = source.Username
		}
		if name == "" {
			name = source.AccountName
		}
	}

	replacer := strings.NewReplacer(
		"%text%", item.Text,
		"%username%", username,
		"%name%", name,
		"%date%", item.CreatedAt.Format("2006-01-02 15:04"),
		"%link%", item.Link,
		"%media%", mediaLinks(item.Media),
	)
	return decorate(trans, replacer.Replace(trans.Template))
}

func mediaLinks(media []models.MediaItem) string {
	if len(media) == 0 {
		return ""
	}
	urls := make([]string, 0, len(media))
	for _, m := range media {
		if m.URL != "" {
			urls = append(urls, m.URL)
		}
	}
	return strings.Join(urls, " ")
}

func decorate(trans models.Transformations, text string) string {
	var b strings.Builder
	if trans.Prepend != "" {
		b.WriteString(trans.Prepend)
		b.WriteString(" ")
	}
	b.WriteString(text)
	if trans.Append != "" {
		b.WriteString(" ")
		b.WriteString(trans.Append)
	}
	for _, tag := range trans.Hashtags {
		b.WriteString(" ")
		if !strings.HasPrefix(tag, "#") {
			b.WriteString("#")
		}
		b.WriteString(tag)
	}
	return b.String()
}
