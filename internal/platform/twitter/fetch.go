package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/models"
	"crossposter/internal/platform"
)

// Fetcher reads new tweets for a source account. The trigger type selects
// the endpoint: user timeline, recent search, or liked tweets.
type Fetcher struct {
	client    *Client
	refresher platform.Refresher
	logger    zerolog.Logger
}

func NewFetcher(client *Client, refresher platform.Refresher, logger zerolog.Logger) *Fetcher {
	return &Fetcher{client: client, refresher: refresher, logger: logger}
}

type tweetsResponse struct {
	Data []struct {
		ID               string `json:"id"`
		Text             string `json:"text"`
		AuthorID         string `json:"author_id"`
		CreatedAt        string `json:"created_at"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Media []struct {
			MediaKey string `json:"media_key"`
			Type     string `json:"type"`
			URL      string `json:"url"`
			Variants []struct {
				BitRate     int64  `json:"bit_rate"`
				ContentType string `json:"content_type"`
				URL         string `json:"url"`
			} `json:"variants"`
		} `json:"media"`
		Users []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

func (f *Fetcher) Fetch(ctx context.Context, account *models.PlatformAccount, filters models.Filters, sinceID string) ([]models.ContentItem, error) {
	if account.Credentials.Twitter == nil {
		return nil, fmt.Errorf("account %d has no twitter credentials", account.ID)
	}

	var resp tweetsResponse
	op := func(ctx context.Context) error {
		resp = tweetsResponse{}
		token := account.Credentials.Twitter.AccessToken
		return f.client.do(ctx, token, http.MethodGet, f.endpoint(account, filters, sinceID), "", nil, &resp)
	}
	if err := platform.WithAuthRetry(ctx, f.logger, account, f.refresher, op); err != nil {
		return nil, fmt.Errorf("failed to fetch tweets: %w", err)
	}

	items := f.mapItems(resp)

	// liked_tweets не поддерживает since_id, отфильтровываем локально
	if filters.TriggerType == models.TriggerOnLike && sinceID != "" {
		since, _ := strconv.ParseInt(sinceID, 10, 64)
		filtered := items[:0]
		for _, it := range items {
			if it.SortKey > since {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SortKey < items[j].SortKey })
	return items, nil
}

func (f *Fetcher) endpoint(account *models.PlatformAccount, filters models.Filters, sinceID string) string {
	q := url.Values{}
	q.Set("max_results", "100")
	q.Set("tweet.fields", "created_at,referenced_tweets,attachments,author_id")
	q.Set("expansions", "attachments.media_keys,author_id")
	q.Set("media.fields", "url,type,variants")
	q.Set("user.fields", "name,username")

	var path string
	switch filters.TriggerType {
	case models.TriggerOnSearch:
		path = "/2/tweets/search/recent"
		q.Set("query", filters.TriggerValue)
		if sinceID != "" {
			q.Set("since_id", sinceID)
		}
	case models.TriggerOnLike:
		path = fmt.Sprintf("/2/users/%s/liked_tweets", account.AccountID)
	default: // on_tweet
		path = fmt.Sprintf("/2/users/%s/tweets", account.AccountID)
		if sinceID != "" {
			q.Set("since_id", sinceID)
		}
	}

	return f.client.apiBase + path + "?" + q.Encode()
}

func (f *Fetcher) mapItems(resp tweetsResponse) []models.ContentItem {
	mediaByKey := make(map[string]models.MediaItem, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		item := models.MediaItem{Type: models.MediaPhoto, URL: m.URL}
		switch m.Type {
		case "video":
			item.Type = models.MediaVideo
			item.URL, item.Mime = bestVariant(m.Variants)
		case "animated_gif":
			item.Type = models.MediaAnimation
			item.URL, item.Mime = bestVariant(m.Variants)
		}
		mediaByKey[m.MediaKey] = item
	}
	type user struct{ name, username string }
	users := make(map[string]user, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = user{name: u.Name, username: u.Username}
	}

	items := make([]models.ContentItem, 0, len(resp.Data))
	for _, tw := range resp.Data {
		sortKey, err := strconv.ParseInt(tw.ID, 10, 64)
		if err != nil {
			f.logger.Warn().Str("tweet_id", tw.ID).Msg("non-numeric tweet id, skipping")
			continue
		}
		author := users[tw.AuthorID]
		item := models.ContentItem{
			ID:             tw.ID,
			SortKey:        sortKey,
			Text:           tw.Text,
			AuthorUsername: author.username,
			AuthorName:     author.name,
			Link:           fmt.Sprintf("https://twitter.com/%s/status/%s", author.username, tw.ID),
		}
		if ts, err := time.Parse(time.RFC3339, tw.CreatedAt); err == nil {
			item.CreatedAt = ts
		}
		for _, ref := range tw.ReferencedTweets {
			switch ref.Type {
			case "replied_to":
				item.IsReply = true
			case "retweeted":
				item.IsRetweet = true
			case "quoted":
				item.IsQuote = true
			}
		}
		for _, key := range tw.Attachments.MediaKeys {
			if m, ok := mediaByKey[key]; ok && m.URL != "" {
				item.Media = append(item.Media, m)
			}
		}
		items = append(items, item)
	}
	return items
}

// bestVariant picks the highest-bitrate mp4 rendition.
func bestVariant(variants []struct {
	BitRate     int64  `json:"bit_rate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}) (string, string) {
	var url, mime string
	var best int64 = -1
	for _, v := range variants {
		if v.ContentType == "video/mp4" && v.BitRate > best {
			best = v.BitRate
			url = v.URL
			mime = v.ContentType
		}
	}
	return url, mime
}
