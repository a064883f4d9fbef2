package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"crossposter/internal/media"
	"crossposter/internal/models"
	"crossposter/internal/platform"
)

// Dispatcher publishes to a Twitter target: posts the tweet and fans out the
// enabled native actions (reply, quote, retweet, like). The post is the
// primary action; a failed fan-out action is recorded but does not fail the
// dispatch.
type Dispatcher struct {
	client        *Client
	refresher     platform.Refresher
	downloader    *http.Client
	maxMediaBytes int64
	logger        zerolog.Logger
}

func NewDispatcher(client *Client, refresher platform.Refresher, maxMediaBytes int64, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		client:        client,
		refresher:     refresher,
		downloader:    http.DefaultClient,
		maxMediaBytes: maxMediaBytes,
		logger:        logger,
	}
}

func (d *Dispatcher) PlatformID() string { return models.PlatformTwitter }

type tweetRequest struct {
	Text  string `json:"text"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
	QuoteTweetID string `json:"quote_tweet_id,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (d *Dispatcher) Publish(ctx context.Context, target *models.PlatformAccount, rendered string, mediaItems []models.MediaItem, task *models.Task) (*models.ExecutionResponse, error) {
	if target.Credentials.Twitter == nil {
		return nil, fmt.Errorf("account %d has no twitter credentials", target.ID)
	}

	actions := task.Transformations.Twitter
	if !actions.Post && !actions.Reply && !actions.Quote && !actions.Retweet && !actions.Like {
		actions.Post = true
	}

	mediaIDs, err := d.uploadAll(ctx, target, mediaItems)
	if err != nil {
		return nil, err
	}

	tweetID, err := d.postTweet(ctx, target, tweetRequestFor(rendered, mediaIDs, "", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to post tweet: %w", err)
	}

	resp := &models.TwitterResponse{
		TweetID: tweetID,
		URL:     fmt.Sprintf("https://twitter.com/%s/status/%s", target.Username, tweetID),
		Actions: []models.ActionOutcome{{Action: "post", OK: true, ID: tweetID}},
	}
	resp.Actions = append(resp.Actions, d.fanOut(ctx, target, actions, tweetID)...)

	return &models.ExecutionResponse{Twitter: resp}, nil
}

// fanOut runs the secondary actions against the freshly posted tweet.
func (d *Dispatcher) fanOut(ctx context.Context, target *models.PlatformAccount, actions models.TwitterActions, tweetID string) []models.ActionOutcome {
	var outcomes []models.ActionOutcome
	record := func(action, id string, err error) {
		o := models.ActionOutcome{Action: action, OK: err == nil, ID: id}
		if err != nil {
			o.Error = err.Error()
			d.logger.Warn().Str("action", action).Str("tweet_id", tweetID).Err(err).Msg("fan-out action failed")
		}
		outcomes = append(outcomes, o)
	}

	if actions.Reply {
		id, err := d.postTweet(ctx, target, tweetRequestFor(actions.ReplyText, nil, tweetID, ""))
		record("reply", id, err)
	}
	if actions.Quote {
		id, err := d.postTweet(ctx, target, tweetRequestFor(actions.QuoteText, nil, "", tweetID))
		record("quote", id, err)
	}
	if actions.Retweet {
		err := d.userAction(ctx, target, "retweets", tweetID)
		record("retweet", "", err)
	}
	if actions.Like {
		err := d.userAction(ctx, target, "likes", tweetID)
		record("like", "", err)
	}
	return outcomes
}

func tweetRequestFor(text string, mediaIDs []string, replyTo, quote string) tweetRequest {
	req := tweetRequest{Text: text, QuoteTweetID: quote}
	if len(mediaIDs) > 0 {
		req.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: mediaIDs}
	}
	if replyTo != "" {
		req.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: replyTo}
	}
	return req
}

func (d *Dispatcher) postTweet(ctx context.Context, target *models.PlatformAccount, req tweetRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode tweet: %w", err)
	}

	var resp tweetResponse
	op := func(ctx context.Context) error {
		resp = tweetResponse{}
		token := target.Credentials.Twitter.AccessToken
		return d.client.do(ctx, token, http.MethodPost, d.client.apiBase+"/2/tweets",
			"application/json", bytes.NewReader(payload), &resp)
	}
	if err := platform.WithAuthRetry(ctx, d.logger, target, d.refresher, op); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// userAction hits POST /2/users/:id/{retweets|likes} with a tweet id.
func (d *Dispatcher) userAction(ctx context.Context, target *models.PlatformAccount, action, tweetID string) error {
	payload, _ := json.Marshal(map[string]string{"tweet_id": tweetID})
	url := fmt.Sprintf("%s/2/users/%s/%s", d.client.apiBase, target.AccountID, action)

	op := func(ctx context.Context) error {
		token := target.Credentials.Twitter.AccessToken
		return d.client.do(ctx, token, http.MethodPost, url, "application/json", bytes.NewReader(payload), nil)
	}
	return platform.WithAuthRetry(ctx, d.logger, target, d.refresher, op)
}

// uploadAll downloads each attachment to a temp file and pushes it through
// the chunked upload. Temp files are removed on every path.
func (d *Dispatcher) uploadAll(ctx context.Context, target *models.PlatformAccount, items []models.MediaItem) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		dl, err := media.Fetch(ctx, d.downloader, item.URL, "", d.maxMediaBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to download media: %w", err)
		}

		mimeType := item.Mime
		if mimeType == "" {
			mimeType = dl.Mime
		}
		var id string
		op := func(ctx context.Context) error {
			token := target.Credentials.Twitter.AccessToken
			var uerr error
			id, uerr = d.client.UploadMedia(ctx, token, dl.Path, mimeType, CategoryFor(item.Type))
			return uerr
		}
		err = platform.WithAuthRetry(ctx, d.logger, target, d.refresher, op)
		dl.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to upload media: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
