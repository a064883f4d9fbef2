// Package youtube publishes videos to a channel through the Data API v3.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"crossposter/internal/media"
	"crossposter/internal/models"
	"crossposter/internal/platform"
)

const (
	defaultPrivacy = "unlisted"
	maxTitleLen    = 100
)

// ServiceFactory builds an authorized API client for an access token.
// Overridden in tests to point at a local server.
type ServiceFactory func(ctx context.Context, token string) (*youtube.Service, error)

func defaultServiceFactory(ctx context.Context, token string) (*youtube.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return youtube.NewService(ctx, option.WithTokenSource(src))
}

// Dispatcher uploads the item's video and optionally adds it to a playlist.
// YouTube is video-only: an item without a video attachment fails outright.
type Dispatcher struct {
	refresher     platform.Refresher
	downloader    *http.Client
	maxMediaBytes int64
	newService    ServiceFactory
	logger        zerolog.Logger
}

func NewDispatcher(refresher platform.Refresher, maxMediaBytes int64, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		refresher:     refresher,
		downloader:    http.DefaultClient,
		maxMediaBytes: maxMediaBytes,
		newService:    defaultServiceFactory,
		logger:        logger,
	}
}

func (d *Dispatcher) PlatformID() string { return models.PlatformYouTube }

func (d *Dispatcher) Publish(ctx context.Context, target *models.PlatformAccount, rendered string, mediaItems []models.MediaItem, task *models.Task) (*models.ExecutionResponse, error) {
	if target.Credentials.YouTube == nil {
		return nil, fmt.Errorf("account %d has no youtube credentials", target.ID)
	}
	video := models.FirstVideo(mediaItems)
	if video == nil {
		return nil, fmt.Errorf("youtube target requires a video attachment")
	}

	dl, err := media.Fetch(ctx, d.downloader, video.URL, "", d.maxMediaBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	defer dl.Close()

	opts := task.Transformations.YouTube
	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       titleFor(opts, rendered),
			Description: rendered,
			Tags:        opts.Tags,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacyFor(opts)},
	}

	var inserted *youtube.Video
	op := func(ctx context.Context) error {
		file, err := os.Open(dl.Path)
		if err != nil {
			return fmt.Errorf("failed to open video file: %w", err)
		}
		defer file.Close()

		svc, err := d.newService(ctx, target.Credentials.YouTube.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to build youtube client: %w", err)
		}
		inserted, err = svc.Videos.Insert([]string{"snippet", "status"}, upload).
			Media(file).Context(ctx).Do()
		return wrapAuth(err)
	}
	if err := platform.WithAuthRetry(ctx, d.logger, target, d.refresher, op); err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}

	resp := &models.YouTubeResponse{
		VideoID: inserted.Id,
		URL:     "https://www.youtube.com/watch?v=" + inserted.Id,
		Actions: []models.ActionOutcome{{Action: "upload", OK: true, ID: inserted.Id}},
	}

	if opts.PlaylistID != "" {
		outcome := models.ActionOutcome{Action: "playlist_add", ID: opts.PlaylistID, OK: true}
		if err := d.addToPlaylist(ctx, target, opts.PlaylistID, inserted.Id); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
			d.logger.Warn().Str("playlist_id", opts.PlaylistID).Err(err).Msg("playlist insert failed")
		}
		resp.Actions = append(resp.Actions, outcome)
	}

	return &models.ExecutionResponse{YouTube: resp}, nil
}

func (d *Dispatcher) addToPlaylist(ctx context.Context, target *models.PlatformAccount, playlistID, videoID string) error {
	op := func(ctx context.Context) error {
		svc, err := d.newService(ctx, target.Credentials.YouTube.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to build youtube client: %w", err)
		}
		_, err = svc.PlaylistItems.Insert([]string{"snippet"}, &youtube.PlaylistItem{
			Snippet: &youtube.PlaylistItemSnippet{
				PlaylistId: playlistID,
				ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
			},
		}).Context(ctx).Do()
		return wrapAuth(err)
	}
	return platform.WithAuthRetry(ctx, d.logger, target, d.refresher, op)
}

func titleFor(opts models.YouTubeOptions, rendered string) string {
	title := opts.TitleTemplate
	if title == "" {
		title = rendered
	}
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	return title
}

func privacyFor(opts models.YouTubeOptions) string {
	switch opts.Privacy {
	case "public", "unlisted", "private":
		return opts.Privacy
	}
	return defaultPrivacy
}

// wrapAuth converts a 401 from the API into the shared auth error so the
// refresh pass can see it.
func wrapAuth(err error) error {
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == http.StatusUnauthorized {
		return &platform.AuthError{Platform: "youtube", StatusCode: gerr.Code, Message: gerr.Message}
	}
	return err
}
