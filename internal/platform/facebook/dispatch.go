// Package facebook publishes to a page through the Graph API. The publish
// path is picked from the media mix: a video wins over everything, two or
// more photos become an album, one photo goes out as a single image.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/models"
	"crossposter/internal/platform"
)

const defaultGraphBase = "https://graph.facebook.com/v19.0"

// Publish path labels recorded in ResponseData.
const (
	PathPhoto = "photo"
	PathAlbum = "album"
	PathVideo = "video"
	PathFeed  = "feed"
)

type Dispatcher struct {
	http      *http.Client
	graphBase string
	refresher platform.Refresher
	logger    zerolog.Logger
}

func NewDispatcher(httpClient *http.Client, refresher platform.Refresher, logger zerolog.Logger) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Dispatcher{
		http:      httpClient,
		graphBase: defaultGraphBase,
		refresher: refresher,
		logger:    logger,
	}
}

// SetGraphBase overrides the API host. Used in tests.
func (d *Dispatcher) SetGraphBase(base string) { d.graphBase = base }

func (d *Dispatcher) PlatformID() string { return models.PlatformFacebook }

func (d *Dispatcher) Publish(ctx context.Context, target *models.PlatformAccount, rendered string, media []models.MediaItem, task *models.Task) (*models.ExecutionResponse, error) {
	creds := target.Credentials.Facebook
	if creds == nil {
		return nil, fmt.Errorf("account %d has no facebook credentials", target.ID)
	}
	pageID := task.Transformations.Facebook.PageID
	if pageID == "" {
		pageID = creds.PageID
	}
	if pageID == "" {
		return nil, fmt.Errorf("account %d has no facebook page configured", target.ID)
	}

	var resp *models.FacebookResponse
	op := func(ctx context.Context) error {
		var err error
		resp, err = d.publishOnce(ctx, target, pageID, rendered, media)
		return err
	}
	if err := platform.WithAuthRetry(ctx, d.logger, target, d.refresher, op); err != nil {
		return nil, err
	}
	return &models.ExecutionResponse{Facebook: resp}, nil
}

func (d *Dispatcher) publishOnce(ctx context.Context, target *models.PlatformAccount, pageID, rendered string, media []models.MediaItem) (*models.FacebookResponse, error) {
	token := pageToken(target.Credentials.Facebook)
	photos := models.Photos(media)

	switch {
	case models.HasVideo(media):
		video := models.FirstVideo(media)
		id, err := d.post(ctx, pageID+"/videos", url.Values{
			"file_url":     {video.URL},
			"description":  {rendered},
			"access_token": {token},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to publish video: %w", err)
		}
		return &models.FacebookResponse{PostID: id, Path: PathVideo}, nil

	case len(photos) >= 2:
		return d.publishAlbum(ctx, pageID, token, rendered, photos)

	case len(photos) == 1:
		id, err := d.post(ctx, pageID+"/photos", url.Values{
			"url":          {photos[0].URL},
			"caption":      {rendered},
			"access_token": {token},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to publish photo: %w", err)
		}
		return &models.FacebookResponse{PostID: id, Path: PathPhoto}, nil

	default:
		id, err := d.post(ctx, pageID+"/feed", url.Values{
			"message":      {rendered},
			"access_token": {token},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to publish post: %w", err)
		}
		return &models.FacebookResponse{PostID: id, Path: PathFeed}, nil
	}
}

// publishAlbum uploads every photo unpublished, then creates one feed post
// referencing them all.
func (d *Dispatcher) publishAlbum(ctx context.Context, pageID, token, rendered string, photos []models.MediaItem) (*models.FacebookResponse, error) {
	form := url.Values{
		"message":      {rendered},
		"access_token": {token},
	}
	for i, photo := range photos {
		id, err := d.post(ctx, pageID+"/photos", url.Values{
			"url":          {photo.URL},
			"published":    {"false"},
			"access_token": {token},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload album photo %d: %w", i, err)
		}
		form.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, id))
	}

	id, err := d.post(ctx, pageID+"/feed", form)
	if err != nil {
		return nil, fmt.Errorf("failed to publish album: %w", err)
	}
	return &models.FacebookResponse{PostID: id, Path: PathAlbum}, nil
}

type graphResult struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
	Error  *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (d *Dispatcher) post(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.graphBase+"/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result graphResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("graph api status %d: undecodable body", resp.StatusCode)
	}
	if result.Error != nil {
		// Код 190 — просроченный или отозванный токен.
		if result.Error.Code == 190 || resp.StatusCode == http.StatusUnauthorized {
			return "", &platform.AuthError{Platform: "facebook", StatusCode: resp.StatusCode, Message: result.Error.Message}
		}
		return "", fmt.Errorf("graph api error %d: %s", result.Error.Code, result.Error.Message)
	}
	if result.PostID != "" {
		return result.PostID, nil
	}
	return result.ID, nil
}

// pageToken prefers the page-scoped token over the user token.
func pageToken(creds *models.FacebookCredentials) string {
	if creds.PageToken != "" {
		return creds.PageToken
	}
	return creds.AccessToken
}
