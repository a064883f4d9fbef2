package twitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"crossposter/internal/models"
	"crossposter/internal/worker"
)

const uploadChunkSize = 4 << 20

// Upload media categories.
const (
	CategoryImage = "tweet_image"
	CategoryGIF   = "tweet_gif"
	CategoryVideo = "tweet_video"
)

type uploadResponse struct {
	MediaIDString  string `json:"media_id_string"`
	ProcessingInfo *struct {
		State          string `json:"state"` // pending, in_progress, succeeded, failed
		CheckAfterSecs int    `json:"check_after_secs"`
		Error          *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"processing_info"`
}

// CategoryFor maps a media attachment type to an upload category.
func CategoryFor(mediaType string) string {
	switch mediaType {
	case models.MediaVideo:
		return CategoryVideo
	case models.MediaAnimation:
		return CategoryGIF
	default:
		return CategoryImage
	}
}

// UploadMedia runs the chunked INIT/APPEND/FINALIZE flow for a local file
// and waits for async processing to finish. Returns the media id to attach
// to a tweet.
func (c *Client) UploadMedia(ctx context.Context, token, path, mimeType, category string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat media file: %w", err)
	}

	mediaID, err := c.uploadInit(ctx, token, info.Size(), mimeType, category)
	if err != nil {
		return "", err
	}
	if err := c.uploadAppend(ctx, token, mediaID, file); err != nil {
		return "", err
	}
	final, err := c.uploadFinalize(ctx, token, mediaID)
	if err != nil {
		return "", err
	}
	if final.ProcessingInfo == nil || final.ProcessingInfo.State == "succeeded" {
		return mediaID, nil
	}

	if err := c.awaitProcessing(ctx, token, mediaID, final.ProcessingInfo.CheckAfterSecs); err != nil {
		return "", err
	}
	return mediaID, nil
}

func (c *Client) uploadInit(ctx context.Context, token string, totalBytes int64, mimeType, category string) (string, error) {
	form := url.Values{}
	form.Set("command", "INIT")
	form.Set("total_bytes", strconv.FormatInt(totalBytes, 10))
	form.Set("media_type", mimeType)
	form.Set("media_category", category)

	var resp uploadResponse
	err := c.do(ctx, token, http.MethodPost, c.uploadBase+"/1.1/media/upload.json",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp)
	if err != nil {
		return "", fmt.Errorf("media upload INIT failed: %w", err)
	}
	if resp.MediaIDString == "" {
		return "", fmt.Errorf("media upload INIT returned no media id")
	}
	return resp.MediaIDString, nil
}

func (c *Client) uploadAppend(ctx context.Context, token, mediaID string, src io.Reader) error {
	buf := make([]byte, uploadChunkSize)
	for segment := 0; ; segment++ {
		n, err := io.ReadFull(src, buf)
		if n == 0 {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read media chunk: %w", err)
		}
		if aerr := c.appendChunk(ctx, token, mediaID, segment, buf[:n]); aerr != nil {
			return aerr
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read media chunk: %w", err)
		}
	}
}

func (c *Client) appendChunk(ctx context.Context, token, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("command", "APPEND")
	mw.WriteField("media_id", mediaID)
	mw.WriteField("segment_index", strconv.Itoa(segment))
	part, err := mw.CreateFormFile("media", "chunk")
	if err != nil {
		return fmt.Errorf("failed to build APPEND body: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("failed to build APPEND body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build APPEND body: %w", err)
	}

	err = c.do(ctx, token, http.MethodPost, c.uploadBase+"/1.1/media/upload.json",
		mw.FormDataContentType(), &body, nil)
	if err != nil {
		return fmt.Errorf("media upload APPEND segment %d failed: %w", segment, err)
	}
	return nil
}

func (c *Client) uploadFinalize(ctx context.Context, token, mediaID string) (*uploadResponse, error) {
	form := url.Values{}
	form.Set("command", "FINALIZE")
	form.Set("media_id", mediaID)

	var resp uploadResponse
	err := c.do(ctx, token, http.MethodPost, c.uploadBase+"/1.1/media/upload.json",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp)
	if err != nil {
		return nil, fmt.Errorf("media upload FINALIZE failed: %w", err)
	}
	return &resp, nil
}

// awaitProcessing polls STATUS until the upload reaches a terminal state,
// honoring the server's check_after_secs hints.
func (c *Client) awaitProcessing(ctx context.Context, token, mediaID string, firstHintSecs int) error {
	// FINALIZE уже дал подсказку, когда опрашивать первый раз.
	if firstHintSecs > 0 {
		timer := time.NewTimer(time.Duration(firstHintSecs) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	policy := worker.RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 30 * time.Second}
	err := worker.PollUntil(ctx, models.DefaultUploadStatusPolls, policy, func(ctx context.Context) (worker.PollResult, error) {
		q := url.Values{}
		q.Set("command", "STATUS")
		q.Set("media_id", mediaID)

		var resp uploadResponse
		err := c.do(ctx, token, http.MethodGet, c.uploadBase+"/1.1/media/upload.json?"+q.Encode(), "", nil, &resp)
		if err != nil {
			return worker.PollResult{}, fmt.Errorf("media upload STATUS failed: %w", err)
		}
		if resp.ProcessingInfo == nil {
			return worker.PollResult{Done: true}, nil
		}
		switch resp.ProcessingInfo.State {
		case "succeeded":
			return worker.PollResult{Done: true}, nil
		case "failed":
			msg := "processing failed"
			if resp.ProcessingInfo.Error != nil {
				msg = resp.ProcessingInfo.Error.Message
			}
			return worker.PollResult{}, fmt.Errorf("media processing failed: %s", msg)
		default:
			return worker.PollResult{RetryAfter: time.Duration(resp.ProcessingInfo.CheckAfterSecs) * time.Second}, nil
		}
	})
	if err != nil {
		return fmt.Errorf("media %s: %w", mediaID, err)
	}
	return nil
}
