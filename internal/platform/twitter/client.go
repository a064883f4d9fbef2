// Package twitter integrates the Twitter API v2 (reads, tweets, fan-out
// actions) and the v1.1 chunked media upload endpoint.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/platform"
)

const (
	defaultAPIBase    = "https://api.twitter.com"
	defaultUploadBase = "https://upload.twitter.com"
)

// Client is a thin authorized HTTP client. Tokens are passed per call: the
// account owning them may rotate mid-flight.
type Client struct {
	http       *http.Client
	apiBase    string
	uploadBase string
	logger     zerolog.Logger
}

func NewClient(httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		http:       httpClient,
		apiBase:    defaultAPIBase,
		uploadBase: defaultUploadBase,
		logger:     logger,
	}
}

// SetBaseURLs overrides the API hosts. Used in tests.
func (c *Client) SetBaseURLs(api, upload string) {
	c.apiBase = api
	c.uploadBase = upload
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// do sends an authorized request and decodes the JSON response into out
// (when out is non-nil). A 401 becomes a platform.AuthError so the caller's
// refresh-and-retry pass can fire.
func (c *Client) do(ctx context.Context, token, method, url, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var ae apiError
		json.Unmarshal(raw, &ae)
		return &platform.AuthError{Platform: "twitter", StatusCode: resp.StatusCode, Message: ae.Detail}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && (ae.Title != "" || ae.Detail != "") {
			return fmt.Errorf("twitter api status %d: %s %s", resp.StatusCode, ae.Title, ae.Detail)
		}
		return fmt.Errorf("twitter api status %d", resp.StatusCode)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
