package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"crossposter/internal/models"
	"crossposter/internal/platform"
)

func channelAccount() *models.PlatformAccount {
	return &models.PlatformAccount{
		ID:         3,
		PlatformID: models.PlatformYouTube,
		Credentials: models.Credentials{
			YouTube: &models.YouTubeCredentials{AccessToken: "yt-token", RefreshToken: "yt-refresh"},
		},
	}
}

func testFactory(server *httptest.Server) ServiceFactory {
	return func(ctx context.Context, token string) (*youtube.Service, error) {
		return youtube.NewService(ctx,
			option.WithHTTPClient(server.Client()),
			option.WithEndpoint(server.URL))
	}
}

func mediaFileServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPublishRejectsWithoutVideo(t *testing.T) {
	d := NewDispatcher(nil, 0, zerolog.Nop())

	_, err := d.Publish(context.Background(), channelAccount(), "text", []models.MediaItem{
		{Type: models.MediaPhoto, URL: "https://files.example/a.jpg"},
	}, &models.Task{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video")
}

func TestPublishUploadsVideo(t *testing.T) {
	files := mediaFileServer(t)

	var mu sync.Mutex
	var paths []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/upload/youtube/v3/videos":
			w.Write([]byte(`{"id": "vid-42"}`))
		case "/youtube/v3/playlistItems":
			w.Write([]byte(`{"id": "pli-1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer api.Close()

	d := NewDispatcher(nil, 0, zerolog.Nop())
	d.newService = testFactory(api)

	task := &models.Task{Transformations: models.Transformations{
		YouTube: models.YouTubeOptions{Privacy: "public", PlaylistID: "pl-9"},
	}}
	media := []models.MediaItem{{Type: models.MediaVideo, URL: files.URL + "/clip.mp4", Mime: "video/mp4"}}

	resp, err := d.Publish(context.Background(), channelAccount(), "описание ролика", media, task)
	require.NoError(t, err)

	require.NotNil(t, resp.YouTube)
	assert.Equal(t, "vid-42", resp.YouTube.VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid-42", resp.YouTube.URL)
	require.Len(t, resp.YouTube.Actions, 2)
	assert.Equal(t, "upload", resp.YouTube.Actions[0].Action)
	assert.True(t, resp.YouTube.Actions[0].OK)
	assert.Equal(t, "playlist_add", resp.YouTube.Actions[1].Action)
	assert.True(t, resp.YouTube.Actions[1].OK)

	assert.Equal(t, []string{"/upload/youtube/v3/videos", "/youtube/v3/playlistItems"}, paths)
}

func TestPublishPlaylistFailureDoesNotFailDispatch(t *testing.T) {
	files := mediaFileServer(t)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload/youtube/v3/videos" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id": "vid-7"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"code": 404, "message": "playlistNotFound"}}`))
	}))
	defer api.Close()

	d := NewDispatcher(nil, 0, zerolog.Nop())
	d.newService = testFactory(api)

	task := &models.Task{Transformations: models.Transformations{
		YouTube: models.YouTubeOptions{PlaylistID: "missing"},
	}}
	media := []models.MediaItem{{Type: models.MediaVideo, URL: files.URL + "/clip.mp4"}}

	resp, err := d.Publish(context.Background(), channelAccount(), "text", media, task)
	require.NoError(t, err)

	require.Len(t, resp.YouTube.Actions, 2)
	assert.True(t, resp.YouTube.Actions[0].OK)
	assert.False(t, resp.YouTube.Actions[1].OK)
	assert.Contains(t, resp.YouTube.Actions[1].Error, "playlistNotFound")
}

func TestPublishRefreshesOn401(t *testing.T) {
	files := mediaFileServer(t)

	var mu sync.Mutex
	calls := 0
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"code": 401, "message": "Invalid Credentials"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "vid-99"}`))
	}))
	defer api.Close()

	refreshed := 0
	refresher := refreshFunc(func(ctx context.Context, account *models.PlatformAccount) error {
		refreshed++
		account.Credentials.YouTube.AccessToken = "fresh"
		return nil
	})

	d := NewDispatcher(refresher, 0, zerolog.Nop())
	d.newService = testFactory(api)

	media := []models.MediaItem{{Type: models.MediaVideo, URL: files.URL + "/clip.mp4"}}
	resp, err := d.Publish(context.Background(), channelAccount(), "text", media, &models.Task{})
	require.NoError(t, err)
	assert.Equal(t, "vid-99", resp.YouTube.VideoID)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 2, calls)
}

type refreshFunc func(ctx context.Context, account *models.PlatformAccount) error

func (f refreshFunc) Refresh(ctx context.Context, account *models.PlatformAccount) error {
	return f(ctx, account)
}

func TestWrapAuth(t *testing.T) {
	assert.Nil(t, wrapAuth(nil))
	assert.False(t, platform.IsAuthError(wrapAuth(assert.AnError)))
}

func TestTitleFor(t *testing.T) {
	t.Run("TemplateWins", func(t *testing.T) {
		got := titleFor(models.YouTubeOptions{TitleTemplate: "Daily digest"}, "body")
		assert.Equal(t, "Daily digest", got)
	})

	t.Run("FirstLineOfBody", func(t *testing.T) {
		got := titleFor(models.YouTubeOptions{}, "headline\nrest of the text")
		assert.Equal(t, "headline", got)
	})

	t.Run("Truncated", func(t *testing.T) {
		long := ""
		for i := 0; i < 30; i++ {
			long += "abcde"
		}
		got := titleFor(models.YouTubeOptions{}, long)
		assert.Len(t, []rune(got), maxTitleLen)
	})

	t.Run("EmptyFallback", func(t *testing.T) {
		assert.Equal(t, "Untitled", titleFor(models.YouTubeOptions{}, "  \n whatever"))
	})
}

func TestPrivacyFor(t *testing.T) {
	assert.Equal(t, "public", privacyFor(models.YouTubeOptions{Privacy: "public"}))
	assert.Equal(t, defaultPrivacy, privacyFor(models.YouTubeOptions{}))
	assert.Equal(t, defaultPrivacy, privacyFor(models.YouTubeOptions{Privacy: "secret"}))
}
