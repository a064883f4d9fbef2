package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossposter/internal/models"
	"crossposter/internal/platform"
)

type graphCall struct {
	path string
	form map[string]string
}

func graphServer(t *testing.T, handler func(call graphCall, w http.ResponseWriter)) (*httptest.Server, *[]graphCall) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]graphCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		call := graphCall{path: r.URL.Path, form: map[string]string{}}
		for k := range r.Form {
			call.form[k] = r.Form.Get(k)
		}
		mu.Lock()
		*calls = append(*calls, call)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		handler(call, w)
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func pageAccount() *models.PlatformAccount {
	return &models.PlatformAccount{
		ID:         4,
		PlatformID: models.PlatformFacebook,
		Credentials: models.Credentials{
			Facebook: &models.FacebookCredentials{AccessToken: "user-token", PageID: "page-1", PageToken: "page-token"},
		},
	}
}

func newTestDispatcher(server *httptest.Server) *Dispatcher {
	d := NewDispatcher(server.Client(), nil, zerolog.Nop())
	d.SetGraphBase(server.URL)
	return d
}

func TestPublishTextOnly(t *testing.T) {
	server, calls := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		w.Write([]byte(`{"id": "page-1_111"}`))
	})
	d := newTestDispatcher(server)

	resp, err := d.Publish(context.Background(), pageAccount(), "plain text", nil, &models.Task{})
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/page-1/feed", call.path)
	assert.Equal(t, "plain text", call.form["message"])
	assert.Equal(t, "page-token", call.form["access_token"])

	assert.Equal(t, "page-1_111", resp.Facebook.PostID)
	assert.Equal(t, PathFeed, resp.Facebook.Path)
}

func TestPublishSinglePhoto(t *testing.T) {
	server, calls := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		w.Write([]byte(`{"id": "ph-1", "post_id": "page-1_222"}`))
	})
	d := newTestDispatcher(server)

	media := []models.MediaItem{{Type: models.MediaPhoto, URL: "https://files.example/a.jpg"}}
	resp, err := d.Publish(context.Background(), pageAccount(), "caption", media, &models.Task{})
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/page-1/photos", call.path)
	assert.Equal(t, "https://files.example/a.jpg", call.form["url"])
	assert.Equal(t, "caption", call.form["caption"])

	assert.Equal(t, "page-1_222", resp.Facebook.PostID)
	assert.Equal(t, PathPhoto, resp.Facebook.Path)
}

func TestPublishAlbum(t *testing.T) {
	photoIDs := []string{`{"id": "ph-1"}`, `{"id": "ph-2"}`}
	n := 0
	server, calls := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		if call.path == "/page-1/photos" {
			w.Write([]byte(photoIDs[n]))
			n++
			return
		}
		w.Write([]byte(`{"id": "page-1_333"}`))
	})
	d := newTestDispatcher(server)

	media := []models.MediaItem{
		{Type: models.MediaPhoto, URL: "https://files.example/a.jpg"},
		{Type: models.MediaPhoto, URL: "https://files.example/b.jpg"},
	}
	resp, err := d.Publish(context.Background(), pageAccount(), "album text", media, &models.Task{})
	require.NoError(t, err)

	require.Len(t, *calls, 3)
	// Фото загружаются неопубликованными.
	assert.Equal(t, "false", (*calls)[0].form["published"])
	assert.Equal(t, "false", (*calls)[1].form["published"])

	feed := (*calls)[2]
	assert.Equal(t, "/page-1/feed", feed.path)
	assert.Equal(t, `{"media_fbid":"ph-1"}`, feed.form["attached_media[0]"])
	assert.Equal(t, `{"media_fbid":"ph-2"}`, feed.form["attached_media[1]"])

	assert.Equal(t, "page-1_333", resp.Facebook.PostID)
	assert.Equal(t, PathAlbum, resp.Facebook.Path)
}

func TestPublishVideoWinsOverPhotos(t *testing.T) {
	server, calls := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		w.Write([]byte(`{"id": "vid-5"}`))
	})
	d := newTestDispatcher(server)

	media := []models.MediaItem{
		{Type: models.MediaPhoto, URL: "https://files.example/a.jpg"},
		{Type: models.MediaVideo, URL: "https://files.example/clip.mp4"},
		{Type: models.MediaPhoto, URL: "https://files.example/b.jpg"},
	}
	resp, err := d.Publish(context.Background(), pageAccount(), "video post", media, &models.Task{})
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/page-1/videos", call.path)
	assert.Equal(t, "https://files.example/clip.mp4", call.form["file_url"])
	assert.Equal(t, "video post", call.form["description"])
	assert.Equal(t, PathVideo, resp.Facebook.Path)
}

func TestPublishPageIDOverride(t *testing.T) {
	server, calls := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		w.Write([]byte(`{"id": "x"}`))
	})
	d := newTestDispatcher(server)

	task := &models.Task{Transformations: models.Transformations{
		Facebook: models.FacebookOptions{PageID: "other-page"},
	}}
	_, err := d.Publish(context.Background(), pageAccount(), "x", nil, task)
	require.NoError(t, err)
	assert.Equal(t, "/other-page/feed", (*calls)[0].path)
}

func TestPublishExpiredTokenIsAuthError(t *testing.T) {
	server, calls := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "Error validating access token", "type": "OAuthException", "code": 190}}`))
	})
	d := newTestDispatcher(server)

	_, err := d.Publish(context.Background(), pageAccount(), "x", nil, &models.Task{})
	require.Error(t, err)
	assert.True(t, platform.IsAuthError(err))

	// Page-токены долгоживущие: отказ уходит в запись как есть, без
	// попытки обмена и без повторного запроса.
	assert.Contains(t, err.Error(), "Error validating access token")
	assert.Len(t, *calls, 1)
}

func TestPublishGraphErrorVerbatim(t *testing.T) {
	server, _ := graphServer(t, func(call graphCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "Invalid parameter", "type": "GraphMethodException", "code": 100}}`))
	})
	d := newTestDispatcher(server)

	_, err := d.Publish(context.Background(), pageAccount(), "x", nil, &models.Task{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid parameter")
	assert.False(t, platform.IsAuthError(err))
}

func TestPublishNoPageConfigured(t *testing.T) {
	d := NewDispatcher(nil, nil, zerolog.Nop())
	account := pageAccount()
	account.Credentials.Facebook.PageID = ""

	_, err := d.Publish(context.Background(), account, "x", nil, &models.Task{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page")
}
