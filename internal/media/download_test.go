package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	payload := strings.Repeat("x", 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(payload))
	}))
	defer server.Close()

	dir := t.TempDir()
	dl, err := Fetch(context.Background(), server.Client(), server.URL, dir, 4096)
	require.NoError(t, err)
	defer dl.Close()

	assert.Equal(t, int64(1024), dl.Size)
	assert.Equal(t, "image/jpeg", dl.Mime)

	data, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestFetchCloseRemovesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	dl, err := Fetch(context.Background(), server.Client(), server.URL, t.TempDir(), 0)
	require.NoError(t, err)

	path := dl.Path
	require.NoError(t, dl.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Повторный Close не должен падать.
	assert.NoError(t, dl.Close())
}

func TestFetchTooLargeByContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("y", 2048)))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := Fetch(context.Background(), server.Client(), server.URL, dir, 100)
	require.ErrorIs(t, err, ErrTooLarge)
	assertDirEmpty(t, dir)
}

func TestFetchTooLargeWhileStreaming(t *testing.T) {
	// Сервер не объявляет Content-Length, лимит срабатывает по факту.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for i := 0; i < 64; i++ {
			w.Write([]byte(strings.Repeat("z", 100)))
			fl.Flush()
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := Fetch(context.Background(), server.Client(), server.URL, dir, 500)
	require.ErrorIs(t, err, ErrTooLarge)
	assertDirEmpty(t, dir)
}

func TestFetchBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := Fetch(context.Background(), server.Client(), server.URL, dir, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assertDirEmpty(t, dir)
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial files must be cleaned up")
}
