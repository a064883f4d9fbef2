package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// ErrTooLarge is returned when a media payload exceeds the configured cap.
// The check fires before the download completes and leaves no partial file.
var ErrTooLarge = fmt.Errorf("media exceeds maximum download size")

// Download is a media payload staged in a scoped temporary file. Callers must
// Close it on every exit path; Close removes the file.
type Download struct {
	Path string
	Size int64
	Mime string
}

// Close removes the temporary file. Safe to call more than once.
func (d *Download) Close() error {
	if d == nil || d.Path == "" {
		return nil
	}
	err := os.Remove(d.Path)
	d.Path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Fetch downloads a URL into a temporary file under dir (or the system temp
// dir when empty), enforcing maxBytes while streaming. On any failure the
// partial file is removed before returning.
func Fetch(ctx context.Context, client *http.Client, url, dir string, maxBytes int64) (*Download, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	file, err := os.CreateTemp(dir, "relay-media-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := copyCapped(file, resp.Body, maxBytes)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, err
	}

	return &Download{
		Path: file.Name(),
		Size: size,
		Mime: resp.Header.Get("Content-Type"),
	}, nil
}

func copyCapped(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	if maxBytes <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return n, fmt.Errorf("failed to write media: %w", err)
	}
	if n > maxBytes {
		return n, ErrTooLarge
	}
	return n, nil
}
