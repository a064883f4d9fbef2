package poller

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/models"
)

// AlbumCollector buffers media-group members until the group goes quiet.
// Every new member resets the quiet-window timer; a buffer older than maxAge
// is flushed regardless, so a lost album tail cannot hold its siblings
// hostage forever.
type AlbumCollector struct {
	mu      sync.Mutex
	buffers map[string]*albumBuffer
	quiet   time.Duration
	maxAge  time.Duration
	onFlush func(items []models.ContentItem)
	logger  zerolog.Logger
}

type albumBuffer struct {
	items   []models.ContentItem
	timer   *time.Timer
	firstAt time.Time
}

func NewAlbumCollector(quiet, maxAge time.Duration, onFlush func([]models.ContentItem), logger zerolog.Logger) *AlbumCollector {
	if quiet <= 0 {
		quiet = models.DefaultAlbumQuietWindowSec * time.Second
	}
	if maxAge <= 0 {
		maxAge = models.DefaultAlbumMaxAgeSec * time.Second
	}
	return &AlbumCollector{
		buffers: make(map[string]*albumBuffer),
		quiet:   quiet,
		maxAge:  maxAge,
		onFlush: onFlush,
		logger:  logger,
	}
}

// Add buffers an album member. Items without a MediaGroupID must not be
// passed here.
func (c *AlbumCollector) Add(item models.ContentItem) {
	groupID := item.MediaGroupID

	c.mu.Lock()
	buf, ok := c.buffers[groupID]
	if !ok {
		buf = &albumBuffer{firstAt: time.Now()}
		c.buffers[groupID] = buf
	}
	buf.items = append(buf.items, item)

	if time.Since(buf.firstAt) >= c.maxAge {
		// Завис: сбрасываем немедленно, не дожидаясь тихого окна.
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(c.buffers, groupID)
		items := buf.items
		c.mu.Unlock()
		c.logger.Warn().Str("media_group_id", groupID).Int("items", len(items)).Msg("album exceeded max age, force flush")
		c.flush(groupID, items)
		return
	}

	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(c.quiet, func() {
		c.collect(groupID)
	})
	c.mu.Unlock()
}

// Flush drains every buffer immediately. Called on shutdown.
func (c *AlbumCollector) Flush() {
	c.mu.Lock()
	pending := make(map[string][]models.ContentItem, len(c.buffers))
	for id, buf := range c.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		pending[id] = buf.items
	}
	c.buffers = make(map[string]*albumBuffer)
	c.mu.Unlock()

	for id, items := range pending {
		c.flush(id, items)
	}
}

// Pending reports the number of open buffers.
func (c *AlbumCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}

func (c *AlbumCollector) collect(groupID string) {
	c.mu.Lock()
	buf, ok := c.buffers[groupID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.buffers, groupID)
	c.mu.Unlock()

	c.flush(groupID, buf.items)
}

func (c *AlbumCollector) flush(groupID string, items []models.ContentItem) {
	if len(items) == 0 {
		return
	}
	c.logger.Debug().Str("media_group_id", groupID).Int("items", len(items)).Msg("album collected")
	c.onFlush(items)
}

// MergeAlbum folds collected members into a single item: media concatenated
// in message order, caption taken from the first member that has one.
func MergeAlbum(items []models.ContentItem) models.ContentItem {
	sort.Slice(items, func(i, j int) bool { return items[i].SortKey < items[j].SortKey })

	merged := items[0]
	merged.Media = nil
	for _, it := range items {
		merged.Media = append(merged.Media, it.Media...)
		if merged.Text == "" && it.Text != "" {
			merged.Text = it.Text
		}
	}
	return merged
}
