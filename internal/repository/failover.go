package repository

import (
	"context"
	"sync/atomic"
	"time"

	"crossposter/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverMarkerRepository prefers the primary (Redis) marker store and falls
// back to the in-memory one when the primary errors, retrying the primary
// after a cooldown.
type FailoverMarkerRepository struct {
	primary   domain.MarkerRepository
	fallback  domain.MarkerRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed primary attempt
}

const recoveryCooldown = time.Minute

func NewFailoverMarkerRepository(primary, fallback domain.MarkerRepository, logger *zerolog.Logger) *FailoverMarkerRepository {
	return &FailoverMarkerRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverMarkerRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary marker repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverMarkerRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryCooldown
}

func (r *FailoverMarkerRepository) Register(ctx context.Context, accountID, chatID int64, messageID int) (bool, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		isNew, err := r.primary.Register(ctx, accountID, chatID, messageID)
		if err == nil {
			r.isDown.Store(false)
			return isNew, nil
		}
		r.markDown(err)
	}
	return r.fallback.Register(ctx, accountID, chatID, messageID)
}

func (r *FailoverMarkerRepository) Cleanup(ctx context.Context, maxAge time.Duration) error {
	// Fallback cleanup always runs; memory markers accumulate otherwise.
	if err := r.fallback.Cleanup(ctx, maxAge); err != nil {
		return err
	}
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		if err := r.primary.Cleanup(ctx, maxAge); err != nil {
			r.markDown(err)
		}
	}
	return nil
}
