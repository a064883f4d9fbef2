package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerStoreRegister(t *testing.T) {
	db := setupTestDB(t)
	markers := NewMarkerStore(db)
	ctx := context.Background()

	isNew, err := markers.Register(ctx, 1, 100, 42)
	require.NoError(t, err)
	assert.True(t, isNew)

	// Повторная регистрация того же сообщения
	isNew, err = markers.Register(ctx, 1, 100, 42)
	require.NoError(t, err)
	assert.False(t, isNew)

	// Другой чат — другой ключ
	isNew, err = markers.Register(ctx, 1, 200, 42)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestMarkerStoreCleanup(t *testing.T) {
	db := setupTestDB(t)
	markers := NewMarkerStore(db)
	ctx := context.Background()

	_, err := markers.Register(ctx, 1, 100, 1)
	require.NoError(t, err)

	// Свежий маркер переживает чистку
	require.NoError(t, markers.Cleanup(ctx, time.Hour))
	isNew, err := markers.Register(ctx, 1, 100, 1)
	require.NoError(t, err)
	assert.False(t, isNew)

	// maxAge в прошлом выметает всё
	require.NoError(t, markers.Cleanup(ctx, -time.Minute))
	isNew, err = markers.Register(ctx, 1, 100, 1)
	require.NoError(t, err)
	assert.True(t, isNew)
}
