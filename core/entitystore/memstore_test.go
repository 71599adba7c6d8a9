package entitystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStorePutGetRoundTrip(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	id, txID, err := store.Put(ctx, []byte("chunk-bytes"), ContentTypeChunk, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, txID)

	data, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-bytes"), data)
}

func TestMemStoreGetMissing(t *testing.T) {
	store := NewMemStore()

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestMemStoreExpiry(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return current })

	id, _, err := store.Put(ctx, []byte("short-lived"), ContentTypeChunk, 60)
	require.NoError(t, err)

	_, err = store.Get(ctx, id)
	require.NoError(t, err)

	current = current.Add(61 * time.Second)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestMemStoreZeroExpiryMeansDefault(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return current })

	id, _, err := store.Put(ctx, []byte("long-lived"), ContentTypeChunk, 0)
	require.NoError(t, err)

	// Still readable far in the future, but not past a year.
	current = current.Add(300 * 24 * time.Hour)
	_, err = store.Get(ctx, id)
	assert.NoError(t, err)

	current = current.Add(100 * 24 * time.Hour)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestMemStoreClone(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	origID, _, err := store.PutText(ctx, "metadata-body", ContentTypeMetadata, 0)
	require.NoError(t, err)

	cloneID, cloneTx, err := store.Clone(ctx, origID, 3600)
	require.NoError(t, err)
	assert.NotEqual(t, origID, cloneID)
	assert.NotEmpty(t, cloneTx)

	body, err := store.GetText(ctx, cloneID)
	require.NoError(t, err)
	assert.Equal(t, "metadata-body", body)
}

func TestMemStoreCloneMissing(t *testing.T) {
	store := NewMemStore()

	_, _, err := store.Clone(context.Background(), "absent", 0)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestMemStoreFailPuts(t *testing.T) {
	store := NewMemStore()
	store.FailPuts = true

	_, _, err := store.Put(context.Background(), []byte("x"), ContentTypeChunk, 0)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
