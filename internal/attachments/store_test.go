package attachments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/attachvault/internal/database/testutil"
	"github.com/charlesng35/attachvault/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	return store
}

func storeEntry(id, conversationID string, payload []byte, lastAccess time.Time) *models.AttachmentCacheEntry {
	return &models.AttachmentCacheEntry{
		AttachmentID:   id,
		Payload:        payload,
		StoredBytes:    int64(len(payload)),
		FileName:       id + ".bin",
		MimeType:       "application/octet-stream",
		SizeBytes:      int64(len(payload)),
		ConversationID: conversationID,
		CachedAt:       lastAccess,
		LastAccessedAt: lastAccess,
	}
}

func TestStorePutGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-1", []byte("0123456789"), now)))
	require.EqualValues(t, 10, store.TotalBytes())

	entry, err := store.Get(ctx, "att-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, []byte("0123456789"), entry.Payload)

	existed, err := store.Delete(ctx, "att-1")
	require.NoError(t, err)
	require.True(t, existed)
	require.Zero(t, store.TotalBytes())

	entry, err = store.Get(ctx, "att-1")
	require.NoError(t, err)
	require.Nil(t, entry)

	existed, err = store.Delete(ctx, "att-1")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestStorePutOverwriteAdjustsCounterByDelta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-1", make([]byte, 100), now)))
	require.NoError(t, store.Put(ctx, storeEntry("att-2", "conv-1", make([]byte, 50), now)))
	require.EqualValues(t, 150, store.TotalBytes())

	// Overwrite shrinks att-1 from 100 to 30 bytes.
	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-1", make([]byte, 30), now)))
	require.EqualValues(t, 80, store.TotalBytes())

	// Overwrite grows it back to 200.
	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-1", make([]byte, 200), now)))
	require.EqualValues(t, 250, store.TotalBytes())
}

func TestStoreCounterRecomputedAtOpen(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := NewStore(db)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, storeEntry("att-1", "conv-1", make([]byte, 64), now)))
	require.NoError(t, first.Put(ctx, storeEntry("att-2", "conv-2", make([]byte, 36), now)))

	// A fresh store over the same database materializes the same counter.
	second, err := NewStore(db)
	require.NoError(t, err)
	require.EqualValues(t, 100, second.TotalBytes())
}

func TestStoreLeastRecentlyUsedOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.Put(ctx, storeEntry("att-new", "conv-1", make([]byte, 10), base.Add(2*time.Hour))))
	require.NoError(t, store.Put(ctx, storeEntry("att-old", "conv-1", make([]byte, 10), base)))
	require.NoError(t, store.Put(ctx, storeEntry("att-mid", "conv-1", make([]byte, 10), base.Add(time.Hour))))

	victims, err := store.LeastRecentlyUsed(ctx, "")
	require.NoError(t, err)
	require.Len(t, victims, 3)
	require.Equal(t, "att-old", victims[0].AttachmentID)
	require.Equal(t, "att-mid", victims[1].AttachmentID)
	require.Equal(t, "att-new", victims[2].AttachmentID)

	victims, err = store.LeastRecentlyUsed(ctx, "att-old")
	require.NoError(t, err)
	require.Len(t, victims, 2)
	require.Equal(t, "att-mid", victims[0].AttachmentID)
}

func TestStoreEntriesIterationIsRestartable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"att-a", "att-b", "att-c"} {
		require.NoError(t, store.Put(ctx, storeEntry(id, "conv-1", []byte("x"), now)))
	}

	collect := func() []string {
		var ids []string
		for entry, err := range store.Entries(ctx) {
			require.NoError(t, err)
			ids = append(ids, entry.AttachmentID)
		}
		return ids
	}

	require.Equal(t, []string{"att-a", "att-b", "att-c"}, collect())
	// A second pass over the same sequence starts from the beginning.
	require.Equal(t, []string{"att-a", "att-b", "att-c"}, collect())

	// Early break stops the underlying iteration without error.
	var seen int
	for _, err := range store.Entries(ctx) {
		require.NoError(t, err)
		seen++
		break
	}
	require.Equal(t, 1, seen)
}

func TestStoreFindByConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-a", []byte("x"), now)))
	require.NoError(t, store.Put(ctx, storeEntry("att-2", "conv-b", []byte("y"), now)))
	require.NoError(t, store.Put(ctx, storeEntry("att-3", "conv-a", []byte("z"), now)))

	var ids []string
	for entry, err := range store.FindByConversation(ctx, "conv-a") {
		require.NoError(t, err)
		ids = append(ids, entry.AttachmentID)
	}
	require.Equal(t, []string{"att-1", "att-3"}, ids)
}

func TestStoreClearConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-a", make([]byte, 10), now)))
	require.NoError(t, store.Put(ctx, storeEntry("att-2", "conv-a", make([]byte, 20), now)))
	require.NoError(t, store.Put(ctx, storeEntry("att-3", "conv-b", make([]byte, 5), now)))

	removed, err := store.ClearConversation(ctx, "conv-a")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
	require.EqualValues(t, 5, store.TotalBytes())

	// Idempotent.
	removed, err = store.ClearConversation(ctx, "conv-a")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestStoreSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, bytes, oldest, newest, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, bytes)
	require.Nil(t, oldest)
	require.Nil(t, newest)

	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)
	e1 := storeEntry("att-1", "conv-a", make([]byte, 10), early)
	e1.CachedAt = early
	e2 := storeEntry("att-2", "conv-a", make([]byte, 30), late)
	e2.CachedAt = late
	require.NoError(t, store.Put(ctx, e1))
	require.NoError(t, store.Put(ctx, e2))

	count, bytes, oldest, newest, err = store.Snapshot(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.EqualValues(t, 40, bytes)
	require.NotNil(t, oldest)
	require.NotNil(t, newest)
	require.True(t, oldest.Equal(early))
	require.True(t, newest.Equal(late))
}

func TestStoreUpdateAccessDoesNotMoveCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Put(ctx, storeEntry("att-1", "conv-a", make([]byte, 25), now)))
	require.NoError(t, store.UpdateAccess(ctx, "att-1", 3, now.Add(time.Minute), 1))
	require.EqualValues(t, 25, store.TotalBytes())

	entry, err := store.Get(ctx, "att-1")
	require.NoError(t, err)
	require.Equal(t, 3, entry.AccessCount)
	require.Equal(t, 1, entry.SignedURLAccessCount)
}
